package sqlite

import (
	"context"
	"crypto/sha256"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SakenW/transhub/internal/domain"
)

type testStore struct {
	projects  *ProjectRepo
	contents  *ContentRepo
	revisions *RevisionRepo
	tm        *TMRepo
	maint     *MaintenanceRepo
}

func newTestStore(t *testing.T) *testStore {
	t.Helper()
	db, err := Init(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &testStore{
		projects:  NewProjectRepo(db),
		contents:  NewContentRepo(db),
		revisions: NewRevisionRepo(db),
		tm:        NewTMRepo(db),
		maint:     NewMaintenanceRepo(db),
	}
}

func (s *testStore) seedContent(t *testing.T, ctx context.Context, key string) string {
	t.Helper()
	_, err := s.projects.GetOrCreate(ctx, "proj", "proj")
	require.NoError(t, err)
	hash := sha256.Sum256([]byte(key))
	id, err := s.contents.Upsert(ctx, &domain.Content{
		ProjectID:     "proj",
		Namespace:     "greetings",
		KeyHash:       hash[:],
		KeyCanonical:  `{"id":"` + key + `"}`,
		Keys:          map[string]any{"id": key},
		SourcePayload: map[string]any{"text": "Hello"},
		SourceLang:    "en",
		Version:       1,
	})
	require.NoError(t, err)
	return id
}

func TestContentUpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.projects.GetOrCreate(ctx, "proj", "proj")
	require.NoError(t, err)

	hash := sha256.Sum256([]byte("welcome"))
	c := &domain.Content{
		ProjectID:     "proj",
		Namespace:     "greetings",
		KeyHash:       hash[:],
		KeyCanonical:  `{"id":"welcome"}`,
		Keys:          map[string]any{"id": "welcome"},
		SourcePayload: map[string]any{"text": "Hello"},
		SourceLang:    "en",
		Version:       1,
	}
	id1, err := s.contents.Upsert(ctx, c)
	require.NoError(t, err)

	// Unchanged payload: same id, version stays put.
	id2, err := s.contents.Upsert(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "identity must survive re-submission")
	stored, err := s.contents.Get(ctx, id1)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 1, stored.Version)

	// Changed payload: still the same id, version bumps.
	c.SourcePayload = map[string]any{"text": "Hello there"}
	id3, err := s.contents.Upsert(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, id1, id3)
	stored, err = s.contents.Get(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, "Hello there", stored.SourcePayload["text"])
	assert.Equal(t, 2, stored.Version)
	assert.Equal(t, "en", stored.SourceLang)

	// A caller tracking versions itself wins when it is ahead, and can
	// never push the counter backwards.
	c.SourcePayload = map[string]any{"text": "Hello again"}
	c.Version = 7
	_, err = s.contents.Upsert(ctx, c)
	require.NoError(t, err)
	stored, err = s.contents.Get(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, 7, stored.Version)

	c.Version = 1
	_, err = s.contents.Upsert(ctx, c)
	require.NoError(t, err)
	stored, err = s.contents.Get(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, 7, stored.Version)
}

func TestGetOrCreateHeadSeedsDraft(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	contentID := s.seedContent(t, ctx, "welcome")

	h1, err := s.revisions.GetOrCreateHead(ctx, "proj", contentID, "de", "")
	require.NoError(t, err)
	require.NotNil(t, h1)
	assert.Equal(t, domain.DefaultVariant, h1.Variant)
	assert.Equal(t, 0, h1.CurrentRevNo)
	assert.Equal(t, domain.StatusDraft, h1.CurrentStatus)
	assert.Nil(t, h1.PublishedRevID)

	rev0, err := s.revisions.Get(ctx, h1.CurrentRevID)
	require.NoError(t, err)
	require.NotNil(t, rev0)
	assert.Equal(t, 0, rev0.RevNo)
	assert.Equal(t, domain.StatusDraft, rev0.Status)
	assert.Nil(t, rev0.Payload)

	h2, err := s.revisions.GetOrCreateHead(ctx, "proj", contentID, "de", "")
	require.NoError(t, err)
	assert.Equal(t, h1.ID, h2.ID, "head per dimension is unique")
	assert.Equal(t, h1.CurrentRevID, h2.CurrentRevID)
}

func TestRevisionCreateRepointsHead(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	contentID := s.seedContent(t, ctx, "welcome")
	head, err := s.revisions.GetOrCreateHead(ctx, "proj", contentID, "de", "")
	require.NoError(t, err)

	payload := map[string]any{"text": "Hallo"}
	rev, err := s.revisions.Create(ctx, head.ID, domain.StatusReviewed, payload, "debug", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, rev.RevNo)
	assert.Equal(t, domain.StatusReviewed, rev.Status)
	assert.Equal(t, "Hallo", rev.Payload["text"])
	assert.Equal(t, "debug", rev.Origin)

	after, err := s.revisions.GetHead(ctx, contentID, "de", "")
	require.NoError(t, err)
	assert.Equal(t, rev.ID, after.CurrentRevID)
	assert.Equal(t, 1, after.CurrentRevNo)
	assert.Equal(t, domain.StatusReviewed, after.CurrentStatus)

	_, err = s.revisions.Create(ctx, "no-such-head", domain.StatusDraft, nil, "", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPublishLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	contentID := s.seedContent(t, ctx, "welcome")
	head, err := s.revisions.GetOrCreateHead(ctx, "proj", contentID, "de", "")
	require.NoError(t, err)

	// The seeded draft has no payload and must not be publishable.
	ok, err := s.revisions.Publish(ctx, head.CurrentRevID)
	require.NoError(t, err)
	assert.False(t, ok, "draft cannot be published")

	rev1, err := s.revisions.Create(ctx, head.ID, domain.StatusReviewed, map[string]any{"text": "Hallo"}, "debug", nil)
	require.NoError(t, err)
	ok, err = s.revisions.Publish(ctx, rev1.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.revisions.Publish(ctx, rev1.ID)
	require.NoError(t, err)
	assert.False(t, ok, "second publish of the same revision loses")

	pub, err := s.revisions.GetPublished(ctx, contentID, "de", "")
	require.NoError(t, err)
	require.NotNil(t, pub)
	assert.Equal(t, rev1.ID, pub.ID)

	// Publishing a newer revision demotes the old one.
	rev2, err := s.revisions.Create(ctx, head.ID, domain.StatusReviewed, map[string]any{"text": "Hallo!"}, "debug", nil)
	require.NoError(t, err)
	ok, err = s.revisions.Publish(ctx, rev2.ID)
	require.NoError(t, err)
	require.True(t, ok)

	pub, err = s.revisions.GetPublished(ctx, contentID, "de", "")
	require.NoError(t, err)
	assert.Equal(t, rev2.ID, pub.ID)
	old, err := s.revisions.Get(ctx, rev1.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReviewed, old.Status, "previous published steps back to reviewed")

	// Unpublish only works on the head's published revision.
	ok, err = s.revisions.Unpublish(ctx, rev1.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.revisions.Unpublish(ctx, rev2.ID)
	require.NoError(t, err)
	require.True(t, ok)
	pub, err = s.revisions.GetPublished(ctx, contentID, "de", "")
	require.NoError(t, err)
	assert.Nil(t, pub)
	got, err := s.revisions.Get(ctx, rev2.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReviewed, got.Status)
}

func TestRejectTransitions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	contentID := s.seedContent(t, ctx, "welcome")
	head, err := s.revisions.GetOrCreateHead(ctx, "proj", contentID, "de", "")
	require.NoError(t, err)

	rev, err := s.revisions.Create(ctx, head.ID, domain.StatusReviewed, map[string]any{"text": "Hallo"}, "debug", nil)
	require.NoError(t, err)
	ok, err := s.revisions.Reject(ctx, rev.ID)
	require.NoError(t, err)
	require.True(t, ok)

	after, err := s.revisions.GetHead(ctx, contentID, "de", "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, after.CurrentStatus)

	// A published revision must be unpublished before rejection.
	rev2, err := s.revisions.Create(ctx, head.ID, domain.StatusReviewed, map[string]any{"text": "Hallo!"}, "debug", nil)
	require.NoError(t, err)
	ok, err = s.revisions.Publish(ctx, rev2.ID)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.revisions.Reject(ctx, rev2.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClaimDraftBatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	contentID := s.seedContent(t, ctx, "welcome")
	head, err := s.revisions.GetOrCreateHead(ctx, "proj", contentID, "de", "")
	require.NoError(t, err)

	batch, err := s.revisions.ClaimDraftBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, head.CurrentRevID, batch[0].ID)

	// Claimed drafts are invisible to other claimers.
	again, err := s.revisions.ClaimDraftBatch(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	// A future next-attempt time keeps the draft off the queue.
	err = s.revisions.ReleaseClaim(ctx, batch[0].ID, 1, time.Now().Add(time.Hour))
	require.NoError(t, err)
	backedOff, err := s.revisions.ClaimDraftBatch(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, backedOff)

	// A zero time clears the gate.
	err = s.revisions.ReleaseClaim(ctx, batch[0].ID, 1, time.Time{})
	require.NoError(t, err)
	due, err := s.revisions.ClaimDraftBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].Attempts)

	// Once the head moved past the draft it is no longer claimable, even
	// when unclaimed and due.
	err = s.revisions.ReleaseClaim(ctx, due[0].ID, 1, time.Time{})
	require.NoError(t, err)
	_, err = s.revisions.Create(ctx, head.ID, domain.StatusReviewed, map[string]any{"text": "Hallo"}, "debug", nil)
	require.NoError(t, err)
	retired, err := s.revisions.ClaimDraftBatch(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, retired)
}

func TestClaimDraftBatchReclaimsStaleClaims(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	contentID := s.seedContent(t, ctx, "welcome")
	head, err := s.revisions.GetOrCreateHead(ctx, "proj", contentID, "de", "")
	require.NoError(t, err)

	first, err := s.revisions.ClaimDraftBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// A live claim shields the draft.
	blocked, err := s.revisions.ClaimDraftBatch(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, blocked)

	// A claim from a worker that died is overridden once it goes stale.
	old := time.Now().UTC().Add(-2 * staleClaimAfter).Format(time.RFC3339Nano)
	_, err = s.revisions.DB.ExecContext(ctx, `UPDATE revisions SET claimed_at = ? WHERE id = ?`, old, head.CurrentRevID)
	require.NoError(t, err)

	reclaimed, err := s.revisions.ClaimDraftBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, head.CurrentRevID, reclaimed[0].ID)
}

func TestDeadLetterIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	contentID := s.seedContent(t, ctx, "welcome")
	head, err := s.revisions.GetOrCreateHead(ctx, "proj", contentID, "de", "")
	require.NoError(t, err)

	require.NoError(t, s.revisions.DeadLetter(ctx, head.CurrentRevID, "engine rejected input", 3))
	require.NoError(t, s.revisions.DeadLetter(ctx, head.CurrentRevID, "duplicate report", 4))

	letters, err := s.revisions.ListDeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1, "one sink entry per revision")
	assert.Equal(t, head.CurrentRevID, letters[0].RevisionID)
	assert.Equal(t, "engine rejected input", letters[0].Reason)

	// Dead-lettered drafts never come back to the queue.
	batch, err := s.revisions.ClaimDraftBatch(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestTMRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	contentID := s.seedContent(t, ctx, "welcome")
	head, err := s.revisions.GetOrCreateHead(ctx, "proj", contentID, "de", "")
	require.NoError(t, err)
	rev, err := s.revisions.Create(ctx, head.ID, domain.StatusReviewed, map[string]any{"text": "Hallo"}, "debug", nil)
	require.NoError(t, err)

	hash := sha256.Sum256([]byte("hello-de"))
	key := domain.TMEntry{
		ProjectID: "proj", Namespace: "greetings", ReuseHash: hash[:],
		SrcLang: "en", TgtLang: "de", Variant: "-", PolicyVer: 1, HashAlgoVer: 1,
	}
	miss, err := s.tm.Find(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, miss)

	entry := key
	entry.Payload = map[string]any{"text": "Hallo"}
	id1, err := s.tm.Upsert(ctx, &entry)
	require.NoError(t, err)

	hit, err := s.tm.Find(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, id1, hit.ID)
	assert.Equal(t, "Hallo", hit.Payload["text"])

	entry.Payload = map[string]any{"text": "Hallo!"}
	id2, err := s.tm.Upsert(ctx, &entry)
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "compound key keeps the original id")

	require.NoError(t, s.tm.Link(ctx, rev.ID, id1))
	require.NoError(t, s.tm.Link(ctx, rev.ID, id1))
	links, err := s.tm.LinksForRevision(ctx, rev.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, id1, links[0].TMID)
}

func TestFallbackChain(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.projects.GetOrCreate(ctx, "proj", "proj")
	require.NoError(t, err)

	none, err := s.projects.GetFallbackOrder(ctx, "proj", "fr-CA")
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, s.projects.SetFallbacks(ctx, "proj", "fr-CA", []string{"fr", "en"}))
	chain, err := s.projects.GetFallbackOrder(ctx, "proj", "fr-CA")
	require.NoError(t, err)
	assert.Equal(t, []string{"fr", "en"}, chain)

	require.NoError(t, s.projects.SetFallbacks(ctx, "proj", "fr-CA", []string{"fr"}))
	chain, err = s.projects.GetFallbackOrder(ctx, "proj", "fr-CA")
	require.NoError(t, err)
	assert.Equal(t, []string{"fr"}, chain)
}

func TestRunGC(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// Stale content with no TM trace is reclaimable; linked content is not.
	staleID := s.seedContent(t, ctx, "stale")
	linkedID := s.seedContent(t, ctx, "linked")
	head, err := s.revisions.GetOrCreateHead(ctx, "proj", linkedID, "de", "")
	require.NoError(t, err)
	rev, err := s.revisions.Create(ctx, head.ID, domain.StatusReviewed, map[string]any{"text": "Hallo"}, "debug", nil)
	require.NoError(t, err)
	hash := sha256.Sum256([]byte("linked-de"))
	tmID, err := s.tm.Upsert(ctx, &domain.TMEntry{
		ProjectID: "proj", Namespace: "greetings", ReuseHash: hash[:],
		SrcLang: "en", TgtLang: "de", Variant: "-", PolicyVer: 1, HashAlgoVer: 1,
		Payload: map[string]any{"text": "Hallo"},
	})
	require.NoError(t, err)
	require.NoError(t, s.tm.Link(ctx, rev.ID, tmID))

	old := time.Now().UTC().Add(-48 * time.Hour).Format(time.RFC3339Nano)
	_, err = s.contents.DB.ExecContext(ctx, `UPDATE contents SET updated_at = ?`, old)
	require.NoError(t, err)
	_, err = s.tm.DB.ExecContext(ctx, `UPDATE tm_entries SET last_used_at = ?`, old)
	require.NoError(t, err)

	dry, err := s.maint.RunGC(ctx, 24*time.Hour, 24*time.Hour, true)
	require.NoError(t, err)
	assert.Equal(t, 1, dry.DeletedContent)
	assert.Equal(t, 1, dry.DeletedTM)
	still, err := s.contents.Get(ctx, staleID)
	require.NoError(t, err)
	assert.NotNil(t, still, "dry-run must not delete")

	res, err := s.maint.RunGC(ctx, 24*time.Hour, 24*time.Hour, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeletedContent)
	assert.Equal(t, 1, res.DeletedTM)

	gone, err := s.contents.Get(ctx, staleID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	kept, err := s.contents.Get(ctx, linkedID)
	require.NoError(t, err)
	assert.NotNil(t, kept, "TM-linked content survives the sweep")
}
