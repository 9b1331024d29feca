package worker

import (
	"context"
	"crypto/sha256"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SakenW/transhub/internal/adapters/db/sqlite"
	"github.com/SakenW/transhub/internal/domain"
	"github.com/SakenW/transhub/internal/ports"
	"github.com/SakenW/transhub/internal/reusekey"
)

// truncatingEngine answers every batch with zero results, violating the
// one-result-per-text contract.
type truncatingEngine struct{}

func (truncatingEngine) Name() string { return "truncating" }

func (truncatingEngine) TranslateBatch(context.Context, []string, string, string) ([]ports.EngineResult, error) {
	return nil, nil
}

func seedDraft(t *testing.T, ctx context.Context, revisions *sqlite.RevisionRepo, contents *sqlite.ContentRepo, projects *sqlite.ProjectRepo) {
	t.Helper()
	_, err := projects.GetOrCreate(ctx, "proj", "proj")
	require.NoError(t, err)
	hash := sha256.Sum256([]byte("welcome"))
	contentID, err := contents.Upsert(ctx, &domain.Content{
		ProjectID:     "proj",
		Namespace:     "greetings",
		KeyHash:       hash[:],
		KeyCanonical:  `{"id":"welcome"}`,
		Keys:          map[string]any{"id": "welcome"},
		SourcePayload: map[string]any{"text": "Hello"},
		SourceLang:    "en",
		Version:       1,
	})
	require.NoError(t, err)
	_, err = revisions.GetOrCreateHead(ctx, "proj", contentID, "de", "")
	require.NoError(t, err)
}

func TestProcessOnceReleasesClaimsOnEngineContractViolation(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Init(filepath.Join(t.TempDir(), "worker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	revisions := sqlite.NewRevisionRepo(db)
	contents := sqlite.NewContentRepo(db)
	seedDraft(t, ctx, revisions, contents, sqlite.NewProjectRepo(db))

	w, err := New(Deps{
		Revisions: revisions,
		Contents:  contents,
		TM:        sqlite.NewTMRepo(db),
		Policies:  reusekey.NewRegistry(),
		Engine:    truncatingEngine{},
	}, Config{})
	require.NoError(t, err)

	n, err := w.ProcessOnce(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, n)

	// The failed batch must not strand its drafts: the claim is released
	// and the draft is immediately claimable again.
	batch, err := revisions.ClaimDraftBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, domain.StatusDraft, batch[0].Status)

	letters, err := revisions.ListDeadLetters(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, letters, "a contract violation is not the draft's fault")
}
