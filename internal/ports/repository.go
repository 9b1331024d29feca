package ports

import (
	"context"
	"time"

	"github.com/SakenW/transhub/internal/domain"
)

type ProjectRepository interface {
	// GetOrCreate returns the project with the given id, creating it on first
	// reference. The id is immutable once created.
	GetOrCreate(ctx context.Context, id, name string) (*domain.Project, error)
	Get(ctx context.Context, id string) (*domain.Project, error)
	// SetFallbacks replaces the fallback chain for (project, locale).
	SetFallbacks(ctx context.Context, projectID, locale string, fallbacks []string) error
	// GetFallbackOrder returns the configured chain, or nil when none is set.
	GetFallbackOrder(ctx context.Context, projectID, locale string) ([]string, error)
}

type ContentRepository interface {
	// Upsert is idempotent on (project, namespace, key-hash): repeated calls
	// with a different payload or version update the row but always return
	// the same content id.
	Upsert(ctx context.Context, c *domain.Content) (string, error)
	Get(ctx context.Context, id string) (*domain.Content, error)
	GetByKeyHash(ctx context.Context, projectID, namespace string, keyHash []byte) (*domain.Content, error)
}

type RevisionRepository interface {
	// GetOrCreateHead is idempotent per dimension. The first call creates the
	// head together with an initial draft revision numbered 0.
	GetOrCreateHead(ctx context.Context, projectID, contentID, lang, variant string) (*domain.Head, error)
	GetHead(ctx context.Context, contentID, lang, variant string) (*domain.Head, error)
	// Create appends a revision and repoints head.current to it in one
	// atomic unit. RevNo is assigned by the store (current + 1).
	Create(ctx context.Context, headID string, status domain.RevisionStatus, payload map[string]any, origin string, score *float64) (*domain.Revision, error)
	Get(ctx context.Context, id string) (*domain.Revision, error)

	// Publish succeeds only when the revision is reviewed; returns false
	// (not an error) when the precondition fails, including losing a race.
	Publish(ctx context.Context, revisionID string) (bool, error)
	// Unpublish requires head.published == revisionID and status published;
	// reverts the revision to reviewed and clears head.published.
	Unpublish(ctx context.Context, revisionID string) (bool, error)
	// Reject marks the revision rejected; a rejected current revision leaves
	// the dimension without a usable translation until a new one is created.
	Reject(ctx context.Context, revisionID string) (bool, error)

	GetPublished(ctx context.Context, contentID, lang, variant string) (*domain.Revision, error)

	// ClaimDraftBatch atomically claims up to batchSize unclaimed, due drafts
	// that are still their head's current revision. At most one worker holds
	// a claim on any revision at a time.
	ClaimDraftBatch(ctx context.Context, batchSize int) ([]*domain.Revision, error)
	// ReleaseClaim returns a claimed draft to the queue for a later attempt.
	ReleaseClaim(ctx context.Context, revisionID string, attempts int, nextAttemptAt time.Time) error
	// DeadLetter records the revision in the dead-letter sink and excludes it
	// from further automatic processing.
	DeadLetter(ctx context.Context, revisionID, reason string, attempts int) error
	ListDeadLetters(ctx context.Context, limit int) ([]*domain.DeadLetter, error)
}

type TMRepository interface {
	// Find is an exact-key lookup; a hit refreshes last_used_at.
	Find(ctx context.Context, key domain.TMEntry) (*domain.TMEntry, error)
	// Upsert is idempotent on the compound key; conflicts update payload,
	// score and last_used_at.
	Upsert(ctx context.Context, e *domain.TMEntry) (string, error)
	// Link records the traceability edge; idempotent per (revision, tm) pair.
	Link(ctx context.Context, revisionID, tmID string) error
	LinksForRevision(ctx context.Context, revisionID string) ([]*domain.TMLink, error)
}

// GCResult reports what a retention sweep removed (or would remove).
type GCResult struct {
	DeletedContent int
	DeletedTM      int
}

type MaintenanceRepository interface {
	// RunGC deletes content with no TM reference past the content cutoff and
	// TM entries unused past the TM cutoff. Dry-run computes counts without
	// mutating.
	RunGC(ctx context.Context, contentRetention, tmRetention time.Duration, dryRun bool) (GCResult, error)
}
