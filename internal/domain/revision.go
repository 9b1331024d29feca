package domain

import "time"

type RevisionStatus string

const (
	StatusDraft     RevisionStatus = "draft"
	StatusReviewed  RevisionStatus = "reviewed"
	StatusPublished RevisionStatus = "published"
	StatusRejected  RevisionStatus = "rejected"
)

// DefaultVariant is the variant key used when none is given.
const DefaultVariant = "-"

// OriginTM marks revisions satisfied from translation memory instead of an
// engine call.
const OriginTM = "tm"

// Revision is one immutable translation attempt for a (content, lang, variant)
// dimension. Only the status field may change after creation; everything else
// is append-only.
type Revision struct {
	ID            string         `json:"id"`
	ProjectID     string         `json:"project_id"`
	ContentID     string         `json:"content_id"`
	HeadID        string         `json:"head_id"`
	Lang          string         `json:"lang"`
	Variant       string         `json:"variant"`
	RevNo         int            `json:"rev_no"`
	Status        RevisionStatus `json:"status"`
	Payload       map[string]any `json:"payload"` // nil until reviewed
	Origin        string         `json:"origin"`  // engine name or "tm"
	Score         *float64       `json:"score"`
	Attempts      int            `json:"attempts"`
	NextAttemptAt *time.Time     `json:"next_attempt_at"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Head is the single mutable pointer record per (content, lang, variant)
// dimension. CurrentRevID always references the most recently created
// revision for the dimension; PublishedRevID is set for at most one revision
// at a time.
type Head struct {
	ID             string         `json:"id"`
	ContentID      string         `json:"content_id"`
	Lang           string         `json:"lang"`
	Variant        string         `json:"variant"`
	CurrentRevID   string         `json:"current_rev_id"`
	CurrentRevNo   int            `json:"current_rev_no"`
	CurrentStatus  RevisionStatus `json:"current_status"`
	PublishedRevID *string        `json:"published_rev_id"`
	PublishedRevNo *int           `json:"published_rev_no"`
	PublishedAt    *time.Time     `json:"published_at"`
}

// DeadLetter records a revision that exhausted its retry budget or failed
// non-retryably. Dead-lettered revisions are excluded from further automatic
// processing.
type DeadLetter struct {
	ID         string    `json:"id"`
	RevisionID string    `json:"revision_id"`
	Reason     string    `json:"reason"`
	Attempts   int       `json:"attempts"`
	CreatedAt  time.Time `json:"created_at"`
}
