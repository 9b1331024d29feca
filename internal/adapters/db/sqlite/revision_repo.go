package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/SakenW/transhub/internal/domain"
	"github.com/SakenW/transhub/internal/ports"
)

type RevisionRepo struct{ *Repo }

var _ ports.RevisionRepository = (*RevisionRepo)(nil)

func NewRevisionRepo(db *sql.DB) *RevisionRepo { return &RevisionRepo{NewRepo(db)} }

const revisionCols = "id, project_id, content_id, head_id, lang, variant, rev_no, status, payload_json, origin, score, attempts, next_attempt_at, created_at"

func (r *RevisionRepo) GetOrCreateHead(ctx context.Context, projectID, contentID, lang, variant string) (*domain.Head, error) {
	if variant == "" {
		variant = domain.DefaultVariant
	}
	if h, err := r.GetHead(ctx, contentID, lang, variant); err != nil || h != nil {
		return h, err
	}
	headID := uuid.NewString()
	revID := uuid.NewString()
	now := nowRFC3339()
	err := WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		hq := r.SQ.Insert("heads").
			Columns("id", "content_id", "lang", "variant", "current_rev_id", "current_rev_no", "current_status").
			Values(headID, contentID, lang, variant, revID, 0, string(domain.StatusDraft))
		sqlStr, args, _ := hq.ToSql()
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return err
		}
		rq := r.SQ.Insert("revisions").
			Columns("id", "project_id", "content_id", "head_id", "lang", "variant", "rev_no", "status", "payload_json", "origin", "created_at").
			Values(revID, projectID, contentID, headID, lang, variant, 0, string(domain.StatusDraft), nil, "", now)
		sqlStr, args, _ = rq.ToSql()
		_, err := tx.ExecContext(ctx, sqlStr, args...)
		return err
	})
	if err != nil {
		// Unique(content, lang, variant) means a concurrent creator may have
		// won; the loser returns the winner's head.
		if h, gerr := r.GetHead(ctx, contentID, lang, variant); gerr == nil && h != nil {
			return h, nil
		}
		return nil, &domain.DatabaseError{Op: "head create", Err: err}
	}
	return r.GetHead(ctx, contentID, lang, variant)
}

func (r *RevisionRepo) GetHead(ctx context.Context, contentID, lang, variant string) (*domain.Head, error) {
	if variant == "" {
		variant = domain.DefaultVariant
	}
	q := r.SQ.Select("id", "content_id", "lang", "variant", "current_rev_id", "current_rev_no", "current_status", "published_rev_id", "published_rev_no", "published_at").
		From("heads").
		Where(sq.Eq{"content_id": contentID, "lang": lang, "variant": variant}).Limit(1)
	sqlStr, args, _ := q.ToSql()
	row := r.DB.QueryRowContext(ctx, sqlStr, args...)
	var h domain.Head
	var status string
	var pubID sql.NullString
	var pubNo sql.NullInt64
	var pubAt sql.NullString
	if err := row.Scan(&h.ID, &h.ContentID, &h.Lang, &h.Variant, &h.CurrentRevID, &h.CurrentRevNo, &status, &pubID, &pubNo, &pubAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, &domain.DatabaseError{Op: "head get", Err: err}
	}
	h.CurrentStatus = domain.RevisionStatus(status)
	if pubID.Valid {
		v := pubID.String
		h.PublishedRevID = &v
	}
	if pubNo.Valid {
		v := int(pubNo.Int64)
		h.PublishedRevNo = &v
	}
	if pubAt.Valid {
		t := parseTime(pubAt.String)
		h.PublishedAt = &t
	}
	return &h, nil
}

// Create appends a revision and repoints head.current in one transaction.
// Revision numbers per dimension are strictly increasing; the optimistic
// head update plus the Unique(head_id, rev_no) constraint guarantee a number
// is never assigned twice.
func (r *RevisionRepo) Create(ctx context.Context, headID string, status domain.RevisionStatus, payload map[string]any, origin string, score *float64) (*domain.Revision, error) {
	revID := uuid.NewString()
	err := WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		var projectID, contentID, lang, variant string
		var curNo int
		row := tx.QueryRowContext(ctx,
			`SELECT r.project_id, h.content_id, h.lang, h.variant, h.current_rev_no
			 FROM heads h JOIN revisions r ON r.id = h.current_rev_id
			 WHERE h.id = ?`, headID)
		if err := row.Scan(&projectID, &contentID, &lang, &variant, &curNo); err != nil {
			if err == sql.ErrNoRows {
				return domain.ErrNotFound
			}
			return err
		}
		revNo := curNo + 1
		var payloadJSON any
		if payload != nil {
			s, err := marshalJSON(payload)
			if err != nil {
				return err
			}
			payloadJSON = s
		}
		iq := r.SQ.Insert("revisions").
			Columns("id", "project_id", "content_id", "head_id", "lang", "variant", "rev_no", "status", "payload_json", "origin", "score", "created_at").
			Values(revID, projectID, contentID, headID, lang, variant, revNo, string(status), payloadJSON, origin, score, nowRFC3339())
		sqlStr, args, _ := iq.ToSql()
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return err
		}
		uq := r.SQ.Update("heads").
			Set("current_rev_id", revID).
			Set("current_rev_no", revNo).
			Set("current_status", string(status)).
			Where(sq.Eq{"id": headID, "current_rev_no": curNo})
		sqlStr, args, _ = uq.ToSql()
		res, err := tx.ExecContext(ctx, sqlStr, args...)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &domain.LockAcquisitionError{Resource: "head " + headID}
		}
		return nil
	})
	if err != nil {
		if err == domain.ErrNotFound {
			return nil, err
		}
		var lockErr *domain.LockAcquisitionError
		if errors.As(err, &lockErr) {
			return nil, err
		}
		return nil, &domain.DatabaseError{Op: "revision create", Err: err}
	}
	return r.Get(ctx, revID)
}

func (r *RevisionRepo) Get(ctx context.Context, id string) (*domain.Revision, error) {
	row := r.DB.QueryRowContext(ctx, "SELECT "+revisionCols+" FROM revisions WHERE id = ?", id)
	rev, err := scanRevision(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, &domain.DatabaseError{Op: "revision get", Err: err}
	}
	return rev, nil
}

// Publish is a conditional transition: reviewed -> published. Concurrent
// publishes on the same revision race safely; exactly one sees true.
func (r *RevisionRepo) Publish(ctx context.Context, revisionID string) (bool, error) {
	ok := false
	err := WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE revisions SET status = ? WHERE id = ? AND status = ?`,
			string(domain.StatusPublished), revisionID, string(domain.StatusReviewed))
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		var headID string
		var revNo int
		if err := tx.QueryRowContext(ctx, `SELECT head_id, rev_no FROM revisions WHERE id = ?`, revisionID).Scan(&headID, &revNo); err != nil {
			return err
		}
		// A previously published revision on the same head steps back to
		// reviewed so the dimension keeps a single published target.
		if _, err := tx.ExecContext(ctx,
			`UPDATE revisions SET status = ? WHERE status = ? AND id != ?
			 AND id = (SELECT published_rev_id FROM heads WHERE id = ?)`,
			string(domain.StatusReviewed), string(domain.StatusPublished), revisionID, headID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE heads SET published_rev_id = ?, published_rev_no = ?, published_at = ?,
			        current_status = CASE WHEN current_rev_id = ? THEN ? ELSE current_status END
			 WHERE id = ?`,
			revisionID, revNo, nowRFC3339(), revisionID, string(domain.StatusPublished), headID); err != nil {
			return err
		}
		ok = true
		return nil
	})
	if err != nil {
		return false, &domain.DatabaseError{Op: "publish", Err: err}
	}
	return ok, nil
}

// Unpublish reverts published -> reviewed and clears the head's published
// pointer. Head.current is untouched.
func (r *RevisionRepo) Unpublish(ctx context.Context, revisionID string) (bool, error) {
	ok := false
	err := WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE heads SET published_rev_id = NULL, published_rev_no = NULL, published_at = NULL,
			        current_status = CASE WHEN current_rev_id = ? THEN ? ELSE current_status END
			 WHERE published_rev_id = ?`,
			revisionID, string(domain.StatusReviewed), revisionID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		res, err = tx.ExecContext(ctx,
			`UPDATE revisions SET status = ? WHERE id = ? AND status = ?`,
			string(domain.StatusReviewed), revisionID, string(domain.StatusPublished))
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		ok = true
		return nil
	})
	if err != nil {
		return false, &domain.DatabaseError{Op: "unpublish", Err: err}
	}
	return ok, nil
}

// Reject marks a draft or reviewed revision rejected; a published revision
// must be unpublished first.
func (r *RevisionRepo) Reject(ctx context.Context, revisionID string) (bool, error) {
	ok := false
	err := WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE revisions SET status = ?, claim_token = NULL, claimed_at = NULL
			 WHERE id = ? AND status IN (?, ?)`,
			string(domain.StatusRejected), revisionID, string(domain.StatusDraft), string(domain.StatusReviewed))
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE heads SET current_status = ? WHERE current_rev_id = ?`,
			string(domain.StatusRejected), revisionID); err != nil {
			return err
		}
		ok = true
		return nil
	})
	if err != nil {
		return false, &domain.DatabaseError{Op: "reject", Err: err}
	}
	return ok, nil
}

func (r *RevisionRepo) GetPublished(ctx context.Context, contentID, lang, variant string) (*domain.Revision, error) {
	if variant == "" {
		variant = domain.DefaultVariant
	}
	row := r.DB.QueryRowContext(ctx,
		`SELECT r.id, r.project_id, r.content_id, r.head_id, r.lang, r.variant, r.rev_no, r.status, r.payload_json, r.origin, r.score, r.attempts, r.next_attempt_at, r.created_at
		 FROM heads h JOIN revisions r ON r.id = h.published_rev_id
		 WHERE h.content_id = ? AND h.lang = ? AND h.variant = ?`,
		contentID, lang, variant)
	rev, err := scanRevision(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, &domain.DatabaseError{Op: "get published", Err: err}
	}
	return rev, nil
}

// staleClaimAfter is how long a claim may sit before it is presumed to
// belong to a dead worker and becomes claimable again.
const staleClaimAfter = 5 * time.Minute

// ClaimDraftBatch marks up to batchSize due drafts with a fresh claim token
// in a single UPDATE, then reads them back. The single-statement marking is
// what gives at-most-one active claim per revision on SQLite, which has no
// row-level lock-and-skip. Claims older than staleClaimAfter are overridden
// so a crashed worker cannot strand its batch.
func (r *RevisionRepo) ClaimDraftBatch(ctx context.Context, batchSize int) ([]*domain.Revision, error) {
	if batchSize <= 0 {
		return nil, nil
	}
	token := uuid.NewString()
	now := nowRFC3339()
	stale := time.Now().UTC().Add(-staleClaimAfter).Format(time.RFC3339Nano)
	_, err := r.DB.ExecContext(ctx,
		`UPDATE revisions SET claim_token = ?, claimed_at = ?
		 WHERE id IN (
		     SELECT r.id FROM revisions r
		     JOIN heads h ON h.current_rev_id = r.id
		     WHERE r.status = ? AND r.dead_lettered = 0
		       AND (r.claim_token IS NULL OR r.claimed_at < ?)
		       AND (r.next_attempt_at IS NULL OR r.next_attempt_at <= ?)
		     ORDER BY r.created_at
		     LIMIT ?)`,
		token, now, string(domain.StatusDraft), stale, now, batchSize)
	if err != nil {
		return nil, &domain.DatabaseError{Op: "claim drafts", Err: err}
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+revisionCols+" FROM revisions WHERE claim_token = ? ORDER BY created_at", token)
	if err != nil {
		return nil, &domain.DatabaseError{Op: "read claimed drafts", Err: err}
	}
	defer rows.Close()
	var out []*domain.Revision
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, &domain.DatabaseError{Op: "scan claimed draft", Err: err}
		}
		out = append(out, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.DatabaseError{Op: "iterate claimed drafts", Err: err}
	}
	return out, nil
}

// ReleaseClaim returns a draft to the queue. A zero nextAttemptAt clears the
// backoff gate, making the draft immediately claimable again.
func (r *RevisionRepo) ReleaseClaim(ctx context.Context, revisionID string, attempts int, nextAttemptAt time.Time) error {
	var next any
	if !nextAttemptAt.IsZero() {
		next = nextAttemptAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := r.DB.ExecContext(ctx,
		`UPDATE revisions SET claim_token = NULL, claimed_at = NULL, attempts = ?, next_attempt_at = ? WHERE id = ?`,
		attempts, next, revisionID)
	if err != nil {
		return &domain.DatabaseError{Op: "release claim", Err: err}
	}
	return nil
}

// DeadLetter is idempotent per revision: the unique revision_id in the sink
// means a revision appears there exactly once.
func (r *RevisionRepo) DeadLetter(ctx context.Context, revisionID, reason string, attempts int) error {
	err := WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO dead_letters (id, revision_id, reason, attempts, created_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(revision_id) DO NOTHING`,
			uuid.NewString(), revisionID, reason, attempts, nowRFC3339()); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE revisions SET dead_lettered = 1, claim_token = NULL, claimed_at = NULL, attempts = ? WHERE id = ?`,
			attempts, revisionID)
		return err
	})
	if err != nil {
		return &domain.DatabaseError{Op: "dead letter", Err: err}
	}
	return nil
}

func (r *RevisionRepo) ListDeadLetters(ctx context.Context, limit int) ([]*domain.DeadLetter, error) {
	q := r.SQ.Select("id", "revision_id", "reason", "attempts", "created_at").From("dead_letters").OrderBy("created_at")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	sqlStr, args, _ := q.ToSql()
	rows, err := r.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, &domain.DatabaseError{Op: "list dead letters", Err: err}
	}
	defer rows.Close()
	var out []*domain.DeadLetter
	for rows.Next() {
		var d domain.DeadLetter
		var created string
		if err := rows.Scan(&d.ID, &d.RevisionID, &d.Reason, &d.Attempts, &created); err != nil {
			return nil, &domain.DatabaseError{Op: "scan dead letter", Err: err}
		}
		d.CreatedAt = parseTime(created)
		out = append(out, &d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRevision(row rowScanner) (*domain.Revision, error) {
	var rev domain.Revision
	var status string
	var payloadJSON sql.NullString
	var score sql.NullFloat64
	var nextAt sql.NullString
	var created string
	if err := row.Scan(&rev.ID, &rev.ProjectID, &rev.ContentID, &rev.HeadID, &rev.Lang, &rev.Variant, &rev.RevNo, &status, &payloadJSON, &rev.Origin, &score, &rev.Attempts, &nextAt, &created); err != nil {
		return nil, err
	}
	rev.Status = domain.RevisionStatus(status)
	if payloadJSON.Valid {
		m, err := unmarshalJSON(payloadJSON.String)
		if err != nil {
			return nil, err
		}
		rev.Payload = m
	}
	if score.Valid {
		v := score.Float64
		rev.Score = &v
	}
	if nextAt.Valid {
		t := parseTime(nextAt.String)
		rev.NextAttemptAt = &t
	}
	rev.CreatedAt = parseTime(created)
	return &rev, nil
}
