package sqlite

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/SakenW/transhub/internal/domain"
	"github.com/SakenW/transhub/internal/ports"
)

type ContentRepo struct{ *Repo }

var _ ports.ContentRepository = (*ContentRepo)(nil)

func NewContentRepo(db *sql.DB) *ContentRepo { return &ContentRepo{NewRepo(db)} }

// Upsert registers content under its canonical identity. The conflict target
// (project_id, namespace, key_hash) makes the call idempotent: the payload
// updates in place and the id never changes. The stored version is the
// higher of the caller's version and the auto-bumped counter (previous
// version + 1 when the payload changed), so it never moves backwards.
func (r *ContentRepo) Upsert(ctx context.Context, c *domain.Content) (string, error) {
	keysJSON, err := marshalJSON(c.Keys)
	if err != nil {
		return "", err
	}
	payloadJSON, err := marshalJSON(c.SourcePayload)
	if err != nil {
		return "", err
	}
	now := nowRFC3339()
	q := r.SQ.Insert("contents").
		Columns("id", "project_id", "namespace", "key_hash", "key_canonical", "keys_json", "source_payload_json", "source_lang", "version", "created_at", "updated_at").
		Values(uuid.NewString(), c.ProjectID, c.Namespace, c.KeyHash, c.KeyCanonical, keysJSON, payloadJSON, c.SourceLang, c.Version, now, now).
		Suffix(`ON CONFLICT(project_id, namespace, key_hash) DO UPDATE SET
			source_payload_json=excluded.source_payload_json,
			source_lang=excluded.source_lang,
			version=MAX(excluded.version,
				CASE WHEN contents.source_payload_json != excluded.source_payload_json
					THEN contents.version + 1 ELSE contents.version END),
			updated_at=excluded.updated_at`)
	sqlStr, args, _ := q.ToSql()
	if _, err := r.DB.ExecContext(ctx, sqlStr, args...); err != nil {
		return "", &domain.DatabaseError{Op: "content upsert", Err: err}
	}
	stored, err := r.GetByKeyHash(ctx, c.ProjectID, c.Namespace, c.KeyHash)
	if err != nil {
		return "", err
	}
	return stored.ID, nil
}

func (r *ContentRepo) Get(ctx context.Context, id string) (*domain.Content, error) {
	return r.getWhere(ctx, sq.Eq{"id": id})
}

func (r *ContentRepo) GetByKeyHash(ctx context.Context, projectID, namespace string, keyHash []byte) (*domain.Content, error) {
	return r.getWhere(ctx, sq.Eq{"project_id": projectID, "namespace": namespace, "key_hash": keyHash})
}

func (r *ContentRepo) getWhere(ctx context.Context, pred sq.Eq) (*domain.Content, error) {
	q := r.SQ.Select("id", "project_id", "namespace", "key_hash", "key_canonical", "keys_json", "source_payload_json", "source_lang", "version", "created_at", "updated_at").
		From("contents").Where(pred).Limit(1)
	sqlStr, args, _ := q.ToSql()
	row := r.DB.QueryRowContext(ctx, sqlStr, args...)
	var c domain.Content
	var keysJSON, payloadJSON, created, updated string
	if err := row.Scan(&c.ID, &c.ProjectID, &c.Namespace, &c.KeyHash, &c.KeyCanonical, &keysJSON, &payloadJSON, &c.SourceLang, &c.Version, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, &domain.DatabaseError{Op: "content get", Err: err}
	}
	var err error
	if c.Keys, err = unmarshalJSON(keysJSON); err != nil {
		return nil, err
	}
	if c.SourcePayload, err = unmarshalJSON(payloadJSON); err != nil {
		return nil, err
	}
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}
