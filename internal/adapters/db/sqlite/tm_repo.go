package sqlite

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/SakenW/transhub/internal/domain"
	"github.com/SakenW/transhub/internal/ports"
)

type TMRepo struct{ *Repo }

var _ ports.TMRepository = (*TMRepo)(nil)

func NewTMRepo(db *sql.DB) *TMRepo { return &TMRepo{NewRepo(db)} }

func tmKeyPred(e domain.TMEntry) sq.Eq {
	return sq.Eq{
		"project_id":    e.ProjectID,
		"namespace":     e.Namespace,
		"reuse_hash":    e.ReuseHash,
		"src_lang":      e.SrcLang,
		"tgt_lang":      e.TgtLang,
		"variant":       e.Variant,
		"policy_ver":    e.PolicyVer,
		"hash_algo_ver": e.HashAlgoVer,
	}
}

// Find is an exact compound-key lookup. A hit refreshes last_used_at, which
// the retention sweep relies on.
func (r *TMRepo) Find(ctx context.Context, key domain.TMEntry) (*domain.TMEntry, error) {
	if key.Variant == "" {
		key.Variant = domain.DefaultVariant
	}
	q := r.SQ.Select("id", "project_id", "namespace", "reuse_hash", "src_lang", "tgt_lang", "variant", "policy_ver", "hash_algo_ver", "payload_json", "score", "last_used_at", "created_at").
		From("tm_entries").Where(tmKeyPred(key)).Limit(1)
	sqlStr, args, _ := q.ToSql()
	row := r.DB.QueryRowContext(ctx, sqlStr, args...)
	var e domain.TMEntry
	var payloadJSON, lastUsed, created string
	var score sql.NullFloat64
	if err := row.Scan(&e.ID, &e.ProjectID, &e.Namespace, &e.ReuseHash, &e.SrcLang, &e.TgtLang, &e.Variant, &e.PolicyVer, &e.HashAlgoVer, &payloadJSON, &score, &lastUsed, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, &domain.DatabaseError{Op: "tm find", Err: err}
	}
	var err error
	if e.Payload, err = unmarshalJSON(payloadJSON); err != nil {
		return nil, err
	}
	if score.Valid {
		v := score.Float64
		e.Score = &v
	}
	e.LastUsedAt = parseTime(lastUsed)
	e.CreatedAt = parseTime(created)

	if _, err := r.DB.ExecContext(ctx, `UPDATE tm_entries SET last_used_at = ? WHERE id = ?`, nowRFC3339(), e.ID); err != nil {
		return nil, &domain.DatabaseError{Op: "tm touch", Err: err}
	}
	return &e, nil
}

// Upsert is idempotent on the compound key; a conflict refreshes payload,
// score and last_used_at but keeps the original id.
func (r *TMRepo) Upsert(ctx context.Context, e *domain.TMEntry) (string, error) {
	if e.Variant == "" {
		e.Variant = domain.DefaultVariant
	}
	payloadJSON, err := marshalJSON(e.Payload)
	if err != nil {
		return "", err
	}
	now := nowRFC3339()
	q := r.SQ.Insert("tm_entries").
		Columns("id", "project_id", "namespace", "reuse_hash", "src_lang", "tgt_lang", "variant", "policy_ver", "hash_algo_ver", "payload_json", "score", "last_used_at", "created_at").
		Values(uuid.NewString(), e.ProjectID, e.Namespace, e.ReuseHash, e.SrcLang, e.TgtLang, e.Variant, e.PolicyVer, e.HashAlgoVer, payloadJSON, e.Score, now, now).
		Suffix("ON CONFLICT(project_id, namespace, reuse_hash, src_lang, tgt_lang, variant, policy_ver, hash_algo_ver) DO UPDATE SET payload_json=excluded.payload_json, score=excluded.score, last_used_at=excluded.last_used_at")
	sqlStr, args, _ := q.ToSql()
	if _, err := r.DB.ExecContext(ctx, sqlStr, args...); err != nil {
		return "", &domain.DatabaseError{Op: "tm upsert", Err: err}
	}
	sel := r.SQ.Select("id").From("tm_entries").Where(tmKeyPred(*e)).Limit(1)
	sqlStr, args, _ = sel.ToSql()
	var id string
	if err := r.DB.QueryRowContext(ctx, sqlStr, args...).Scan(&id); err != nil {
		return "", &domain.DatabaseError{Op: "tm upsert read-back", Err: err}
	}
	return id, nil
}

// Link records the traceability edge; replays are no-ops.
func (r *TMRepo) Link(ctx context.Context, revisionID, tmID string) error {
	q := r.SQ.Insert("tm_links").Columns("revision_id", "tm_id", "created_at").
		Values(revisionID, tmID, nowRFC3339()).
		Suffix("ON CONFLICT(revision_id, tm_id) DO NOTHING")
	sqlStr, args, _ := q.ToSql()
	if _, err := r.DB.ExecContext(ctx, sqlStr, args...); err != nil {
		return &domain.DatabaseError{Op: "tm link", Err: err}
	}
	return nil
}

func (r *TMRepo) LinksForRevision(ctx context.Context, revisionID string) ([]*domain.TMLink, error) {
	q := r.SQ.Select("revision_id", "tm_id", "created_at").From("tm_links").
		Where(sq.Eq{"revision_id": revisionID})
	sqlStr, args, _ := q.ToSql()
	rows, err := r.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, &domain.DatabaseError{Op: "tm links", Err: err}
	}
	defer rows.Close()
	var out []*domain.TMLink
	for rows.Next() {
		var l domain.TMLink
		var created string
		if err := rows.Scan(&l.RevisionID, &l.TMID, &created); err != nil {
			return nil, &domain.DatabaseError{Op: "scan tm link", Err: err}
		}
		l.CreatedAt = parseTime(created)
		out = append(out, &l)
	}
	return out, rows.Err()
}
