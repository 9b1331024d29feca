package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/SakenW/transhub/internal/domain"
	"github.com/SakenW/transhub/internal/ports"
)

type ProjectRepo struct{ *Repo }

var _ ports.ProjectRepository = (*ProjectRepo)(nil)

func NewProjectRepo(db *sql.DB) *ProjectRepo { return &ProjectRepo{NewRepo(db)} }

func (r *ProjectRepo) GetOrCreate(ctx context.Context, id, name string) (*domain.Project, error) {
	q := r.SQ.Insert("projects").Columns("id", "name", "active", "created_at").
		Values(id, name, 1, nowRFC3339()).
		Suffix("ON CONFLICT(id) DO NOTHING")
	sqlStr, args, _ := q.ToSql()
	if _, err := r.DB.ExecContext(ctx, sqlStr, args...); err != nil {
		return nil, &domain.DatabaseError{Op: "project get-or-create", Err: err}
	}
	return r.Get(ctx, id)
}

func (r *ProjectRepo) Get(ctx context.Context, id string) (*domain.Project, error) {
	q := r.SQ.Select("id", "name", "active", "created_at").From("projects").
		Where(sq.Eq{"id": id}).Limit(1)
	sqlStr, args, _ := q.ToSql()
	row := r.DB.QueryRowContext(ctx, sqlStr, args...)
	var p domain.Project
	var active int
	var created string
	if err := row.Scan(&p.ID, &p.Name, &active, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, &domain.DatabaseError{Op: "project get", Err: err}
	}
	p.Active = active != 0
	p.CreatedAt = parseTime(created)
	return &p, nil
}

func (r *ProjectRepo) SetFallbacks(ctx context.Context, projectID, locale string, fallbacks []string) error {
	b, err := json.Marshal(fallbacks)
	if err != nil {
		return fmt.Errorf("marshal fallbacks: %w", err)
	}
	q := r.SQ.Insert("locale_fallbacks").Columns("project_id", "locale", "fallbacks_json").
		Values(projectID, locale, string(b)).
		Suffix("ON CONFLICT(project_id, locale) DO UPDATE SET fallbacks_json=excluded.fallbacks_json")
	sqlStr, args, _ := q.ToSql()
	if _, err := r.DB.ExecContext(ctx, sqlStr, args...); err != nil {
		return &domain.DatabaseError{Op: "set fallbacks", Err: err}
	}
	return nil
}

func (r *ProjectRepo) GetFallbackOrder(ctx context.Context, projectID, locale string) ([]string, error) {
	q := r.SQ.Select("fallbacks_json").From("locale_fallbacks").
		Where(sq.Eq{"project_id": projectID, "locale": locale}).Limit(1)
	sqlStr, args, _ := q.ToSql()
	var raw string
	if err := r.DB.QueryRowContext(ctx, sqlStr, args...).Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, &domain.DatabaseError{Op: "get fallbacks", Err: err}
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("unmarshal fallbacks: %w", err)
	}
	return out, nil
}
