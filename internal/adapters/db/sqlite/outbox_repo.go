package sqlite

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/SakenW/transhub/internal/domain"
	"github.com/SakenW/transhub/internal/ports"
)

type OutboxRepo struct{ *Repo }

var _ ports.Outbox = (*OutboxRepo)(nil)

func NewOutboxRepo(db *sql.DB) *OutboxRepo { return &OutboxRepo{NewRepo(db)} }

// Emit appends a write-once transition record. Relaying it to a stream is an
// external collaborator's job.
func (r *OutboxRepo) Emit(ctx context.Context, ev *domain.OutboxEvent) error {
	payloadJSON, err := marshalJSON(ev.Payload)
	if err != nil {
		return err
	}
	q := r.SQ.Insert("outbox_events").
		Columns("id", "project_id", "head_id", "event_type", "payload_json", "actor", "created_at").
		Values(uuid.NewString(), ev.ProjectID, ev.HeadID, ev.EventType, payloadJSON, ev.Actor, nowRFC3339())
	sqlStr, args, _ := q.ToSql()
	if _, err := r.DB.ExecContext(ctx, sqlStr, args...); err != nil {
		return &domain.DatabaseError{Op: "outbox emit", Err: err}
	}
	return nil
}
