package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/SakenW/transhub/internal/domain"
	"github.com/SakenW/transhub/internal/ports"
)

type MaintenanceRepo struct{ *Repo }

var _ ports.MaintenanceRepository = (*MaintenanceRepo)(nil)

func NewMaintenanceRepo(db *sql.DB) *MaintenanceRepo { return &MaintenanceRepo{NewRepo(db)} }

// Content is reclaimable when it aged past the cutoff and none of its
// revisions is linked into translation memory.
const reclaimableContent = `
	FROM contents c
	WHERE c.updated_at < ?
	  AND NOT EXISTS (
	      SELECT 1 FROM revisions r
	      JOIN tm_links l ON l.revision_id = r.id
	      WHERE r.content_id = c.id)`

// RunGC sweeps unreferenced content past the content cutoff and TM entries
// unused past the TM cutoff. Dry-run computes the counts without mutating.
func (r *MaintenanceRepo) RunGC(ctx context.Context, contentRetention, tmRetention time.Duration, dryRun bool) (ports.GCResult, error) {
	var res ports.GCResult
	now := time.Now().UTC()
	contentCutoff := now.Add(-contentRetention).Format(time.RFC3339Nano)
	tmCutoff := now.Add(-tmRetention).Format(time.RFC3339Nano)

	if dryRun {
		if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) "+reclaimableContent, contentCutoff).Scan(&res.DeletedContent); err != nil {
			return res, &domain.DatabaseError{Op: "gc dry-run content", Err: err}
		}
		if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM tm_entries WHERE last_used_at < ?`, tmCutoff).Scan(&res.DeletedTM); err != nil {
			return res, &domain.DatabaseError{Op: "gc dry-run tm", Err: err}
		}
		return res, nil
	}

	err := WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		cres, err := tx.ExecContext(ctx, `DELETE FROM contents WHERE id IN (SELECT c.id `+reclaimableContent+`)`, contentCutoff)
		if err != nil {
			return err
		}
		n, _ := cres.RowsAffected()
		res.DeletedContent = int(n)

		tres, err := tx.ExecContext(ctx, `DELETE FROM tm_entries WHERE last_used_at < ?`, tmCutoff)
		if err != nil {
			return err
		}
		n, _ = tres.RowsAffected()
		res.DeletedTM = int(n)
		return nil
	})
	if err != nil {
		return ports.GCResult{}, &domain.DatabaseError{Op: "gc", Err: err}
	}
	return res, nil
}
