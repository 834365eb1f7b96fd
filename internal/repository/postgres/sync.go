package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/campaign-sync-engine/internal/domain"
)

// SyncRepo is the typed repository for the durable sync audit log.
type SyncRepo struct{ db *sql.DB }

// NewSyncRepo creates a Postgres-backed sync record repository.
func NewSyncRepo(db *sql.DB) *SyncRepo { return &SyncRepo{db: db} }

func (r *SyncRepo) GetByID(ctx context.Context, id string) (*domain.SyncRecord, error) {
	rec := &domain.SyncRecord{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, sync_date, status, synced_subscribers, COALESCE(notes,''), created_at, completed_at
		FROM sync_records WHERE id = $1
	`, id).Scan(&rec.ID, &rec.SyncDate, &rec.Status, &rec.SyncedSubscribers, &rec.Notes, &rec.CreatedAt, &rec.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sync record: %w", err)
	}
	return rec, nil
}

func (r *SyncRepo) ListAll(ctx context.Context) ([]domain.SyncRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, sync_date, status, synced_subscribers, COALESCE(notes,''), created_at, completed_at
		FROM sync_records ORDER BY sync_date DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sync records: %w", err)
	}
	defer rows.Close()

	var out []domain.SyncRecord
	for rows.Next() {
		var rec domain.SyncRecord
		if err := rows.Scan(&rec.ID, &rec.SyncDate, &rec.Status, &rec.SyncedSubscribers, &rec.Notes, &rec.CreatedAt, &rec.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan sync record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpsertSyncRecord always inserts a new sync record row and returns its
// generated id. completed_at is stamped only when status is terminal
// (anything other than running).
func (r *SyncRepo) UpsertSyncRecord(ctx context.Context, status domain.SyncStatus, count int, notes string) (string, error) {
	id := uuid.New().String()
	terminal := status != domain.SyncRunning
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_records (id, sync_date, status, synced_subscribers, notes, created_at, completed_at)
		VALUES ($1, NOW(), $2, $3, $4, NOW(), CASE WHEN $5 THEN NOW() ELSE NULL END)
	`, id, status, count, notes, terminal)
	if err != nil {
		return "", fmt.Errorf("upsert sync record: %w", err)
	}
	return id, nil
}

// UpdateSyncRecord transitions an existing sync record to a new status.
func (r *SyncRepo) UpdateSyncRecord(ctx context.Context, id string, status domain.SyncStatus, count int, notes string) error {
	terminal := status != domain.SyncRunning
	res, err := r.db.ExecContext(ctx, `
		UPDATE sync_records SET status = $2, synced_subscribers = $3, notes = $4,
			completed_at = CASE WHEN $5 THEN NOW() ELSE completed_at END
		WHERE id = $1
	`, id, status, count, notes, terminal)
	if err != nil {
		return fmt.Errorf("update sync record: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
