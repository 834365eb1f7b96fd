package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/campaign-sync-engine/internal/domain"
)

// FieldRepo is the typed repository for per-campaign custom fields.
type FieldRepo struct{ db *sql.DB }

// NewFieldRepo creates a Postgres-backed field repository.
func NewFieldRepo(db *sql.DB) *FieldRepo { return &FieldRepo{db: db} }

func (r *FieldRepo) GetByID(ctx context.Context, id string) (*domain.Field, error) {
	f := &domain.Field{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, field_name, campaign_id, created_at, updated_at
		FROM fields WHERE id = $1
	`, id).Scan(&f.ID, &f.FieldName, &f.CampaignID, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get field: %w", err)
	}
	return f, nil
}

func (r *FieldRepo) GetByName(ctx context.Context, fieldName string) (*domain.Field, error) {
	f := &domain.Field{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, field_name, campaign_id, created_at, updated_at
		FROM fields WHERE field_name = $1
	`, fieldName).Scan(&f.ID, &f.FieldName, &f.CampaignID, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get field by name: %w", err)
	}
	return f, nil
}

func (r *FieldRepo) ListAll(ctx context.Context) ([]domain.Field, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, field_name, campaign_id, created_at, updated_at FROM fields ORDER BY field_name
	`)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	defer rows.Close()

	var out []domain.Field
	for rows.Next() {
		var f domain.Field
		if err := rows.Scan(&f.ID, &f.FieldName, &f.CampaignID, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *FieldRepo) UpsertOne(ctx context.Context, f domain.Field) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO fields (id, field_name, campaign_id, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (field_name) DO UPDATE SET
			id = EXCLUDED.id, campaign_id = EXCLUDED.campaign_id, updated_at = NOW()
	`, f.ID, f.FieldName, f.CampaignID)
	if err != nil {
		return fmt.Errorf("upsert field: %w", err)
	}
	return nil
}

func (r *FieldRepo) UpsertBulk(ctx context.Context, fields []domain.Field) error {
	if len(fields) == 0 {
		return nil
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, f := range fields {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO fields (id, field_name, campaign_id, created_at, updated_at)
				VALUES ($1, $2, $3, NOW(), NOW())
				ON CONFLICT (field_name) DO UPDATE SET
					id = EXCLUDED.id, campaign_id = EXCLUDED.campaign_id, updated_at = NOW()
			`, f.ID, f.FieldName, f.CampaignID); err != nil {
				return fmt.Errorf("bulk upsert field %s: %w", f.FieldName, err)
			}
		}
		return nil
	})
}

func (r *FieldRepo) DeleteByID(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM fields WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete field: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
