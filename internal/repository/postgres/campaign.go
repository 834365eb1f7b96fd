package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/campaign-sync-engine/internal/domain"
)

// CampaignRepo is the typed repository for campaigns.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

func (r *CampaignRepo) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	return r.scanOne(ctx, `
		SELECT id, name, product_id, artist, album, year, created_at, updated_at
		FROM campaigns WHERE id = $1
	`, id)
}

func (r *CampaignRepo) GetByName(ctx context.Context, name string) (*domain.Campaign, error) {
	return r.scanOne(ctx, `
		SELECT id, name, product_id, artist, album, year, created_at, updated_at
		FROM campaigns WHERE name = $1
	`, name)
}

func (r *CampaignRepo) scanOne(ctx context.Context, query string, arg string) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&c.ID, &c.Name, &c.ProductID, &c.Artist, &c.Album, &c.Year, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) ListAll(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, product_id, artist, album, year, created_at, updated_at
		FROM campaigns ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		var c domain.Campaign
		if err := rows.Scan(&c.ID, &c.Name, &c.ProductID, &c.Artist, &c.Album, &c.Year, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) UpsertOne(ctx context.Context, c domain.Campaign) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaigns (id, name, product_id, artist, album, year, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (name) DO UPDATE SET
			id = EXCLUDED.id, product_id = EXCLUDED.product_id,
			artist = EXCLUDED.artist, album = EXCLUDED.album, year = EXCLUDED.year,
			updated_at = NOW()
	`, c.ID, c.Name, c.ProductID, c.Artist, c.Album, c.Year)
	if err != nil {
		return fmt.Errorf("upsert campaign: %w", err)
	}
	return nil
}

// UpsertBulk upserts campaigns in a single transaction, retrying on
// deadlock per the Persistence Layer's transactional discipline.
func (r *CampaignRepo) UpsertBulk(ctx context.Context, campaigns []domain.Campaign) error {
	if len(campaigns) == 0 {
		return nil
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, c := range campaigns {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO campaigns (id, name, product_id, artist, album, year, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
				ON CONFLICT (name) DO UPDATE SET
					id = EXCLUDED.id, product_id = EXCLUDED.product_id,
					artist = EXCLUDED.artist, album = EXCLUDED.album, year = EXCLUDED.year,
					updated_at = NOW()
			`, c.ID, c.Name, c.ProductID, c.Artist, c.Album, c.Year); err != nil {
				return fmt.Errorf("bulk upsert campaign %s: %w", c.Name, err)
			}
		}
		return nil
	})
}

func (r *CampaignRepo) DeleteByID(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
