package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/campaign-sync-engine/internal/domain"
)

// GroupRepo is the typed repository for per-(campaign, tier) audience groups.
type GroupRepo struct{ db *sql.DB }

// NewGroupRepo creates a Postgres-backed group repository.
func NewGroupRepo(db *sql.DB) *GroupRepo { return &GroupRepo{db: db} }

func (r *GroupRepo) GetByID(ctx context.Context, id string) (*domain.Group, error) {
	g := &domain.Group{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, group_name, campaign_id, tier, created_at, updated_at
		FROM groups WHERE id = $1
	`, id).Scan(&g.ID, &g.GroupName, &g.CampaignID, &g.Tier, &g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

// GetByName looks up a group case-insensitively, per the sync pipeline's
// group-name matching rule.
func (r *GroupRepo) GetByName(ctx context.Context, groupName string) (*domain.Group, error) {
	g := &domain.Group{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, group_name, campaign_id, tier, created_at, updated_at
		FROM groups WHERE UPPER(group_name) = UPPER($1)
	`, groupName).Scan(&g.ID, &g.GroupName, &g.CampaignID, &g.Tier, &g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group by name: %w", err)
	}
	return g, nil
}

func (r *GroupRepo) ListAll(ctx context.Context) ([]domain.Group, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, group_name, campaign_id, tier, created_at, updated_at FROM groups ORDER BY group_name
	`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var out []domain.Group
	for rows.Next() {
		var g domain.Group
		if err := rows.Scan(&g.ID, &g.GroupName, &g.CampaignID, &g.Tier, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// ListByCampaign returns every group belonging to one campaign.
func (r *GroupRepo) ListByCampaign(ctx context.Context, campaignID string) ([]domain.Group, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, group_name, campaign_id, tier, created_at, updated_at
		FROM groups WHERE campaign_id = $1 ORDER BY group_name
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list groups by campaign: %w", err)
	}
	defer rows.Close()

	var out []domain.Group
	for rows.Next() {
		var g domain.Group
		if err := rows.Scan(&g.ID, &g.GroupName, &g.CampaignID, &g.Tier, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *GroupRepo) UpsertOne(ctx context.Context, g domain.Group) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO groups (id, group_name, campaign_id, tier, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (campaign_id, tier) DO UPDATE SET
			id = EXCLUDED.id, group_name = EXCLUDED.group_name, updated_at = NOW()
	`, g.ID, g.GroupName, g.CampaignID, g.Tier)
	if err != nil {
		return fmt.Errorf("upsert group: %w", err)
	}
	return nil
}

func (r *GroupRepo) UpsertBulk(ctx context.Context, groups []domain.Group) error {
	if len(groups) == 0 {
		return nil
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, g := range groups {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO groups (id, group_name, campaign_id, tier, created_at, updated_at)
				VALUES ($1, $2, $3, $4, NOW(), NOW())
				ON CONFLICT (campaign_id, tier) DO UPDATE SET
					id = EXCLUDED.id, group_name = EXCLUDED.group_name, updated_at = NOW()
			`, g.ID, g.GroupName, g.CampaignID, g.Tier); err != nil {
				return fmt.Errorf("bulk upsert group %s: %w", g.GroupName, err)
			}
		}
		return nil
	})
}

// DeleteByID removes a group that validation found missing upstream.
func (r *GroupRepo) DeleteByID(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
