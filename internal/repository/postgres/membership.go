package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/campaign-sync-engine/internal/domain"
)

// MembershipRepo is the typed repository for campaign group memberships,
// the stage-5 output of the sync pipeline: one row per (campaign,
// subscriber) recording tier and purchase evidence.
type MembershipRepo struct{ db *sql.DB }

// NewMembershipRepo creates a Postgres-backed membership repository.
func NewMembershipRepo(db *sql.DB) *MembershipRepo { return &MembershipRepo{db: db} }

func (r *MembershipRepo) GetByID(ctx context.Context, campaignID, subscriberID string) (*domain.CampaignGroupSubscriber, error) {
	m := &domain.CampaignGroupSubscriber{}
	err := r.db.QueryRowContext(ctx, `
		SELECT campaign_id, subscriber_id, group_id, subscriber_tier, purchase_id, created_at, updated_at
		FROM campaign_group_subscribers WHERE campaign_id = $1 AND subscriber_id = $2
	`, campaignID, subscriberID).Scan(
		&m.CampaignID, &m.SubscriberID, &m.GroupID, &m.SubscriberTier, &m.PurchaseID, &m.CreatedAt, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return m, nil
}

func (r *MembershipRepo) ListByCampaign(ctx context.Context, campaignID string) ([]domain.CampaignGroupSubscriber, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT campaign_id, subscriber_id, group_id, subscriber_tier, purchase_id, created_at, updated_at
		FROM campaign_group_subscribers WHERE campaign_id = $1
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var out []domain.CampaignGroupSubscriber
	for rows.Next() {
		var m domain.CampaignGroupSubscriber
		if err := rows.Scan(&m.CampaignID, &m.SubscriberID, &m.GroupID, &m.SubscriberTier, &m.PurchaseID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListByCampaignAndTier returns every subscriber currently at tier within
// campaignID.
func (r *MembershipRepo) ListByCampaignAndTier(ctx context.Context, campaignID, tier string) ([]domain.CampaignGroupSubscriber, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT campaign_id, subscriber_id, group_id, subscriber_tier, purchase_id, created_at, updated_at
		FROM campaign_group_subscribers WHERE campaign_id = $1 AND subscriber_tier = $2
	`, campaignID, tier)
	if err != nil {
		return nil, fmt.Errorf("list memberships by tier: %w", err)
	}
	defer rows.Close()

	var out []domain.CampaignGroupSubscriber
	for rows.Next() {
		var m domain.CampaignGroupSubscriber
		if err := rows.Scan(&m.CampaignID, &m.SubscriberID, &m.GroupID, &m.SubscriberTier, &m.PurchaseID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MembershipRepo) UpsertOne(ctx context.Context, m domain.CampaignGroupSubscriber) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_group_subscribers (campaign_id, subscriber_id, group_id, subscriber_tier, purchase_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (campaign_id, subscriber_id) DO UPDATE SET
			group_id = EXCLUDED.group_id, subscriber_tier = EXCLUDED.subscriber_tier,
			purchase_id = EXCLUDED.purchase_id, updated_at = NOW()
	`, m.CampaignID, m.SubscriberID, m.GroupID, m.SubscriberTier, m.PurchaseID)
	if err != nil {
		return fmt.Errorf("upsert membership: %w", err)
	}
	return nil
}

// UpsertBulk is stage 5's bulk-upsert call, one transaction per page with
// deadlock retry.
func (r *MembershipRepo) UpsertBulk(ctx context.Context, memberships []domain.CampaignGroupSubscriber) error {
	if len(memberships) == 0 {
		return nil
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, m := range memberships {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO campaign_group_subscribers (campaign_id, subscriber_id, group_id, subscriber_tier, purchase_id, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
				ON CONFLICT (campaign_id, subscriber_id) DO UPDATE SET
					group_id = EXCLUDED.group_id, subscriber_tier = EXCLUDED.subscriber_tier,
					purchase_id = EXCLUDED.purchase_id, updated_at = NOW()
			`, m.CampaignID, m.SubscriberID, m.GroupID, m.SubscriberTier, m.PurchaseID); err != nil {
				return fmt.Errorf("bulk upsert membership %s/%s: %w", m.CampaignID, m.SubscriberID, err)
			}
		}
		return nil
	})
}

func (r *MembershipRepo) DeleteByID(ctx context.Context, campaignID, subscriberID string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM campaign_group_subscribers WHERE campaign_id = $1 AND subscriber_id = $2
	`, campaignID, subscriberID)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
