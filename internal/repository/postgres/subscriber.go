package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ignite/campaign-sync-engine/internal/domain"
)

// SubscriberRepo is the typed repository for materialized MLP subscribers.
type SubscriberRepo struct{ db *sql.DB }

// NewSubscriberRepo creates a Postgres-backed subscriber repository.
func NewSubscriberRepo(db *sql.DB) *SubscriberRepo { return &SubscriberRepo{db: db} }

func (r *SubscriberRepo) GetByID(ctx context.Context, id string) (*domain.Subscriber, error) {
	return r.scanOne(ctx, `
		SELECT id, email, status, first_name, last_name, display_name, custom_fields, created_at, updated_at
		FROM subscribers WHERE id = $1
	`, id)
}

func (r *SubscriberRepo) GetByName(ctx context.Context, email string) (*domain.Subscriber, error) {
	return r.scanOne(ctx, `
		SELECT id, email, status, first_name, last_name, display_name, custom_fields, created_at, updated_at
		FROM subscribers WHERE email = $1
	`, email)
}

func (r *SubscriberRepo) scanOne(ctx context.Context, query, arg string) (*domain.Subscriber, error) {
	var s domain.Subscriber
	var customJSON []byte
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&s.ID, &s.Email, &s.Status, &s.FirstName, &s.LastName, &s.DisplayName, &customJSON, &s.CreatedAt, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscriber: %w", err)
	}
	if len(customJSON) > 0 {
		if err := json.Unmarshal(customJSON, &s.CustomFields); err != nil {
			return nil, fmt.Errorf("decode custom fields: %w", err)
		}
	}
	return &s, nil
}

func (r *SubscriberRepo) ListAll(ctx context.Context) ([]domain.Subscriber, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, email, status, first_name, last_name, display_name, custom_fields, created_at, updated_at
		FROM subscribers ORDER BY email
	`)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	var out []domain.Subscriber
	for rows.Next() {
		var s domain.Subscriber
		var customJSON []byte
		if err := rows.Scan(&s.ID, &s.Email, &s.Status, &s.FirstName, &s.LastName, &s.DisplayName, &customJSON, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		if len(customJSON) > 0 {
			if err := json.Unmarshal(customJSON, &s.CustomFields); err != nil {
				return nil, fmt.Errorf("decode custom fields: %w", err)
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SubscriberRepo) UpsertOne(ctx context.Context, s domain.Subscriber) error {
	customJSON, err := json.Marshal(s.CustomFields)
	if err != nil {
		return fmt.Errorf("encode custom fields: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO subscribers (id, email, status, first_name, last_name, display_name, custom_fields, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (email) DO UPDATE SET
			id = EXCLUDED.id, status = EXCLUDED.status, first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name, display_name = EXCLUDED.display_name,
			custom_fields = EXCLUDED.custom_fields, updated_at = NOW()
	`, s.ID, s.Email, s.Status, s.FirstName, s.LastName, s.DisplayName, customJSON)
	if err != nil {
		return fmt.Errorf("upsert subscriber: %w", err)
	}
	return nil
}

// UpsertBulk upserts a page of subscribers in one transaction, grounded on
// the teacher's multi-row-insert-with-deadlock-retry pattern, generalized
// here to per-row upserts inside the shared withTx helper. An error on any
// row rolls back the whole page.
func (r *SubscriberRepo) UpsertBulk(ctx context.Context, subscribers []domain.Subscriber) error {
	if len(subscribers) == 0 {
		return nil
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, s := range subscribers {
			customJSON, err := json.Marshal(s.CustomFields)
			if err != nil {
				return fmt.Errorf("encode custom fields for %s: %w", s.Email, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO subscribers (id, email, status, first_name, last_name, display_name, custom_fields, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
				ON CONFLICT (email) DO UPDATE SET
					id = EXCLUDED.id, status = EXCLUDED.status, first_name = EXCLUDED.first_name,
					last_name = EXCLUDED.last_name, display_name = EXCLUDED.display_name,
					custom_fields = EXCLUDED.custom_fields, updated_at = NOW()
			`, s.ID, s.Email, s.Status, s.FirstName, s.LastName, s.DisplayName, customJSON); err != nil {
				return fmt.Errorf("bulk upsert subscriber %s: %w", s.Email, err)
			}
		}
		return nil
	})
}

func (r *SubscriberRepo) DeleteByID(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subscribers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete subscriber: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSubscriberTier updates the tier recorded for a subscriber within
// one campaign, creating the membership row if it doesn't yet exist.
func (r *SubscriberRepo) UpdateSubscriberTier(ctx context.Context, email, campaignID, tier string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_group_subscribers (campaign_id, subscriber_id, group_id, subscriber_tier, created_at, updated_at)
		SELECT $2, s.id, '', $3, NOW(), NOW() FROM subscribers s WHERE s.email = $1
		ON CONFLICT (campaign_id, subscriber_id) DO UPDATE SET
			subscriber_tier = EXCLUDED.subscriber_tier, updated_at = NOW()
	`, email, campaignID, tier)
	if err != nil {
		return fmt.Errorf("update subscriber tier: %w", err)
	}
	return nil
}

// UpdateSubscriberGroup updates the group membership recorded for a
// subscriber within one campaign.
func (r *SubscriberRepo) UpdateSubscriberGroup(ctx context.Context, email, groupID, campaignID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_group_subscribers (campaign_id, subscriber_id, group_id, subscriber_tier, created_at, updated_at)
		SELECT $2, s.id, $3, '', NOW(), NOW() FROM subscribers s WHERE s.email = $1
		ON CONFLICT (campaign_id, subscriber_id) DO UPDATE SET
			group_id = EXCLUDED.group_id, updated_at = NOW()
	`, email, campaignID, groupID)
	if err != nil {
		return fmt.Errorf("update subscriber group: %w", err)
	}
	return nil
}

// UpdateSubscriberPurchaseStatus records whether a subscriber has a
// verified purchase for a campaign, clearing the purchase_id when false.
func (r *SubscriberRepo) UpdateSubscriberPurchaseStatus(ctx context.Context, email, campaignID string, purchased bool, purchaseID string) error {
	var idArg interface{}
	if purchased && purchaseID != "" {
		idArg = purchaseID
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaign_group_subscribers SET purchase_id = $3, updated_at = NOW()
		WHERE campaign_id = $2 AND subscriber_id = (SELECT id FROM subscribers WHERE email = $1)
	`, email, campaignID, idArg)
	if err != nil {
		return fmt.Errorf("update subscriber purchase status: %w", err)
	}
	return nil
}
