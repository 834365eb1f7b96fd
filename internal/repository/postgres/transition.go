package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/campaign-sync-engine/internal/domain"
)

// TransitionRepo is the typed repository for campaign transition runs and
// their per-subscriber audit trail.
type TransitionRepo struct{ db *sql.DB }

// NewTransitionRepo creates a Postgres-backed transition repository.
func NewTransitionRepo(db *sql.DB) *TransitionRepo { return &TransitionRepo{db: db} }

func (r *TransitionRepo) GetByID(ctx context.Context, id string) (*domain.Transition, error) {
	t := &domain.Transition{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, source_campaign_id, destination_campaign_id, status,
		       count_transferred, COALESCE(error_message,''), created_at, completed_at
		FROM transitions WHERE id = $1
	`, id).Scan(
		&t.ID, &t.SourceCampaignID, &t.DestinationCampaignID, &t.Status,
		&t.CountTransferred, &t.ErrorMessage, &t.CreatedAt, &t.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transition: %w", err)
	}
	return t, nil
}

func (r *TransitionRepo) ListAll(ctx context.Context) ([]domain.Transition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_campaign_id, destination_campaign_id, status,
		       count_transferred, COALESCE(error_message,''), created_at, completed_at
		FROM transitions ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transition
	for rows.Next() {
		var t domain.Transition
		if err := rows.Scan(
			&t.ID, &t.SourceCampaignID, &t.DestinationCampaignID, &t.Status,
			&t.CountTransferred, &t.ErrorMessage, &t.CreatedAt, &t.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// LogTransition creates the Transition row that anchors one invocation of
// transition_campaigns, returning its id.
func (r *TransitionRepo) LogTransition(ctx context.Context, sourceCampaignID, destCampaignID string, status domain.TransitionStatus, count int) (string, error) {
	id := uuid.New().String()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transitions (id, source_campaign_id, destination_campaign_id, status, count_transferred, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, id, sourceCampaignID, destCampaignID, status, count)
	if err != nil {
		return "", fmt.Errorf("log transition: %w", err)
	}
	return id, nil
}

// UpdateTransition advances a transition's status, transferred count, and
// error message, stamping completed_at when the status is terminal.
func (r *TransitionRepo) UpdateTransition(ctx context.Context, id string, status domain.TransitionStatus, count int, errMsg string) error {
	terminal := status == domain.TransitionComplete || status == domain.TransitionFailed
	res, err := r.db.ExecContext(ctx, `
		UPDATE transitions SET status = $2, count_transferred = $3, error_message = $4,
			completed_at = CASE WHEN $5 THEN NOW() ELSE completed_at END
		WHERE id = $1
	`, id, status, count, errMsg, terminal)
	if err != nil {
		return fmt.Errorf("update transition: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *TransitionRepo) ListSubscribers(ctx context.Context, transitionID string) ([]domain.TransitionSubscriber, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT transition_id, subscriber_id, created_at
		FROM transition_subscribers WHERE transition_id = $1
	`, transitionID)
	if err != nil {
		return nil, fmt.Errorf("list transition subscribers: %w", err)
	}
	defer rows.Close()

	var out []domain.TransitionSubscriber
	for rows.Next() {
		var ts domain.TransitionSubscriber
		if err := rows.Scan(&ts.TransitionID, &ts.SubscriberID, &ts.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transition subscriber: %w", err)
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// CountRecentForSubscriber returns how many transition_subscribers rows
// exist for subscriberID with a created_at at or after since, backing the
// Transition Executor's per-subscriber-per-day rate cap (spec §4.4).
func (r *TransitionRepo) CountRecentForSubscriber(ctx context.Context, subscriberID string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transition_subscribers
		WHERE subscriber_id = $1 AND created_at >= $2
	`, subscriberID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count recent transitions for subscriber %s: %w", subscriberID, err)
	}
	return count, nil
}

// BulkUpsertTransitionSubscribers writes the audit trail of subscribers
// moved by one transition run, one transaction with deadlock retry.
func (r *TransitionRepo) BulkUpsertTransitionSubscribers(ctx context.Context, rows []domain.TransitionSubscriber) error {
	if len(rows) == 0 {
		return nil
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, ts := range rows {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO transition_subscribers (transition_id, subscriber_id, created_at)
				VALUES ($1, $2, NOW())
				ON CONFLICT (transition_id, subscriber_id) DO NOTHING
			`, ts.TransitionID, ts.SubscriberID); err != nil {
				return fmt.Errorf("bulk upsert transition subscriber %s/%s: %w", ts.TransitionID, ts.SubscriberID, err)
			}
		}
		return nil
	})
}
