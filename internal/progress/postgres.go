package progress

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-sync-engine/internal/domain"
	"github.com/ignite/campaign-sync-engine/internal/pkg/distlock"
)

// singletonRowID is the fixed primary key of the one progress_state row
// this process maintains; the sync engine runs single-tenant.
const singletonRowID = "singleton"

// PostgresStore implements Store against a single-row Postgres table,
// grounded on the teacher's repository pattern ($N placeholders, plain
// database/sql) generalized to a status/checkpoint/error-queue blob
// rather than a typed entity table, since these fields change shape
// independently of the schema migration cadence.
type PostgresStore struct {
	db          *sql.DB
	redisClient *redis.Client
	lockTTLKey  string

	mu   sync.Mutex
	lock distlock.DistLock
}

// NewPostgresStore creates a Postgres-backed Progress/Error Store. If
// redisClient is non-nil, AcquireRunLock prefers Redis locking (safe
// across hosts); otherwise it falls back to a Postgres advisory lock.
func NewPostgresStore(db *sql.DB, redisClient *redis.Client) *PostgresStore {
	return &PostgresStore{db: db, redisClient: redisClient, lockTTLKey: "sync-run-lock"}
}

func (s *PostgresStore) ensureRow(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO progress_state (id, status, stopped, checkpoint, errors, updated_at)
		VALUES ($1, '{}', false, NULL, '[]', NOW())
		ON CONFLICT (id) DO NOTHING
	`, singletonRowID)
	return err
}

func (s *PostgresStore) SetStatus(ctx context.Context, status domain.SyncStatusSnapshot) error {
	body, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	if err := s.ensureRow(ctx); err != nil {
		return fmt.Errorf("ensure progress row: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE progress_state SET status = $2, updated_at = NOW() WHERE id = $1
	`, singletonRowID, body)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetStatus(ctx context.Context) (domain.SyncStatusSnapshot, error) {
	var body []byte
	var snap domain.SyncStatusSnapshot
	err := s.db.QueryRowContext(ctx, `SELECT status FROM progress_state WHERE id = $1`, singletonRowID).Scan(&body)
	if err == sql.ErrNoRows {
		snap.State = domain.StateIdle
		return snap, nil
	}
	if err != nil {
		return snap, fmt.Errorf("get status: %w", err)
	}
	if len(body) == 0 || string(body) == "{}" {
		snap.State = domain.StateIdle
		return snap, nil
	}
	if err := json.Unmarshal(body, &snap); err != nil {
		return snap, fmt.Errorf("decode status: %w", err)
	}
	return snap, nil
}

func (s *PostgresStore) SetStopFlag(ctx context.Context) error {
	if err := s.ensureRow(ctx); err != nil {
		return fmt.Errorf("ensure progress row: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `UPDATE progress_state SET stopped = true, updated_at = NOW() WHERE id = $1`, singletonRowID)
	if err != nil {
		return fmt.Errorf("set stop flag: %w", err)
	}
	return nil
}

func (s *PostgresStore) ClearStopFlag(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `UPDATE progress_state SET stopped = false, updated_at = NOW() WHERE id = $1`, singletonRowID)
	if err != nil {
		return fmt.Errorf("clear stop flag: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsStopped(ctx context.Context) (bool, error) {
	var stopped bool
	err := s.db.QueryRowContext(ctx, `SELECT stopped FROM progress_state WHERE id = $1`, singletonRowID).Scan(&stopped)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("is stopped: %w", err)
	}
	return stopped, nil
}

func (s *PostgresStore) SaveCheckpoint(ctx context.Context, cp domain.ProgressCheckpoint) error {
	body, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := s.ensureRow(ctx); err != nil {
		return fmt.Errorf("ensure progress row: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE progress_state SET checkpoint = $2, updated_at = NOW() WHERE id = $1`, singletonRowID, body)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadCheckpoint(ctx context.Context) (*domain.ProgressCheckpoint, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT checkpoint FROM progress_state WHERE id = $1`, singletonRowID).Scan(&body)
	if err == sql.ErrNoRows || len(body) == 0 {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	var cp domain.ProgressCheckpoint
	if err := json.Unmarshal(body, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &cp, nil
}

func (s *PostgresStore) ClearCheckpoint(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `UPDATE progress_state SET checkpoint = NULL, updated_at = NOW() WHERE id = $1`, singletonRowID)
	if err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}

func (s *PostgresStore) EnqueueError(ctx context.Context, entry domain.ErrorQueueEntry) error {
	if err := s.ensureRow(ctx); err != nil {
		return fmt.Errorf("ensure progress row: %w", err)
	}
	existing, err := s.ListErrors(ctx, 0)
	if err != nil {
		return err
	}
	updated := pushBounded(existing, entry)
	body, err := json.Marshal(updated)
	if err != nil {
		return fmt.Errorf("encode errors: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE progress_state SET errors = $2, updated_at = NOW() WHERE id = $1`, singletonRowID, body)
	if err != nil {
		return fmt.Errorf("enqueue error: %w", err)
	}
	return nil
}

// ListErrors returns the most recent limit entries (0 means all).
func (s *PostgresStore) ListErrors(ctx context.Context, limit int) ([]domain.ErrorQueueEntry, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT errors FROM progress_state WHERE id = $1`, singletonRowID).Scan(&body)
	if err == sql.ErrNoRows || len(body) == 0 {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list errors: %w", err)
	}
	var entries []domain.ErrorQueueEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decode errors: %w", err)
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

func (s *PostgresStore) ClearErrors(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `UPDATE progress_state SET errors = '[]', updated_at = NOW() WHERE id = $1`, singletonRowID)
	if err != nil {
		return fmt.Errorf("clear errors: %w", err)
	}
	return nil
}

func (s *PostgresStore) AcquireRunLock(ctx context.Context, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock := distlock.NewLock(s.redisClient, s.db, s.lockTTLKey, ttl)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire run lock: %w", err)
	}
	if acquired {
		s.lock = lock
	}
	return acquired, nil
}

func (s *PostgresStore) ReleaseRunLock(ctx context.Context) error {
	s.mu.Lock()
	lock := s.lock
	s.lock = nil
	s.mu.Unlock()
	if lock == nil {
		return nil
	}
	return lock.Release(ctx)
}
