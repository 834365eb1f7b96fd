package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ignite/campaign-sync-engine/internal/domain"
)

// progressItem is the single-item shape persisted under PK=SYNC#progress,
// grounded on the teacher's Kanban DynamoDB client's PK/SK board-as-one-
// item pattern, adapted here to a sync-engine-wide status/checkpoint/
// error-queue/stop-flag blob instead of a Kanban board.
type progressItem struct {
	PK          string                      `dynamodbav:"PK"`
	SK          string                      `dynamodbav:"SK"`
	Status      domain.SyncStatusSnapshot   `dynamodbav:"status"`
	Stopped     bool                        `dynamodbav:"stopped"`
	Checkpoint  *domain.ProgressCheckpoint  `dynamodbav:"checkpoint,omitempty"`
	Errors      []domain.ErrorQueueEntry    `dynamodbav:"errors"`
	LastUpdated time.Time                   `dynamodbav:"last_updated"`
}

const (
	progressPK = "SYNC#progress"
	progressSK = "STATE"
)

// DynamoDBStore is the optional Progress/Error Store backend for
// deployments without a Postgres instance dedicated to the sync engine
// (spec's ambient-stack allowance for a DynamoDB-backed store alongside
// the default Postgres one).
type DynamoDBStore struct {
	client    *dynamodb.Client
	tableName string

	mu       sync.Mutex
	lockHeld bool
}

// NewDynamoDBStore creates a DynamoDB-backed Progress/Error Store.
func NewDynamoDBStore(ctx context.Context, tableName, region, profile string) (*DynamoDBStore, error) {
	var cfg aws.Config
	var err error
	if profile != "" {
		cfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region), awsconfig.WithSharedConfigProfile(profile))
	} else {
		cfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	}
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &DynamoDBStore{client: dynamodb.NewFromConfig(cfg), tableName: tableName}, nil
}

func (s *DynamoDBStore) getItem(ctx context.Context) (*progressItem, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: progressPK},
			"SK": &types.AttributeValueMemberS{Value: progressSK},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get progress item: %w", err)
	}
	if result.Item == nil {
		return &progressItem{PK: progressPK, SK: progressSK, Status: domain.SyncStatusSnapshot{State: domain.StateIdle}}, nil
	}
	var item progressItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal progress item: %w", err)
	}
	return &item, nil
}

func (s *DynamoDBStore) putItem(ctx context.Context, item *progressItem) error {
	item.LastUpdated = time.Now()
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal progress item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(s.tableName), Item: av})
	if err != nil {
		return fmt.Errorf("put progress item: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) SetStatus(ctx context.Context, status domain.SyncStatusSnapshot) error {
	item, err := s.getItem(ctx)
	if err != nil {
		return err
	}
	item.Status = status
	return s.putItem(ctx, item)
}

func (s *DynamoDBStore) GetStatus(ctx context.Context) (domain.SyncStatusSnapshot, error) {
	item, err := s.getItem(ctx)
	if err != nil {
		return domain.SyncStatusSnapshot{}, err
	}
	return item.Status, nil
}

func (s *DynamoDBStore) SetStopFlag(ctx context.Context) error {
	item, err := s.getItem(ctx)
	if err != nil {
		return err
	}
	item.Stopped = true
	return s.putItem(ctx, item)
}

func (s *DynamoDBStore) ClearStopFlag(ctx context.Context) error {
	item, err := s.getItem(ctx)
	if err != nil {
		return err
	}
	item.Stopped = false
	return s.putItem(ctx, item)
}

func (s *DynamoDBStore) IsStopped(ctx context.Context) (bool, error) {
	item, err := s.getItem(ctx)
	if err != nil {
		return false, err
	}
	return item.Stopped, nil
}

func (s *DynamoDBStore) SaveCheckpoint(ctx context.Context, cp domain.ProgressCheckpoint) error {
	item, err := s.getItem(ctx)
	if err != nil {
		return err
	}
	item.Checkpoint = &cp
	return s.putItem(ctx, item)
}

func (s *DynamoDBStore) LoadCheckpoint(ctx context.Context) (*domain.ProgressCheckpoint, error) {
	item, err := s.getItem(ctx)
	if err != nil {
		return nil, err
	}
	return item.Checkpoint, nil
}

func (s *DynamoDBStore) ClearCheckpoint(ctx context.Context) error {
	item, err := s.getItem(ctx)
	if err != nil {
		return err
	}
	item.Checkpoint = nil
	return s.putItem(ctx, item)
}

func (s *DynamoDBStore) EnqueueError(ctx context.Context, entry domain.ErrorQueueEntry) error {
	item, err := s.getItem(ctx)
	if err != nil {
		return err
	}
	item.Errors = pushBounded(item.Errors, entry)
	return s.putItem(ctx, item)
}

func (s *DynamoDBStore) ListErrors(ctx context.Context, limit int) ([]domain.ErrorQueueEntry, error) {
	item, err := s.getItem(ctx)
	if err != nil {
		return nil, err
	}
	entries := item.Errors
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

func (s *DynamoDBStore) ClearErrors(ctx context.Context) error {
	item, err := s.getItem(ctx)
	if err != nil {
		return err
	}
	item.Errors = nil
	return s.putItem(ctx, item)
}

// AcquireRunLock uses a conditional put against a dedicated lock item,
// the DynamoDB analogue of the Postgres/Redis advisory lock: the
// condition expression fails atomically if another process already
// holds an unexpired lock.
func (s *DynamoDBStore) AcquireRunLock(ctx context.Context, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"PK":         &types.AttributeValueMemberS{Value: progressPK},
			"SK":         &types.AttributeValueMemberS{Value: "LOCK"},
			"expires_at": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Add(ttl).Unix())},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK) OR expires_at < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Unix())},
		},
	})
	if err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return false, nil
		}
		return false, fmt.Errorf("acquire run lock: %w", err)
	}
	s.lockHeld = true
	return true, nil
}

func (s *DynamoDBStore) ReleaseRunLock(ctx context.Context) error {
	s.mu.Lock()
	held := s.lockHeld
	s.lockHeld = false
	s.mu.Unlock()
	if !held {
		return nil
	}
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: progressPK},
			"SK": &types.AttributeValueMemberS{Value: "LOCK"},
		},
	})
	if err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}
