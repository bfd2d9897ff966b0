package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"tattoo-datasync/application/ports"
	apperrors "tattoo-datasync/pkg/errors"
)

// DefaultLockDuration bounds how long a crashed run can block others.
const DefaultLockDuration = 30 * time.Minute

// RunLock serializes mutating runs with a conditional write on a lock item
// stored in the records table. Lock items use the LOCK# prefix, which scans
// skip.
type RunLock struct {
	client    DynamoDBAPI
	tableName string
	duration  time.Duration
	owner     string
	logger    *zap.Logger
}

var _ ports.RunLocker = (*RunLock)(nil)

// lockItem is the stored form of a held lock.
type lockItem struct {
	PK         string `dynamodbav:"PK"` // LOCK#<resource>
	SK         string `dynamodbav:"SK"` // LOCK
	LockID     string `dynamodbav:"lockId"`
	Owner      string `dynamodbav:"owner"`
	AcquiredAt string `dynamodbav:"acquiredAt"`
	ExpiresAt  string `dynamodbav:"expiresAt"`
	TTL        int64  `dynamodbav:"ttl"`
}

// NewRunLock creates a run lock. The owner identifies this process in the
// lock item for operators inspecting the table.
func NewRunLock(client DynamoDBAPI, tableName string, duration time.Duration, logger *zap.Logger) *RunLock {
	if duration <= 0 {
		duration = DefaultLockDuration
	}
	host, _ := os.Hostname()
	return &RunLock{
		client:    client,
		tableName: tableName,
		duration:  duration,
		owner:     fmt.Sprintf("%s/%d", host, os.Getpid()),
		logger:    logger,
	}
}

func lockKey(resource string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "LOCK#" + resource},
		"SK": &types.AttributeValueMemberS{Value: "LOCK"},
	}
}

// Acquire takes the lock for resource or fails with a locked error when an
// unexpired lock is held by someone else.
func (l *RunLock) Acquire(ctx context.Context, resource string) (func(context.Context) error, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(l.duration)
	item := lockItem{
		PK:         "LOCK#" + resource,
		SK:         "LOCK",
		LockID:     uuid.NewString(),
		Owner:      l.owner,
		AcquiredAt: now.Format(time.RFC3339),
		ExpiresAt:  expiresAt.Format(time.RFC3339),
		TTL:        expiresAt.Unix(),
	}

	_, err := l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(l.tableName),
		Item: map[string]types.AttributeValue{
			"PK":         &types.AttributeValueMemberS{Value: item.PK},
			"SK":         &types.AttributeValueMemberS{Value: item.SK},
			"lockId":     &types.AttributeValueMemberS{Value: item.LockID},
			"owner":      &types.AttributeValueMemberS{Value: item.Owner},
			"acquiredAt": &types.AttributeValueMemberS{Value: item.AcquiredAt},
			"expiresAt":  &types.AttributeValueMemberS{Value: item.ExpiresAt},
			"ttl":        &types.AttributeValueMemberN{Value: strconv.FormatInt(item.TTL, 10)},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK) OR expiresAt < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
	})
	if err != nil {
		var conditionalCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionalCheckFailed) {
			l.logger.Warn("Run lock already held", zap.String("resource", resource))
			return nil, apperrors.NewLockedError(resource)
		}
		return nil, apperrors.NewDatabaseError("acquire_lock", err)
	}

	l.logger.Debug("Run lock acquired",
		zap.String("resource", resource),
		zap.String("lock_id", item.LockID),
		zap.String("owner", item.Owner),
		zap.Duration("duration", l.duration),
	)

	release := func(ctx context.Context) error {
		return l.release(ctx, resource, item.LockID)
	}
	return release, nil
}

func (l *RunLock) release(ctx context.Context, resource, lockID string) error {
	_, err := l.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(l.tableName),
		Key:                 lockKey(resource),
		ConditionExpression: aws.String("lockId = :lockId AND #owner = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#owner": "owner",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":lockId": &types.AttributeValueMemberS{Value: lockID},
			":owner":  &types.AttributeValueMemberS{Value: l.owner},
		},
	})
	if err != nil {
		var conditionalCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionalCheckFailed) {
			// Expired and taken over by another run.
			l.logger.Warn("Run lock no longer owned", zap.String("resource", resource))
			return nil
		}
		return apperrors.NewDatabaseError("release_lock", err)
	}

	l.logger.Debug("Run lock released", zap.String("resource", resource))
	return nil
}
