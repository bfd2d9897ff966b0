package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"tattoo-datasync/application/ports"
	"tattoo-datasync/domain/records"
	apperrors "tattoo-datasync/pkg/errors"
)

// maxUnprocessedRetries bounds how often a chunk's unprocessed items are
// resubmitted before they are counted as failed.
const maxUnprocessedRetries = 3

// RecordStore implements ports.RecordStore on a single DynamoDB table.
type RecordStore struct {
	client    DynamoDBAPI
	tableName string
	logger    *zap.Logger
	backoff   func(attempt int) time.Duration
}

var _ ports.RecordStore = (*RecordStore)(nil)

// NewRecordStore creates a record store over tableName.
func NewRecordStore(client DynamoDBAPI, tableName string, logger *zap.Logger) *RecordStore {
	return &RecordStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
		backoff:   exponentialBackoff,
	}
}

func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * 100 * time.Millisecond
}

// ScanAll pages through the table until LastEvaluatedKey is empty. Items
// that are not directory records (run locks) are ignored; directory items
// that fail validation are quarantined.
func (s *RecordStore) ScanAll(ctx context.Context, filter ports.ScanFilter) ([]*records.Record, error) {
	expr, err := scanFilterExpression(filter)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build scan filter").WithCause(err)
	}

	input := &dynamodb.ScanInput{
		TableName:                 aws.String(s.tableName),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	var (
		out         []*records.Record
		pages       int
		quarantined int
	)
	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, apperrors.NewDatabaseError("scan", err)
		}
		pages++

		for _, item := range page.Items {
			rec, err := s.decode(item)
			if err != nil {
				quarantined++
				continue
			}
			if rec == nil || !filter.Matches(rec) {
				continue
			}
			out = append(out, rec)
		}
	}

	s.logger.Debug("Scan complete",
		zap.String("table", s.tableName),
		zap.Int("pages", pages),
		zap.Int("records", len(out)),
		zap.Int("quarantined", quarantined),
	)
	return out, nil
}

// GetOne reads a record with a consistent read.
func (s *RecordStore) GetOne(ctx context.Context, key records.Key) (*records.Record, error) {
	av, err := attributevalue.MarshalMap(key)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to marshal key").WithCause(err)
	}

	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            av,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("get_item", err)
	}
	if result.Item == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("record %s", key))
	}

	rec, err := s.decode(result.Item)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("record %s", key))
	}
	return rec, nil
}

// PutOne derives the record's keys, validates it and writes it.
func (s *RecordStore) PutOne(ctx context.Context, r *records.Record) error {
	item, err := s.encode(r)
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return apperrors.NewDatabaseError("put_item", err)
	}
	return nil
}

// DeleteOne removes a record. Deleting an absent key is not an error.
func (s *RecordStore) DeleteOne(ctx context.Context, key records.Key) error {
	av, err := attributevalue.MarshalMap(key)
	if err != nil {
		return apperrors.NewInternalError("failed to marshal key").WithCause(err)
	}

	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       av,
	})
	if err != nil {
		return apperrors.NewDatabaseError("delete_item", err)
	}
	return nil
}

// BatchWrite puts or deletes records in chunks of ports.BatchChunkSize.
// Unprocessed items are resubmitted with exponential backoff. Records that
// fail validation, chunks that error and items still unprocessed after the
// last retry are counted as failed; the remaining chunks are still written.
// Only context cancellation stops the loop early.
func (s *RecordStore) BatchWrite(ctx context.Context, recs []*records.Record, op ports.BatchOp) (ports.BatchResult, error) {
	var result ports.BatchResult

	requests := make([]types.WriteRequest, 0, len(recs))
	for _, r := range recs {
		req, err := s.writeRequest(r, op)
		if err != nil {
			s.logger.Warn("Skipping record in batch write",
				zap.String("pk", r.PK),
				zap.String("op", string(op)),
				zap.Error(err),
			)
			result.Failed++
			continue
		}
		requests = append(requests, req)
	}

	for i := 0; i < len(requests); i += ports.BatchChunkSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		end := i + ports.BatchChunkSize
		if end > len(requests) {
			end = len(requests)
		}
		chunk := requests[i:end]

		unprocessed, err := s.writeChunk(ctx, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			s.logger.Error("Batch write chunk failed",
				zap.String("op", string(op)),
				zap.Int("chunk_start", i),
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err),
			)
			result.Failed += len(chunk)
			continue
		}
		if unprocessed > 0 {
			s.logger.Warn("Batch write left unprocessed items",
				zap.Int("chunk_start", i),
				zap.Int("unprocessed", unprocessed),
				zap.Int("retries", maxUnprocessedRetries),
			)
		}
		result.Failed += unprocessed
		result.Succeeded += len(chunk) - unprocessed
	}

	s.logger.Info("Batch write complete",
		zap.String("op", string(op)),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// writeChunk sends one chunk and resubmits its unprocessed items until none
// remain or the retries run out. It returns the number still unprocessed.
// An error on the first request fails the whole chunk; an error on a retry
// fails only the items that were pending.
func (s *RecordStore) writeChunk(ctx context.Context, chunk []types.WriteRequest) (int, error) {
	pending := chunk
	for attempt := 0; ; attempt++ {
		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				s.tableName: pending,
			},
		})
		if err != nil {
			if attempt == 0 {
				return 0, err
			}
			s.logger.Warn("Batch write retry failed", zap.Int("attempt", attempt), zap.Error(err))
			return len(pending), nil
		}

		pending = out.UnprocessedItems[s.tableName]
		if len(pending) == 0 || attempt >= maxUnprocessedRetries {
			return len(pending), nil
		}

		s.logger.Debug("Retrying unprocessed items",
			zap.Int("attempt", attempt+1),
			zap.Int("unprocessed", len(pending)),
		)
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(s.backoff(attempt)):
		}
	}
}

func (s *RecordStore) writeRequest(r *records.Record, op ports.BatchOp) (types.WriteRequest, error) {
	switch op {
	case ports.BatchPut:
		item, err := s.encode(r)
		if err != nil {
			return types.WriteRequest{}, err
		}
		return types.WriteRequest{PutRequest: &types.PutRequest{Item: item}}, nil
	case ports.BatchDelete:
		key := records.KeyFor(r.EntityType, r.ID)
		if r.ID == "" {
			key = r.Key()
		}
		av, err := attributevalue.MarshalMap(key)
		if err != nil {
			return types.WriteRequest{}, err
		}
		return types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: av}}, nil
	default:
		return types.WriteRequest{}, apperrors.NewValidationError(fmt.Sprintf("unknown batch operation %q", op))
	}
}

func (s *RecordStore) encode(r *records.Record) (map[string]types.AttributeValue, error) {
	r.DeriveKeys()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	item, err := attributevalue.MarshalMap(r)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to marshal record").WithCause(err)
	}
	return item, nil
}

// decode returns (nil, nil) for items that are not directory records and a
// validation error for directory items that are malformed.
func (s *RecordStore) decode(item map[string]types.AttributeValue) (*records.Record, error) {
	var rec records.Record
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		s.logger.Warn("Quarantined unreadable item", zap.Error(err))
		return nil, apperrors.NewValidationError("unreadable item").
			WithCode(apperrors.CodeInvalidRecord).
			WithCause(err)
	}
	if _, _, err := records.ParsePK(rec.PK); err != nil {
		return nil, nil
	}
	if err := rec.Validate(); err != nil {
		s.logger.Warn("Quarantined malformed record",
			zap.String("pk", rec.PK),
			zap.String("sk", rec.SK),
			zap.Error(err),
		)
		return nil, err
	}
	return &rec, nil
}

func scanFilterExpression(f ports.ScanFilter) (expression.Expression, error) {
	entityTypes := f.Types
	if len(entityTypes) == 0 {
		entityTypes = records.AllTypes
	}

	conds := make([]expression.ConditionBuilder, 0, len(entityTypes))
	for _, t := range entityTypes {
		conds = append(conds, expression.Name("PK").BeginsWith(t.Prefix()))
	}
	cond := conds[0]
	if len(conds) > 1 {
		cond = expression.Or(conds[0], conds[1], conds[2:]...)
	}
	if f.MigrationVersion != "" {
		cond = cond.And(expression.Name("migrationVersion").Equal(expression.Value(f.MigrationVersion)))
	}
	return expression.NewBuilder().WithFilter(cond).Build()
}
