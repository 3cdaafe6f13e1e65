package counter

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/sitewatch/visitorfn/internal/metrics"
	apperrors "github.com/sitewatch/visitorfn/pkg/errors"
)

const (
	// InitialValue is the count of a counter that has never been incremented.
	InitialValue int64 = 0

	keyAttribute   = "counterId"
	countAttribute = "visitorCount"
)

// DynamoDBAPI is the subset of the DynamoDB client used by the store.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Item is the stored counter record.
type Item struct {
	CounterID    string `dynamodbav:"counterId"`
	VisitorCount int64  `dynamodbav:"visitorCount"`
}

// TableInfo describes the counter table for health and analytics output.
type TableInfo struct {
	TableName string `json:"tableName"`
	Status    string `json:"status"`
	ItemCount *int64 `json:"itemCount,omitempty"`
	Error     string `json:"error,omitempty"`
}

// DynamoStore keeps one named counter in a DynamoDB table.
type DynamoStore struct {
	client    DynamoDBAPI
	table     string
	counterID string
	logger    *zap.Logger
	metrics   *metrics.Recorder
}

// NewDynamoStore creates a store for the counter counterID in table.
func NewDynamoStore(client DynamoDBAPI, table, counterID string, logger *zap.Logger, recorder *metrics.Recorder) *DynamoStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DynamoStore{
		client:    client,
		table:     table,
		counterID: counterID,
		logger:    logger,
		metrics:   recorder,
	}
}

// TableName returns the backing table name.
func (s *DynamoStore) TableName() string {
	return s.table
}

func (s *DynamoStore) key() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		keyAttribute: &types.AttributeValueMemberS{Value: s.counterID},
	}
}

// Get returns the current count. A missing record reads as InitialValue; a
// missing table is reported as RESOURCE_NOT_FOUND.
func (s *DynamoStore) Get(ctx context.Context) (int64, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       s.key(),
	})
	if err != nil {
		return 0, s.translateError(err, "GetItem")
	}

	if len(out.Item) == 0 {
		s.logger.Debug("counter record not found, returning initial value",
			zap.String("counter_id", s.counterID))
		return InitialValue, nil
	}

	var item Item
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return 0, apperrors.NewError(apperrors.ErrCodeUnexpected, "counter record is malformed").
			WithComponent("counter").
			WithOperation("GetItem").
			WithCause(err)
	}
	return item.VisitorCount, nil
}

// Increment atomically adds one to the counter and returns the new value.
// The record is created on first use.
func (s *DynamoStore) Increment(ctx context.Context) (int64, error) {
	values, err := attributevalue.MarshalMap(map[string]int64{
		":inc":   1,
		":start": InitialValue,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal update values: %w", err)
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       s.key(),
		UpdateExpression:          aws.String("SET " + countAttribute + " = if_not_exists(" + countAttribute + ", :start) + :inc"),
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, s.translateError(err, "UpdateItem")
	}

	raw, ok := out.Attributes[countAttribute]
	if !ok {
		return 0, apperrors.NewError(apperrors.ErrCodeUnexpected, "update returned no count").
			WithComponent("counter").
			WithOperation("UpdateItem")
	}

	var count int64
	if err := attributevalue.Unmarshal(raw, &count); err != nil {
		return 0, apperrors.NewError(apperrors.ErrCodeUnexpected, "updated count is malformed").
			WithComponent("counter").
			WithOperation("UpdateItem").
			WithCause(err)
	}

	s.logger.Debug("counter incremented", zap.Int64("count", count))
	return count, nil
}

// InitializeIfAbsent writes the record with InitialValue unless it already
// exists. Both outcomes are success.
func (s *DynamoStore) InitializeIfAbsent(ctx context.Context) error {
	item, err := attributevalue.MarshalMap(Item{CounterID: s.counterID, VisitorCount: InitialValue})
	if err != nil {
		return fmt.Errorf("failed to marshal counter record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(" + keyAttribute + ")"),
	})
	if err != nil {
		if apperrors.FromBackend(err, "counter", "PutItem").Code == apperrors.ErrCodeConditionFailed {
			s.logger.Info("counter already exists", zap.String("counter_id", s.counterID))
			return nil
		}
		return s.translateError(err, "PutItem")
	}

	s.logger.Info("counter initialized", zap.String("counter_id", s.counterID))
	return nil
}

// Ping reads the counter record to prove the table is reachable.
func (s *DynamoStore) Ping(ctx context.Context) error {
	_, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       s.key(),
	})
	if err != nil {
		return s.translateError(err, "GetItem")
	}
	return nil
}

// TableInfo describes the table. Failures are reported inside the result.
func (s *DynamoStore) TableInfo(ctx context.Context) TableInfo {
	info := TableInfo{TableName: s.table}

	out, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.table),
	})
	if err != nil {
		s.logger.Warn("describe table failed", zap.String("table", s.table), zap.Error(err))
		info.Status = "unknown"
		info.Error = err.Error()
		return info
	}

	if out.Table != nil {
		info.Status = string(out.Table.TableStatus)
		info.ItemCount = out.Table.ItemCount
	}
	if info.Status == "" {
		info.Status = "unknown"
	}
	return info
}

func (s *DynamoStore) translateError(err error, operation string) error {
	e := apperrors.FromBackend(err, "counter", operation)
	s.metrics.RecordBackendError(metrics.BackendDynamoDB, e.BackendCode)
	s.logger.Warn("dynamodb call failed",
		zap.String("operation", operation),
		zap.String("table", s.table),
		zap.String("code", string(e.Code)),
		zap.String("backend_code", e.BackendCode),
		zap.Error(err))
	return e
}
