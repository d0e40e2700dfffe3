// Package store persists the catalog in DynamoDB.
//
// Four tables are involved:
//
//	counter  (counter_name, counter_type)  the sequence counter row
//	items    (item_id N)                   catalog items; GSI auctionIdIndex
//	images   (image_id S)                  image rows; GSIs itemIdIndex, auctionIdIndex
//	batches  (batch_id S)                  optional batch submission records with TTL
//
// DynamoDB failures are wrapped with catalog.ErrStorageUnavailable, except a
// put that finds its key already taken, which wraps ErrRowExists.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/fpang/auction-catalog/internal/catalog"
)

// Secondary index names.
const (
	AuctionIndex = "auctionIdIndex"
	ItemIndex    = "itemIdIndex"
)

// ErrRowExists means a put found a row with the same key, for example after
// the sequence counter was reset. It is a data conflict, not an outage.
var ErrRowExists = errors.New("row already exists")

// DynamoAPI is the subset of *dynamodb.Client the store uses.
type DynamoAPI interface {
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Tables names the DynamoDB tables. Batches may be empty, which disables
// submission records.
type Tables struct {
	Items   string
	Images  string
	Counter string
	Batches string
}

// DynamoStore implements catalog persistence on DynamoDB.
type DynamoStore struct {
	client DynamoAPI
	tables Tables
}

// NewDynamoStore creates a DynamoStore. The client should be built from the
// shared AWS config.
func NewDynamoStore(client DynamoAPI, tables Tables) *DynamoStore {
	return &DynamoStore{client: client, tables: tables}
}

// --- Internal helpers ---

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), catalog.ErrStorageUnavailable)
}

// putNew marshals data and writes it, refusing to overwrite an existing row
// with the same partition key.
func (s *DynamoStore) putNew(ctx context.Context, table, keyAttr string, data any) error {
	item, err := attributevalue.MarshalMap(data)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                &table,
		Item:                     item,
		ConditionExpression:      stringPtr("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": keyAttr},
	})
	var exists *types.ConditionalCheckFailedException
	if errors.As(err, &exists) {
		return fmt.Errorf("PutItem table=%s: %w: %w", table, ErrRowExists, err)
	}
	if err != nil {
		return fmt.Errorf("PutItem table=%s: %w: %w", table, catalog.ErrStorageUnavailable, err)
	}
	return nil
}

// queryIndex runs an equality query on a GSI and returns every page.
func (s *DynamoStore) queryIndex(ctx context.Context, table, index, attr string, value types.AttributeValue) ([]map[string]types.AttributeValue, error) {
	input := &dynamodb.QueryInput{
		TableName:                 &table,
		IndexName:                 &index,
		KeyConditionExpression:    stringPtr("#k = :v"),
		ExpressionAttributeNames:  map[string]string{"#k": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": value},
	}

	var all []map[string]types.AttributeValue
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("Query table=%s index=%s: %w: %w", table, index, catalog.ErrStorageUnavailable, err)
		}
		all = append(all, result.Items...)
		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	return all, nil
}

func stringPtr(s string) *string { return &s }
