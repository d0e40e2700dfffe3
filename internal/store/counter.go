package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"

	"github.com/fpang/auction-catalog/internal/catalog"
)

// Key of the single sequence counter row.
const (
	CounterName = "GLOBAL"
	CounterType = "ITEM"
)

// Allocate returns the next item ID. It is one atomic ADD on the counter
// row that returns the post-increment value, so concurrent callers in any
// number of processes always receive distinct values. A missing row starts
// at 1. A value is consumed even if the caller never uses it.
func (s *DynamoStore) Allocate(ctx context.Context) (int64, error) {
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.tables.Counter,
		Key: map[string]types.AttributeValue{
			"counter_name": &types.AttributeValueMemberS{Value: CounterName},
			"counter_type": &types.AttributeValueMemberS{Value: CounterType},
		},
		UpdateExpression:         stringPtr("ADD #count :inc"),
		ExpressionAttributeNames: map[string]string{"#count": "count"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":inc": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("UpdateItem counter %s/%s: %w: %w", CounterName, CounterType, catalog.ErrStorageUnavailable, err)
	}

	attr, ok := out.Attributes["count"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, unavailable("counter update returned no count")
	}
	id, err := strconv.ParseInt(attr.Value, 10, 64)
	if err != nil {
		return 0, unavailable("counter value %q is not an integer", attr.Value)
	}
	log.Debug().Int64("itemId", id).Msg("Item ID allocated")
	return id, nil
}
