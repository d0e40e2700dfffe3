package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"

	"github.com/fpang/auction-catalog/internal/catalog"
)

// SubmissionTTL bounds how long batch submission records are kept. Batch
// output files expire on the AI service well before this.
const SubmissionTTL = 30 * 24 * time.Hour

// ErrNoBatchTable is returned by submission methods when no batches table
// is configured.
var ErrNoBatchTable = errors.New("batches table not configured")

// PutSubmission records the groups and caller metadata behind a batch.
func (s *DynamoStore) PutSubmission(ctx context.Context, sub catalog.BatchSubmission) error {
	if s.tables.Batches == "" {
		return ErrNoBatchTable
	}
	item, err := attributevalue.MarshalMap(sub)
	if err != nil {
		return fmt.Errorf("marshal submission %s: %w", sub.BatchID, err)
	}
	item["expiresAt"] = &types.AttributeValueMemberN{
		Value: strconv.FormatInt(time.Now().Add(SubmissionTTL).Unix(), 10),
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tables.Batches,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem batch_id=%s: %w: %w", sub.BatchID, catalog.ErrStorageUnavailable, err)
	}
	log.Debug().Str("batchId", sub.BatchID).Int("groups", len(sub.Groups)).Msg("Batch submission persisted")
	return nil
}

// GetSubmission loads a batch submission record. Returns nil, nil when the
// record does not exist.
func (s *DynamoStore) GetSubmission(ctx context.Context, batchID string) (*catalog.BatchSubmission, error) {
	if s.tables.Batches == "" {
		return nil, ErrNoBatchTable
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tables.Batches,
		Key: map[string]types.AttributeValue{
			"batch_id": &types.AttributeValueMemberS{Value: batchID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("GetItem batch_id=%s: %w: %w", batchID, catalog.ErrStorageUnavailable, err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var sub catalog.BatchSubmission
	if err := attributevalue.UnmarshalMap(out.Item, &sub); err != nil {
		return nil, fmt.Errorf("unmarshal batch_id=%s: %w", batchID, err)
	}
	return &sub, nil
}
