// Package events publishes catalog notifications to EventBridge.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog"

	"github.com/fpang/auction-catalog/internal/catalog"
)

// Source is the EventBridge source of every event published here.
const Source = "auction-catalog"

// Detail types.
const (
	TypeItemsCreated  = "CatalogItemsCreated"
	TypeBatchFinished = "CatalogBatchFinished"
)

// PutEventsAPI is the EventBridge call used here.
type PutEventsAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// ItemsCreated is the detail of a CatalogItemsCreated event.
type ItemsCreated struct {
	CreatedBy string  `json:"created_by"`
	AuctionID string  `json:"auction_id,omitempty"`
	ItemIDs   []int64 `json:"item_ids"`
}

// BatchFinished is the detail of a CatalogBatchFinished event.
type BatchFinished struct {
	BatchID       string                `json:"batch_id"`
	Status        string                `json:"status"`
	RequestCounts catalog.RequestCounts `json:"request_counts"`
}

// Emitter publishes to one event bus. Publishing failures are logged and
// never returned to callers of the notification methods.
type Emitter struct {
	client PutEventsAPI
	bus    string
}

// NewEmitter returns an Emitter for bus. An empty bus name means the
// account's default bus.
func NewEmitter(client PutEventsAPI, bus string) *Emitter {
	return &Emitter{client: client, bus: bus}
}

// ItemsCreated announces a fully successful creation.
func (e *Emitter) ItemsCreated(ctx context.Context, createdBy, auctionID string, itemIDs []int64) {
	err := e.Put(ctx, TypeItemsCreated, ItemsCreated{CreatedBy: createdBy, AuctionID: auctionID, ItemIDs: itemIDs})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int("items", len(itemIDs)).Msg("Failed to emit CatalogItemsCreated")
	}
}

// BatchFinished announces that a batch job reached a terminal status.
func (e *Emitter) BatchFinished(ctx context.Context, job catalog.BatchJob) {
	err := e.Put(ctx, TypeBatchFinished, BatchFinished{BatchID: job.ID, Status: job.Status, RequestCounts: job.RequestCounts})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("batchId", job.ID).Msg("Failed to emit CatalogBatchFinished")
	}
}

// Put publishes one event with detail marshalled as JSON.
func (e *Emitter) Put(ctx context.Context, detailType string, detail any) error {
	logger := zerolog.Ctx(ctx)
	data, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", detailType, err)
	}

	entry := eventbridgetypes.PutEventsRequestEntry{
		Source:     aws.String(Source),
		DetailType: aws.String(detailType),
		Detail:     aws.String(string(data)),
	}
	if e.bus != "" {
		entry.EventBusName = aws.String(e.bus)
	}

	result, err := e.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []eventbridgetypes.PutEventsRequestEntry{entry},
	})
	if err != nil {
		return fmt.Errorf("PutEvents: %w", err)
	}
	if result.FailedEntryCount > 0 {
		for i, failed := range result.Entries {
			if failed.ErrorCode != nil || failed.ErrorMessage != nil {
				return fmt.Errorf("PutEvents entry %d failed: %s - %s", i, aws.ToString(failed.ErrorCode), aws.ToString(failed.ErrorMessage))
			}
		}
		return fmt.Errorf("PutEvents: %d entries failed", result.FailedEntryCount)
	}

	logger.Debug().Str("detailType", detailType).Str("bus", e.bus).Msg("Event emitted")
	return nil
}
