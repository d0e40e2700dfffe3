package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"

	"github.com/fpang/auction-catalog/internal/catalog"
)

// PutItem writes a new catalog item row.
func (s *DynamoStore) PutItem(ctx context.Context, item catalog.CatalogItem) error {
	if err := s.putNew(ctx, s.tables.Items, "item_id", item); err != nil {
		return fmt.Errorf("put item %d: %w", item.ItemID, err)
	}
	log.Debug().Int64("itemId", item.ItemID).Int("images", len(item.Images)).Msg("Catalog item persisted")
	return nil
}

// PutImage writes a new catalog image row.
func (s *DynamoStore) PutImage(ctx context.Context, img catalog.CatalogImageRecord) error {
	if err := s.putNew(ctx, s.tables.Images, "image_id", img); err != nil {
		return fmt.Errorf("put image %s for item %d: %w", img.ImageID, img.ItemID, err)
	}
	return nil
}

// ListItemsByAuction returns an auction's items ordered by item ID.
func (s *DynamoStore) ListItemsByAuction(ctx context.Context, auctionID string) ([]catalog.CatalogItem, error) {
	rows, err := s.queryIndex(ctx, s.tables.Items, AuctionIndex, "auction_id",
		&types.AttributeValueMemberS{Value: auctionID})
	if err != nil {
		return nil, fmt.Errorf("list items for auction %s: %w", auctionID, err)
	}
	var items []catalog.CatalogItem
	if err := attributevalue.UnmarshalListOfMaps(rows, &items); err != nil {
		return nil, fmt.Errorf("unmarshal items for auction %s: %w", auctionID, err)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ItemID < items[j].ItemID })
	return items, nil
}

// ListImagesByItem returns the image rows of one item ordered by image ID,
// which is creation order.
func (s *DynamoStore) ListImagesByItem(ctx context.Context, itemID int64) ([]catalog.CatalogImageRecord, error) {
	rows, err := s.queryIndex(ctx, s.tables.Images, ItemIndex, "item_id",
		&types.AttributeValueMemberN{Value: strconv.FormatInt(itemID, 10)})
	if err != nil {
		return nil, fmt.Errorf("list images for item %d: %w", itemID, err)
	}
	var images []catalog.CatalogImageRecord
	if err := attributevalue.UnmarshalListOfMaps(rows, &images); err != nil {
		return nil, fmt.Errorf("unmarshal images for item %d: %w", itemID, err)
	}
	sort.Slice(images, func(i, j int) bool { return images[i].ImageID < images[j].ImageID })
	return images, nil
}
