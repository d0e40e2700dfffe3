// Package creation commits reviewed staged items to the durable catalog.
//
// Items are written one at a time in request order. For each item every row
// is built in memory first (ID allocated, image IDs generated), then the
// item row is written, then its image rows. Nothing is transactional: a
// failure stops the loop and the returned *PartialError says exactly which
// items were committed and how far the interrupted item got, so a caller can
// resubmit only the remainder. A resubmitted item gets a new ID.
package creation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fpang/auction-catalog/internal/catalog"
	"github.com/fpang/auction-catalog/internal/idgen"
	"github.com/fpang/auction-catalog/internal/metrics"
)

// Allocator issues item IDs. *store.DynamoStore satisfies it.
type Allocator interface {
	Allocate(ctx context.Context) (int64, error)
}

// Persister writes catalog rows. *store.DynamoStore satisfies it.
type Persister interface {
	PutItem(ctx context.Context, item catalog.CatalogItem) error
	PutImage(ctx context.Context, img catalog.CatalogImageRecord) error
}

// Notifier is told about fully successful creations. *events.Emitter
// satisfies it.
type Notifier interface {
	ItemsCreated(ctx context.Context, createdBy, auctionID string, itemIDs []int64)
}

// Request is one creation call.
type Request struct {
	Items     []catalog.StagedItem
	CreatedBy string
	AuctionID string
}

// PartialError reports a creation that stopped partway. It unwraps to the
// underlying failure, so errors.Is classification still works.
type PartialError struct {
	// Committed holds the fully written items, in request order.
	Committed []catalog.CatalogItem
	// FailedIndex is the position in the request of the interrupted item.
	FailedIndex int
	// FailedItemID is the ID allocated to the interrupted item, or 0 when
	// allocation itself failed.
	FailedItemID int64
	// ItemWritten reports whether the interrupted item's row was written.
	ItemWritten bool
	// ImagesWritten counts the interrupted item's image rows written.
	ImagesWritten int
	Err           error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("creation stopped at item %d after %d committed: %v", e.FailedIndex, len(e.Committed), e.Err)
}

func (e *PartialError) Unwrap() error { return e.Err }

// CommittedIndices returns the request positions of committed items.
func (e *PartialError) CommittedIndices() []int {
	out := make([]int, len(e.Committed))
	for i := range e.Committed {
		out[i] = i
	}
	return out
}

// Writer is the catalog writer.
type Writer struct {
	ids    Allocator
	rows   Persister
	notify Notifier
	now    func() time.Time
	newID  func() string
}

// Option configures a Writer.
type Option func(*Writer)

// WithNotifier sends a notification after each fully successful creation.
func WithNotifier(n Notifier) Option {
	return func(w *Writer) { w.notify = n }
}

// New returns a Writer.
func New(ids Allocator, rows Persister, opts ...Option) *Writer {
	w := &Writer{ids: ids, rows: rows, now: time.Now, newID: idgen.NewImageID}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Validate checks a request without touching storage.
func Validate(req Request) error {
	if strings.TrimSpace(req.CreatedBy) == "" {
		return catalog.Validationf("created_by is required")
	}
	if len(req.Items) == 0 {
		return catalog.Validationf("items must be a non-empty list")
	}
	for i, it := range req.Items {
		if strings.TrimSpace(it.Title) == "" {
			return catalog.Validationf("item %d: title is required", i)
		}
		if len(it.Images) == 0 {
			return catalog.Validationf("item %d: at least one image is required", i)
		}
		for j, img := range it.Images {
			if strings.TrimSpace(img.StorageKey) == "" {
				return catalog.Validationf("item %d image %d: imageKey is required", i, j)
			}
		}
	}
	return nil
}

// Create validates req and writes every item. On failure after any write it
// returns the committed items alongside a *PartialError.
func (w *Writer) Create(ctx context.Context, req Request) ([]catalog.CatalogItem, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	logger := zerolog.Ctx(ctx)
	committed := make([]catalog.CatalogItem, 0, len(req.Items))

	for i, staged := range req.Items {
		id, err := w.ids.Allocate(ctx)
		if err != nil {
			return committed, w.fail(ctx, &PartialError{Committed: committed, FailedIndex: i, Err: err})
		}

		item, images := w.build(id, staged, req)

		if err := w.rows.PutItem(ctx, item); err != nil {
			return committed, w.fail(ctx, &PartialError{Committed: committed, FailedIndex: i, FailedItemID: id, Err: err})
		}
		for n, img := range images {
			if err := w.rows.PutImage(ctx, img); err != nil {
				return committed, w.fail(ctx, &PartialError{
					Committed:     committed,
					FailedIndex:   i,
					FailedItemID:  id,
					ItemWritten:   true,
					ImagesWritten: n,
					Err:           err,
				})
			}
		}

		committed = append(committed, item)
		logger.Debug().Int64("itemId", id).Int("index", i).Int("images", len(images)).Msg("Catalog item committed")
	}

	logger.Info().Int("count", len(committed)).Str("createdBy", req.CreatedBy).Msg("Catalog items created")
	metrics.Catalog().Metric("ItemsCreated", float64(len(committed)), metrics.UnitCount).Flush()

	if w.notify != nil {
		ids := make([]int64, len(committed))
		for i, it := range committed {
			ids[i] = it.ItemID
		}
		w.notify.ItemsCreated(ctx, req.CreatedBy, req.AuctionID, ids)
	}
	return committed, nil
}

// build assembles every row for one item in memory.
func (w *Writer) build(id int64, staged catalog.StagedItem, req Request) (catalog.CatalogItem, []catalog.CatalogImageRecord) {
	now := w.now().Unix()
	item := catalog.CatalogItem{
		ItemID:        id,
		ItemIndex:     staged.ItemIndex,
		Images:        staged.Images,
		Title:         staged.Title,
		Description:   staged.Description,
		ValueEstimate: staged.ValueEstimate,
		Metadata:      staged.Metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
		CreatedBy:     req.CreatedBy,
		AuctionID:     req.AuctionID,
	}
	if item.Metadata == nil {
		item.Metadata = map[string]any{}
	}
	if item.ValueEstimate.Currency == "" {
		item.ValueEstimate.Currency = catalog.DefaultCurrency
	}

	images := make([]catalog.CatalogImageRecord, len(staged.Images))
	for i, img := range staged.Images {
		images[i] = catalog.CatalogImageRecord{
			ImageID:    w.newID(),
			ItemID:     id,
			StorageKey: img.StorageKey,
			CreatedAt:  now,
			AuctionID:  req.AuctionID,
		}
	}
	return item, images
}

func (w *Writer) fail(ctx context.Context, perr *PartialError) error {
	zerolog.Ctx(ctx).Error().
		Err(perr.Err).
		Int("failedIndex", perr.FailedIndex).
		Int64("failedItemId", perr.FailedItemID).
		Bool("itemWritten", perr.ItemWritten).
		Int("imagesWritten", perr.ImagesWritten).
		Int("committed", len(perr.Committed)).
		Msg("Catalog creation interrupted")
	metrics.Catalog().
		Dimension("Class", catalog.ErrorClass(perr.Err)).
		Count("CreateFailures").
		Metric("ItemsCreated", float64(len(perr.Committed)), metrics.UnitCount).
		Flush()
	return perr
}

// AsPartial extracts a *PartialError from err.
func AsPartial(err error) (*PartialError, bool) {
	var perr *PartialError
	ok := errors.As(err, &perr)
	return perr, ok
}
