package creation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/fpang/auction-catalog/internal/catalog"
)

type fakeAllocator struct {
	next  int64
	calls int
	err   error
}

func (f *fakeAllocator) Allocate(ctx context.Context) (int64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	f.next++
	return f.next, nil
}

type fakeRows struct {
	items     []catalog.CatalogItem
	images    []catalog.CatalogImageRecord
	failItem  int64 // fail PutItem for this ID
	failImage int   // fail the nth PutImage overall (1-based)
}

func (f *fakeRows) PutItem(ctx context.Context, item catalog.CatalogItem) error {
	if item.ItemID == f.failItem {
		return fmt.Errorf("put item: %w", catalog.ErrStorageUnavailable)
	}
	f.items = append(f.items, item)
	return nil
}

func (f *fakeRows) PutImage(ctx context.Context, img catalog.CatalogImageRecord) error {
	if f.failImage > 0 && len(f.images)+1 == f.failImage {
		return fmt.Errorf("put image: %w", catalog.ErrStorageUnavailable)
	}
	f.images = append(f.images, img)
	return nil
}

type fakeNotifier struct {
	ids       []int64
	createdBy string
}

func (f *fakeNotifier) ItemsCreated(ctx context.Context, createdBy, auctionID string, ids []int64) {
	f.createdBy = createdBy
	f.ids = ids
}

func stagedItem(index int, keys ...string) catalog.StagedItem {
	it := catalog.StagedItem{
		ItemIndex:     index,
		Title:         fmt.Sprintf("Item %d", index),
		Description:   "desc",
		ValueEstimate: catalog.ValueEstimate{Min: 10, Max: 20, Currency: "USD"},
		Metadata:      map[string]any{"markings": []string{"925"}},
	}
	for i, k := range keys {
		it.Images = append(it.Images, catalog.ImageReference{SequenceIndex: i, StorageKey: k})
	}
	return it
}

func newTestWriter(ids *fakeAllocator, rows *fakeRows, opts ...Option) *Writer {
	w := New(ids, rows, opts...)
	w.now = func() time.Time { return time.Unix(1700000000, 0) }
	n := 0
	w.newID = func() string { n++; return fmt.Sprintf("img_%03d", n) }
	return w
}

func TestCreateRoundTrip(t *testing.T) {
	ids := &fakeAllocator{next: 99}
	rows := &fakeRows{}
	notifier := &fakeNotifier{}
	w := newTestWriter(ids, rows, WithNotifier(notifier))

	staged := []catalog.StagedItem{stagedItem(0, "a.jpg", "b.jpg"), stagedItem(1, "c.jpg")}
	items, err := w.Create(context.Background(), Request{Items: staged, CreatedBy: "user-1", AuctionID: "auc-1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items", len(items))
	}
	for i, it := range items {
		s := staged[i]
		if it.Title != s.Title || it.Description != s.Description || it.ValueEstimate != s.ValueEstimate || !reflect.DeepEqual(it.Images, s.Images) {
			t.Errorf("item %d lost staged fields: %+v", i, it)
		}
		if it.ItemID != int64(100+i) {
			t.Errorf("item %d ID = %d", i, it.ItemID)
		}
		if it.CreatedAt != 1700000000 || it.UpdatedAt != 1700000000 || it.CreatedBy != "user-1" || it.AuctionID != "auc-1" {
			t.Errorf("item %d audit fields = %+v", i, it)
		}
	}

	if len(rows.images) != 3 {
		t.Fatalf("wrote %d image rows, want 3", len(rows.images))
	}
	wantImages := []catalog.CatalogImageRecord{
		{ImageID: "img_001", ItemID: 100, StorageKey: "a.jpg", CreatedAt: 1700000000, AuctionID: "auc-1"},
		{ImageID: "img_002", ItemID: 100, StorageKey: "b.jpg", CreatedAt: 1700000000, AuctionID: "auc-1"},
		{ImageID: "img_003", ItemID: 101, StorageKey: "c.jpg", CreatedAt: 1700000000, AuctionID: "auc-1"},
	}
	if !reflect.DeepEqual(rows.images, wantImages) {
		t.Errorf("image rows = %+v", rows.images)
	}
	if !reflect.DeepEqual(notifier.ids, []int64{100, 101}) || notifier.createdBy != "user-1" {
		t.Errorf("notification = %v by %q", notifier.ids, notifier.createdBy)
	}
}

func TestCreateValidationBeforeAllocation(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"missing created_by", Request{Items: []catalog.StagedItem{stagedItem(0, "a.jpg")}}},
		{"blank created_by", Request{Items: []catalog.StagedItem{stagedItem(0, "a.jpg")}, CreatedBy: "  "}},
		{"no items", Request{CreatedBy: "u"}},
		{"item without images", Request{Items: []catalog.StagedItem{stagedItem(0)}, CreatedBy: "u"}},
		{"item without title", Request{Items: []catalog.StagedItem{{Images: []catalog.ImageReference{{StorageKey: "a"}}}}, CreatedBy: "u"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := &fakeAllocator{}
			rows := &fakeRows{}
			_, err := newTestWriter(ids, rows).Create(context.Background(), tt.req)
			if !errors.Is(err, catalog.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if ids.calls != 0 {
				t.Errorf("allocator called %d times", ids.calls)
			}
			if len(rows.items) != 0 {
				t.Errorf("rows written: %d", len(rows.items))
			}
		})
	}
}

func TestCreateStopsOnImageFailure(t *testing.T) {
	ids := &fakeAllocator{}
	rows := &fakeRows{failImage: 4} // second image of the second item
	notifier := &fakeNotifier{}
	w := newTestWriter(ids, rows, WithNotifier(notifier))

	staged := []catalog.StagedItem{
		stagedItem(0, "a.jpg", "b.jpg"),
		stagedItem(1, "c.jpg", "d.jpg"),
		stagedItem(2, "e.jpg"),
	}
	items, err := w.Create(context.Background(), Request{Items: staged, CreatedBy: "u"})
	if !errors.Is(err, catalog.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	perr, ok := AsPartial(err)
	if !ok {
		t.Fatalf("expected *PartialError, got %T", err)
	}
	if len(items) != 1 || len(perr.Committed) != 1 || perr.Committed[0].ItemID != 1 {
		t.Errorf("committed = %+v", perr.Committed)
	}
	if !reflect.DeepEqual(perr.CommittedIndices(), []int{0}) {
		t.Errorf("CommittedIndices = %v", perr.CommittedIndices())
	}
	if perr.FailedIndex != 1 || perr.FailedItemID != 2 || !perr.ItemWritten || perr.ImagesWritten != 1 {
		t.Errorf("partial state = %+v", perr)
	}
	if ids.calls != 2 {
		t.Errorf("allocator calls = %d, want 2 (third item never attempted)", ids.calls)
	}
	if notifier.ids != nil {
		t.Error("notification sent for partial creation")
	}
}

func TestCreateStopsOnAllocationFailure(t *testing.T) {
	ids := &fakeAllocator{err: fmt.Errorf("counter: %w", catalog.ErrStorageUnavailable)}
	rows := &fakeRows{}
	items, err := newTestWriter(ids, rows).Create(context.Background(), Request{
		Items:     []catalog.StagedItem{stagedItem(0, "a.jpg")},
		CreatedBy: "u",
	})
	perr, ok := AsPartial(err)
	if !ok || !errors.Is(err, catalog.ErrStorageUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if len(items) != 0 || perr.FailedItemID != 0 || perr.ItemWritten {
		t.Errorf("partial = %+v", perr)
	}
	if len(rows.items) != 0 {
		t.Error("item row written without an ID")
	}
}

func TestCreateItemRowFailure(t *testing.T) {
	ids := &fakeAllocator{}
	rows := &fakeRows{failItem: 1}
	_, err := newTestWriter(ids, rows).Create(context.Background(), Request{
		Items:     []catalog.StagedItem{stagedItem(0, "a.jpg")},
		CreatedBy: "u",
	})
	perr, ok := AsPartial(err)
	if !ok || perr.FailedItemID != 1 || perr.ItemWritten || perr.ImagesWritten != 0 {
		t.Fatalf("partial = %+v, err = %v", perr, err)
	}
	if len(rows.images) != 0 {
		t.Error("image rows written after item row failed")
	}
}

func TestRetryAllocatesNewID(t *testing.T) {
	ids := &fakeAllocator{}
	rows := &fakeRows{failItem: 1}
	w := newTestWriter(ids, rows)
	req := Request{Items: []catalog.StagedItem{stagedItem(0, "a.jpg")}, CreatedBy: "u"}

	if _, err := w.Create(context.Background(), req); err == nil {
		t.Fatal("expected first attempt to fail")
	}
	items, err := w.Create(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if items[0].ItemID != 2 {
		t.Errorf("retry ID = %d, want a fresh ID 2", items[0].ItemID)
	}
}
