package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fpang/auction-catalog/internal/catalog"
	"github.com/fpang/auction-catalog/internal/creation"
	"github.com/fpang/auction-catalog/internal/export"
	"github.com/fpang/auction-catalog/internal/staging"
)

type fakeStager struct {
	got    staging.Request
	result staging.Result
	staged []catalog.StagedItem
	err    error
}

func (f *fakeStager) Stage(ctx context.Context, req staging.Request) (staging.Result, error) {
	f.got = req
	return f.result, f.err
}

func (f *fakeStager) StagedFromResults(ctx context.Context, id string) ([]catalog.StagedItem, error) {
	return f.staged, f.err
}

type fakeCreator struct {
	got   creation.Request
	items []catalog.CatalogItem
	err   error
}

func (f *fakeCreator) Create(ctx context.Context, req creation.Request) ([]catalog.CatalogItem, error) {
	f.got = req
	return f.items, f.err
}

type fakeBatches struct {
	gotAfter string
	gotLimit int
	gotID    string
	job      catalog.BatchJob
	results  []catalog.BatchResult
	err      error
}

func (f *fakeBatches) List(ctx context.Context, after string, limit int) (catalog.BatchPage, error) {
	f.gotAfter, f.gotLimit = after, limit
	return catalog.BatchPage{Data: []catalog.BatchJob{f.job}, FirstID: f.job.ID, LastID: f.job.ID}, f.err
}

func (f *fakeBatches) Get(ctx context.Context, id string) (catalog.BatchJob, error) {
	f.gotID = id
	return f.job, f.err
}

func (f *fakeBatches) Cancel(ctx context.Context, id string) (catalog.BatchJob, error) {
	f.gotID = id
	j := f.job
	j.Status = catalog.BatchCancelling
	return j, f.err
}

func (f *fakeBatches) Results(ctx context.Context, id string) ([]catalog.BatchResult, error) {
	f.gotID = id
	return f.results, f.err
}

type fakeExporter struct {
	res export.Result
	err error
}

func (f *fakeExporter) Export(ctx context.Context, auctionID, platform string) (export.Result, error) {
	return f.res, f.err
}

type fixture struct {
	stager   *fakeStager
	creator  *fakeCreator
	batches  *fakeBatches
	exporter *fakeExporter
	handler  http.Handler
}

func newFixture(secret string) *fixture {
	f := &fixture{
		stager:   &fakeStager{},
		creator:  &fakeCreator{},
		batches:  &fakeBatches{job: catalog.BatchJob{ID: "batch_1", Status: catalog.BatchInProgress}},
		exporter: &fakeExporter{},
	}
	f.handler = NewHandler(Deps{
		Staging:      f.stager,
		Creator:      f.creator,
		Batches:      f.batches,
		Exporter:     f.exporter,
		Version:      "abc123",
		OriginSecret: secret,
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
		}
	}
	return rec, out
}

func TestHealth(t *testing.T) {
	rec, body := newFixture("").do(t, "GET", "/api/health", "")
	if rec.Code != http.StatusOK || body["status"] != "ok" || body["service"] != ServiceName || body["version"] != "abc123" {
		t.Errorf("health = %d %v", rec.Code, body)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("missing X-Request-Id response header")
	}
}

func TestStageSynchronous(t *testing.T) {
	f := newFixture("")
	f.stager.result = staging.Result{Items: []catalog.StagedItem{{ItemIndex: 0, Title: "Ring"}}}

	rec, body := f.do(t, "POST", "/api/items/stage",
		`{"num_items":1,"views_per_item":2,"images":[{"s3Key":"a"},{"s3Key":"b"}],"metadata":{"lot":"3"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %v", rec.Code, body)
	}
	items := body["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["title"] != "Ring" {
		t.Errorf("items = %v", items)
	}
	if f.stager.got.NumItems != 1 || f.stager.got.ViewsPerItem != 2 || len(f.stager.got.Images) != 2 || f.stager.got.Images[1].S3Key != "b" {
		t.Errorf("decoded request = %+v", f.stager.got)
	}
	if f.stager.got.Metadata["lot"] != "3" {
		t.Errorf("metadata = %v", f.stager.got.Metadata)
	}
}

func TestStageBatchAccepted(t *testing.T) {
	f := newFixture("")
	f.stager.result = staging.Result{Batch: &catalog.BatchJob{ID: "batch_9", Status: catalog.BatchValidating}}

	rec, body := f.do(t, "POST", "/api/items/stage", `{"num_items":1,"views_per_item":1,"images":[{"s3Key":"a"}],"use_batch":true}`)
	if rec.Code != http.StatusAccepted || body["batch_id"] != "batch_9" || body["status"] != "validating" {
		t.Errorf("response = %d %v", rec.Code, body)
	}
	if !f.stager.got.UseBatch {
		t.Error("use_batch not decoded")
	}
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		class  string
	}{
		{catalog.Validationf("expected 6 images"), http.StatusBadRequest, "validation_error"},
		{fmt.Errorf("x: %w", catalog.ErrNotFound), http.StatusNotFound, "not_found"},
		{fmt.Errorf("x: %w", catalog.ErrNotReady), http.StatusConflict, "not_ready"},
		{fmt.Errorf("x: %w", catalog.ErrExternalService), http.StatusBadGateway, "external_service_error"},
		{fmt.Errorf("x: %w", catalog.ErrStorageUnavailable), http.StatusServiceUnavailable, "storage_unavailable"},
		{fmt.Errorf("x: %w", catalog.ErrSecretNotFound), http.StatusInternalServerError, "secret_not_found"},
		{fmt.Errorf("x: %w", catalog.ErrCredentialMissing), http.StatusInternalServerError, "credential_missing"},
	}
	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			f := newFixture("")
			f.stager.err = tt.err
			rec, body := f.do(t, "POST", "/api/items/stage", `{"num_items":1}`)
			if rec.Code != tt.status || body["class"] != tt.class {
				t.Errorf("got %d %v, want %d %s", rec.Code, body, tt.status, tt.class)
			}
		})
	}
}

func TestInternalDetailsNotLeaked(t *testing.T) {
	f := newFixture("")
	f.stager.err = fmt.Errorf("upload to s3://secret-bucket/key: %w", catalog.ErrExternalService)
	_, body := f.do(t, "POST", "/api/items/stage", `{}`)
	if strings.Contains(body["error"].(string), "secret-bucket") {
		t.Errorf("internal detail leaked: %v", body["error"])
	}
}

func TestMalformedBody(t *testing.T) {
	f := newFixture("")
	for _, body := range []string{"", "{", `{"num_items":"two"}`} {
		rec, out := f.do(t, "POST", "/api/items/stage", body)
		if rec.Code != http.StatusBadRequest || out["class"] != "validation_error" {
			t.Errorf("body %q: got %d %v", body, rec.Code, out)
		}
	}
}

func TestCreate(t *testing.T) {
	f := newFixture("")
	f.creator.items = []catalog.CatalogItem{{ItemID: 41, Title: "Ring"}}
	rec, body := f.do(t, "POST", "/api/items/create",
		`{"created_by":"user-1","auction_id":"auc","items":[{"item_index":0,"title":"Ring","images":[{"index":0,"imageKey":"a"}]}]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %v", rec.Code, body)
	}
	if f.creator.got.CreatedBy != "user-1" || f.creator.got.AuctionID != "auc" || f.creator.got.Items[0].Images[0].StorageKey != "a" {
		t.Errorf("decoded = %+v", f.creator.got)
	}
	item := body["items"].([]any)[0].(map[string]any)
	if item["item_id"] != float64(41) {
		t.Errorf("item = %v", item)
	}
}

func TestCreatePartialFailure(t *testing.T) {
	f := newFixture("")
	f.creator.err = &creation.PartialError{
		Committed:     []catalog.CatalogItem{{ItemID: 1}, {ItemID: 2}},
		FailedIndex:   2,
		FailedItemID:  3,
		ItemWritten:   true,
		ImagesWritten: 1,
		Err:           fmt.Errorf("put image: %w", catalog.ErrStorageUnavailable),
	}
	rec, body := f.do(t, "POST", "/api/items/create", `{"created_by":"u","items":[]}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["class"] != "storage_unavailable" || body["committed_count"] != float64(2) {
		t.Errorf("body = %v", body)
	}
	indices := body["committed_item_indices"].([]any)
	if len(indices) != 2 || indices[1] != float64(1) {
		t.Errorf("indices = %v", indices)
	}
	if body["failed_item_index"] != float64(2) || body["failed_item_written"] != true || body["failed_item_images_written"] != float64(1) {
		t.Errorf("failed item state = %v", body)
	}
}

func TestBatchRoutes(t *testing.T) {
	f := newFixture("")

	rec, body := f.do(t, "GET", "/api/batches?after=batch_0&limit=5", "")
	if rec.Code != http.StatusOK || f.batches.gotAfter != "batch_0" || f.batches.gotLimit != 5 {
		t.Errorf("list = %d %v (after %q limit %d)", rec.Code, body, f.batches.gotAfter, f.batches.gotLimit)
	}
	if body["first_id"] != "batch_1" || len(body["data"].([]any)) != 1 {
		t.Errorf("page = %v", body)
	}

	rec, _ = f.do(t, "GET", "/api/batches?limit=ten", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", rec.Code)
	}

	rec, body = f.do(t, "GET", "/api/batches/batch_1", "")
	if rec.Code != http.StatusOK || f.batches.gotID != "batch_1" || body["status"] != "in_progress" {
		t.Errorf("get = %d %v", rec.Code, body)
	}

	rec, body = f.do(t, "POST", "/api/batches/batch_2/cancel", "")
	if rec.Code != http.StatusOK || f.batches.gotID != "batch_2" || body["status"] != "cancelling" {
		t.Errorf("cancel = %d %v", rec.Code, body)
	}

	del := httptest.NewRecorder()
	f.handler.ServeHTTP(del, httptest.NewRequest("DELETE", "/api/batches/batch_2", nil))
	if del.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE status = %d", del.Code)
	}
}

func TestBatchResults(t *testing.T) {
	f := newFixture("")
	f.batches.results = []catalog.BatchResult{{CustomID: "item_0", ItemIndex: 0, Content: "{}"}}
	rec, body := f.do(t, "GET", "/api/batches/batch_1/results", "")
	if rec.Code != http.StatusOK || len(body["results"].([]any)) != 1 {
		t.Errorf("results = %d %v", rec.Code, body)
	}

	f.stager.staged = []catalog.StagedItem{{Title: "Fallback"}}
	rec, body = f.do(t, "GET", "/api/batches/batch_1/results?staged=true", "")
	if rec.Code != http.StatusOK || len(body["items"].([]any)) != 1 {
		t.Errorf("staged results = %d %v", rec.Code, body)
	}

	f.batches.err = fmt.Errorf("batch_1: %w", catalog.ErrNotReady)
	rec, _ = f.do(t, "GET", "/api/batches/batch_1/results", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("not ready status = %d", rec.Code)
	}
}

func TestExport(t *testing.T) {
	f := newFixture("")
	f.exporter.res = export.Result{Key: "exports/a/liveauctioneers_catalog.csv", DownloadURL: "https://signed", Items: 3}
	rec, body := f.do(t, "POST", "/api/export/catalog", `{"auction_id":"a","platform":"liveauctioneers"}`)
	if rec.Code != http.StatusOK || body["download_url"] != "https://signed" || body["message"] != "Catalog exported successfully" {
		t.Errorf("export = %d %v", rec.Code, body)
	}

	f.exporter.err = fmt.Errorf("no items: %w", catalog.ErrNotFound)
	rec, _ = f.do(t, "POST", "/api/export/catalog", `{"auction_id":"b","platform":"liveauctioneers"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("empty auction status = %d", rec.Code)
	}
}

func TestOriginVerify(t *testing.T) {
	f := newFixture("s3cret")
	rec, body := f.do(t, "GET", "/api/health", "")
	if rec.Code != http.StatusForbidden || body["class"] != "forbidden" {
		t.Errorf("without header = %d %v", rec.Code, body)
	}

	req := httptest.NewRequest("GET", "/api/health", nil)
	req.Header.Set(OriginVerifyHeader, "s3cret")
	out := httptest.NewRecorder()
	f.handler.ServeHTTP(out, req)
	if out.Code != http.StatusOK {
		t.Errorf("with header = %d", out.Code)
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := map[string]string{
		"/api/health":                                        "/api/health",
		"/api/batches/batch_67a1b2c3d4e5f6/results":          "/api/batches/*/results",
		"/api/items/12345":                                   "/api/items/*",
		"/api/batches/01HF3ZK8Q9W2N4M6P7R8S9T0V1":            "/api/batches/*",
		"/api/export/catalog":                                "/api/export/catalog",
		"/api/unknown/some-long-readable-segment-name/stuff": "/api/unknown/some-long-readable-segment-name/stuff",
	}
	for in, want := range tests {
		if got := normalizeEndpoint(in); got != want {
			t.Errorf("normalizeEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
}
