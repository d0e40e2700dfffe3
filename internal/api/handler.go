// Package api is the HTTP surface of the catalog service. It is served by
// API Gateway through the Lambda proxy adapter, or directly by net/http in
// tests and local runs.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/fpang/auction-catalog/internal/catalog"
	"github.com/fpang/auction-catalog/internal/creation"
	"github.com/fpang/auction-catalog/internal/export"
	"github.com/fpang/auction-catalog/internal/staging"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "auction-catalog"

// Stager runs the staging flow. *staging.Service satisfies it.
type Stager interface {
	Stage(ctx context.Context, req staging.Request) (staging.Result, error)
	StagedFromResults(ctx context.Context, batchID string) ([]catalog.StagedItem, error)
}

// Creator commits staged items. *creation.Writer satisfies it.
type Creator interface {
	Create(ctx context.Context, req creation.Request) ([]catalog.CatalogItem, error)
}

// Batches manages batch jobs. *batch.Orchestrator satisfies it.
type Batches interface {
	List(ctx context.Context, after string, limit int) (catalog.BatchPage, error)
	Get(ctx context.Context, id string) (catalog.BatchJob, error)
	Cancel(ctx context.Context, id string) (catalog.BatchJob, error)
	Results(ctx context.Context, id string) ([]catalog.BatchResult, error)
}

// Exporter publishes catalog exports. *export.Exporter satisfies it.
type Exporter interface {
	Export(ctx context.Context, auctionID, platform string) (export.Result, error)
}

// Deps are the services behind the routes.
type Deps struct {
	Staging      Stager
	Creator      Creator
	Batches      Batches
	Exporter     Exporter
	Version      string
	OriginSecret string
}

type server struct {
	deps Deps
}

// NewHandler returns the routed, middleware-wrapped handler.
func NewHandler(deps Deps) http.Handler {
	s := &server{deps: deps}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/items/stage", s.handleStage)
	mux.HandleFunc("POST /api/items/create", s.handleCreate)
	mux.HandleFunc("GET /api/batches", s.handleListBatches)
	mux.HandleFunc("GET /api/batches/{id}", s.handleGetBatch)
	mux.HandleFunc("POST /api/batches/{id}/cancel", s.handleCancelBatch)
	mux.HandleFunc("GET /api/batches/{id}/results", s.handleBatchResults)
	mux.HandleFunc("POST /api/export/catalog", s.handleExport)

	var h http.Handler = mux
	h = withOriginVerify(deps.OriginSecret, h)
	h = withMetrics(h)
	return withRequestLogging(h)
}

// --- Health ---

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": ServiceName,
		"version": s.deps.Version,
	})
}

// --- Staging ---

// POST /api/items/stage
// Synchronous mode answers 200 with staged items; batch mode answers 202
// with the job ID as soon as the job exists.
func (s *server) handleStage(w http.ResponseWriter, r *http.Request) {
	var req staging.Request
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	res, err := s.deps.Staging.Stage(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if res.Batch != nil {
		respondJSON(w, http.StatusAccepted, map[string]string{
			"batch_id": res.Batch.ID,
			"status":   res.Batch.Status,
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": res.Items})
}

// --- Creation ---

type createRequest struct {
	Items     []catalog.StagedItem `json:"items"`
	CreatedBy string               `json:"created_by"`
	AuctionID string               `json:"auction_id,omitempty"`
}

// createFailure reports what a failed creation managed to commit, so the
// caller can resubmit only the rest.
type createFailure struct {
	errorBody
	CommittedCount   int                   `json:"committed_count"`
	CommittedIndices []int                 `json:"committed_item_indices"`
	Committed        []catalog.CatalogItem `json:"items"`
	FailedIndex      int                   `json:"failed_item_index"`
	FailedItemID     int64                 `json:"failed_item_id,omitempty"`
	ItemWritten      bool                  `json:"failed_item_written"`
	ImagesWritten    int                   `json:"failed_item_images_written"`
}

// POST /api/items/create
func (s *server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	items, err := s.deps.Creator.Create(r.Context(), creation.Request{
		Items:     req.Items,
		CreatedBy: req.CreatedBy,
		AuctionID: req.AuctionID,
	})
	if err != nil {
		perr, ok := creation.AsPartial(err)
		if !ok {
			respondError(w, r, err)
			return
		}
		status := statusFor(perr.Err)
		zerolog.Ctx(r.Context()).Error().Err(err).Int("status", status).
			Int("committed", len(perr.Committed)).Msg("Catalog creation partially failed")
		committed := perr.Committed
		if committed == nil {
			committed = []catalog.CatalogItem{}
		}
		respondJSON(w, status, createFailure{
			errorBody:        errorBody{Error: clientMessage(status, perr.Err), Class: catalog.ErrorClass(perr.Err)},
			CommittedCount:   len(committed),
			CommittedIndices: perr.CommittedIndices(),
			Committed:        committed,
			FailedIndex:      perr.FailedIndex,
			FailedItemID:     perr.FailedItemID,
			ItemWritten:      perr.ItemWritten,
			ImagesWritten:    perr.ImagesWritten,
		})
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"items": items})
}

// --- Batches ---

// GET /api/batches?after=...&limit=...
func (s *server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, r, catalog.Validationf("limit must be an integer"))
			return
		}
		limit = n
	}
	page, err := s.deps.Batches.List(r.Context(), q.Get("after"), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if page.Data == nil {
		page.Data = []catalog.BatchJob{}
	}
	respondJSON(w, http.StatusOK, page)
}

// GET /api/batches/{id}
func (s *server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Batches.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// POST /api/batches/{id}/cancel
func (s *server) handleCancelBatch(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Batches.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// GET /api/batches/{id}/results[?staged=true]
// 409 until the job has an output file.
func (s *server) handleBatchResults(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	staged, _ := strconv.ParseBool(r.URL.Query().Get("staged"))
	if staged {
		items, err := s.deps.Staging.StagedFromResults(r.Context(), id)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"items": items})
		return
	}
	results, err := s.deps.Batches.Results(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if results == nil {
		results = []catalog.BatchResult{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

// --- Export ---

type exportRequest struct {
	AuctionID string `json:"auction_id"`
	Platform  string `json:"platform"`
}

// POST /api/export/catalog
func (s *server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	res, err := s.deps.Exporter.Export(r.Context(), req.AuctionID, req.Platform)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message":      "Catalog exported successfully",
		"download_url": res.DownloadURL,
		"key":          res.Key,
		"items":        res.Items,
	})
}
