// Package staging turns a flat list of uploaded images into reviewable
// staged items, either synchronously or by handing the work to a batch job.
package staging

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fpang/auction-catalog/internal/catalog"
	"github.com/fpang/auction-catalog/internal/enrich"
	"github.com/fpang/auction-catalog/internal/grouping"
)

// Enricher runs synchronous enrichment. *enrich.Enricher satisfies it.
type Enricher interface {
	EnrichAll(ctx context.Context, groups []catalog.ItemGroup, metadata map[string]any) ([]catalog.EnrichedMetadata, error)
}

// Batches submits deferred enrichment and reads it back.
// *batch.Orchestrator satisfies it.
type Batches interface {
	Submit(ctx context.Context, groups []catalog.ItemGroup, metadata map[string]any) (catalog.BatchJob, error)
	Results(ctx context.Context, id string) ([]catalog.BatchResult, error)
	Submission(ctx context.Context, id string) (*catalog.BatchSubmission, error)
}

// Image is one entry of the caller's upload list.
type Image struct {
	S3Key string `json:"s3Key"`
}

// Request is a staging call.
type Request struct {
	NumItems     int            `json:"num_items"`
	ViewsPerItem int            `json:"views_per_item"`
	Images       []Image        `json:"images"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	UseBatch     bool           `json:"use_batch,omitempty"`
}

// Result holds staged items in synchronous mode, or the submitted job in
// batch mode.
type Result struct {
	Items []catalog.StagedItem
	Batch *catalog.BatchJob
}

// Service is the staging flow.
type Service struct {
	enricher Enricher
	batches  Batches
	grouping grouping.Policy
	merge    enrich.MergePolicy
}

// New returns a Service. An empty policy takes the package default.
func New(enricher Enricher, batches Batches, groupPolicy grouping.Policy, merge enrich.MergePolicy) *Service {
	if groupPolicy == "" {
		groupPolicy = grouping.Contiguous
	}
	if merge == "" {
		merge = enrich.DiscoveredWins
	}
	return &Service{enricher: enricher, batches: batches, grouping: groupPolicy, merge: merge}
}

// Stage validates and groups req, then enriches every group. Validation
// happens before any AI call.
func (s *Service) Stage(ctx context.Context, req Request) (Result, error) {
	logger := zerolog.Ctx(ctx)

	keys := make([]string, len(req.Images))
	for i, img := range req.Images {
		if strings.TrimSpace(img.S3Key) == "" {
			return Result{}, catalog.Validationf("image %d: s3Key is required", i)
		}
		keys[i] = img.S3Key
	}
	groups, err := grouping.Group(keys, req.NumItems, req.ViewsPerItem, s.grouping)
	if err != nil {
		return Result{}, err
	}

	if req.UseBatch {
		if s.batches == nil {
			return Result{}, catalog.Validationf("batch mode is not available")
		}
		job, err := s.batches.Submit(ctx, groups, req.Metadata)
		if err != nil {
			return Result{}, err
		}
		logger.Info().Str("batchId", job.ID).Int("items", len(groups)).Msg("Staging deferred to batch")
		return Result{Batch: &job}, nil
	}

	enriched, err := s.enricher.EnrichAll(ctx, groups, req.Metadata)
	if err != nil {
		return Result{}, err
	}
	items := make([]catalog.StagedItem, len(groups))
	for i, g := range groups {
		items[i] = s.stagedItem(g, enriched[i], req.Metadata)
	}
	logger.Info().Int("items", len(items)).Int("images", len(keys)).Msg("Items staged")
	return Result{Items: items}, nil
}

// StagedFromResults rebuilds staged items from a finished batch job using
// the groups recorded at submission. Items whose result is missing, failed,
// or unparseable get the fallback record.
func (s *Service) StagedFromResults(ctx context.Context, batchID string) ([]catalog.StagedItem, error) {
	if s.batches == nil {
		return nil, catalog.Validationf("batch mode is not available")
	}
	sub, err := s.batches.Submission(ctx, batchID)
	if err != nil {
		return nil, err
	}
	results, err := s.batches.Results(ctx, batchID)
	if err != nil {
		return nil, err
	}

	logger := zerolog.Ctx(ctx)
	byIndex := make(map[int]catalog.BatchResult, len(results))
	for _, r := range results {
		byIndex[r.ItemIndex] = r
	}

	items := make([]catalog.StagedItem, len(sub.Groups))
	fallbacks := 0
	for i, g := range sub.Groups {
		meta, err := metadataFor(byIndex, g.ItemIndex)
		if err != nil {
			fallbacks++
			logger.Warn().Err(err).Str("batchId", batchID).Int("itemIndex", g.ItemIndex).Msg("Batch result unusable, using fallback")
			meta = enrich.Fallback()
		}
		items[i] = s.stagedItem(g, meta, sub.Metadata)
	}
	logger.Info().Str("batchId", batchID).Int("items", len(items)).Int("fallbacks", fallbacks).Msg("Staged items rebuilt from batch")
	return items, nil
}

func metadataFor(results map[int]catalog.BatchResult, index int) (catalog.EnrichedMetadata, error) {
	r, ok := results[index]
	if !ok {
		return catalog.EnrichedMetadata{}, fmt.Errorf("no result for item %d", index)
	}
	if r.Error != "" {
		return catalog.EnrichedMetadata{}, fmt.Errorf("result error: %s", r.Error)
	}
	return enrich.ParseMetadata(r.Content)
}

func (s *Service) stagedItem(g catalog.ItemGroup, meta catalog.EnrichedMetadata, caller map[string]any) catalog.StagedItem {
	return catalog.StagedItem{
		ItemIndex:     g.ItemIndex,
		Images:        g.Images,
		Title:         meta.Title,
		Description:   enrich.WithDisclaimer(meta.Description),
		ValueEstimate: meta.ValueEstimate,
		Metadata:      enrich.Merge(caller, meta.Discovered, s.merge),
	}
}
