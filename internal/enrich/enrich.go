// Package enrich produces catalog metadata for item image groups by calling
// the AI chat completion endpoint.
//
// Enrichment fails closed: network errors, error statuses, empty content,
// malformed JSON, and timeouts all yield the Fallback record so one bad item
// never aborts a staging request. Only credential faults are returned as
// errors, since no later item could succeed either.
package enrich

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/fpang/auction-catalog/internal/catalog"
	"github.com/fpang/auction-catalog/internal/jsonutil"
	"github.com/fpang/auction-catalog/internal/metrics"
)

// Defaults for Config.
const (
	DefaultTimeout     = 60 * time.Second
	DefaultConcurrency = 4
)

// Completer sends one chat completion and returns the first choice's
// content. *ai.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error)
}

// Config tunes an Enricher.
type Config struct {
	Request     RequestBuilder
	Timeout     time.Duration
	Concurrency int
}

// Enricher runs synchronous per-item enrichment.
type Enricher struct {
	ai  Completer
	cfg Config
}

// New returns an Enricher. Zero Timeout and Concurrency take the defaults.
func New(ai Completer, cfg Config) *Enricher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Enricher{ai: ai, cfg: cfg}
}

// Requests exposes the request builder so batch mode sends identical bodies.
func (e *Enricher) Requests() RequestBuilder { return e.cfg.Request }

// Enrich describes one item group. The returned error is non-nil only for
// credential faults; every other failure returns Fallback().
func (e *Enricher) Enrich(ctx context.Context, group catalog.ItemGroup, metadata map[string]any) (catalog.EnrichedMetadata, error) {
	logger := zerolog.Ctx(ctx).With().Int("itemIndex", group.ItemIndex).Logger()
	start := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	req := e.cfg.Request.Build(group.StorageKeys(), metadata)
	content, err := e.ai.Complete(callCtx, req)
	if err != nil {
		if isCredentialFault(err) {
			logger.Error().Err(err).Msg("AI credential unavailable")
			return catalog.EnrichedMetadata{}, err
		}
		outcome := "error"
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			outcome = "timeout"
		}
		logger.Warn().Err(err).Str("outcome", outcome).Dur("elapsed", time.Since(start)).
			Msg("AI enrichment failed, using fallback")
		record(outcome, time.Since(start))
		return Fallback(), nil
	}

	meta, err := ParseMetadata(content)
	if err != nil {
		logger.Warn().Err(err).Str("content", jsonutil.Preview(content, 200)).
			Msg("AI response unusable, using fallback")
		record("parse_error", time.Since(start))
		return Fallback(), nil
	}

	logger.Debug().Str("title", meta.Title).Dur("elapsed", time.Since(start)).Msg("Item enriched")
	record("ok", time.Since(start))
	return meta, nil
}

// EnrichAll enriches every group with at most Concurrency calls in flight.
// Results are index-aligned with groups regardless of completion order.
func (e *Enricher) EnrichAll(ctx context.Context, groups []catalog.ItemGroup, metadata map[string]any) ([]catalog.EnrichedMetadata, error) {
	out := make([]catalog.EnrichedMetadata, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i := range groups {
		g.Go(func() error {
			m, err := e.Enrich(gctx, groups[i], metadata)
			if err != nil {
				return err
			}
			out[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func isCredentialFault(err error) bool {
	return errors.Is(err, catalog.ErrCredentialMissing) || errors.Is(err, catalog.ErrSecretNotFound)
}

func record(outcome string, elapsed time.Duration) {
	rec := metrics.Catalog().
		Dimension("Outcome", outcome).
		Duration("EnrichLatencyMs", elapsed).
		Count("EnrichCalls")
	if outcome != "ok" {
		rec.Count("EnrichFallbacks")
	}
	rec.Flush()
}
