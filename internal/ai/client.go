// Package ai wraps the external AI service: chat completions for per-item
// enrichment, plus the files and batches endpoints used for deferred bulk
// jobs.
//
// The underlying go-openai client is built on first use, after the API key
// has been resolved through the shared credential cache. Every outbound call
// waits on a client-side rate limiter. Service failures are wrapped with
// catalog.ErrExternalService; credential failures pass through unchanged.
package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/fpang/auction-catalog/internal/catalog"
)

// Default settings.
const (
	DefaultBaseURL          = "https://api.openai.com/v1"
	DefaultModel            = "gpt-4o-mini"
	DefaultMaxTokens        = 1000
	DefaultCompletionWindow = "24h"
)

// KeyProvider resolves the API key. *credentials.Cache satisfies it.
type KeyProvider interface {
	Get(ctx context.Context) (string, error)
}

// Config configures a Client.
type Config struct {
	BaseURL           string
	Model             string
	MaxTokens         int
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
}

// Client talks to the AI service on behalf of the enricher and the batch
// orchestrator.
type Client struct {
	cfg     Config
	keys    KeyProvider
	limiter *rate.Limiter

	mu  sync.Mutex
	api *openai.Client
}

// New returns a Client. No network or credential access happens until the
// first call.
func New(keys KeyProvider, cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 5 * time.Minute}
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		cfg:     cfg,
		keys:    keys,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Model returns the chat model requests are built for.
func (c *Client) Model() string { return c.cfg.Model }

// MaxTokens returns the max_tokens value requests are built with.
func (c *Client) MaxTokens() int { return c.cfg.MaxTokens }

// client returns the lazily constructed go-openai client and waits for a
// rate limiter token.
func (c *Client) client(ctx context.Context) (*openai.Client, error) {
	c.mu.Lock()
	api := c.api
	c.mu.Unlock()

	if api == nil {
		key, err := c.keys.Get(ctx)
		if err != nil {
			return nil, err
		}
		conf := openai.DefaultConfig(key)
		conf.BaseURL = c.cfg.BaseURL
		conf.HTTPClient = c.cfg.HTTPClient

		c.mu.Lock()
		if c.api == nil {
			c.api = openai.NewClientWithConfig(conf)
			log.Debug().Str("baseUrl", c.cfg.BaseURL).Str("model", c.cfg.Model).Msg("AI client initialized")
		}
		api = c.api
		c.mu.Unlock()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w: %w", catalog.ErrExternalService, err)
	}
	return api, nil
}

// Complete sends one chat completion request and returns the content of the
// first choice.
func (c *Client) Complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	api, err := c.client(ctx)
	if err != nil {
		return "", err
	}
	resp, err := api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", wrap("chat completion", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("chat completion returned no content: %w", catalog.ErrExternalService)
	}
	return resp.Choices[0].Message.Content, nil
}

// UploadBatchFile registers JSONL request data with the service as a batch
// input file and returns its file ID.
func (c *Client) UploadBatchFile(ctx context.Context, name string, data []byte) (string, error) {
	api, err := c.client(ctx)
	if err != nil {
		return "", err
	}
	f, err := api.CreateFileBytes(ctx, openai.FileBytesRequest{
		Name:    name,
		Bytes:   data,
		Purpose: openai.PurposeBatch,
	})
	if err != nil {
		return "", wrap("upload batch file", err)
	}
	return f.ID, nil
}

// CreateBatch submits a chat-completions batch job over an uploaded input
// file with the fixed 24h completion window.
func (c *Client) CreateBatch(ctx context.Context, inputFileID string, metadata map[string]string) (catalog.BatchJob, error) {
	api, err := c.client(ctx)
	if err != nil {
		return catalog.BatchJob{}, err
	}
	var meta map[string]any
	if len(metadata) > 0 {
		meta = make(map[string]any, len(metadata))
		for k, v := range metadata {
			meta[k] = v
		}
	}
	resp, err := api.CreateBatch(ctx, openai.CreateBatchRequest{
		InputFileID:      inputFileID,
		Endpoint:         openai.BatchEndpointChatCompletions,
		CompletionWindow: DefaultCompletionWindow,
		Metadata:         meta,
	})
	if err != nil {
		return catalog.BatchJob{}, wrap("create batch", err)
	}
	return toBatchJob(resp.Batch), nil
}

// RetrieveBatch returns the current state of one batch job.
func (c *Client) RetrieveBatch(ctx context.Context, id string) (catalog.BatchJob, error) {
	api, err := c.client(ctx)
	if err != nil {
		return catalog.BatchJob{}, err
	}
	resp, err := api.RetrieveBatch(ctx, id)
	if err != nil {
		return catalog.BatchJob{}, wrap("retrieve batch "+id, err)
	}
	return toBatchJob(resp.Batch), nil
}

// CancelBatch requests cancellation of a batch job.
func (c *Client) CancelBatch(ctx context.Context, id string) (catalog.BatchJob, error) {
	api, err := c.client(ctx)
	if err != nil {
		return catalog.BatchJob{}, err
	}
	resp, err := api.CancelBatch(ctx, id)
	if err != nil {
		return catalog.BatchJob{}, wrap("cancel batch "+id, err)
	}
	return toBatchJob(resp.Batch), nil
}

// ListBatches returns one page of batch jobs. An empty after starts from the
// most recent job; limit <= 0 uses the service default.
func (c *Client) ListBatches(ctx context.Context, after string, limit int) (catalog.BatchPage, error) {
	api, err := c.client(ctx)
	if err != nil {
		return catalog.BatchPage{}, err
	}
	var afterPtr *string
	if after != "" {
		afterPtr = &after
	}
	var limitPtr *int
	if limit > 0 {
		limitPtr = &limit
	}
	resp, err := api.ListBatch(ctx, afterPtr, limitPtr)
	if err != nil {
		return catalog.BatchPage{}, wrap("list batches", err)
	}
	page := catalog.BatchPage{
		Data:    make([]catalog.BatchJob, 0, len(resp.Data)),
		FirstID: resp.FirstID,
		LastID:  resp.LastID,
		HasMore: resp.HasMore,
	}
	for _, b := range resp.Data {
		page.Data = append(page.Data, toBatchJob(b))
	}
	return page, nil
}

// FileContent downloads a file (typically a batch output file).
func (c *Client) FileContent(ctx context.Context, fileID string) ([]byte, error) {
	api, err := c.client(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := api.GetFileContent(ctx, fileID)
	if err != nil {
		return nil, wrap("get file content "+fileID, err)
	}
	defer raw.Close()
	data, err := io.ReadAll(raw)
	if err != nil {
		return nil, fmt.Errorf("read file content %s: %w: %w", fileID, catalog.ErrExternalService, err)
	}
	return data, nil
}

func toBatchJob(b openai.Batch) catalog.BatchJob {
	job := catalog.BatchJob{
		ID:          b.ID,
		Status:      b.Status,
		InputFileID: b.InputFileID,
		RequestCounts: catalog.RequestCounts{
			Total:     b.RequestCounts.Total,
			Completed: b.RequestCounts.Completed,
			Failed:    b.RequestCounts.Failed,
		},
		CreatedAt:    int64(b.CreatedAt),
		InProgressAt: unix(b.InProgressAt),
		FinalizingAt: unix(b.FinalizingAt),
		CompletedAt:  unix(b.CompletedAt),
		FailedAt:     unix(b.FailedAt),
		ExpiredAt:    unix(b.ExpiredAt),
		CancellingAt: unix(b.CancellingAt),
		CancelledAt:  unix(b.CancelledAt),
		ExpiresAt:    unix(b.ExpiresAt),
	}
	if b.OutputFileID != nil {
		job.OutputFileID = *b.OutputFileID
	}
	if b.ErrorFileID != nil {
		job.ErrorFileID = *b.ErrorFileID
	}
	return job
}

func unix(t *int) *int64 {
	if t == nil {
		return nil
	}
	v := int64(*t)
	return &v
}

// wrap tags err as an external service failure, keeping the HTTP status of
// API errors in the message for troubleshooting.
func wrap(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w: status %d: %w", op, catalog.ErrExternalService, apiErr.HTTPStatusCode, err)
	}
	return fmt.Errorf("%s: %w: %w", op, catalog.ErrExternalService, err)
}
