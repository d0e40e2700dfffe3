// Package batch runs deferred enrichment through the AI service's batch API.
//
// Submission builds one chat completion request per item group, tagged
// "item_<index>", writes them as JSONL, archives that file in S3, registers
// it with the AI service, and creates a batch job with a 24h completion
// window. It returns as soon as the job exists. Results are fetched later,
// once the job has an output file, and correlated back by custom_id.
package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/fpang/auction-catalog/internal/catalog"
	"github.com/fpang/auction-catalog/internal/enrich"
	"github.com/fpang/auction-catalog/internal/idgen"
	"github.com/fpang/auction-catalog/internal/metrics"
	"github.com/fpang/auction-catalog/internal/s3util"
)

// API is the AI service surface used here. *ai.Client satisfies it.
type API interface {
	UploadBatchFile(ctx context.Context, name string, data []byte) (string, error)
	CreateBatch(ctx context.Context, inputFileID string, metadata map[string]string) (catalog.BatchJob, error)
	RetrieveBatch(ctx context.Context, id string) (catalog.BatchJob, error)
	CancelBatch(ctx context.Context, id string) (catalog.BatchJob, error)
	ListBatches(ctx context.Context, after string, limit int) (catalog.BatchPage, error)
	FileContent(ctx context.Context, fileID string) ([]byte, error)
}

// SubmissionStore keeps the groups behind each batch. *store.DynamoStore
// satisfies it.
type SubmissionStore interface {
	PutSubmission(ctx context.Context, sub catalog.BatchSubmission) error
	GetSubmission(ctx context.Context, batchID string) (*catalog.BatchSubmission, error)
}

// Tracker starts out-of-band polling for a submitted batch.
// *workflow.Starter satisfies it.
type Tracker interface {
	StartPolling(ctx context.Context, batchID string) error
}

// MaxListLimit caps the page size accepted by List.
const MaxListLimit = 100

// Orchestrator submits and observes batch jobs.
type Orchestrator struct {
	api      API
	objects  s3util.Putter
	bucket   string
	requests enrich.RequestBuilder
	subs     SubmissionStore
	tracker  Tracker
}

// Option configures optional Orchestrator collaborators.
type Option func(*Orchestrator)

// WithSubmissions records each submission so results can be turned back
// into staged items.
func WithSubmissions(s SubmissionStore) Option {
	return func(o *Orchestrator) { o.subs = s }
}

// WithTracker starts a polling workflow after each submission.
func WithTracker(t Tracker) Option {
	return func(o *Orchestrator) { o.tracker = t }
}

// New returns an Orchestrator archiving input files in bucket.
func New(api API, objects s3util.Putter, bucket string, requests enrich.RequestBuilder, opts ...Option) *Orchestrator {
	o := &Orchestrator{api: api, objects: objects, bucket: bucket, requests: requests}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CustomID returns the correlation tag for an item index.
func CustomID(itemIndex int) string {
	return "item_" + strconv.Itoa(itemIndex)
}

// ParseCustomID extracts the item index from a correlation tag.
func ParseCustomID(id string) (int, bool) {
	const prefix = "item_"
	if len(id) <= len(prefix) || id[:len(prefix)] != prefix {
		return 0, false
	}
	n, err := strconv.Atoi(id[len(prefix):])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// BuildInput renders one JSONL line per group, in group order.
func (o *Orchestrator) BuildInput(groups []catalog.ItemGroup, metadata map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	for _, g := range groups {
		line, err := json.Marshal(openai.BatchChatCompletionRequest{
			CustomID: CustomID(g.ItemIndex),
			Method:   "POST",
			URL:      openai.BatchEndpointChatCompletions,
			Body:     o.requests.Build(g.StorageKeys(), metadata),
		})
		if err != nil {
			return nil, fmt.Errorf("marshal request %s: %w", CustomID(g.ItemIndex), err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// Submit creates a batch job for groups and returns it without waiting for
// any enrichment. Upload, registration, and creation failures are returned
// as catalog.ErrExternalService.
func (o *Orchestrator) Submit(ctx context.Context, groups []catalog.ItemGroup, metadata map[string]any) (catalog.BatchJob, error) {
	logger := zerolog.Ctx(ctx)
	if len(groups) == 0 {
		return catalog.BatchJob{}, catalog.Validationf("no item groups to submit")
	}

	data, err := o.BuildInput(groups, metadata)
	if err != nil {
		return catalog.BatchJob{}, err
	}

	archiveKey := fmt.Sprintf("batches/%s/input.jsonl", idgen.New())
	if err := s3util.PutBytes(ctx, o.objects, o.bucket, archiveKey, data, s3util.PutOptions{
		ContentType: "application/jsonl",
	}); err != nil {
		return catalog.BatchJob{}, fmt.Errorf("archive batch input: %w: %w", catalog.ErrExternalService, err)
	}

	fileID, err := o.api.UploadBatchFile(ctx, path.Base(path.Dir(archiveKey))+".jsonl", data)
	if err != nil {
		return catalog.BatchJob{}, err
	}

	job, err := o.api.CreateBatch(ctx, fileID, map[string]string{
		"input_key": archiveKey,
		"num_items": strconv.Itoa(len(groups)),
	})
	if err != nil {
		return catalog.BatchJob{}, err
	}

	logger.Info().
		Str("batchId", job.ID).
		Str("inputFileId", fileID).
		Str("inputKey", archiveKey).
		Int("groups", len(groups)).
		Msg("Batch job submitted")

	metrics.Catalog().
		Metric("BatchSubmitted", 1, metrics.UnitCount).
		Metric("BatchGroups", float64(len(groups)), metrics.UnitCount).
		Property("batchId", job.ID).
		Flush()

	// The job already exists on the AI service, so bookkeeping failures
	// below are logged and the submission still succeeds.
	if o.subs != nil {
		err := o.subs.PutSubmission(ctx, catalog.BatchSubmission{
			BatchID:     job.ID,
			InputKey:    archiveKey,
			InputFileID: fileID,
			Groups:      groups,
			Metadata:    metadata,
			CreatedAt:   time.Now().Unix(),
		})
		if err != nil {
			logger.Error().Err(err).Str("batchId", job.ID).Msg("Failed to record batch submission")
		}
	}
	if o.tracker != nil {
		if err := o.tracker.StartPolling(ctx, job.ID); err != nil {
			logger.Error().Err(err).Str("batchId", job.ID).Msg("Failed to start batch polling workflow")
		}
	}
	return job, nil
}

// List returns one page of batch jobs.
func (o *Orchestrator) List(ctx context.Context, after string, limit int) (catalog.BatchPage, error) {
	if limit < 0 || limit > MaxListLimit {
		return catalog.BatchPage{}, catalog.Validationf("limit must be between 1 and %d", MaxListLimit)
	}
	return o.api.ListBatches(ctx, after, limit)
}

// Get returns the current state of a batch job.
func (o *Orchestrator) Get(ctx context.Context, id string) (catalog.BatchJob, error) {
	if id == "" {
		return catalog.BatchJob{}, catalog.Validationf("batch id is required")
	}
	return o.api.RetrieveBatch(ctx, id)
}

// Cancel requests cancellation of a batch job.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (catalog.BatchJob, error) {
	if id == "" {
		return catalog.BatchJob{}, catalog.Validationf("batch id is required")
	}
	job, err := o.api.CancelBatch(ctx, id)
	if err != nil {
		return catalog.BatchJob{}, err
	}
	zerolog.Ctx(ctx).Info().Str("batchId", id).Str("status", job.Status).Msg("Batch cancellation requested")
	return job, nil
}

// Results downloads and parses a job's output, plus its error file when one
// exists. Returns catalog.ErrNotReady until the job has an output file.
func (o *Orchestrator) Results(ctx context.Context, id string) ([]catalog.BatchResult, error) {
	job, err := o.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.OutputFileID == "" {
		return nil, fmt.Errorf("batch %s is %s with no output file: %w", id, job.Status, catalog.ErrNotReady)
	}

	data, err := o.api.FileContent(ctx, job.OutputFileID)
	if err != nil {
		return nil, err
	}
	if job.ErrorFileID != "" {
		errData, err := o.api.FileContent(ctx, job.ErrorFileID)
		if err != nil {
			return nil, err
		}
		data = append(append(data, '\n'), errData...)
	}
	return ParseResults(ctx, data), nil
}

// Submission returns the recorded submission for a batch, or
// catalog.ErrNotFound when none exists. Without a SubmissionStore it always
// returns catalog.ErrNotFound.
func (o *Orchestrator) Submission(ctx context.Context, id string) (*catalog.BatchSubmission, error) {
	if o.subs == nil {
		return nil, fmt.Errorf("batch submissions are not recorded: %w", catalog.ErrNotFound)
	}
	sub, err := o.subs.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("no submission recorded for batch %s: %w", id, catalog.ErrNotFound)
	}
	return sub, nil
}
