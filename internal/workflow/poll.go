package workflow

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/fpang/auction-catalog/internal/catalog"
)

// BatchGetter reads a batch job's state. *batch.Orchestrator satisfies it.
type BatchGetter interface {
	Get(ctx context.Context, id string) (catalog.BatchJob, error)
}

// FinishNotifier is told once a batch reaches a terminal status.
// *events.Emitter satisfies it.
type FinishNotifier interface {
	BatchFinished(ctx context.Context, job catalog.BatchJob)
}

// PollOutput is returned to the state machine, which loops on Done.
type PollOutput struct {
	BatchID      string `json:"batchId"`
	Status       string `json:"status"`
	Done         bool   `json:"done"`
	OutputFileID string `json:"outputFileId,omitempty"`
}

// Poll checks one batch job once. When the job is terminal the notifier (if
// any) is told before returning.
func Poll(ctx context.Context, batches BatchGetter, notify FinishNotifier, in PollInput) (PollOutput, error) {
	job, err := batches.Get(ctx, in.BatchID)
	if err != nil {
		return PollOutput{}, err
	}
	out := PollOutput{
		BatchID:      job.ID,
		Status:       job.Status,
		Done:         catalog.IsTerminalBatchStatus(job.Status),
		OutputFileID: job.OutputFileID,
	}
	zerolog.Ctx(ctx).Info().
		Str("batchId", job.ID).
		Str("status", job.Status).
		Int("completed", job.RequestCounts.Completed).
		Int("total", job.RequestCounts.Total).
		Bool("done", out.Done).
		Msg("Batch polled")
	if out.Done && notify != nil {
		notify.BatchFinished(ctx, job)
	}
	return out, nil
}
