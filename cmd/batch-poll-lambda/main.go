// Command batch-poll-lambda is the Step Functions task that checks one
// batch job. The state machine waits and re-invokes it until done is true.
package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/fpang/auction-catalog/internal/catalog"
	"github.com/fpang/auction-catalog/internal/lambdaboot"
	"github.com/fpang/auction-catalog/internal/logging"
	"github.com/fpang/auction-catalog/internal/workflow"
)

var (
	batches workflow.BatchGetter
	notify  workflow.FinishNotifier
)

func init() {
	initStart := time.Now()
	logging.Init()

	settings := lambdaboot.MustLoadSettings()
	clients := lambdaboot.InitAWS(context.Background())
	p := lambdaboot.NewPipeline(settings, clients)

	batches = p.Batches
	if p.Events != nil {
		notify = p.Events
	}

	lambdaboot.StartupLog("batch-poll-lambda", settings, initStart).
		CommitHash(commitHash).
		BuildTime(buildTime).
		Log()
}

func handler(ctx context.Context, in workflow.PollInput) (workflow.PollOutput, error) {
	if in.BatchID == "" {
		return workflow.PollOutput{}, catalog.Validationf("batchId is required")
	}
	ctx = logging.WithBatch(log.Logger.WithContext(ctx), in.BatchID)
	return workflow.Poll(ctx, batches, notify, in)
}

func main() {
	lambda.Start(handler)
}
