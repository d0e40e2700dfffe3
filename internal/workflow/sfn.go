// Package workflow starts the Step Functions state machine that polls a
// batch job until it finishes.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	sfntypes "github.com/aws/aws-sdk-go-v2/service/sfn/types"
	"github.com/rs/zerolog"
)

// StartExecutionAPI is the Step Functions call used here.
type StartExecutionAPI interface {
	StartExecution(ctx context.Context, params *sfn.StartExecutionInput, optFns ...func(*sfn.Options)) (*sfn.StartExecutionOutput, error)
}

// PollInput is the execution input, and the event the poll Lambda receives.
type PollInput struct {
	BatchID string `json:"batchId"`
}

// Starter launches one polling execution per batch.
type Starter struct {
	client       StartExecutionAPI
	stateMachine string
}

// NewStarter returns a Starter for the given state machine ARN.
func NewStarter(client StartExecutionAPI, stateMachineArn string) *Starter {
	return &Starter{client: client, stateMachine: stateMachineArn}
}

// StartPolling starts an execution named after the batch. Starting twice for
// the same batch is not an error.
func (s *Starter) StartPolling(ctx context.Context, batchID string) error {
	input, err := json.Marshal(PollInput{BatchID: batchID})
	if err != nil {
		return fmt.Errorf("marshal poll input: %w", err)
	}
	out, err := s.client.StartExecution(ctx, &sfn.StartExecutionInput{
		StateMachineArn: aws.String(s.stateMachine),
		Input:           aws.String(string(input)),
		Name:            aws.String(batchID),
	})
	if err != nil {
		var exists *sfntypes.ExecutionAlreadyExists
		if errors.As(err, &exists) {
			zerolog.Ctx(ctx).Debug().Str("batchId", batchID).Msg("Polling execution already running")
			return nil
		}
		return fmt.Errorf("start polling execution for %s: %w", batchID, err)
	}
	zerolog.Ctx(ctx).Info().
		Str("batchId", batchID).
		Str("executionArn", aws.ToString(out.ExecutionArn)).
		Msg("Batch polling workflow started")
	return nil
}
