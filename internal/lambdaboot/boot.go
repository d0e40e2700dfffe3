// Package lambdaboot holds the cold-start bootstrap shared by every binary:
// AWS config and clients, settings from the environment, and composition of
// the catalog pipeline.
package lambdaboot

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/auction-catalog/internal/logging"
)

// InitAWS loads the default AWS config and builds every client the
// pipeline may use. Fatals if the config cannot be loaded.
func InitAWS(ctx context.Context) Clients {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return NewClients(cfg)
}

// NewClients builds the AWS clients from cfg.
func NewClients(cfg aws.Config) Clients {
	s3Client := s3.NewFromConfig(cfg)
	return Clients{
		Dynamo:    dynamodb.NewFromConfig(cfg),
		S3:        s3Client,
		Presigner: s3.NewPresignClient(s3Client),
		SSM:       ssm.NewFromConfig(cfg),
		Events:    eventbridge.NewFromConfig(cfg),
		SFN:       sfn.NewFromConfig(cfg),
	}
}

// MustLoadSettings reads settings from the process environment. Fatals on
// any missing or malformed value.
func MustLoadSettings() Settings {
	s, err := LoadSettings(os.Getenv)
	if err != nil {
		log.Fatal().Err(err).Msg("Configuration error")
	}
	return s
}

// StartupLog returns a startup logger pre-filled from settings.
func StartupLog(name string, s Settings, initStart time.Time) *logging.StartupLogger {
	sl := logging.NewStartupLogger(name).
		S3Bucket("objects", s.Bucket).
		DynamoTable("items", s.ItemsTable).
		DynamoTable("images", s.ImagesTable).
		DynamoTable("counter", s.CounterTable).
		DynamoTable("batches", s.BatchesTable).
		StateMachine("batchPoll", s.PollStateMachine).
		EventBus("notifications", s.EventBus).
		Feature("batchRecords", s.BatchesTable != "").
		Feature("notifications", s.EventBus != "").
		Feature("batchPolling", s.PollStateMachine != "").
		Feature("keyFromEnv", s.OpenAIKey != "").
		Feature("originVerify", s.OriginSecret != "").
		Config("model", s.Model).
		Config("baseUrl", s.BaseURL).
		Config("grouping", string(s.Grouping)).
		Config("merge", string(s.Merge)).
		Config("enrichConcurrency", strconv.Itoa(s.EnrichConcurrency)).
		Config("enrichTimeout", s.EnrichTimeout.String()).
		InitDuration(time.Since(initStart))
	if s.OpenAIKey == "" {
		sl.SSMParam("openaiKey", s.KeyParam)
	}
	return sl
}
