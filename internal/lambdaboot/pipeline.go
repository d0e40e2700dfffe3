package lambdaboot

import (
	"github.com/fpang/auction-catalog/internal/ai"
	"github.com/fpang/auction-catalog/internal/batch"
	"github.com/fpang/auction-catalog/internal/creation"
	"github.com/fpang/auction-catalog/internal/credentials"
	"github.com/fpang/auction-catalog/internal/enrich"
	"github.com/fpang/auction-catalog/internal/events"
	"github.com/fpang/auction-catalog/internal/export"
	"github.com/fpang/auction-catalog/internal/s3util"
	"github.com/fpang/auction-catalog/internal/staging"
	"github.com/fpang/auction-catalog/internal/store"
	"github.com/fpang/auction-catalog/internal/workflow"
)

// Clients are the AWS clients the pipeline is built from. Tests substitute
// fakes for any of them.
type Clients struct {
	Dynamo    store.DynamoAPI
	S3        s3util.Putter
	Presigner s3util.Presigner
	SSM       credentials.ParameterGetter
	Events    events.PutEventsAPI
	SFN       workflow.StartExecutionAPI
}

// Pipeline is the fully wired catalog service. Events is nil when no event
// bus is configured.
type Pipeline struct {
	Settings    Settings
	Credentials *credentials.Cache
	AI          *ai.Client
	Store       *store.DynamoStore
	Enricher    *enrich.Enricher
	Batches     *batch.Orchestrator
	Staging     *staging.Service
	Writer      *creation.Writer
	Exporter    *export.Exporter
	Events      *events.Emitter
}

// NewPipeline composes every component from settings and clients. It makes
// no network calls; the credential is fetched on first AI use.
func NewPipeline(s Settings, c Clients) *Pipeline {
	var src credentials.Source = credentials.NewSSMSource(c.SSM, s.KeyParam)
	if s.OpenAIKey != "" {
		src = credentials.Static(s.OpenAIKey)
	}
	creds := credentials.NewCache(src)

	client := ai.New(creds, ai.Config{
		BaseURL:           s.BaseURL,
		Model:             s.Model,
		MaxTokens:         s.MaxTokens,
		RequestsPerSecond: s.RequestRate,
		Burst:             s.Burst,
	})
	requests := enrich.RequestBuilder{
		Model:        client.Model(),
		MaxTokens:    client.MaxTokens(),
		ImageBaseURL: s.PublicBase,
	}

	db := store.NewDynamoStore(c.Dynamo, store.Tables{
		Items:   s.ItemsTable,
		Images:  s.ImagesTable,
		Counter: s.CounterTable,
		Batches: s.BatchesTable,
	})

	p := &Pipeline{Settings: s, Credentials: creds, AI: client, Store: db}
	p.Enricher = enrich.New(client, enrich.Config{
		Request:     requests,
		Timeout:     s.EnrichTimeout,
		Concurrency: s.EnrichConcurrency,
	})

	var batchOpts []batch.Option
	if s.BatchesTable != "" {
		batchOpts = append(batchOpts, batch.WithSubmissions(db))
	}
	if s.PollStateMachine != "" && c.SFN != nil {
		batchOpts = append(batchOpts, batch.WithTracker(workflow.NewStarter(c.SFN, s.PollStateMachine)))
	}
	p.Batches = batch.New(client, c.S3, s.Bucket, p.Enricher.Requests(), batchOpts...)
	p.Staging = staging.New(p.Enricher, p.Batches, s.Grouping, s.Merge)

	var writerOpts []creation.Option
	if s.EventBus != "" && c.Events != nil {
		p.Events = events.NewEmitter(c.Events, s.EventBus)
		writerOpts = append(writerOpts, creation.WithNotifier(p.Events))
	}
	p.Writer = creation.New(db, db, writerOpts...)
	p.Exporter = export.New(db, c.S3, c.Presigner, s.Bucket, s.PublicBase)
	return p
}
