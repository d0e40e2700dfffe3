// Command catalog-lambda serves the catalog HTTP API behind API Gateway
// (HTTP API, payload v2).
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"

	"github.com/fpang/auction-catalog/internal/api"
	"github.com/fpang/auction-catalog/internal/lambdaboot"
	"github.com/fpang/auction-catalog/internal/logging"
)

// Built at cold start.
var handler http.Handler

func init() {
	initStart := time.Now()
	logging.Init()

	settings := lambdaboot.MustLoadSettings()
	clients := lambdaboot.InitAWS(context.Background())
	p := lambdaboot.NewPipeline(settings, clients)

	handler = api.NewHandler(api.Deps{
		Staging:      p.Staging,
		Creator:      p.Writer,
		Batches:      p.Batches,
		Exporter:     p.Exporter,
		Version:      commitHash,
		OriginSecret: settings.OriginSecret,
	})

	lambdaboot.StartupLog("catalog-lambda", settings, initStart).
		CommitHash(commitHash).
		BuildTime(buildTime).
		Log()
}

func main() {
	adapter := httpadapter.NewV2(handler)
	lambda.Start(adapter.ProxyWithContext)
}
