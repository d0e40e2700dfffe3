package logging

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RequestIDHeader is honoured when no Lambda request ID is available.
const RequestIDHeader = "X-Request-Id"

// RequestID picks the Lambda request ID, then the X-Request-Id header, then
// a fresh UUID.
func RequestID(r *http.Request) string {
	if lc, ok := lambdacontext.FromContext(r.Context()); ok && lc.AwsRequestID != "" {
		return lc.AwsRequestID
	}
	if id := r.Header.Get(RequestIDHeader); id != "" {
		return id
	}
	return uuid.NewString()
}

// WithRequest returns a context carrying a logger tagged with the request's
// ID, method, and path, plus the ID itself.
func WithRequest(r *http.Request) (context.Context, string) {
	id := RequestID(r)
	logger := log.Logger.With().
		Str("requestId", id).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Logger()
	return logger.WithContext(r.Context()), id
}

// WithBatch returns ctx with a logger tagged with a batch job ID. Used by
// the poll Lambda, which has no HTTP request.
func WithBatch(ctx context.Context, batchID string) context.Context {
	l := zerolog.Ctx(ctx).With().Str("batchId", batchID)
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		l = l.Str("requestId", lc.AwsRequestID)
	}
	return l.Logger().WithContext(ctx)
}
