package main

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/cruxstack/form-mail-relay-go/internal/appcheck"
	"github.com/cruxstack/form-mail-relay-go/internal/callable"
	"github.com/cruxstack/form-mail-relay-go/internal/config"
	"github.com/cruxstack/form-mail-relay-go/internal/encryption"
	"github.com/cruxstack/form-mail-relay-go/internal/metrics"
	"github.com/cruxstack/form-mail-relay-go/internal/relay"
)

var handler *callable.Handler

// Handler adapts a Lambda function URL (or API Gateway HTTP API v2) event to
// a callable request.
func Handler(ctx context.Context, event events.LambdaFunctionURLRequest) (events.LambdaFunctionURLResponse, error) {
	body := []byte(event.Body)
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(event.Body)
		if err != nil {
			slog.WarnContext(ctx, "invalid base64 request body", "error", err)
			return respond(callable.Response{
				StatusCode: http.StatusBadRequest,
				Body:       []byte(`{"error":{"status":"INVALID_ARGUMENT","message":"Bad Request"}}`),
			}), nil
		}
		body = decoded
	}

	headers := http.Header{}
	for k, v := range event.Headers {
		headers.Set(k, v)
	}

	resp := handler.Invoke(ctx, callable.Request{
		Method:  event.RequestContext.HTTP.Method,
		Headers: headers,
		Body:    body,
	})
	return respond(resp), nil
}

func respond(resp callable.Response) events.LambdaFunctionURLResponse {
	return events.LambdaFunctionURLResponse{
		StatusCode: resp.StatusCode,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
		Body:       string(resp.Body),
	}
}

func main() {
	ctx := context.Background()

	cfg, err := config.New(ctx, encryption.NewDecrypter)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(cfg.NewLogger(os.Stderr))

	r, err := relay.New(ctx, cfg, metrics.New(nil))
	if err != nil {
		slog.Error("failed to init relay", "error", err)
		os.Exit(1)
	}

	verifier, err := appcheck.NewVerifier(ctx, cfg)
	if err != nil {
		slog.Error("failed to init app check", "error", err)
		os.Exit(1)
	}

	handler = callable.NewHandler(r, verifier)

	lambda.Start(Handler)
}
