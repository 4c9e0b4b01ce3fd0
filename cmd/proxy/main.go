package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
)

type httpError struct {
	status  int
	message string
}

func (e *httpError) Error() string { return e.message }

type proxy struct {
	environment string
	allowOrigin string
	logger      *slog.Logger
}

func newProxy() *proxy {
	allowOrigin := os.Getenv("CORS_ALLOW_ORIGIN")
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return &proxy{
		environment: os.Getenv("ENVIRONMENT"),
		allowOrigin: allowOrigin,
		logger:      slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}
}

// handle never returns an error to the runtime. Failures become JSON error
// bodies carrying CORS headers so callers see the real status instead of an
// integration failure.
func (p *proxy) handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger := p.logger.With(
		slog.String("requestId", req.RequestContext.RequestID),
		slog.String("method", req.HTTPMethod),
		slog.String("path", req.Path),
	)
	logger.Info("request received", slog.String("caller", req.RequestContext.Identity.Caller))

	body, err := p.process(req)
	if err != nil {
		status := http.StatusInternalServerError
		var he *httpError
		if errors.As(err, &he) {
			status = he.status
		}
		logger.Error("request failed", slog.Int("status", status), slog.Any("error", err))
		return p.respond(status, map[string]string{"message": http.StatusText(status), "error": err.Error()}), nil
	}
	return p.respond(http.StatusOK, body), nil
}

func (p *proxy) process(req events.APIGatewayProxyRequest) (map[string]any, error) {
	var payload any
	if req.Body != "" {
		if err := json.Unmarshal([]byte(req.Body), &payload); err != nil {
			return nil, &httpError{status: http.StatusBadRequest, message: "body is not valid JSON"}
		}
	}
	return map[string]any{
		"environment": p.environment,
		"method":      req.HTTPMethod,
		"path":        req.Path,
		"query":       req.QueryStringParameters,
		"payload":     payload,
	}, nil
}

func (p *proxy) respond(status int, body any) events.APIGatewayProxyResponse {
	headers := map[string]string{
		"Content-Type":                "application/json",
		"Access-Control-Allow-Origin": p.allowOrigin,
	}
	b, err := json.Marshal(body)
	if err != nil {
		p.logger.Error("encoding response", slog.Any("error", err))
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Headers:    headers,
			Body:       `{"message":"Internal Server Error"}`,
		}
	}
	return events.APIGatewayProxyResponse{StatusCode: status, Headers: headers, Body: string(b)}
}

func main() {
	lambda.Start(newProxy().handle)
}
