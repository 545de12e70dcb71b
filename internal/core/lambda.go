package core

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
)

// LambdaHandler drives an http.Handler from API Gateway HTTP API (payload
// format 2.0) events through httpadapter.
type LambdaHandler struct {
	adapter *httpadapter.HandlerAdapterV2
}

// NewLambdaHandler wraps h for lambda.Start.
func NewLambdaHandler(h http.Handler) *LambdaHandler {
	return &LambdaHandler{adapter: httpadapter.NewV2(h)}
}

// Handle serves one event. The gateway request id becomes X-Request-Id when
// the caller sent none. A body flagged as base64 that does not decode is
// answered with 400 here instead of failing the invocation.
func (l *LambdaHandler) Handle(ctx context.Context, ev events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	if ev.IsBase64Encoded {
		if _, err := base64.StdEncoding.DecodeString(ev.Body); err != nil {
			return events.APIGatewayV2HTTPResponse{
				StatusCode: http.StatusBadRequest,
				Headers:    map[string]string{"Content-Type": "application/json"},
				Body:       `{"error":{"code":"validation_invalid_json","message":"undecodable request body","request_id":""}}`,
			}, nil
		}
	}

	if rid := ev.RequestContext.RequestID; rid != "" && !hasHeader(ev.Headers, "X-Request-Id") {
		headers := make(map[string]string, len(ev.Headers)+1)
		for k, v := range ev.Headers {
			headers[k] = v
		}
		headers["x-request-id"] = rid
		ev.Headers = headers
	}
	return l.adapter.ProxyWithContext(ctx, ev)
}

func hasHeader(headers map[string]string, name string) bool {
	canonical := http.CanonicalHeaderKey(name)
	for k := range headers {
		if http.CanonicalHeaderKey(k) == canonical {
			return true
		}
	}
	return false
}
