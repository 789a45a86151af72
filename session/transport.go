package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	ai "github.com/spetersoncode/openagent"
	"github.com/spetersoncode/openagent/tool"
)

// Request is one chat completion request built from the session history.
type Request struct {
	Model       string
	Messages    []ai.Message
	Tools       []tool.Tool
	MaxTokens   int
	Temperature *float64
}

// Transport opens a streamed chat completion. The returned body yields
// server-sent events and is closed by the session, possibly from another
// goroutine to abort a blocked read.
type Transport interface {
	Open(ctx context.Context, req Request) (io.ReadCloser, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req Request) (io.ReadCloser, error)

func (f TransportFunc) Open(ctx context.Context, req Request) (io.ReadCloser, error) {
	return f(ctx, req)
}

// OpenAITransport talks to any OpenAI-compatible /chat/completions endpoint.
// SDK-level retries are disabled; the session owns the retry policy.
type OpenAITransport struct {
	client openai.Client
}

// NewOpenAITransport creates a transport for baseURL. Extra options are
// passed to the underlying client, e.g. option.WithHTTPClient.
func NewOpenAITransport(baseURL, apiKey string, opts ...option.RequestOption) *OpenAITransport {
	base := []option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	return &OpenAITransport{client: openai.NewClient(append(base, opts...)...)}
}

// Open posts the request with stream enabled and returns the raw event body.
func (t *OpenAITransport) Open(ctx context.Context, req Request) (io.ReadCloser, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}

	var resp *http.Response
	err = t.client.Post(ctx, "chat/completions", params, &resp,
		option.WithJSONSet("stream", true),
		option.WithHeader("Accept", "text/event-stream"),
	)
	if err != nil {
		return nil, wrapError(ctx, err)
	}
	return resp.Body, nil
}

// wrapError maps SDK failures onto TransportError. Context errors pass
// through unchanged so they are never retried.
func wrapError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return &ai.TransportError{Op: "open", Err: err}
	}
	code := apiErr.StatusCode
	return &ai.TransportError{
		Op:    "open",
		Code:  code,
		Delay: parseRetryAfter(apiErr.Response),
		Fatal: code == http.StatusUnauthorized || code == http.StatusForbidden,
		Err:   err,
	}
}

// parseRetryAfter extracts the Retry-After duration from an HTTP response.
// Returns 0 if the header is absent or unparseable.
func parseRetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if delay := time.Until(t); delay > 0 {
			return delay
		}
	}
	return 0
}
