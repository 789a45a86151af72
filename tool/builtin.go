package tool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// NumberPair is the input of the arithmetic tools.
type NumberPair struct {
	A float64 `json:"a" jsonschema:"first operand"`
	B float64 `json:"b" jsonschema:"second operand"`
}

// Add returns the "add" tool.
func Add() Registration {
	return Func("add", "Add two numbers and return the sum", func(_ context.Context, args NumberPair) (any, error) {
		return args.A + args.B, nil
	})
}

// Multiply returns the "multiply" tool.
func Multiply() Registration {
	return Func("multiply", "Multiply two numbers and return the product", func(_ context.Context, args NumberPair) (any, error) {
		return args.A * args.B, nil
	})
}

type timeArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"IANA timezone name, defaults to UTC"`
}

// CurrentTime returns the "current_time" tool. now is injectable for tests;
// nil uses time.Now.
func CurrentTime(now func() time.Time) Registration {
	if now == nil {
		now = time.Now
	}
	return Func("current_time", "Get the current date and time", func(_ context.Context, args timeArgs) (any, error) {
		loc := time.UTC
		if args.Timezone != "" {
			l, err := time.LoadLocation(args.Timezone)
			if err != nil {
				return nil, fmt.Errorf("unknown timezone %q", args.Timezone)
			}
			loc = l
		}
		t := now().In(loc)
		return map[string]any{
			"time":     t.Format(time.RFC3339),
			"timezone": loc.String(),
			"unix":     t.Unix(),
		}, nil
	})
}

// HTTPOption configures the http_request tool.
type HTTPOption func(*httpConfig)

type httpConfig struct {
	client          *http.Client
	allowedHosts    []string
	blockedHosts    []string
	maxResponseSize int64
	timeout         time.Duration
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(cfg *httpConfig) { cfg.client = c }
}

// WithAllowedHosts restricts requests to the given hosts and their subdomains.
func WithAllowedHosts(hosts ...string) HTTPOption {
	return func(cfg *httpConfig) { cfg.allowedHosts = hosts }
}

// WithBlockedHosts rejects requests to the given hosts and their subdomains.
func WithBlockedHosts(hosts ...string) HTTPOption {
	return func(cfg *httpConfig) { cfg.blockedHosts = hosts }
}

// WithMaxResponseSize caps the response body returned to the model.
// Default is 1MB.
func WithMaxResponseSize(n int64) HTTPOption {
	return func(cfg *httpConfig) { cfg.maxResponseSize = n }
}

// WithHTTPTimeout sets the request timeout. Default is 30 seconds.
func WithHTTPTimeout(d time.Duration) HTTPOption {
	return func(cfg *httpConfig) { cfg.timeout = d }
}

func (c *httpConfig) checkHost(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host := u.Hostname()
	for _, blocked := range c.blockedHosts {
		if matchHost(host, blocked) {
			return fmt.Errorf("host %q is blocked", host)
		}
	}
	if len(c.allowedHosts) == 0 {
		return nil
	}
	for _, allowed := range c.allowedHosts {
		if matchHost(host, allowed) {
			return nil
		}
	}
	return fmt.Errorf("host %q is not in allowed list", host)
}

func matchHost(host, pattern string) bool {
	return host == pattern || strings.HasSuffix(host, "."+pattern)
}

type httpArgs struct {
	URL     string            `json:"url" jsonschema:"URL to request"`
	Method  string            `json:"method,omitempty" jsonschema:"HTTP method, one of GET POST PUT DELETE PATCH"`
	Headers map[string]string `json:"headers,omitempty" jsonschema:"request headers"`
	Body    string            `json:"body,omitempty" jsonschema:"request body for POST PUT and PATCH"`
}

type httpResult struct {
	Status     string            `json:"status"`
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	Truncated  bool              `json:"truncated,omitempty"`
}

// HTTPRequest returns the "http_request" tool.
func HTTPRequest(opts ...HTTPOption) Registration {
	cfg := &httpConfig{
		maxResponseSize: 1 << 20,
		timeout:         30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.client == nil {
		cfg.client = &http.Client{Timeout: cfg.timeout}
	}

	return Func("http_request", "Make an HTTP request to a URL", func(ctx context.Context, args httpArgs) (any, error) {
		if err := cfg.checkHost(args.URL); err != nil {
			return nil, err
		}
		method := strings.ToUpper(args.Method)
		if method == "" {
			method = http.MethodGet
		}
		switch method {
		case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		default:
			return nil, fmt.Errorf("unsupported method %q", args.Method)
		}

		var body io.Reader
		if args.Body != "" {
			body = bytes.NewBufferString(args.Body)
		}
		req, err := http.NewRequestWithContext(ctx, method, args.URL, body)
		if err != nil {
			return nil, err
		}
		for k, v := range args.Headers {
			req.Header.Set(k, v)
		}

		resp, err := cfg.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		// Read one extra byte to detect truncation.
		raw, err := io.ReadAll(io.LimitReader(resp.Body, cfg.maxResponseSize+1))
		if err != nil {
			return nil, err
		}
		result := httpResult{
			Status:     resp.Status,
			StatusCode: resp.StatusCode,
			Headers:    make(map[string]string),
		}
		if int64(len(raw)) > cfg.maxResponseSize {
			raw = raw[:cfg.maxResponseSize]
			result.Truncated = true
		}
		result.Body = string(raw)
		for _, h := range []string{"Content-Type", "Content-Length", "Date", "Server"} {
			if v := resp.Header.Get(h); v != "" {
				result.Headers[h] = v
			}
		}
		return result, nil
	})
}

// Builtins returns the demo tools registered by the CLI.
func Builtins() []Registration {
	return []Registration{Add(), Multiply(), CurrentTime(nil)}
}
