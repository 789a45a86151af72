package session

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/spetersoncode/openagent/hook"
	"github.com/spetersoncode/openagent/retry"
	"github.com/spetersoncode/openagent/store"
	"github.com/spetersoncode/openagent/tool"
)

// DefaultMaxToolIterations bounds the automatic tool loop when Config leaves it unset.
const DefaultMaxToolIterations = 5

// Config holds the settings a session is constructed with.
type Config struct {
	Model   string
	BaseURL string
	APIKey  string
	// SystemPrompt, when set, becomes the first turn of the history.
	SystemPrompt string
	Temperature  *float64
	MaxTokens    int
	// AutoExecute runs requested tools and re-requests without caller
	// involvement. Otherwise tool calls are surfaced and answered with
	// AddToolResult.
	AutoExecute       bool
	MaxToolIterations int
}

func (c Config) validate(hasTransport bool) error {
	if c.Model == "" {
		return errors.New("session: model is required")
	}
	if c.MaxToolIterations < 0 {
		return fmt.Errorf("session: max tool iterations must be positive, got %d", c.MaxToolIterations)
	}
	if hasTransport {
		return nil
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("session: base URL must be an http(s) URL, got %q", c.BaseURL)
	}
	return nil
}

// Option configures a Session.
type Option func(*options)

type options struct {
	transport      Transport
	tools          tool.Executor
	hooks          *hook.Pipeline
	retry          retry.Config
	limiter        *semaphore.Weighted
	logger         zerolog.Logger
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	eventBuffer    int
	adapter        store.Adapter
	storeKey       string
}

func defaultOptions() options {
	return options{
		retry:  retry.DefaultConfig(),
		logger: zerolog.Nop(),
	}
}

// WithTransport replaces the default OpenAI transport.
func WithTransport(t Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithTools sets the tools offered to the model.
func WithTools(exec tool.Executor) Option {
	return func(o *options) { o.tools = exec }
}

// WithHooks sets the hook pipeline.
func WithHooks(p *hook.Pipeline) Option {
	return func(o *options) { o.hooks = p }
}

// WithRetry sets the retry policy for opening requests. Streams that fail
// after the first event are never retried.
func WithRetry(cfg retry.Config) Option {
	return func(o *options) { o.retry = cfg }
}

// WithLimiter bounds concurrent in-flight requests across every session
// sharing sem. One unit is held from opening a request until its stream ends.
func WithLimiter(sem *semaphore.Weighted) Option {
	return func(o *options) { o.limiter = sem }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMeterProvider records metrics on mp instead of the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// WithTracerProvider records spans on tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithEventBuffer enables Events with a channel of size n. Events are
// dropped when the buffer is full.
func WithEventBuffer(n int) Option {
	return func(o *options) { o.eventBuffer = n }
}

// WithPersistence loads the history stored under key at construction and
// saves it through adapter after every exchange.
func WithPersistence(adapter store.Adapter, key string) Option {
	return func(o *options) {
		o.adapter = adapter
		o.storeKey = key
	}
}
