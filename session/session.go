// Package session drives streamed conversations with an OpenAI-compatible
// endpoint.
//
// A Session owns one conversation history, one cancellation token and at most
// one open stream. Send stores the user turn and opens a request; Receive
// yields content blocks as they are finalized and returns io.EOF at the end
// of the turn.
//
// With AutoExecute enabled, tool calls requested by the model are run
// against the configured executor, their results are appended to the
// history and the request is re-issued, up to MaxToolIterations rounds.
// Receive then only surfaces text; tool calls and results are reported on
// Events.
//
// Send and Receive must be called from a single goroutine. Interrupt, State,
// Token and History are safe to call from anywhere.
//
// An interrupted or failed exchange never leaves a partial turn behind: the
// assistant turn being streamed is dropped, and a tool round is committed
// together with the assistant turn that requested it, so the history holds
// only turns that were completely finalized.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	ai "github.com/spetersoncode/openagent"
	"github.com/spetersoncode/openagent/cancel"
	"github.com/spetersoncode/openagent/hook"
	"github.com/spetersoncode/openagent/internal/delta"
	"github.com/spetersoncode/openagent/internal/observe"
	"github.com/spetersoncode/openagent/internal/sse"
	"github.com/spetersoncode/openagent/retry"
	"github.com/spetersoncode/openagent/store"
	"github.com/spetersoncode/openagent/tool"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("session: closed")

// State is the position of a session in its exchange cycle.
type State int32

const (
	StateIdle State = iota
	StateStreaming
	StateToolPending
	StateToolExecuting
	StateCancelled
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateToolPending:
		return "tool_pending"
	case StateToolExecuting:
		return "tool_executing"
	case StateCancelled:
		return "cancelled"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

func (s State) busy() bool {
	return s == StateStreaming || s == StateToolPending || s == StateToolExecuting
}

// turn is one open stream.
type turn struct {
	body      io.ReadCloser
	agg       *delta.Aggregator
	span      trace.Span
	start     time.Time
	cancelCtx context.CancelFunc
	stopHook  func()
	release   func()
	closeOnce sync.Once
}

// close may run on the interrupting goroutine while the owner is blocked in Read.
func (t *turn) close() {
	t.closeOnce.Do(func() { _ = t.body.Close() })
}

// round is a batch of tool calls and the assistant turn that requested them.
// They are committed to the history together.
type round struct {
	assistant ai.Message
	uses      []ai.ToolUseBlock
	results   map[string]ai.ToolResultBlock
}

func (r *round) messages() []ai.Message {
	msgs := make([]ai.Message, 0, len(r.uses)+1)
	msgs = append(msgs, r.assistant)
	for _, use := range r.uses {
		msgs = append(msgs, ai.NewToolMessage(r.results[use.ID]))
	}
	return msgs
}

// Session is one conversation with its transport and cancellation token.
type Session struct {
	id        string
	cfg       Config
	transport Transport
	tools     tool.Executor
	hooks     *hook.Pipeline
	retry     retry.Config
	limiter   *semaphore.Weighted
	log       zerolog.Logger
	metrics   *observe.Metrics
	tracer    trace.Tracer
	events    chan Event
	history   *store.Conversation
	storeKey  string

	mu    sync.Mutex
	state State
	token *cancel.Token
	fatal error
	usage ai.Usage

	// Owned by the goroutine calling Send and Receive.
	turn     *turn
	pending  *round
	rounds   int
	exchange trace.Span
}

// New creates a session. Without WithTransport, requests go to cfg.BaseURL
// through an OpenAITransport.
func New(cfg Config, opts ...Option) (*Session, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.validate(o.transport != nil); err != nil {
		return nil, err
	}
	if cfg.MaxToolIterations == 0 {
		cfg.MaxToolIterations = DefaultMaxToolIterations
	}
	if o.transport == nil {
		o.transport = NewOpenAITransport(cfg.BaseURL, cfg.APIKey)
	}

	metrics := observe.DefaultMetrics()
	if o.meterProvider != nil {
		m, err := observe.NewMetrics(o.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("session: metrics: %w", err)
		}
		metrics = m
	}

	id := uuid.NewString()
	s := &Session{
		id:        id,
		cfg:       cfg,
		transport: o.transport,
		tools:     o.tools,
		hooks:     o.hooks,
		retry:     o.retry,
		limiter:   o.limiter,
		log:       o.logger.With().Str("session", id).Str("model", cfg.Model).Logger(),
		metrics:   metrics,
		tracer:    observe.Tracer(o.tracerProvider),
		history:   store.NewConversation(o.adapter),
		storeKey:  o.storeKey,
		state:     StateIdle,
		token:     cancel.New(),
	}
	if o.eventBuffer > 0 {
		s.events = make(chan Event, o.eventBuffer)
	}

	if s.storeKey != "" {
		err := s.history.Reload(context.Background(), s.storeKey)
		if err != nil && !errors.Is(err, store.ErrKeyNotFound) {
			return nil, fmt.Errorf("session: load history: %w", err)
		}
	}
	if s.history.Len() == 0 && cfg.SystemPrompt != "" {
		s.history.Append(ai.NewSystemMessage(cfg.SystemPrompt))
	}
	return s, nil
}

// ID returns the session identifier used in logs and events.
func (s *Session) ID() string { return s.id }

// Send stores prompt as a user turn and opens a request. An empty prompt
// adds no turn and re-requests with the current history, which is how a
// manual-mode caller continues after answering every tool call.
//
// ctx governs the whole exchange, not just the call: the HTTP stream opened
// here stays bound to it, so cancelling ctx after Send returns ends the
// stream and the next Receive fails. Use Interrupt to stop an answer and
// keep a send-scoped timeout out of ctx.
func (s *Session) Send(ctx context.Context, prompt string) error {
	var msg ai.Message
	if prompt != "" {
		msg = ai.NewUserMessage(prompt)
	}
	return s.send(ctx, msg)
}

// SendMessage is like Send for a prepared user turn, e.g. one with images.
func (s *Session) SendMessage(ctx context.Context, msg ai.Message) error {
	if msg.Role == "" {
		msg.Role = ai.RoleUser
	}
	if msg.Role != ai.RoleUser {
		return fmt.Errorf("session: SendMessage needs a user turn, got %q", msg.Role)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	return s.send(ctx, msg)
}

func (s *Session) send(ctx context.Context, msg ai.Message) error {
	if err := s.ready("send"); err != nil {
		return err
	}
	if len(msg.Content) == 0 && s.history.Len() == 0 {
		return errors.New("session: nothing to send")
	}

	s.mu.Lock()
	if s.token.Cancelled() {
		s.token = cancel.New()
	}
	s.mu.Unlock()

	ctx, s.exchange = s.tracer.Start(ctx, observe.SpanExchange,
		trace.WithAttributes(attribute.String("session.id", s.id)))
	s.rounds = 0

	s.setState(StateStreaming)
	if len(msg.Content) > 0 {
		ev := hook.UserPromptSubmitEvent{Prompt: msg.Text(), History: s.history.Messages()}
		hookCtx, cancelHook := s.Token().Context(ctx)
		d := s.hooks.RunUserPromptSubmit(hookCtx, ev)
		cancelHook()
		if s.Token().Cancelled() {
			s.abort()
			return ai.ErrInterrupted
		}
		if d != nil {
			s.logDecision("UserPromptSubmit", "", d)
			switch d.Action {
			case hook.ActionBlock:
				err := &ai.PolicyBlockedError{Event: "UserPromptSubmit", Reason: d.Reason}
				s.endExchange(err)
				return err
			case hook.ActionModifyPrompt:
				msg = withPrompt(msg, d.Prompt)
			}
		}
		s.history.Append(msg)
	}

	if err := s.openTurn(ctx); err != nil {
		if errors.Is(err, ai.ErrInterrupted) {
			s.abort()
		} else {
			s.fail(err)
		}
		return err
	}
	return nil
}

// Receive returns the next content block of the current exchange. It returns
// io.EOF at the end of a turn and when nothing is in flight, and
// ai.ErrInterrupted once for an exchange ended by Interrupt. Cancelling ctx
// aborts the exchange.
func (s *Session) Receive(ctx context.Context) (ai.ContentBlock, error) {
	s.mu.Lock()
	fatal, state, tok := s.fatal, s.state, s.token
	s.mu.Unlock()

	if state.busy() && tok.Cancelled() {
		s.abort()
		return nil, ai.ErrInterrupted
	}
	if s.turn == nil {
		if fatal != nil {
			return nil, fatal
		}
		return nil, io.EOF
	}

	var watched *turn
	stop := func() bool { return false }
	defer func() { stop() }()

	for {
		t := s.turn
		if t != watched {
			stop()
			stop = context.AfterFunc(ctx, t.close)
			watched = t
		}

		block, err := t.agg.Next()
		if tok.Cancelled() {
			s.abort()
			return nil, ai.ErrInterrupted
		}
		if err == nil {
			if use, ok := block.(ai.ToolUseBlock); ok {
				s.emit(Event{Type: EventToolUse, ToolUse: &use})
				if s.cfg.AutoExecute {
					continue
				}
			}
			return block, nil
		}
		if !errors.Is(err, io.EOF) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			s.fail(err)
			return nil, err
		}

		done, err := s.completeTurn(ctx)
		if err != nil {
			if errors.Is(err, ai.ErrInterrupted) || tok.Cancelled() {
				s.abort()
				return nil, ai.ErrInterrupted
			}
			s.fail(err)
			return nil, err
		}
		if done {
			return nil, io.EOF
		}
	}
}

// completeTurn handles the end of a stream. It reports done when the
// exchange is over or waiting on the caller; otherwise a new turn is open.
func (s *Session) completeTurn(ctx context.Context) (bool, error) {
	t := s.turn
	msg := t.agg.Message()
	uses := t.agg.ToolUses()
	s.addUsage(t.agg.Usage())
	s.endTurn("ok")

	if len(uses) == 0 {
		if len(msg.Content) > 0 {
			s.history.Append(msg)
		}
		s.endExchange(nil)
		return true, nil
	}

	r := &round{assistant: msg, uses: uses, results: make(map[string]ai.ToolResultBlock, len(uses))}
	if !s.cfg.AutoExecute {
		s.pending = r
		s.setState(StateToolPending)
		return true, nil
	}
	if s.rounds >= s.cfg.MaxToolIterations {
		return false, &ai.ToolIterationLimitError{Limit: s.cfg.MaxToolIterations}
	}

	s.setState(StateToolExecuting)
	if err := s.runRound(ctx, r); err != nil {
		return false, err
	}
	if s.Token().Cancelled() {
		return false, ai.ErrInterrupted
	}
	s.rounds++
	s.history.Append(r.messages()...)

	s.setState(StateStreaming)
	return false, s.openTurn(ctx)
}

func (s *Session) runRound(ctx context.Context, r *round) error {
	history := append(s.history.Messages(), r.assistant)
	for _, use := range r.uses {
		if s.Token().Cancelled() {
			return ai.ErrInterrupted
		}
		result, err := s.runTool(ctx, use, history)
		if err != nil {
			return err
		}
		r.results[use.ID] = result
	}
	return nil
}

// runTool applies the PreToolUse and PostToolUse hooks around one call. An
// unregistered tool fails before any hook runs. A blocked call is answered
// with the block reason and never executed. Hooks see a context that ends
// on Interrupt.
func (s *Session) runTool(ctx context.Context, use ai.ToolUseBlock, history []ai.Message) (ai.ToolResultBlock, error) {
	if !s.hasTool(use.Name) {
		s.log.Warn().Str("tool", use.Name).Str("tool_use_id", use.ID).Msg("model called unknown tool")
		return ai.ToolResultBlock{}, &ai.UnknownToolError{Name: use.Name, ToolUseID: use.ID}
	}

	ctx, cancelCtx := s.Token().Context(ctx)
	defer cancelCtx()

	input := use.Input
	var result ai.ToolResultBlock
	blocked := false

	pre := hook.PreToolUseEvent{ToolName: use.Name, ToolUseID: use.ID, Input: input, History: history}
	d := s.hooks.RunPreToolUse(ctx, pre)
	if s.Token().Cancelled() {
		return ai.ToolResultBlock{}, ai.ErrInterrupted
	}
	if d != nil {
		s.logDecision("PreToolUse", use.Name, d)
		switch d.Action {
		case hook.ActionBlock:
			reason := d.Reason
			if reason == "" {
				reason = "No reason provided"
			}
			result = tool.BlockedResult(use, reason)
			blocked = true
		case hook.ActionModifyInput:
			input = d.Input
		}
	}

	if !blocked {
		call := use
		call.Input = input
		var err error
		if result, err = s.execute(ctx, call); err != nil {
			return ai.ToolResultBlock{}, err
		}
	}

	post := hook.PostToolUseEvent{ToolName: use.Name, ToolUseID: use.ID, Input: input, Result: result, History: history}
	if d := s.hooks.RunPostToolUse(ctx, post); d != nil {
		s.logDecision("PostToolUse", use.Name, d)
		if d.Action == hook.ActionModifyInput {
			result.Content = d.Input
		}
	}

	s.emit(Event{Type: EventToolResult, ToolUse: &use, ToolResult: &result})
	return result, nil
}

func (s *Session) hasTool(name string) bool {
	if s.tools == nil {
		return false
	}
	_, ok := s.tools.Lookup(name)
	return ok
}

func (s *Session) execute(ctx context.Context, use ai.ToolUseBlock) (ai.ToolResultBlock, error) {
	if s.tools == nil {
		return ai.ToolResultBlock{}, &ai.UnknownToolError{Name: use.Name, ToolUseID: use.ID}
	}

	ctx, cancelCtx := s.Token().Context(ctx)
	defer cancelCtx()
	ctx, span := s.tracer.Start(ctx, observe.SpanTool, trace.WithAttributes(
		attribute.String("tool.name", use.Name),
		attribute.String("tool.id", use.ID),
	))
	defer span.End()

	start := time.Now()
	result, err := tool.Execute(ctx, s.tools, use)
	elapsed := time.Since(start)

	status := "ok"
	switch {
	case err != nil:
		status = "unknown"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case result.IsError:
		status = "error"
	}
	attrs := metric.WithAttributes(attribute.String("tool", use.Name), attribute.String("status", status))
	s.metrics.ToolCalls.Add(context.Background(), 1, attrs)
	s.metrics.ToolDuration.Record(context.Background(), elapsed.Seconds(), attrs)

	s.log.Debug().
		Str("tool", use.Name).
		Str("tool_use_id", use.ID).
		Str("status", status).
		Dur("elapsed", elapsed).
		Msg("tool executed")
	return result, err
}

// Interrupt cancels the exchange in flight: the open stream is closed, a
// running tool sees its context cancelled and nothing unfinished reaches the
// history. It is a no-op when the session is idle and idempotent otherwise.
func (s *Session) Interrupt() {
	s.mu.Lock()
	state, tok := s.state, s.token
	s.mu.Unlock()

	if !state.busy() {
		return
	}
	if tok.Cancel() {
		s.log.Debug().Str("state", state.String()).Msg("interrupt requested")
	}
}

// AddToolResult answers a tool call surfaced in manual mode. Once every call
// of the turn is answered, the assistant turn and its results are committed
// and the session is idle again; Send("") continues the conversation.
func (s *Session) AddToolResult(toolUseID string, content any) error {
	s.mu.Lock()
	fatal, state, tok := s.fatal, s.state, s.token
	s.mu.Unlock()

	if fatal != nil {
		return fatal
	}
	if state.busy() && tok.Cancelled() {
		s.abort()
		state = s.State()
	}
	if s.pending == nil {
		return &ai.InvalidStateError{Op: "add tool result", State: state.String()}
	}

	var use *ai.ToolUseBlock
	for i := range s.pending.uses {
		if s.pending.uses[i].ID == toolUseID {
			use = &s.pending.uses[i]
			break
		}
	}
	if use == nil {
		return fmt.Errorf("session: no pending tool call %q", toolUseID)
	}
	if _, done := s.pending.results[toolUseID]; done {
		return fmt.Errorf("session: tool call %q already answered", toolUseID)
	}

	result := ai.ToolResultBlock{ToolUseID: use.ID, Name: use.Name, Content: content}
	if err, ok := content.(error); ok {
		result = tool.ErrorResult(*use, err)
	}
	s.pending.results[toolUseID] = result
	s.emit(Event{Type: EventToolResult, ToolUse: use, ToolResult: &result})

	if len(s.pending.results) == len(s.pending.uses) {
		s.history.Append(s.pending.messages()...)
		s.pending = nil
		s.endExchange(nil)
	}
	return nil
}

// PendingToolUses returns the manual-mode tool calls still awaiting results.
func (s *Session) PendingToolUses() []ai.ToolUseBlock {
	if s.pending == nil {
		return nil
	}
	var out []ai.ToolUseBlock
	for _, use := range s.pending.uses {
		if _, done := s.pending.results[use.ID]; !done {
			out = append(out, use)
		}
	}
	return out
}

// History returns a copy of the committed turns.
func (s *Session) History() []ai.Message {
	return s.history.Messages()
}

// ClearHistory drops every turn except the system prompt.
func (s *Session) ClearHistory() error {
	if err := s.ready("clear history"); err != nil {
		return err
	}
	s.history.Clear()
	if s.cfg.SystemPrompt != "" {
		s.history.Append(ai.NewSystemMessage(s.cfg.SystemPrompt))
	}
	s.persist()
	return nil
}

// ReplaceHistory swaps the whole history, typically with the output of
// window.Truncate.
func (s *Session) ReplaceHistory(msgs []ai.Message) error {
	if err := s.ready("replace history"); err != nil {
		return err
	}
	s.history.Replace(msgs)
	s.persist()
	return nil
}

// State reports the current state. An interrupt that has not been observed
// by Send or Receive yet reports StateCancelled.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.busy() && s.token.Cancelled() {
		return StateCancelled
	}
	return s.state
}

// Token returns the cancellation token of the current or next exchange.
// Cancelling it is equivalent to Interrupt. A fresh token replaces a
// cancelled one when the next exchange starts.
func (s *Session) Token() *cancel.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Events returns the event channel, or nil without WithEventBuffer. The
// channel is never closed.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Usage returns the token counts reported over the session's lifetime.
func (s *Session) Usage() ai.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// Close interrupts any exchange in flight and makes every later operation
// return ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.fatal == nil {
		s.fatal = ErrClosed
	}
	if !s.state.busy() {
		s.state = StateClosed
	}
	tok := s.token
	s.mu.Unlock()

	tok.Cancel()
	return nil
}

// ready checks that a new operation may start. An exchange that was
// interrupted but not yet observed is cleaned up here.
func (s *Session) ready(op string) error {
	s.mu.Lock()
	fatal, state, tok := s.fatal, s.state, s.token
	s.mu.Unlock()

	if fatal != nil {
		return fatal
	}
	if state.busy() && tok.Cancelled() {
		s.abort()
		return nil
	}
	if state != StateIdle {
		return &ai.InvalidStateError{Op: op, State: state.String()}
	}
	return nil
}

func (s *Session) openTurn(ctx context.Context) error {
	tok := s.Token()
	if s.exchange != nil {
		ctx = trace.ContextWithSpan(ctx, s.exchange)
	}
	ctx, cancelCtx := tok.Context(ctx)
	ctx, span := s.tracer.Start(ctx, observe.SpanRequest,
		trace.WithAttributes(attribute.String("model", s.cfg.Model)))

	req := Request{
		Model:       s.cfg.Model,
		Messages:    s.history.Messages(),
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	}
	if s.tools != nil {
		req.Tools = s.tools.Tools()
	}

	s.log.Debug().Int("messages", len(req.Messages)).Int("tools", len(req.Tools)).Msg("opening request")
	s.emit(Event{Type: EventRequestStart})

	start := time.Now()
	body, err := retry.DoWithEvents(ctx, s.retry, s.observeRetry, func(ctx context.Context) (io.ReadCloser, error) {
		if s.limiter != nil {
			if err := s.limiter.Acquire(ctx, 1); err != nil {
				return nil, err
			}
		}
		body, err := s.transport.Open(ctx, req)
		if err != nil && s.limiter != nil {
			s.limiter.Release(1)
		}
		return body, err
	})
	if err != nil {
		cancelCtx()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		s.metrics.Requests.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("model", s.cfg.Model), attribute.String("status", "error")))
		if tok.Cancelled() {
			return ai.ErrInterrupted
		}
		return err
	}

	t := &turn{
		body:      body,
		span:      span,
		start:     start,
		cancelCtx: cancelCtx,
		release:   func() {},
	}
	if s.limiter != nil {
		t.release = func() { s.limiter.Release(1) }
	}
	t.agg = delta.New(sse.NewReader(body), delta.WithMalformedHandler(s.onMalformed))
	t.stopHook = tok.OnCancel(t.close)
	s.turn = t
	return nil
}

// endTurn releases everything held by the open stream.
func (s *Session) endTurn(status string) {
	t := s.turn
	s.turn = nil

	t.stopHook()
	t.close()
	t.release()
	t.cancelCtx()

	elapsed := time.Since(t.start)
	attrs := metric.WithAttributes(attribute.String("model", s.cfg.Model), attribute.String("status", status))
	s.metrics.Requests.Add(context.Background(), 1, attrs)
	s.metrics.RequestDuration.Record(context.Background(), elapsed.Seconds(), attrs)

	t.span.SetAttributes(
		attribute.String("status", status),
		attribute.String("finish_reason", t.agg.FinishReason()),
	)
	t.span.End()

	s.log.Debug().
		Str("status", status).
		Str("finish_reason", t.agg.FinishReason()).
		Dur("elapsed", elapsed).
		Msg("request finished")
	s.emit(Event{Type: EventRequestEnd})
}

// abort ends an interrupted exchange.
func (s *Session) abort() {
	if s.turn != nil {
		s.turn.agg.Discard()
		s.endTurn("interrupted")
	}
	s.pending = nil
	s.metrics.Interrupts.Add(context.Background(), 1)
	s.log.Info().Msg("exchange interrupted")
	s.emit(Event{Type: EventInterrupted})
	s.endExchange(ai.ErrInterrupted)
}

// fail ends an exchange with err. A fatal transport error poisons the session.
func (s *Session) fail(err error) {
	if s.turn != nil {
		s.turn.agg.Discard()
		s.endTurn("error")
	}
	s.pending = nil

	var te *ai.TransportError
	if errors.As(err, &te) && te.Fatal {
		s.mu.Lock()
		s.fatal = err
		s.mu.Unlock()
	}
	s.log.Error().Err(err).Msg("exchange failed")
	s.emit(Event{Type: EventError, Err: err})
	s.endExchange(err)
}

func (s *Session) endExchange(err error) {
	if s.exchange != nil {
		if err != nil {
			s.exchange.RecordError(err)
			s.exchange.SetStatus(codes.Error, err.Error())
		}
		s.exchange.SetAttributes(attribute.Int("tool.rounds", s.rounds))
		s.exchange.End()
		s.exchange = nil
	}
	s.persist()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatal != nil {
		s.state = StateClosed
	} else {
		s.state = StateIdle
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Session) addUsage(u ai.Usage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage.Add(u)
}

func (s *Session) persist() {
	if s.storeKey == "" {
		return
	}
	if err := s.history.Sync(context.Background(), s.storeKey); err != nil {
		s.log.Warn().Err(err).Str("key", s.storeKey).Msg("failed to persist history")
	}
}

func (s *Session) observeRetry(e retry.Event) {
	switch e.Type {
	case retry.EventAttemptFailed:
		s.log.Warn().
			Err(e.Error).
			Int("attempt", e.Attempt).
			Int("max_attempts", e.MaxAttempts).
			Bool("retryable", e.Retryable).
			Msg("request attempt failed")
	case retry.EventRetrying:
		s.metrics.Retries.Add(context.Background(), 1)
		s.emit(Event{Type: EventRetry, Attempt: e.Attempt + 1})
	}
}

func (s *Session) onMalformed(line string) {
	s.log.Warn().Str("line", line).Msg("skipping malformed stream line")
	s.emit(Event{Type: EventMalformed, Raw: line})
}

func (s *Session) logDecision(event, toolName string, d *hook.Decision) {
	s.log.Info().
		Str("hook", event).
		Str("tool", toolName).
		Str("action", string(d.Action)).
		Str("reason", d.Reason).
		Msg("hook decision")
	s.emit(Event{Type: EventHookDecision, Decision: d})
}

// withPrompt replaces the text of msg with prompt and keeps other blocks.
func withPrompt(msg ai.Message, prompt string) ai.Message {
	content := make([]ai.ContentBlock, 0, len(msg.Content)+1)
	content = append(content, ai.TextBlock{Text: prompt})
	for _, block := range msg.Content {
		if block.Type() != ai.BlockText {
			content = append(content, block)
		}
	}
	msg.Content = content
	return msg
}
