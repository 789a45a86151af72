package mux

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ai "github.com/spetersoncode/openagent"
	"github.com/spetersoncode/openagent/retry"
	"github.com/spetersoncode/openagent/session"
)

func sseText(text string) string {
	payload, _ := json.Marshal(map[string]any{
		"id":      "c",
		"object":  "chat.completion.chunk",
		"created": 1,
		"model":   "m",
		"choices": []any{map[string]any{"index": 0, "delta": map[string]any{"content": text}, "finish_reason": "stop"}},
	})
	return "data: " + string(payload) + "\n\ndata: [DONE]\n\n"
}

// trackedBody reports its lifetime to a gauge.
type trackedBody struct {
	io.Reader
	once     sync.Once
	inflight *atomic.Int32
}

func (b *trackedBody) Close() error {
	b.once.Do(func() { b.inflight.Add(-1) })
	return nil
}

type gauge struct {
	inflight atomic.Int32
	peak     atomic.Int32
}

func (g *gauge) transport(reply func(req session.Request) (string, error)) session.Transport {
	return session.TransportFunc(func(ctx context.Context, req session.Request) (io.ReadCloser, error) {
		text, err := reply(req)
		if err != nil {
			return nil, err
		}
		n := g.inflight.Add(1)
		for {
			p := g.peak.Load()
			if n <= p || g.peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return &trackedBody{Reader: strings.NewReader(sseText(text)), inflight: &g.inflight}, nil
	})
}

func echo(req session.Request) (string, error) {
	return "echo: " + req.Messages[len(req.Messages)-1].Text(), nil
}

func newSession(t *testing.T, m *Multiplexer, transport session.Transport) *session.Session {
	t.Helper()
	s, err := session.New(session.Config{Model: "m"},
		session.WithTransport(transport),
		session.WithRetry(retry.Disabled()),
		m.SessionOption(),
	)
	require.NoError(t, err)
	return s
}

func TestRunAll_ResultsInJobOrder(t *testing.T) {
	var g gauge
	m := New(WithConcurrency(2))

	prompts := []string{"a", "b", "c", "d", "e", "f"}
	jobs := make([]Job, len(prompts))
	for i, p := range prompts {
		jobs[i] = Job{Session: newSession(t, m, g.transport(echo)), Prompt: p}
	}

	results, err := m.RunAll(context.Background(), jobs)
	require.NoError(t, err)
	require.Len(t, results, len(prompts))
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, "echo: "+prompts[i], r.Text)
		assert.NoError(t, r.Err)
		assert.Len(t, r.Job.Session.History(), 2)
	}
	assert.Equal(t, "job-0", results[0].Job.Name)
	assert.LessOrEqual(t, g.peak.Load(), int32(2))
	assert.Equal(t, int32(0), g.inflight.Load())
}

func TestRun_CompletionOrder(t *testing.T) {
	m := New(WithConcurrency(4))
	release := make(chan struct{})

	slow := session.TransportFunc(func(ctx context.Context, req session.Request) (io.ReadCloser, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return io.NopCloser(strings.NewReader(sseText("slow"))), nil
	})
	fast := session.TransportFunc(func(ctx context.Context, req session.Request) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(sseText("fast"))), nil
	})

	jobs := []Job{
		{Name: "slow", Session: newSession(t, m, slow), Prompt: "x"},
		{Name: "fast", Session: newSession(t, m, fast), Prompt: "y"},
	}
	ch, err := m.Run(context.Background(), jobs)
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, "fast", first.Job.Name)
	close(release)
	second := <-ch
	assert.Equal(t, "slow", second.Job.Name)

	_, open := <-ch
	assert.False(t, open)
}

func TestRun_ErrorsAreIsolated(t *testing.T) {
	var g gauge
	m := New()
	boom := errors.New("boom")
	failing := g.transport(func(session.Request) (string, error) {
		return "", &ai.TransportError{Op: "open", Code: 400, Err: boom}
	})

	jobs := []Job{
		{Name: "bad", Session: newSession(t, m, failing), Prompt: "x"},
		{Name: "good", Session: newSession(t, m, g.transport(echo)), Prompt: "y"},
	}
	results, err := m.RunAll(context.Background(), jobs)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "bad")

	assert.ErrorIs(t, results[0].Err, boom)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, "echo: y", results[1].Text)
	assert.Equal(t, session.StateIdle, results[0].Job.Session.State())
}

func TestRun_FailFastCancelsOthers(t *testing.T) {
	m := New(WithFailFast(true))
	boom := errors.New("boom")

	failing := session.TransportFunc(func(context.Context, session.Request) (io.ReadCloser, error) {
		return nil, &ai.TransportError{Op: "open", Code: 400, Err: boom}
	})
	hanging := session.TransportFunc(func(ctx context.Context, req session.Request) (io.ReadCloser, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	jobs := []Job{
		{Name: "bad", Session: newSession(t, m, failing), Prompt: "x"},
		{Name: "stuck", Session: newSession(t, m, hanging), Prompt: "y"},
	}
	results, err := m.RunAll(context.Background(), jobs)
	require.Error(t, err)
	assert.ErrorIs(t, results[0].Err, boom)
	assert.ErrorIs(t, results[1].Err, context.Canceled)
}

func TestRun_Validation(t *testing.T) {
	m := New()
	s := newSession(t, m, session.TransportFunc(func(context.Context, session.Request) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(sseText("x"))), nil
	}))

	_, err := m.Run(context.Background(), []Job{{Session: s}, {Session: s}})
	assert.ErrorIs(t, err, ErrDuplicateSession)

	_, err = m.Run(context.Background(), []Job{{Prompt: "x"}})
	assert.Error(t, err)
}

func TestInterrupt(t *testing.T) {
	m := New()
	started := make(chan struct{})
	pr, pw := io.Pipe()
	defer pw.Close()
	blocking := session.TransportFunc(func(context.Context, session.Request) (io.ReadCloser, error) {
		close(started)
		return pr, nil
	})
	jobs := []Job{{Session: newSession(t, m, blocking), Prompt: "wait"}}

	ch, err := m.Run(context.Background(), jobs)
	require.NoError(t, err)
	<-started
	require.Eventually(t, func() bool {
		return jobs[0].Session.State() == session.StateStreaming
	}, time.Second, time.Millisecond)
	m.Interrupt(jobs)

	r := <-ch
	assert.ErrorIs(t, r.Err, ai.ErrInterrupted)
}

func TestNew_Defaults(t *testing.T) {
	m := New(WithConcurrency(0))
	require.NotNil(t, m.Limiter())
	assert.True(t, m.Limiter().TryAcquire(DefaultConcurrency))
	assert.False(t, m.Limiter().TryAcquire(1))
}
