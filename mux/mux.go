// Package mux runs many sessions concurrently.
//
// Each job gets its own goroutine which is the only one calling Send and
// Receive on the job's session. Transport requests are bounded by a shared
// weighted semaphore that the sessions acquire around every open stream, so
// sessions must be built with the multiplexer's SessionOption (or
// session.WithLimiter(m.Limiter())) for the bound to apply.
//
//	m := mux.New(mux.WithConcurrency(4))
//	s, _ := session.New(cfg, m.SessionOption())
//	results, _ := m.Run(ctx, []mux.Job{{Session: s, Prompt: "hi"}})
//	for r := range results {
//	    fmt.Println(r.Job.Name, r.Text, r.Err)
//	}
package mux

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/spetersoncode/openagent/session"
)

// DefaultConcurrency bounds in-flight requests when no limit is configured.
const DefaultConcurrency = 4

// ErrDuplicateSession is returned when two jobs share a session.
var ErrDuplicateSession = errors.New("mux: session used by more than one job")

// Job is one prompt sent on one session.
type Job struct {
	// Name labels the job in results and logs. Defaults to its index.
	Name    string
	Session *session.Session
	Prompt  string
}

// Result is the outcome of one job.
type Result struct {
	Job     Job
	Index   int
	Text    string
	Err     error
	Elapsed time.Duration
}

// Multiplexer drives jobs concurrently under a shared request limit.
type Multiplexer struct {
	limiter  *semaphore.Weighted
	log      zerolog.Logger
	failFast bool
}

// New creates a Multiplexer.
func New(opts ...Option) *Multiplexer {
	o := options{concurrency: DefaultConcurrency, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	limiter := o.limiter
	if limiter == nil {
		limiter = semaphore.NewWeighted(int64(o.concurrency))
	}
	return &Multiplexer{limiter: limiter, log: o.logger, failFast: o.failFast}
}

// Limiter returns the semaphore bounding in-flight requests.
func (m *Multiplexer) Limiter() *semaphore.Weighted { return m.limiter }

// SessionOption wires a session to the multiplexer's limiter.
func (m *Multiplexer) SessionOption() session.Option {
	return session.WithLimiter(m.limiter)
}

// Run starts every job and returns a channel delivering results in
// completion order. The channel is closed once all jobs are done. With
// WithFailFast, the first failed job cancels the others.
func (m *Multiplexer) Run(ctx context.Context, jobs []Job) (<-chan Result, error) {
	seen := make(map[*session.Session]struct{}, len(jobs))
	for i, job := range jobs {
		if job.Session == nil {
			return nil, fmt.Errorf("mux: job %d has no session", i)
		}
		if _, dup := seen[job.Session]; dup {
			return nil, fmt.Errorf("%w: job %d", ErrDuplicateSession, i)
		}
		seen[job.Session] = struct{}{}
	}

	results := make(chan Result, len(jobs))
	var g *errgroup.Group
	if m.failFast {
		g, ctx = errgroup.WithContext(ctx)
	} else {
		g = new(errgroup.Group)
	}

	for i, job := range jobs {
		if job.Name == "" {
			job.Name = fmt.Sprintf("job-%d", i)
		}
		g.Go(func() error {
			r := m.run(ctx, i, job)
			results <- r
			if m.failFast {
				return r.Err
			}
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(results)
	}()
	return results, nil
}

// RunAll runs jobs and returns every result in job order, along with the
// joined job errors.
func (m *Multiplexer) RunAll(ctx context.Context, jobs []Job) ([]Result, error) {
	ch, err := m.Run(ctx, jobs)
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(jobs))
	var errs []error
	for r := range ch {
		out = append(out, r)
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Job.Name, r.Err))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, errors.Join(errs...)
}

// Interrupt interrupts every job's session. Jobs in flight finish with
// ai.ErrInterrupted.
func (m *Multiplexer) Interrupt(jobs []Job) {
	for _, job := range jobs {
		if job.Session != nil {
			job.Session.Interrupt()
		}
	}
}

func (m *Multiplexer) run(ctx context.Context, index int, job Job) Result {
	start := time.Now()
	log := m.log.With().Str("job", job.Name).Str("session", job.Session.ID()).Logger()
	log.Debug().Msg("job started")

	r := Result{Job: job, Index: index}
	if err := job.Session.Send(ctx, job.Prompt); err != nil {
		r.Err = err
	} else {
		r.Text, r.Err = session.Collect(ctx, job.Session)
	}
	r.Elapsed = time.Since(start)

	if r.Err != nil {
		log.Warn().Err(r.Err).Dur("elapsed", r.Elapsed).Msg("job failed")
	} else {
		log.Debug().Dur("elapsed", r.Elapsed).Int("chars", len(r.Text)).Msg("job finished")
	}
	return r
}
