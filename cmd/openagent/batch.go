package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spetersoncode/openagent/mux"
	"github.com/spetersoncode/openagent/session"
)

var (
	batchConcurrency int
	batchFailFast    bool
)

var batchCmd = &cobra.Command{
	Use:   "batch [prompts-file]",
	Short: "Run one prompt per line concurrently, printing JSON lines",
	Long: `Run every non-empty line of the prompts file (or stdin when the file is
"-" or omitted) in its own session. Results are printed as JSON lines in
input order.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBatch,
}

func init() {
	addSessionFlags(batchCmd)
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "Concurrent requests (overrides config)")
	batchCmd.Flags().BoolVar(&batchFailFast, "fail-fast", false, "Cancel remaining prompts after the first failure")
}

type batchLine struct {
	Name      string  `json:"name"`
	Prompt    string  `json:"prompt"`
	Text      string  `json:"text,omitempty"`
	Error     string  `json:"error,omitempty"`
	ElapsedMS float64 `json:"elapsed_ms"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	in := cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	prompts, err := readPrompts(in)
	if err != nil {
		return err
	}
	if len(prompts) == 0 {
		return fmt.Errorf("no prompts")
	}

	ts, err := buildTools(ctx)
	if err != nil {
		return err
	}
	defer ts.Close()

	concurrency := cfg.Concurrency
	if batchConcurrency > 0 {
		concurrency = batchConcurrency
	}
	m := mux.New(
		mux.WithConcurrency(concurrency),
		mux.WithLogger(log),
		mux.WithFailFast(batchFailFast),
	)

	jobs := make([]mux.Job, 0, len(prompts))
	sessions := make([]*session.Session, 0, len(prompts))
	defer func() {
		for _, s := range sessions {
			_ = s.Close()
		}
	}()
	for i, p := range prompts {
		s, err := newSession(cfg, ts, m.SessionOption())
		if err != nil {
			return err
		}
		sessions = append(sessions, s)
		jobs = append(jobs, mux.Job{Name: fmt.Sprintf("line-%d", i+1), Session: s, Prompt: p})
	}

	results, runErr := m.RunAll(ctx, jobs)
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, r := range results {
		line := batchLine{
			Name:      r.Job.Name,
			Prompt:    r.Job.Prompt,
			Text:      r.Text,
			ElapsedMS: float64(r.Elapsed.Microseconds()) / 1000,
		}
		if r.Err != nil {
			line.Error = r.Err.Error()
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	if runErr != nil {
		log.Warn().Err(runErr).Msg("some prompts failed")
	}
	return nil
}

func readPrompts(r io.Reader) ([]string, error) {
	var prompts []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if p := strings.TrimSpace(sc.Text()); p != "" {
			prompts = append(prompts, p)
		}
	}
	return prompts, sc.Err()
}
