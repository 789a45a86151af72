package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	ai "github.com/spetersoncode/openagent"
	"github.com/spetersoncode/openagent/session"
	"github.com/spetersoncode/openagent/window"
)

var (
	contextLimit int
	keepTurns    int
	showEvents   bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive conversation; Ctrl-C interrupts the current answer",
	Long: `Start an interactive conversation. Ctrl-C while the model is answering
interrupts that answer and keeps the conversation; Ctrl-C at the prompt or
Ctrl-D exits.

Commands: /clear, /history, /tokens, /exit.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	addSessionFlags(chatCmd)
	chatCmd.Flags().BoolVar(&manualTools, "manual-tools", false, "Answer tool calls yourself instead of running them")
	chatCmd.Flags().IntVar(&contextLimit, "context-limit", 0, "Trim history when the estimate nears this many tokens")
	chatCmd.Flags().IntVar(&keepTurns, "keep", 20, "Turns kept when trimming history")
	chatCmd.Flags().BoolVar(&showEvents, "events", false, "Print tool activity to stderr")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	ts, err := buildTools(ctx)
	if err != nil {
		return err
	}
	defer ts.Close()

	var opts []session.Option
	if showEvents {
		opts = append(opts, session.WithEventBuffer(64))
	}
	s, err := newSession(cfg, ts, opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	if showEvents {
		go printEvents(s.Events(), cmd.ErrOrStderr())
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)
	go func() {
		for range sigs {
			if s.State() == session.StateIdle {
				fmt.Fprintln(out)
				os.Exit(0)
			}
			s.Interrupt()
		}
	}()

	in := bufio.NewScanner(cmd.InOrStdin())
	fmt.Fprintf(out, "openagent chat (%s @ %s)\n", cfg.Model, cfg.BaseURL)
	for {
		fmt.Fprint(out, "> ")
		if !in.Scan() {
			fmt.Fprintln(out)
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if done := chatCommand(s, line, out); done {
				return nil
			}
			continue
		}

		trimHistory(s)
		if err := exchange(ctx, s, line, in, out); err != nil {
			fmt.Fprintf(out, "\nerror: %v\n", err)
			if s.State() == session.StateClosed {
				return err
			}
		}
	}
}

// exchange runs one prompt to completion, answering tool calls from the
// terminal in manual mode.
func exchange(ctx context.Context, s *session.Session, prompt string, in *bufio.Scanner, out io.Writer) error {
	if err := s.Send(ctx, prompt); err != nil {
		return err
	}
	for {
		err := stream(ctx, s, out)
		if errors.Is(err, ai.ErrInterrupted) {
			fmt.Fprintln(out, "\n[interrupted]")
			return nil
		}
		if err != nil {
			return err
		}
		if s.State() != session.StateToolPending {
			fmt.Fprintln(out)
			return nil
		}

		for _, use := range s.PendingToolUses() {
			fmt.Fprintf(out, "result for %s (%s): ", use.Name, use.ID)
			if !in.Scan() {
				return io.ErrUnexpectedEOF
			}
			if err := s.AddToolResult(use.ID, parseResult(in.Text())); err != nil {
				return err
			}
		}
		if err := s.Send(ctx, ""); err != nil {
			return err
		}
	}
}

// parseResult treats valid JSON as structured content and anything else as text.
func parseResult(text string) any {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		return v
	}
	return text
}

func chatCommand(s *session.Session, line string, out io.Writer) bool {
	switch line {
	case "/exit", "/quit":
		return true
	case "/clear":
		if err := s.ClearHistory(); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	case "/history":
		for _, m := range s.History() {
			fmt.Fprintf(out, "%-9s %s\n", m.Role, summarize(m))
		}
	case "/tokens":
		u := s.Usage()
		fmt.Fprintf(out, "history ~%d tokens; used %d in / %d out\n",
			window.EstimateTokens(s.History()), u.InputTokens, u.OutputTokens)
	default:
		fmt.Fprintf(out, "unknown command %s\n", line)
	}
	return false
}

func summarize(m ai.Message) string {
	if tr, ok := m.ToolResult(); ok {
		return fmt.Sprintf("[%s] %s", tr.Name, tr.ContentString())
	}
	text := m.Text()
	for _, use := range m.ToolUses() {
		text += fmt.Sprintf(" [call %s]", use.Name)
	}
	return strings.TrimSpace(text)
}

func trimHistory(s *session.Session) {
	if contextLimit <= 0 {
		return
	}
	history := s.History()
	if !window.ApproachingLimit(history, contextLimit, 0.9) {
		return
	}
	trimmed := window.Truncate(history, keepTurns, true)
	if err := s.ReplaceHistory(trimmed); err != nil {
		log.Warn().Err(err).Msg("failed to trim history")
		return
	}
	log.Info().Int("before", len(history)).Int("after", len(trimmed)).Msg("trimmed history")
}

func printEvents(events <-chan session.Event, w io.Writer) {
	for ev := range events {
		switch ev.Type {
		case session.EventToolUse:
			fmt.Fprintf(w, "[tool] %s %v\n", ev.ToolUse.Name, ev.ToolUse.Input)
		case session.EventToolResult:
			fmt.Fprintf(w, "[result] %s %s\n", ev.ToolResult.Name, ev.ToolResult.ContentString())
		case session.EventRetry:
			fmt.Fprintf(w, "[retry] attempt %d\n", ev.Attempt)
		case session.EventHookDecision:
			fmt.Fprintf(w, "[hook] %s %s\n", ev.Decision.Action, ev.Decision.Reason)
		}
	}
}
