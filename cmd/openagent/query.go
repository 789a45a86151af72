package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	ai "github.com/spetersoncode/openagent"
	"github.com/spetersoncode/openagent/session"
)

var queryCmd = &cobra.Command{
	Use:   "query [prompt]",
	Short: "Send one prompt and stream the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	addSessionFlags(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	ts, err := buildTools(ctx)
	if err != nil {
		return err
	}
	defer ts.Close()

	s, err := newSession(cfg, ts)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Send(ctx, strings.Join(args, " ")); err != nil {
		return err
	}
	if err := stream(ctx, s, cmd.OutOrStdout()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}

// stream prints text blocks of the current exchange as they arrive.
func stream(ctx context.Context, s *session.Session, w io.Writer) error {
	for {
		block, err := s.Receive(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch b := block.(type) {
		case ai.TextBlock:
			fmt.Fprint(w, b.Text)
		case ai.ToolUseBlock:
			fmt.Fprintf(w, "\n[tool call %s %s %v]\n", b.ID, b.Name, b.Input)
		}
	}
}
