package session

import (
	"context"
	"errors"
	"io"
	"strings"

	ai "github.com/spetersoncode/openagent"
)

// Query runs a single exchange on a throwaway session and returns the
// concatenated text of the response.
func Query(ctx context.Context, cfg Config, prompt string, opts ...Option) (string, error) {
	s, err := New(cfg, opts...)
	if err != nil {
		return "", err
	}
	defer s.Close()

	if err := s.Send(ctx, prompt); err != nil {
		return "", err
	}
	return Collect(ctx, s)
}

// Collect drains the current turn of s and returns its text. Text received
// before an error is returned along with it.
func Collect(ctx context.Context, s *Session) (string, error) {
	var sb strings.Builder
	for {
		block, err := s.Receive(ctx)
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}
		if text, ok := block.(ai.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
}
