// Package window estimates conversation size and trims history to fit a
// model's context window.
//
// Nothing here runs automatically. Callers check ApproachingLimit between
// exchanges and hand the output of Truncate to session.ReplaceHistory.
package window

import (
	"encoding/json"
	"strings"

	ai "github.com/spetersoncode/openagent"
)

const (
	// charsPerToken is the usual ratio for English text across common tokenizers.
	charsPerToken = 4
	// perMessageChars approximates role formatting overhead.
	perMessageChars = 8
	// perRequestChars approximates request framing overhead.
	perRequestChars = 16
	// imageChars is charged for inline images instead of their encoded size.
	imageChars = 340
)

// EstimateTokens returns a rough token count for msgs using the
// one-token-per-four-characters heuristic. An empty history is 0.
func EstimateTokens(msgs []ai.Message) int {
	if len(msgs) == 0 {
		return 0
	}
	chars := perRequestChars
	for _, m := range msgs {
		chars += messageChars(m)
	}
	return (chars + charsPerToken - 1) / charsPerToken
}

func messageChars(m ai.Message) int {
	chars := perMessageChars
	for _, block := range m.Content {
		switch b := block.(type) {
		case ai.TextBlock:
			chars += len(b.Text)
		case ai.ToolUseBlock:
			chars += len(b.ID) + len(b.Name) + jsonLen(b.Input)
		case ai.ToolResultBlock:
			chars += len(b.ToolUseID) + len(b.ContentString())
		case ai.ImageBlock:
			if strings.HasPrefix(b.URL, "data:") {
				chars += imageChars
			} else {
				chars += len(b.URL)
			}
		}
	}
	return chars
}

func jsonLen(v any) int {
	if v == nil {
		return 0
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(raw)
}

// Truncate keeps the last keep messages. With preserveSystem, a leading
// system message is kept in addition to them. Tool turns at the cut are
// dropped as well, since a tool result without the assistant turn that
// requested it is rejected by the endpoint. The input is not modified.
func Truncate(msgs []ai.Message, keep int, preserveSystem bool) []ai.Message {
	if len(msgs) == 0 {
		return []ai.Message{}
	}
	if len(msgs) <= keep {
		return append([]ai.Message(nil), msgs...)
	}

	var out []ai.Message
	head := 0
	if preserveSystem && msgs[0].Role == ai.RoleSystem {
		out = append(out, msgs[0])
		head = 1
	}
	if keep <= 0 {
		if out == nil {
			return []ai.Message{}
		}
		return out
	}

	start := max(len(msgs)-keep, head)
	for start < len(msgs) && msgs[start].Role == ai.RoleTool {
		start++
	}
	return append(out, msgs[start:]...)
}

// ApproachingLimit reports whether the estimate for msgs exceeds margin
// (a fraction such as 0.9) of limit.
func ApproachingLimit(msgs []ai.Message, limit int, margin float64) bool {
	threshold := int(float64(limit) * margin)
	return EstimateTokens(msgs) > threshold
}
