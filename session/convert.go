package session

import (
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	ai "github.com/spetersoncode/openagent"
	"github.com/spetersoncode/openagent/tool"
)

func buildParams(req Request) (openai.ChatCompletionNewParams, error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	params := openai.ChatCompletionNewParams{
		Model:    req.Model,
		Messages: messages,
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return openai.ChatCompletionNewParams{}, err
		}
		params.Tools = tools
	}
	return params, nil
}

func convertMessages(messages []ai.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case ai.RoleSystem:
			result = append(result, openai.SystemMessage(msg.Text()))
		case ai.RoleUser:
			result = append(result, convertUser(msg))
		case ai.RoleAssistant:
			m, err := convertAssistant(msg)
			if err != nil {
				return nil, err
			}
			result = append(result, m)
		case ai.RoleTool:
			for _, block := range msg.Content {
				if tr, ok := block.(ai.ToolResultBlock); ok {
					result = append(result, openai.ToolMessage(tr.ContentString(), tr.ToolUseID))
				}
			}
		default:
			return nil, fmt.Errorf("session: unsupported role %q", msg.Role)
		}
	}
	return result, nil
}

// convertUser sends plain text as a string and anything with images as
// content parts.
func convertUser(msg ai.Message) openai.ChatCompletionMessageParamUnion {
	hasImage := false
	for _, block := range msg.Content {
		if block.Type() == ai.BlockImage {
			hasImage = true
			break
		}
	}
	if !hasImage {
		return openai.UserMessage(msg.Text())
	}

	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(msg.Content))
	for _, block := range msg.Content {
		switch b := block.(type) {
		case ai.TextBlock:
			parts = append(parts, openai.TextContentPart(b.Text))
		case ai.ImageBlock:
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL:    b.URL,
				Detail: string(b.Detail),
			}))
		}
	}
	return openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfArrayOfContentParts: parts,
			},
		},
	}
}

func convertAssistant(msg ai.Message) (openai.ChatCompletionMessageParamUnion, error) {
	uses := msg.ToolUses()
	if len(uses) == 0 {
		return openai.AssistantMessage(msg.Text()), nil
	}

	calls := make([]openai.ChatCompletionMessageToolCallParam, len(uses))
	for i, use := range uses {
		args, err := json.Marshal(use.Input)
		if err != nil {
			return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("session: encode arguments of %s: %w", use.Name, err)
		}
		calls[i] = openai.ChatCompletionMessageToolCallParam{
			ID: use.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      use.Name,
				Arguments: string(args),
			},
		}
	}
	assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
	if text := msg.Text(); text != "" {
		assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: openai.String(text),
		}
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}, nil
}

func convertTools(tools []tool.Tool) ([]openai.ChatCompletionToolParam, error) {
	result := make([]openai.ChatCompletionToolParam, len(tools))
	for i, t := range tools {
		params := shared.FunctionParameters{"type": "object", "properties": map[string]any{}}
		if len(t.Parameters) > 0 {
			params = shared.FunctionParameters{}
			if err := json.Unmarshal(t.Parameters, &params); err != nil {
				return nil, fmt.Errorf("session: schema of %s: %w", t.Name, err)
			}
		}
		result[i] = openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  params,
			},
		}
	}
	return result, nil
}
