package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/crystaldolphin/canvasagent/internal/schema"
)

const anthropicVersion = "2023-06-01"

func (p *OpenAIProvider) chatAnthropic(
	ctx context.Context,
	messages schema.Messages,
	tools []map[string]any,
	model string,
	maxTokens int,
	temperature float64,
) (schema.LLMResponse, error) {
	system, converted := toAnthropicMessages(messages)

	body := map[string]any{
		"model":       model,
		"messages":    converted,
		"max_tokens":  maxTokens,
		"temperature": temperature,
	}
	if system != "" {
		body["system"] = system
	}
	if len(tools) > 0 {
		body["tools"] = toAnthropicTools(tools)
	}

	headers := map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": anthropicVersion,
	}
	raw, status, err := p.post(ctx, "/messages", body, headers)
	if err != nil {
		return schema.LLMResponse{}, fmt.Errorf("anthropic: %w", err)
	}
	if status != http.StatusOK {
		return errResponse(fmt.Sprintf("HTTP %d: %s", status, friendlyHTTPError(status, raw)))
	}
	return parseAnthropicResponse(raw)
}

// toAnthropicMessages lifts system turns into the system prompt and merges
// consecutive turns of the same role, which the Messages API rejects.
func toAnthropicMessages(messages schema.Messages) (string, []map[string]any) {
	var system string
	var out []map[string]any

	for _, msg := range messages.Messages {
		switch msg.Role {
		case schema.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content

		case schema.RoleUser, schema.RoleAssistant:
			if msg.Content == "" {
				continue
			}
			if n := len(out); n > 0 && out[n-1]["role"] == msg.Role {
				out[n-1]["content"] = out[n-1]["content"].(string) + "\n\n" + msg.Content
				continue
			}
			out = append(out, map[string]any{"role": msg.Role, "content": msg.Content})
		}
	}
	return system, out
}

// toAnthropicTools converts OpenAI function schemas: "parameters" becomes
// "input_schema".
func toAnthropicTools(tools []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		fn, _ := t["function"].(map[string]any)
		if fn == nil {
			continue
		}
		out = append(out, map[string]any{
			"name":         fn["name"],
			"description":  fn["description"],
			"input_schema": fn["parameters"],
		})
	}
	return out
}

type anthropicRespBody struct {
	Content []struct {
		Type  string         `json:"type"`
		Text  string         `json:"text"`
		ID    string         `json:"id"`
		Name  string         `json:"name"`
		Input map[string]any `json:"input"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func parseAnthropicResponse(raw []byte) (schema.LLMResponse, error) {
	var body anthropicRespBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return schema.LLMResponse{}, fmt.Errorf("parse Anthropic response: %w", err)
	}

	var text string
	var toolCalls []schema.ToolCallResponse
	for _, block := range body.Content {
		switch block.Type {
		case "text":
			text += block.Text
		case "tool_use":
			toolCalls = append(toolCalls, schema.ToolCallResponse{
				Id:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			})
		}
	}

	var content *string
	if text != "" {
		content = &text
	}

	finish := "stop"
	switch body.StopReason {
	case "tool_use":
		finish = "tool_calls"
	case "", "end_turn":
	default:
		finish = body.StopReason
	}

	return schema.LLMResponse{
		Content:      content,
		ToolCalls:    toolCalls,
		FinishReason: finish,
		Usage: map[string]int{
			"prompt_tokens":     body.Usage.InputTokens,
			"completion_tokens": body.Usage.OutputTokens,
			"total_tokens":      body.Usage.InputTokens + body.Usage.OutputTokens,
		},
	}, nil
}
