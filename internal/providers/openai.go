package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/crystaldolphin/canvasagent/internal/schema"
)

// OpenAIProvider makes direct HTTP calls to any OpenAI-compatible endpoint,
// and to the Anthropic Messages API when the spec or base says so.
type OpenAIProvider struct {
	apiKey       string
	apiBase      string
	defaultModel string
	extraHeaders map[string]string
	gateway      *Spec // non-nil for gateway/local providers
	spec         *Spec // non-nil for direct providers
	native       bool
	httpClient   *http.Client
}

// NewOpenAIProvider constructs a provider from raw config values.
func NewOpenAIProvider(
	apiKey, apiBase, defaultModel, providerName string,
	extraHeaders map[string]string,
) *OpenAIProvider {
	gateway := FindGateway(providerName, apiKey, apiBase)

	var spec *Spec
	if gateway == nil {
		spec = FindByName(providerName)
		if spec == nil {
			spec = FindByModel(defaultModel)
		}
	}

	base := apiBase
	switch {
	case base != "":
	case gateway != nil && gateway.DefaultAPIBase != "":
		base = gateway.DefaultAPIBase
	case spec != nil && spec.DefaultAPIBase != "":
		base = spec.DefaultAPIBase
	default:
		base = "https://api.openai.com/v1"
	}
	base = strings.TrimRight(base, "/")

	native := (spec != nil && spec.Native) || strings.Contains(strings.ToLower(base), "anthropic.com")

	return &OpenAIProvider{
		apiKey:       apiKey,
		apiBase:      base,
		defaultModel: defaultModel,
		extraHeaders: extraHeaders,
		gateway:      gateway,
		spec:         spec,
		native:       native,
		httpClient:   &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *OpenAIProvider) DefaultModel() string { return p.defaultModel }

// Chat implements schema.LLMProvider.
func (p *OpenAIProvider) Chat(
	ctx context.Context,
	messages schema.Messages,
	tools []map[string]any,
	opts schema.ChatOptions,
) (schema.LLMResponse, error) {
	model := opts.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	if p.native {
		return p.chatAnthropic(ctx, messages, tools, p.resolveModel(model), maxTokens, opts.Temperature)
	}
	return p.chatOpenAI(ctx, messages, tools, p.resolveModel(model), maxTokens, opts.Temperature)
}

func (p *OpenAIProvider) chatOpenAI(
	ctx context.Context,
	messages schema.Messages,
	tools []map[string]any,
	model string,
	maxTokens int,
	temperature float64,
) (schema.LLMResponse, error) {
	body := map[string]any{
		"model":       model,
		"messages":    wireMessages(messages),
		"max_tokens":  maxTokens,
		"temperature": temperature,
	}
	if len(tools) > 0 {
		body["tools"] = tools
		body["tool_choice"] = "auto"
	}
	p.applyModelOverrides(model, body)

	headers := map[string]string{"Authorization": "Bearer " + p.apiKey}
	raw, status, err := p.post(ctx, "/chat/completions", body, headers)
	if err != nil {
		return schema.LLMResponse{}, err
	}
	if status != http.StatusOK {
		return errResponse(fmt.Sprintf("HTTP %d: %s", status, friendlyHTTPError(status, raw)))
	}
	return parseOpenAIResponse(raw)
}

// post sends body as JSON to path and returns the raw response.
func (p *OpenAIProvider) post(ctx context.Context, path string, body map[string]any, headers map[string]string) ([]byte, int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+path, bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for k, v := range p.extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return raw, resp.StatusCode, nil
}

// resolveModel strips routing prefixes so the API receives the model name
// it expects. Gateways keep "vendor/model" but lose their own prefix.
func (p *OpenAIProvider) resolveModel(model string) string {
	if p.gateway != nil {
		if p.gateway.StripModelPrefix {
			if i := strings.LastIndex(model, "/"); i >= 0 {
				return model[i+1:]
			}
			return model
		}
		return stripPrefix(model, p.gateway.RoutePrefix)
	}
	if p.spec != nil {
		for _, pfx := range []string{p.spec.RoutePrefix, p.spec.Name} {
			if out := stripPrefix(model, pfx); out != model {
				return out
			}
		}
	}
	if vendor, rest, ok := strings.Cut(model, "/"); ok && FindByName(vendor) != nil {
		return rest
	}
	return model
}

func stripPrefix(model, prefix string) string {
	if prefix == "" {
		return model
	}
	full := prefix + "/"
	if strings.HasPrefix(strings.ToLower(model), full) {
		return model[len(full):]
	}
	return model
}

func (p *OpenAIProvider) applyModelOverrides(model string, body map[string]any) {
	spec := p.spec
	if spec == nil {
		spec = FindByModel(model)
	}
	if spec == nil {
		return
	}
	lower := strings.ToLower(model)
	for _, ov := range spec.ModelOverrides {
		if strings.Contains(lower, strings.ToLower(ov.Pattern)) {
			for k, v := range ov.Overrides {
				body[k] = v
			}
			return
		}
	}
}

// wireMessages renders text turns. Recorded tool calls stay local: no tool
// results are ever sent back, and strict endpoints reject unanswered calls.
func wireMessages(messages schema.Messages) []map[string]any {
	out := make([]map[string]any, 0, len(messages.Messages))
	for _, m := range messages.Messages {
		out = append(out, map[string]any{"role": m.Role, "content": m.Content})
	}
	return out
}

type openAIRespBody struct {
	Choices []struct {
		Message struct {
			Content   any `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func parseOpenAIResponse(raw []byte) (schema.LLMResponse, error) {
	var body openAIRespBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return schema.LLMResponse{}, fmt.Errorf("parse OpenAI response: %w", err)
	}
	if len(body.Choices) == 0 {
		return schema.LLMResponse{}, fmt.Errorf("empty choices in response")
	}
	msg := body.Choices[0].Message

	var content *string
	if c, ok := msg.Content.(string); ok && c != "" {
		content = &c
	}

	var toolCalls []schema.ToolCallResponse
	for _, tc := range msg.ToolCalls {
		args, err := repairJSON(tc.Function.Arguments)
		if err != nil {
			slog.Warn("failed to parse tool arguments", "tool", tc.Function.Name, "err", err)
			args = map[string]any{}
		}
		toolCalls = append(toolCalls, schema.ToolCallResponse{
			Id:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	return schema.LLMResponse{
		Content:      content,
		ToolCalls:    toolCalls,
		FinishReason: llmFinish(body.Choices[0].FinishReason),
		Usage: map[string]int{
			"prompt_tokens":     body.Usage.PromptTokens,
			"completion_tokens": body.Usage.CompletionTokens,
			"total_tokens":      body.Usage.TotalTokens,
		},
	}, nil
}

func llmFinish(reason string) string {
	if reason == "" {
		return "stop"
	}
	return reason
}

// repairJSON unmarshals tool arguments, tolerating the truncated or
// trailing-garbage output some models emit.
func repairJSON(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err == nil {
		return out, nil
	}

	stripped := strings.TrimRight(raw, " \t\n\r}]")
	if !strings.HasSuffix(stripped, "}") {
		stripped += "}"
	}
	if err := json.Unmarshal([]byte(stripped), &out); err == nil {
		return out, nil
	}

	if i := strings.LastIndex(raw, "}"); i >= 0 {
		if err := json.Unmarshal([]byte(raw[:i+1]), &out); err == nil {
			return out, nil
		}
	}
	return map[string]any{}, fmt.Errorf("cannot repair JSON: %s", raw)
}

// errResponse reports an upstream failure as an error-finish response so
// callers can surface the text.
func errResponse(msg string) (schema.LLMResponse, error) {
	s := msg
	return schema.LLMResponse{Content: &s, FinishReason: "error"}, nil
}

func friendlyHTTPError(code int, body []byte) string {
	if code == http.StatusTooManyRequests {
		return "rate limit exceeded"
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}
