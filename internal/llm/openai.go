package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dante4567/rag-provider-sub004/internal/config"
	apperr "github.com/dante4567/rag-provider-sub004/internal/errors"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider speaks the OpenAI chat-completions protocol. Any
// compatible endpoint (OpenRouter, Groq, LM Studio) works through BaseURL.
type OpenAIProvider struct {
	client  *http.Client
	id      string
	baseURL string
	apiKey  string
	model   string
	timeout time.Duration
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider builds the adapter from config. The API key is read
// from the environment variable named by APIKeyEnv, never from config.
func NewOpenAIProvider(cfg config.ProviderConfig) *OpenAIProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	// Client timeout stays unset; per-request context deadlines control
	// cancellation so callers can shorten them.
	transport := &http.Transport{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     10 * time.Second,
	}

	var apiKey string
	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
	}

	return &OpenAIProvider{
		client:  &http.Client{Transport: transport},
		id:      cfg.ID,
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   cfg.Model,
		timeout: timeout,
	}
}

func (p *OpenAIProvider) Name() string { return p.id }

// Available only checks configuration: a missing key can never succeed,
// so the gateway skips this provider without burning a request.
func (p *OpenAIProvider) Available(ctx context.Context) bool {
	return p.apiKey != "" || !strings.HasPrefix(p.baseURL, "https://")
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	var messages []chatMessage
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body := chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONSchema != nil {
		body.ResponseFormat = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "response",
				"strict": true,
				"schema": req.JSONSchema,
			},
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apperr.InternalError("failed to encode completion request", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.InternalError("failed to build completion request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(p.id, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, classifyTransportError(p.id, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPStatus(p.id, resp.StatusCode, truncateBody(respBody))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, apperr.New(apperr.ErrCodeProviderUnavailable,
			fmt.Sprintf("provider %s returned unparseable response", p.id), err)
	}
	if len(parsed.Choices) == 0 {
		return nil, apperr.New(apperr.ErrCodeProviderUnavailable,
			fmt.Sprintf("provider %s returned no choices", p.id), nil)
	}

	out := &Response{
		Text:         parsed.Choices[0].Message.Content,
		Model:        parsed.Model,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
		FinishReason: parsed.Choices[0].FinishReason,
	}
	if out.Model == "" {
		out.Model = model
	}
	return out, nil
}

func truncateBody(b []byte) string {
	const max = 500
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
