package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/auditflow/automation-engine/common/config"
)

// ErrProvider marks completion failures caused by the provider itself
// (unreachable, quota, non-2xx). Malformed model output is not a
// provider error; it surfaces later as a decode/schema failure.
var ErrProvider = errors.New("completion provider error")

// CompletionOpts tunes a single completion call
type CompletionOpts struct {
	Tier        string  // model tier: "standard" or "premium"
	MaxTokens   int     // output token ceiling
	Temperature float64 // sampling temperature
}

// CompletionProvider is the LLM boundary. Implementations must honor
// the context deadline and distinguish provider failures (ErrProvider)
// from malformed output (returned as-is for the caller to reject).
type CompletionProvider interface {
	Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error)
}

// OpenAIProvider implements CompletionProvider against an OpenAI-style
// chat completions API
type OpenAIProvider struct {
	baseURL      string
	apiKey       string
	model        string
	premiumModel string
	timeout      time.Duration
	http         *HTTPClient
	logger       Logger
}

// NewOpenAIProvider creates a provider from LLM config
func NewOpenAIProvider(cfg config.LLMConfig, logger Logger) *OpenAIProvider {
	httpClient := &http.Client{
		Timeout: cfg.RequestTimeout,
	}

	return &OpenAIProvider{
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		premiumModel: cfg.PremiumModel,
		timeout:      cfg.RequestTimeout,
		http:         NewHTTPClient(httpClient, logger),
		logger:       logger,
	}
}

// Complete sends one chat completion request and returns the raw
// completion text
func (p *OpenAIProvider) Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	payload := map[string]interface{}{
		"model": p.modelForTier(opts.Tier),
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	if opts.MaxTokens > 0 {
		payload["max_tokens"] = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		payload["temperature"] = opts.Temperature
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal completion request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", p.baseURL)
	headers := map[string]string{
		"Authorization": "Bearer " + p.apiKey,
	}

	start := time.Now()
	resp, err := p.http.DoRequest(ctx, "POST", url, bytes.NewReader(body), headers)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", ErrProvider, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(respBody, "error.message").String()
		if msg == "" {
			msg = string(respBody)
		}
		return "", fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode, msg)
	}

	content := gjson.GetBytes(respBody, "choices.0.message.content").String()

	p.logger.Debug("completion received",
		"model", p.modelForTier(opts.Tier),
		"tier", opts.Tier,
		"total_tokens", gjson.GetBytes(respBody, "usage.total_tokens").Int(),
		"duration_ms", time.Since(start).Milliseconds())

	return content, nil
}

// modelForTier maps an abstract tier to a concrete model name
func (p *OpenAIProvider) modelForTier(tier string) string {
	if tier == "premium" && p.premiumModel != "" {
		return p.premiumModel
	}
	return p.model
}
