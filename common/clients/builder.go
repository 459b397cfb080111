package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/auditflow/automation-engine/common/config"
	"github.com/auditflow/automation-engine/common/models"
)

// ErrBuilderUnavailable marks failures to reach the builder service at
// all. Callers fall back to the next generation strategy on it.
var ErrBuilderUnavailable = errors.New("builder service unavailable")

// BuildRequirements describes what the builder should produce
type BuildRequirements struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description"`
	Platform    string                    `json:"platform"`
	Plan        *models.OrchestrationPlan `json:"plan"`
	Context     []string                  `json:"context,omitempty"`
}

// BuilderValidation is the builder service's own verdict on its draft
type BuilderValidation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// BuildResult is a draft workflow plus the service's validation verdict
type BuildResult struct {
	Workflow   *models.GeneratedWorkflow
	Validation BuilderValidation
}

// BuilderClient is the boundary to the capability-augmented workflow
// building service. Use WithSession to guarantee disconnect.
type BuilderClient interface {
	Connect(ctx context.Context) error
	BuildWorkflow(ctx context.Context, req BuildRequirements) (*BuildResult, error)
	ValidateWorkflow(ctx context.Context, wf *models.GeneratedWorkflow) (*BuilderValidation, error)
	Disconnect(ctx context.Context) error
}

// WithSession runs fn inside a connect/disconnect pair. Disconnect runs
// on every exit path, with its own deadline so a cancelled job context
// cannot leak the session.
func WithSession(ctx context.Context, client BuilderClient, fn func(ctx context.Context) error) (err error) {
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("builder connect: %w", err)
	}

	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if derr := client.Disconnect(dctx); derr != nil && err == nil {
			err = fmt.Errorf("builder disconnect: %w", derr)
		}
	}()

	return fn(ctx)
}

// HTTPBuilderClient implements BuilderClient over the builder service's
// HTTP API
type HTTPBuilderClient struct {
	baseURL        string
	apiKey         string
	connectTimeout time.Duration
	http           *HTTPClient
	logger         Logger

	mu        sync.Mutex
	sessionID string
}

// NewHTTPBuilderClient creates a builder client from config
func NewHTTPBuilderClient(cfg config.BuilderConfig, logger Logger) *HTTPBuilderClient {
	httpClient := &http.Client{
		Timeout: cfg.RequestTimeout,
	}

	return &HTTPBuilderClient{
		baseURL:        cfg.BaseURL,
		apiKey:         cfg.APIKey,
		connectTimeout: cfg.ConnectTimeout,
		http:           NewHTTPClient(httpClient, logger),
		logger:         logger,
	}
}

// Connect opens a builder session
func (c *HTTPBuilderClient) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/api/v1/sessions", c.baseURL)
	resp, err := c.http.DoRequest(ctx, "POST", url, nil, c.authHeaders())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBuilderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read session response: %v", ErrBuilderUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%w: session request failed: status=%d, body=%s", ErrBuilderUnavailable, resp.StatusCode, string(body))
	}

	sessionID := gjson.GetBytes(body, "session_id").String()
	if sessionID == "" {
		return fmt.Errorf("%w: session response missing session_id", ErrBuilderUnavailable)
	}

	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()

	c.logger.Info("builder session opened", "session_id", sessionID)
	return nil
}

// BuildWorkflow submits requirements and returns the builder's draft
func (c *HTTPBuilderClient) BuildWorkflow(ctx context.Context, req BuildRequirements) (*BuildResult, error) {
	sessionID, err := c.currentSession()
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal build requirements: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/sessions/%s/workflows", c.baseURL, sessionID)
	resp, err := c.http.DoRequest(ctx, "POST", url, bytes.NewReader(payload), c.authHeaders())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuilderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read build response: %v", ErrBuilderUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("build request failed: status=%d, body=%s", resp.StatusCode, string(body))
	}

	workflowRaw := gjson.GetBytes(body, "workflow").Raw
	if workflowRaw == "" {
		return nil, fmt.Errorf("build response missing workflow")
	}

	var wf models.GeneratedWorkflow
	if err := json.Unmarshal([]byte(workflowRaw), &wf); err != nil {
		return nil, fmt.Errorf("failed to decode builder workflow: %w", err)
	}

	result := &BuildResult{Workflow: &wf}
	if v := gjson.GetBytes(body, "validation"); v.Exists() {
		if err := json.Unmarshal([]byte(v.Raw), &result.Validation); err != nil {
			return nil, fmt.Errorf("failed to decode builder validation: %w", err)
		}
	}

	c.logger.Info("builder returned draft workflow",
		"session_id", sessionID,
		"nodes", len(wf.Nodes),
		"builder_valid", result.Validation.Valid)

	return result, nil
}

// ValidateWorkflow asks the builder service to validate a workflow
func (c *HTTPBuilderClient) ValidateWorkflow(ctx context.Context, wf *models.GeneratedWorkflow) (*BuilderValidation, error) {
	payload, err := json.Marshal(map[string]interface{}{"workflow": wf})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/validate", c.baseURL)
	resp, err := c.http.DoRequest(ctx, "POST", url, bytes.NewReader(payload), c.authHeaders())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuilderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read validate response: %v", ErrBuilderUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("validate request failed: status=%d, body=%s", resp.StatusCode, string(body))
	}

	var verdict BuilderValidation
	if err := json.Unmarshal(body, &verdict); err != nil {
		return nil, fmt.Errorf("failed to decode validation verdict: %w", err)
	}

	return &verdict, nil
}

// Disconnect closes the builder session
func (c *HTTPBuilderClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	sessionID := c.sessionID
	c.sessionID = ""
	c.mu.Unlock()

	if sessionID == "" {
		return nil
	}

	url := fmt.Sprintf("%s/api/v1/sessions/%s", c.baseURL, sessionID)
	resp, err := c.http.DoRequest(ctx, "DELETE", url, nil, c.authHeaders())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBuilderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("disconnect failed: status=%d, body=%s", resp.StatusCode, string(body))
	}

	c.logger.Info("builder session closed", "session_id", sessionID)
	return nil
}

// currentSession returns the active session id or an error
func (c *HTTPBuilderClient) currentSession() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID == "" {
		return "", fmt.Errorf("no active builder session; call Connect first")
	}
	return c.sessionID, nil
}

// authHeaders returns headers for builder requests
func (c *HTTPBuilderClient) authHeaders() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	return map[string]string{"X-API-Key": c.apiKey}
}
