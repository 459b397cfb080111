package clients

import (
	"context"
	"io"
	"net/http"
)

// Logger interface for HTTP client logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// HTTPClient is the shared request helper behind the provider and
// builder clients. It stamps every outbound call with the job id from
// the context so upstream logs line up with ours.
type HTTPClient struct {
	client *http.Client
	logger Logger
}

// NewHTTPClient creates a new HTTP client wrapper
func NewHTTPClient(client *http.Client, logger Logger) *HTTPClient {
	return &HTTPClient{
		client: client,
		logger: logger,
	}
}

// DoRequest executes one request. Bodies are JSON unless a caller
// header says otherwise; per-client headers (auth) come in as a map.
func (c *HTTPClient) DoRequest(ctx context.Context, method, url string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	// Extract job ID from context and set X-Job-ID header so upstream
	// services can correlate calls with the job that made them
	if jobID, ok := GetJobID(ctx); ok {
		req.Header.Set("X-Job-ID", jobID)
		c.logger.Debug("added X-Job-ID header from context", "job_id", jobID)
	}

	return c.client.Do(req)
}
