package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds a completion when the caller's context has no deadline.
const DefaultTimeout = 5 * time.Minute

// Call is a single completion request against a resolved provider and model.
type Call struct {
	URL        string
	APIKey     string
	Model      string
	Messages   []Message
	Parameters map[string]any
}

// Client performs completion calls.
type Client interface {
	Complete(ctx context.Context, call Call) (Response, error)
}

// HTTPClient posts OpenAI-compatible chat completion requests.
type HTTPClient struct {
	http *http.Client
	log  *zap.Logger
}

// NewHTTPClient returns a client using hc, or a client with DefaultTimeout
// when hc is nil.
func NewHTTPClient(hc *http.Client, logger *zap.Logger) *HTTPClient {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{http: hc, log: logger}
}

// Complete sends call and decodes the reply. Parameters are merged into the
// top level of the request body; model and messages always win.
func (c *HTTPClient) Complete(ctx context.Context, call Call) (Response, error) {
	if _, ok := ctx.Deadline(); !ok && c.http.Timeout == 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	body := make(map[string]any, len(call.Parameters)+2)
	maps.Copy(body, call.Parameters)
	body["model"] = call.Model
	body["messages"] = call.Messages

	data, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, call.URL, bytes.NewReader(data))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+call.APIKey)

	start := time.Now()
	c.log.Debug("sending completion request",
		zap.String("url", call.URL),
		zap.String("model", call.Model),
		zap.Int("messages", len(call.Messages)))

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(raw))
	}

	out, err := DecodeResponse(raw)
	if err != nil {
		return Response{}, err
	}
	c.log.Debug("completion received",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("content_len", len(out.Content)),
		zap.Int("total_tokens", out.Usage.TotalTokens))
	return out, nil
}
