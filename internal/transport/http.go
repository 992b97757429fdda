package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPConfig holds configuration for the HTTP gateway transport.
type HTTPConfig struct {
	// GatewayURL is the full URL of the gateway's send endpoint.
	GatewayURL string
	// APIToken is sent as a bearer token on every request.
	APIToken string
	// Timeout bounds each send request end to end.
	Timeout time.Duration
}

// HTTP delivers messages through an HTTP message gateway.
type HTTP struct {
	config HTTPConfig
	client *http.Client
}

// NewHTTP creates an HTTP transport with its own HTTP client.
func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTP{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type sendRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

// SendMessage posts the message to the gateway. A non-2xx response is
// reported as a failed Result rather than an error so the caller can apply
// its retry policy uniformly.
func (t *HTTP) SendMessage(ctx context.Context, phone, body string) (*Result, error) {
	payload, err := json.Marshal(sendRequest{Phone: phone, Message: body})
	if err != nil {
		return nil, fmt.Errorf("marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.GatewayURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.config.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+t.config.APIToken)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}

	var parsed sendResponse
	// Some gateways return empty or non-JSON bodies on errors; a parse
	// failure still yields a usable Result from the status code.
	_ = json.Unmarshal(respBody, &parsed)

	result := &Result{
		MessageID: parsed.MessageID,
		Timestamp: time.Now(),
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result.Success = true
		return result, nil
	}

	result.Error = parsed.Error
	if result.Error == "" {
		result.Error = fmt.Sprintf("gateway returned status %d", resp.StatusCode)
	}
	return result, nil
}
