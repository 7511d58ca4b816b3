package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/textflare/dispatch/internal/pkg/logger"
)

// GatewaySender sends messages through an HTTP message gateway.
type GatewaySender struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewGatewaySender creates a gateway sender for the given base URL.
func NewGatewaySender(baseURL, apiKey string, timeout time.Duration) *GatewaySender {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GatewaySender{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type gatewaySendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`

	SimulateTyping   bool `json:"simulate_typing,omitempty"`
	TypingDurationMs int  `json:"typing_duration_ms,omitempty"`
}

type gatewaySendResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
}

// Send posts the message to the gateway and returns its message id.
func (g *GatewaySender) Send(ctx context.Context, msg Message) (string, error) {
	payload, err := json.Marshal(gatewaySendRequest{
		To:               msg.To,
		Body:             msg.Body,
		SimulateTyping:   msg.SimulateTyping,
		TypingDurationMs: msg.TypingDurationMs,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("gateway error (status %d): %s", resp.StatusCode, string(body))
	}

	var result gatewaySendResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	if result.MessageID == "" {
		return "", fmt.Errorf("gateway returned no message id")
	}

	log.Printf("[Transport] Sent message %s to %s", result.MessageID, logger.RedactPhone(msg.To))
	return result.MessageID, nil
}

// Ping checks gateway health via GET /v1/health.
func (g *GatewaySender) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v1/health", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway health check failed (status %d)", resp.StatusCode)
	}
	return nil
}
