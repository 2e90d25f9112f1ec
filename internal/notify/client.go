package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"payouts/internal/config"
)

const (
	EventPayoutCompleted  = "payout.completed"
	EventPayoutHeld       = "payout.held"
	EventPayoutFailed     = "payout.failed"
	EventPayoutRejected   = "payout.rejected"
	EventReserveReleased  = "reserve.released"
	EventReserveForfeited = "reserve.forfeited"
)

// Client posts lifecycle events to the ops notification service. Delivery
// is best effort: callers log a failed send and move on, the payout
// pipeline never blocks on it. An empty base URL disables sending.
type Client struct {
	BaseURL string
	APIKey  string

	HTTP *http.Client
}

func New(cfg config.NotifyConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data"`
}

func (c *Client) Send(ctx context.Context, eventType string, data map[string]any) error {
	if c == nil {
		return nil
	}
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return nil
	}
	evt := event{
		ID:         uuid.NewString(),
		Type:       strings.TrimSpace(eventType),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/v1/events", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(c.APIKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bb, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return fmt.Errorf("notify http %d: %s", resp.StatusCode, strings.TrimSpace(string(bb)))
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 5 * time.Second}
}
