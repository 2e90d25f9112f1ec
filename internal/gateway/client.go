package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"payouts/internal/config"
)

// Client talks to the payment provider's transfer API. Every mutation
// carries an idempotency key so a retried call cannot move money twice.
type Client struct {
	BaseURL string
	APIKey  string

	HTTP    *http.Client
	breaker *gobreaker.CircuitBreaker
}

func New(cfg config.GatewayConfig) *Client {
	st := gobreaker.Settings{Name: "payment-gateway"}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		if counts.Requests < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		HTTP:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

type TransferRequest struct {
	Amount         decimal.Decimal
	Currency       string
	Destination    string
	Description    string
	IdempotencyKey string
}

type Transfer struct {
	ID       string          `json:"id"`
	Status   string          `json:"status"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// APIError is a non-2xx answer from the gateway. The status code decides
// whether a failed transfer may be retried.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return "gateway error"
	}
	if strings.TrimSpace(e.Code) != "" {
		return fmt.Sprintf("gateway http %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway http %d: %s", e.StatusCode, e.Message)
}

// IsPermanent reports whether the gateway rejected the transfer outright.
// A decline never succeeds on retry; timeouts, rate limits, 5xx and broken
// transport all might.
func IsPermanent(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}

func (c *Client) CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return nil, errors.New("gateway base url is empty")
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return nil, errors.New("transfer idempotency key is empty")
	}
	if strings.TrimSpace(req.Destination) == "" {
		return nil, errors.New("transfer destination is empty")
	}

	body, _ := json.Marshal(map[string]any{
		"amount":      req.Amount.StringFixed(2),
		"currency":    strings.ToUpper(strings.TrimSpace(req.Currency)),
		"destination": strings.TrimSpace(req.Destination),
		"description": req.Description,
	})
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.APIKey))
	hreq.Header.Set("Idempotency-Key", strings.TrimSpace(req.IdempotencyKey))

	return c.do(hreq)
}

func (c *Client) GetTransfer(ctx context.Context, id string) (*Transfer, error) {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return nil, errors.New("gateway base url is empty")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("transfer id is empty")
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/v1/transfers/"+id, nil)
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.APIKey))

	return c.do(hreq)
}

func (c *Client) do(req *http.Request) (*Transfer, error) {
	out, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.httpClient().Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()
		b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := parseAPIError(resp.StatusCode, b)
			// A decline is a valid answer from a healthy gateway; only
			// transport failures and 5xx count against the breaker.
			if resp.StatusCode >= 500 {
				return nil, apiErr
			}
			return apiErr, nil
		}
		var t Transfer
		if err := json.Unmarshal(b, &t); err != nil {
			return nil, err
		}
		return &t, nil
	})
	if err != nil {
		return nil, err
	}
	switch v := out.(type) {
	case *Transfer:
		return v, nil
	case *APIError:
		return nil, v
	default:
		return nil, errors.New("gateway returned an unexpected payload")
	}
}

func parseAPIError(status int, body []byte) *APIError {
	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Error   struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &parsed)
	code := strings.TrimSpace(parsed.Code)
	msg := strings.TrimSpace(parsed.Message)
	if code == "" {
		code = strings.TrimSpace(parsed.Error.Code)
	}
	if msg == "" {
		msg = strings.TrimSpace(parsed.Error.Message)
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	return &APIError{StatusCode: status, Code: code, Message: msg}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 15 * time.Second}
}
