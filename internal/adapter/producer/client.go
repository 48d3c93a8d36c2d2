package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Trigger string

const (
	TriggerFetchAll       Trigger = "fetch-all"
	TriggerFetchCustomers Trigger = "fetch-customers"
	TriggerFetchProducts  Trigger = "fetch-products"

	callbackPath   = "/api/callback/"
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 1 << 20
)

func ParseTrigger(s string) (Trigger, error) {
	switch t := Trigger(s); t {
	case TriggerFetchAll, TriggerFetchCustomers, TriggerFetchProducts:
		return t, nil
	default:
		return "", fmt.Errorf("unknown trigger %q", s)
	}
}

// Response is what the producer answered to a trigger.
type Response struct {
	StatusCode int
	Body       json.RawMessage
}

// Client asks the producer service to publish fresh customer or inventory
// data to the broker.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid producer base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("producer base URL must use http or https scheme, got %q", u.Scheme)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("producer"),
	}, nil
}

// Trigger POSTs to the producer callback endpoint. Non-2xx answers are
// returned as a Response, not as an error; only transport failures are.
func (c *Client) Trigger(ctx context.Context, t Trigger) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+callbackPath+string(t), nil)
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("trigger %s: %w", t, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Response{}, fmt.Errorf("read producer response: %w", err)
	}
	if !json.Valid(body) {
		// keep the passthrough JSON even when the producer answers plain text
		wrapped, _ := json.Marshal(map[string]string{"message": strings.TrimSpace(string(body))})
		body = wrapped
	}

	c.logger.Info("triggered producer",
		zap.String("trigger", string(t)),
		zap.Int("status", resp.StatusCode),
	)
	return Response{StatusCode: resp.StatusCode, Body: body}, nil
}
