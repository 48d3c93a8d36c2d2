package analytics

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/correlator/internal/core/domain"
)

const (
	tokenPath  = "/auth/token"
	submitPath = "/analytics/api/data"

	defaultTimeout      = 10 * time.Second
	defaultRetryBackoff = time.Second
	tokenSkew           = 30 * time.Second
	userAgent           = "correlator/v1"
)

type Mode string

const (
	// ModeBatch posts {"batchNumber": ..., "data": [...]} once per attempt.
	ModeBatch Mode = "batch"
	// ModeSingle posts every merged record on its own.
	ModeSingle Mode = "single"
)

type Config struct {
	BaseURL      string
	Username     string
	Password     string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	Mode         Mode
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type batchRequest struct {
	BatchNumber string                `json:"batchNumber"`
	Data        []domain.MergedRecord `json:"data"`
}

// Client delivers merged records to the analytics sink. It caches one
// bearer token and refreshes it on expiry or when the sink answers 401.
type Client struct {
	httpClient *http.Client
	logger     *zap.Logger
	cfg        Config
	now        func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewClient(logger *zap.Logger, cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("analytics base URL is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid analytics base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("analytics base URL must use http or https scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("analytics base URL must include a host")
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeBatch
	}
	if cfg.Mode != ModeBatch && cfg.Mode != ModeSingle {
		return nil, fmt.Errorf("unknown analytics mode %q", cfg.Mode)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("analytics"),
		cfg:        cfg,
		now:        time.Now,
	}, nil
}

// GetToken returns the cached token, fetching a new one when none is cached
// or the cached one expired.
func (c *Client) GetToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && (c.expiresAt.IsZero() || c.now().Before(c.expiresAt)) {
		return c.token, nil
	}
	return c.fetchToken(ctx)
}

// InvalidateToken drops the cached token.
func (c *Client) InvalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

// fetchToken must be called with c.mu held.
func (c *Client) fetchToken(ctx context.Context) (string, error) {
	body, err := json.Marshal(tokenRequest{Username: c.cfg.Username, Password: c.cfg.Password})
	if err != nil {
		return "", &AuthError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+tokenPath, bytes.NewReader(body))
	if err != nil {
		return "", &AuthError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		tokenFetchTotal.WithLabelValues("error").Inc()
		return "", &AuthError{Err: err}
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		tokenFetchTotal.WithLabelValues("rejected").Inc()
		return "", &AuthError{StatusCode: resp.StatusCode}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		tokenFetchTotal.WithLabelValues("error").Inc()
		return "", &AuthError{Err: fmt.Errorf("decode token response: %w", err)}
	}
	if tr.AccessToken == "" {
		tokenFetchTotal.WithLabelValues("error").Inc()
		return "", &AuthError{Err: errors.New("token response has no access_token")}
	}

	c.token = tr.AccessToken
	c.expiresAt = time.Time{}
	if tr.ExpiresIn > 0 {
		ttl := time.Duration(tr.ExpiresIn) * time.Second
		if ttl > 2*tokenSkew {
			ttl -= tokenSkew
		}
		c.expiresAt = c.now().Add(ttl)
	}

	tokenFetchTotal.WithLabelValues("success").Inc()
	c.logger.Info("fetched analytics token", zap.Int("expires_in", tr.ExpiresIn))
	return c.token, nil
}

// SendBatch submits the records and returns the generated batch number.
// Failures come back as *AuthError or *DeliveryError.
func (c *Client) SendBatch(ctx context.Context, records []domain.MergedRecord) (string, error) {
	batchNumber := newBatchNumber()

	if c.cfg.Mode == ModeSingle {
		for i, rec := range records {
			if err := c.deliver(ctx, batchNumber, rec); err != nil {
				return batchNumber, partialFailure(batchNumber, i, err)
			}
		}
	} else if err := c.deliver(ctx, batchNumber, batchRequest{BatchNumber: batchNumber, Data: records}); err != nil {
		return batchNumber, err
	}

	c.logger.Info("sent batch to analytics",
		zap.String("batch_number", batchNumber),
		zap.Int("batch_size", len(records)),
	)
	return batchNumber, nil
}

// partialFailure records how many records were accepted before err.
func partialFailure(batchNumber string, accepted int, err error) error {
	if accepted == 0 {
		return err
	}
	var de *DeliveryError
	if errors.As(err, &de) {
		de.Accepted = accepted
		return de
	}
	return &DeliveryError{BatchNumber: batchNumber, Accepted: accepted, Err: err}
}

// deliver POSTs one payload with retry. Transport failures and 5xx are
// retried with linear backoff, a 401 triggers one token refresh.
func (c *Client) deliver(ctx context.Context, batchNumber string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		sendTotal.WithLabelValues("error").Inc()
		return &DeliveryError{BatchNumber: batchNumber, Err: fmt.Errorf("marshal payload: %w", err)}
	}

	var lastErr error
	attempts := 0
	for attempt := range c.cfg.MaxRetries + 1 {
		if attempt > 0 {
			timer := time.NewTimer(time.Duration(attempt) * c.cfg.RetryBackoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				sendTotal.WithLabelValues("error").Inc()
				return &DeliveryError{BatchNumber: batchNumber, Attempts: attempts, Err: ctx.Err()}
			}
			sendTotal.WithLabelValues("retry").Inc()
		}

		attempts++
		lastErr = c.post(ctx, body)
		if errors.Is(lastErr, ErrUnauthorized) {
			c.logger.Info("analytics token rejected, refreshing")
			c.InvalidateToken()
			lastErr = c.post(ctx, body)
		}
		if lastErr == nil {
			return nil
		}

		var ae *AuthError
		if errors.As(lastErr, &ae) && !isRetryable(lastErr) {
			sendTotal.WithLabelValues("error").Inc()
			return ae
		}
		if !isRetryable(lastErr) {
			break
		}

		c.logger.Debug("analytics send transient failure, will retry",
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}

	sendTotal.WithLabelValues("error").Inc()

	var ae *AuthError
	if errors.As(lastErr, &ae) {
		return ae
	}
	de := &DeliveryError{BatchNumber: batchNumber, Attempts: attempts, Err: lastErr}
	var se *statusError
	if errors.As(lastErr, &se) {
		de.StatusCode = se.code
	}
	return de
}

func (c *Client) post(ctx context.Context, body []byte) error {
	token, err := c.GetToken(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+submitPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start).Seconds()
	if err != nil {
		sendDuration.WithLabelValues("error").Observe(duration)
		return fmt.Errorf("post batch: %w", err)
	}
	defer drain(resp)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		sendTotal.WithLabelValues("success").Inc()
		sendDuration.WithLabelValues("success").Observe(duration)
		return nil
	}

	sendDuration.WithLabelValues("error").Observe(duration)
	return &statusError{
		code:      resp.StatusCode,
		retryable: resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func newBatchNumber() string {
	id := uuid.New()
	return strings.ToUpper(hex.EncodeToString(id[:4]))
}
