package hospital

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/hcc-mvi-risk-server/internal/domain"
)

// ErrNotConfigured is returned when no hospital API URL is set.
var ErrNotConfigured = errors.New("hospital API is not configured")

// StatusError is a non-2xx response from the hospital API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hospital API returned %d: %s", e.StatusCode, e.Body)
}

// retryable reports whether another attempt could succeed.
func (e *StatusError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client talks to a hospital REST API with bearer authentication. Calls are
// rate limited and guarded by a circuit breaker.
type Client struct {
	baseURL    string
	apiKey     string
	hospitalID string
	retries    int
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger
}

// NewClient creates a hospital API client.
func NewClient(cfg domain.HospitalConfig, logger *logrus.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrNotConfigured
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid hospital API URL: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 5
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "HospitalAPI",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from.String(),
				"to_state":        to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		hospitalID: cfg.HospitalID,
		retries:    cfg.RetryCount,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		breaker:    breaker,
		logger:     logger,
	}, nil
}

// TestConnection checks the API's status endpoint.
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.get(ctx, "/status", nil)
	return err
}

// FetchPatients retrieves up to limit raw patient records for the configured hospital.
func (c *Client) FetchPatients(ctx context.Context, limit int) ([]map[string]any, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("hospital_id", c.hospitalID)

	body, err := c.get(ctx, "/patients", query)
	if err != nil {
		return nil, err
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var patients []map[string]any
	if err := decoder.Decode(&patients); err != nil {
		return nil, fmt.Errorf("decoding patients response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"hospital_id": c.hospitalID,
		"count":       len(patients),
	}).Info("Fetched patients from hospital API")

	return patients, nil
}

// get performs a GET through the breaker, retrying transient failures.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		var lastErr error
		for attempt := 0; attempt <= c.retries; attempt++ {
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
				}
			}

			body, err := c.do(ctx, path, query)
			if err == nil {
				return body, nil
			}
			lastErr = err

			var statusErr *StatusError
			if errors.As(err, &statusErr) && !statusErr.retryable() {
				break
			}
			if ctx.Err() != nil {
				break
			}
			c.logger.WithError(err).WithFields(logrus.Fields{
				"path":    path,
				"attempt": attempt + 1,
			}).Debug("Hospital API request failed")
		}
		return nil, lastErr
	})
	if err != nil {
		return nil, fmt.Errorf("hospital API %s: %w", path, err)
	}
	return result.([]byte), nil
}

func (c *Client) do(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet}
	}
	return body, nil
}
