package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultAttemptTimeout = 10 * time.Second
	defaultMaxAttempts    = 3
	defaultBackoffStep    = 500 * time.Millisecond
	defaultUserAgent      = "studio-booking-assistant/0.1"
	maxErrorBodyBytes     = 2048
)

// Contact is optional identifying data forwarded with a chat request.
type Contact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// ChatRequest is the body sent to the booking chat endpoint.
type ChatRequest struct {
	Message             string         `json:"message"`
	StudioSlug          string         `json:"studioSlug"`
	SessionID           string         `json:"sessionId,omitempty"`
	TurnCount           int            `json:"turnCount,omitempty"`
	ConversationHistory []HistoryEntry `json:"conversationHistory,omitempty"`
	ExtractedEntities   map[string]any `json:"extractedEntities,omitempty"`
	Completed           bool           `json:"completed"`
	BookingRef          string         `json:"bookingRef,omitempty"`
	Contact             *Contact       `json:"contact,omitempty"`
}

// ChatResponse is the endpoint's reply.
type ChatResponse struct {
	Response          string         `json:"response"`
	Action            Action         `json:"action,omitempty"`
	ActionLabel       string         `json:"actionLabel,omitempty"`
	AvailableSlots    []Slot         `json:"availableSlots,omitempty"`
	DepositURL        string         `json:"depositUrl,omitempty"`
	BookingID         string         `json:"bookingId,omitempty"`
	NewDate           string         `json:"newDate,omitempty"`
	NewTime           string         `json:"newTime,omitempty"`
	ExtractedEntities map[string]any `json:"extractedEntities,omitempty"`
	IsDemoMode        bool           `json:"isDemoMode"`
}

// Payload collects the structured parts of the response.
func (r *ChatResponse) Payload() ActionPayload {
	return ActionPayload{
		Slots:      r.AvailableSlots,
		DepositURL: r.DepositURL,
		BookingRef: r.BookingID,
		NewDate:    r.NewDate,
		NewTime:    r.NewTime,
	}
}

// Sender delivers a chat request and returns the endpoint's reply.
type Sender interface {
	Send(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// NetworkError reports that the endpoint could not be reached after every attempt.
type NetworkError struct {
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("assistant: chat endpoint unreachable after %d attempts: %v", e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError reports that the endpoint answered but rejected the request.
type ServerError struct {
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("assistant: chat endpoint rejected request (status=%d): %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("assistant: chat endpoint rejected request (status=%d)", e.StatusCode)
}

// ClientMetrics receives per-attempt and per-request observations.
type ClientMetrics interface {
	ObserveAttempt(result string)
	ObserveRequest(outcome string, seconds float64)
}

// ClientConfig controls how the chat client behaves.
type ClientConfig struct {
	Endpoint       string
	Demo           bool
	AttemptTimeout time.Duration
	MaxAttempts    int
	BackoffStep    time.Duration
	HTTPClient     *http.Client
	Logger         *slog.Logger
	Metrics        ClientMetrics
	UserAgent      string
	// Sleep waits between attempts; tests replace it to observe backoff.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client posts chat requests with a per-attempt timeout and bounded retries.
type Client struct {
	endpoint       string
	httpClient     *http.Client
	attemptTimeout time.Duration
	maxAttempts    int
	backoffStep    time.Duration
	logger         *slog.Logger
	metrics        ClientMetrics
	userAgent      string
	sleep          func(ctx context.Context, d time.Duration) error
}

// NewClient creates a configured Client with sane defaults.
func NewClient(cfg ClientConfig) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("assistant: chat endpoint is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("assistant: invalid chat endpoint %q", endpoint)
	}
	if cfg.Demo {
		q := u.Query()
		q.Set("demo", "true")
		u.RawQuery = q.Encode()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.AttemptTimeout
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	backoff := cfg.BackoffStep
	if backoff <= 0 {
		backoff = defaultBackoffStep
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &Client{
		endpoint:       u.String(),
		httpClient:     httpClient,
		attemptTimeout: timeout,
		maxAttempts:    attempts,
		backoffStep:    backoff,
		logger:         logger,
		metrics:        cfg.Metrics,
		userAgent:      userAgent,
		sleep:          sleep,
	}, nil
}

// Send posts the request, retrying transport failures with linear backoff.
// A non-2xx answer is returned immediately as *ServerError.
func (c *Client) Send(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("assistant: marshal chat request: %w", err)
	}
	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, err := c.attempt(ctx, body)
		if err == nil {
			c.observeAttempt("ok")
			c.observeRequest("ok", start)
			return resp, nil
		}
		var serverErr *ServerError
		if errors.As(err, &serverErr) {
			c.observeAttempt("rejected")
			c.observeRequest("rejected", start)
			return nil, err
		}
		if ctx.Err() != nil {
			c.observeRequest("canceled", start)
			return nil, ctx.Err()
		}
		c.observeAttempt("transport_error")
		lastErr = err
		if attempt == c.maxAttempts {
			break
		}
		delay := time.Duration(attempt) * c.backoffStep
		c.logger.Warn("chat request retry",
			"attempt", attempt,
			"next_delay_ms", delay.Milliseconds(),
			"error", err,
		)
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			c.observeRequest("canceled", start)
			return nil, sleepErr
		}
	}
	c.observeRequest("unreachable", start)
	return nil, &NetworkError{Attempts: c.maxAttempts, Err: lastErr}
}

// attempt runs one request under its own timeout so an expired attempt cannot
// affect the next one.
func (c *Client) attempt(parent context.Context, body []byte) (*ChatResponse, error) {
	ctx, cancel := context.WithTimeout(parent, c.attemptTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("assistant: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("assistant: http error: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("assistant: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ServerError{StatusCode: resp.StatusCode, Body: truncateBody(data)}
	}
	var out ChatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &ServerError{StatusCode: resp.StatusCode, Body: "malformed response: " + err.Error()}
	}
	return &out, nil
}

func (c *Client) observeAttempt(result string) {
	if c.metrics != nil {
		c.metrics.ObserveAttempt(result)
	}
}

func (c *Client) observeRequest(outcome string, start time.Time) {
	if c.metrics != nil {
		c.metrics.ObserveRequest(outcome, time.Since(start).Seconds())
	}
}

func truncateBody(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > maxErrorBodyBytes {
		s = s[:maxErrorBodyBytes]
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
