// Package enphase is a small client for the Enlighten Systems API (v2),
// enough to download a single system's five-minute production intervals.
package enphase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.enphaseenergy.com/api/v2"

// IntervalLength is the span covered by one stats interval. The API reports
// each interval by its end time.
const IntervalLength = 300 * time.Second

// APIError is a non-200 response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed if repeated.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ae *APIError
	if !errors.As(err, &ae) {
		return true // network errors are retryable
	}
	return ae.Retryable()
}

type System struct {
	SystemID   int64  `json:"system_id"`
	SystemName string `json:"system_name"`
	Timezone   string `json:"timezone"`
	Status     string `json:"status"`
}

type systemsResponse struct {
	Systems []System `json:"systems"`
}

// Interval is one five-minute production sample.
type Interval struct {
	EndAt            int64 `json:"end_at"`
	DevicesReporting int   `json:"devices_reporting"`
	Powr             int64 `json:"powr"`
	Enwh             int64 `json:"enwh"`
}

// Start returns the beginning of the interval.
func (i Interval) Start() time.Time {
	return time.Unix(i.EndAt, 0).UTC().Add(-IntervalLength)
}

type StatsResponse struct {
	SystemID     int64      `json:"system_id"`
	TotalDevices int        `json:"total_devices"`
	Intervals    []Interval `json:"intervals"`
}

// Client talks to the Enlighten API with an API key and user id.
type Client struct {
	baseURL string
	apiKey  string
	userID  string

	http        *http.Client
	logger      *log.Logger
	delay       time.Duration
	attempts    int
	backoffBase time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(logger *log.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRequestDelay sets the pause between consecutive stats requests. The
// API allows ten requests a minute.
func WithRequestDelay(d time.Duration) Option {
	return func(c *Client) { c.delay = d }
}

// WithRetries sets how many times a request is attempted and the first
// backoff; later waits double.
func WithRetries(attempts int, backoff time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		c.backoffBase = backoff
	}
}

func New(baseURL, apiKey, userID string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		userID:      userID,
		http:        &http.Client{Timeout: 30 * time.Second},
		logger:      log.Default(),
		delay:       7 * time.Second,
		attempts:    5,
		backoffBase: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Systems lists the systems visible to the user.
func (c *Client) Systems(ctx context.Context) ([]System, error) {
	var resp systemsResponse
	if err := c.get(ctx, "/systems", nil, &resp); err != nil {
		return nil, fmt.Errorf("listing systems: %w", err)
	}
	return resp.Systems, nil
}

// SystemID returns the id of the user's only system.
func (c *Client) SystemID(ctx context.Context) (int64, error) {
	systems, err := c.Systems(ctx)
	if err != nil {
		return 0, err
	}
	if len(systems) != 1 {
		return 0, fmt.Errorf("expected exactly one system, but found %d", len(systems))
	}
	return systems[0].SystemID, nil
}

// Stats returns the production intervals of systemID between start and end.
func (c *Client) Stats(ctx context.Context, systemID int64, start, end time.Time) (*StatsResponse, error) {
	q := url.Values{}
	q.Set("start_at", strconv.FormatInt(start.Unix(), 10))
	q.Set("end_at", strconv.FormatInt(end.Unix(), 10))

	var resp StatsResponse
	path := fmt.Sprintf("/systems/%d/stats", systemID)
	if err := c.get(ctx, path, q, &resp); err != nil {
		return nil, fmt.Errorf("fetch stats for %s: %w", start.UTC().Format("2006-01-02"), err)
	}
	return &resp, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if q == nil {
		q = url.Values{}
	}
	q.Set("key", c.apiKey)
	q.Set("user_id", c.userID)
	u := c.baseURL + path + "?" + q.Encode()

	var body []byte
	var err error
	for attempt := range c.attempts {
		body, err = c.doRequest(ctx, u)
		if err == nil {
			break
		}
		if !isRetryable(err) || attempt == c.attempts-1 {
			break
		}
		wait := time.Duration(math.Pow(2, float64(attempt))) * c.backoffBase
		c.logger.Printf("  retrying in %s: %v", wait, err)
		if serr := sleep(ctx, wait); serr != nil {
			return serr
		}
	}
	if err != nil {
		if isRetryable(err) && c.attempts > 1 {
			return fmt.Errorf("after %d attempts: %w", c.attempts, err)
		}
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing JSON: %w", err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "authentication failed, check the API key and user id"}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
