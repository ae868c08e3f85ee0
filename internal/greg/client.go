package greg

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL greg.app site root
const DefaultBaseURL = "http://greg.app"

// DefaultMaxPageBytes pages are cut after this many bytes
const DefaultMaxPageBytes int64 = 512 * 1024

const userAgent = "plantcare-hub/1.0"

// Config client settings
type Config struct {
	BaseURL           string
	Username          string
	Timeout           time.Duration
	MaxPageBytes      int64
	RequestsPerSecond float64
}

// StatusError non-2xx response from greg.app
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("greg: GET %s: status %d", e.URL, e.StatusCode)
}

// Client fetches profile and plant pages of one greg.app user
type Client struct {
	baseURL  string
	mu       sync.RWMutex
	username string
	maxBytes int64
	http     *http.Client
	limiter  *rate.Limiter
}

// NewClient builds a client; zero values fall back to defaults
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	maxBytes := cfg.MaxPageBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPageBytes
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		baseURL:  base,
		username: strings.TrimSpace(cfg.Username),
		maxBytes: maxBytes,
		http:     &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// Username configured greg.app account
func (c *Client) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

// SetUsername switches the account; later fetches use the new profile
func (c *Client) SetUsername(username string) {
	c.mu.Lock()
	c.username = strings.TrimSpace(username)
	c.mu.Unlock()
}

// ProfileURL public profile page of the user
func (c *Client) ProfileURL() string {
	return c.baseURL + "/" + strings.ToLower(c.Username()) + "/"
}

// PlantURL page of one plant
func (c *Client) PlantURL(id string) string {
	return c.baseURL + "/" + strings.ToLower(c.Username()) + "/plants/" + id + "/"
}

// FetchProfile returns the profile page HTML
func (c *Client) FetchProfile(ctx context.Context) (string, error) {
	if c.Username() == "" {
		return "", ErrNoUsername
	}
	return c.get(ctx, c.ProfileURL())
}

// FetchPlant returns the plant page HTML
func (c *Client) FetchPlant(ctx context.Context, id string) (string, error) {
	if c.Username() == "" {
		return "", ErrNoUsername
	}
	return c.get(ctx, c.PlantURL(id))
}

func (c *Client) get(ctx context.Context, url string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("greg: GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes))
	if err != nil {
		return "", fmt.Errorf("greg: read %s: %w", url, err)
	}
	return string(body), nil
}
