package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL generative language API root
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// DefaultModel used when none is configured
const DefaultModel = "gemini-1.5-flash"

var (
	// ErrNoAPIKey no key configured
	ErrNoAPIKey = errors.New("gemini: api key not configured")
	// ErrEmptyResponse response carried no candidate text
	ErrEmptyResponse = errors.New("gemini: empty response")
)

// Config client settings
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Client calls models/<model>:generateContent
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewClient builds a client; zero values fall back to defaults
func NewClient(cfg Config) *Client {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		model:   model,
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
	}
}

// Model configured model name
func (c *Client) Model() string { return c.model }

// Enabled reports whether an API key is set
func (c *Client) Enabled() bool { return c.apiKey != "" }

// GenerateContent sends one text prompt and returns the first candidate's text
func (c *Client) GenerateContent(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", ErrNoAPIKey
	}
	body, err := json.Marshal(generateRequest{Contents: []content{{Parts: []part{{Text: prompt}}}}})
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.baseURL, url.PathEscape(c.model), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// the url carries the key
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return "", fmt.Errorf("gemini: request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("gemini: read: %w", err)
	}

	var out generateResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			return "", fmt.Errorf("gemini: status %d: %s", resp.StatusCode, out.Error.Message)
		}
		return "", fmt.Errorf("gemini: status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("gemini: decode: %w", decodeErr)
	}
	if len(out.Candidates) == 0 {
		return "", ErrEmptyResponse
	}

	var b strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
