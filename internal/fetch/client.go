// Package fetch is the outbound request layer shared by all supplier
// adapters: base-URL resolution, default header merging, typed JSON and
// HTML accessors, and the per-search request budget that keeps a
// runaway adapter from issuing unbounded calls.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

const defaultMaxBody = 4 * 1024 * 1024

type Config struct {
	BaseURL   string
	Client    *http.Client
	UserAgent string
	Headers   http.Header
	Budget    *Budget
	MaxBody   int64
}

type Client struct {
	base    *url.URL
	http    *http.Client
	headers http.Header
	budget  *Budget
	maxBody int64
}

type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func NewClient(cfg Config) (*Client, error) {
	c := &Client{
		http:    cfg.Client,
		budget:  cfg.Budget,
		maxBody: cfg.MaxBody,
		headers: make(http.Header),
	}
	if raw := strings.TrimSpace(cfg.BaseURL); raw != "" {
		base, err := url.Parse(raw)
		if err != nil || base.Host == "" {
			return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
		}
		c.base = base
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 20 * time.Second}
	}
	if c.maxBody <= 0 {
		c.maxBody = defaultMaxBody
	}
	for key, values := range cfg.Headers {
		for _, value := range values {
			c.headers.Add(key, value)
		}
	}
	if cfg.UserAgent != "" {
		c.headers.Set("User-Agent", cfg.UserAgent)
	}
	return c, nil
}

func (c *Client) BaseURL() string {
	if c.base == nil {
		return ""
	}
	return c.base.String()
}

// Resolve turns a relative path into an absolute URL against the base.
// Absolute inputs pass through, which is how cross-host API calls from
// a supplier's primary domain work.
func (c *Client) Resolve(raw string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	if c.base == nil {
		return "", fmt.Errorf("relative url %q without a base", raw)
	}
	return c.base.ResolveReference(ref).String(), nil
}

// Do issues one request. Every call checks the shared cancellation
// signal and consumes one unit of the request budget; past the ceiling
// it fails fast without touching the network.
func (c *Client) Do(ctx context.Context, method, rawurl string, body []byte, headers http.Header) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.budget.Use(); err != nil {
		return nil, err
	}
	target, err := c.Resolve(rawurl)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	for key, values := range c.headers {
		req.Header[key] = append([]string(nil), values...)
	}
	for key, values := range headers {
		req.Header[key] = append([]string(nil), values...)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			URL:        target,
			StatusCode: resp.StatusCode,
			Snippet:    snippet(payload),
		}
	}
	return &Response{
		URL:        target,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       payload,
	}, nil
}

func (c *Client) Get(ctx context.Context, rawurl string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, rawurl, nil, nil)
}

// GetJSONBytes fetches a JSON document and returns the raw payload for
// callers that pick fields dynamically.
func (c *Client) GetJSONBytes(ctx context.Context, rawurl string) ([]byte, error) {
	resp, err := c.Do(ctx, http.MethodGet, rawurl, nil, http.Header{
		"Accept": {"application/json"},
	})
	if err != nil {
		return nil, err
	}
	if err := assertJSON(resp); err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) GetJSON(ctx context.Context, rawurl string, v any) error {
	payload, err := c.GetJSONBytes(ctx, rawurl)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode %s: %w", rawurl, err)
	}
	return nil
}

// PostJSONBytes sends a JSON body and returns the raw JSON response.
func (c *Client) PostJSONBytes(ctx context.Context, rawurl string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	resp, err := c.Do(ctx, http.MethodPost, rawurl, body, http.Header{
		"Accept":       {"application/json"},
		"Content-Type": {"application/json"},
	})
	if err != nil {
		return nil, err
	}
	if err := assertJSON(resp); err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) PostJSON(ctx context.Context, rawurl string, payload, v any) error {
	body, err := c.PostJSONBytes(ctx, rawurl, payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", rawurl, err)
	}
	return nil
}

// GetHTMLBytes fetches an HTML page and returns its bytes decoded to
// UTF-8 regardless of the page's declared charset. The decoded form is
// what the detail cache persists.
func (c *Client) GetHTMLBytes(ctx context.Context, rawurl string) ([]byte, error) {
	resp, err := c.Do(ctx, http.MethodGet, rawurl, nil, http.Header{
		"Accept": {"text/html,application/xhtml+xml"},
	})
	if err != nil {
		return nil, err
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "html") {
		return nil, &ContentTypeError{URL: resp.URL, Want: "text/html", Got: contentType}
	}
	reader, err := charset.NewReader(bytes.NewReader(resp.Body), contentType)
	if err != nil {
		return nil, fmt.Errorf("charset of %s: %w", resp.URL, err)
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", resp.URL, err)
	}
	return decoded, nil
}

func (c *Client) GetHTML(ctx context.Context, rawurl string) (*goquery.Document, error) {
	payload, err := c.GetHTMLBytes(ctx, rawurl)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rawurl, err)
	}
	return doc, nil
}

func assertJSON(resp *Response) error {
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "json") || strings.Contains(contentType, "javascript") {
		return nil
	}
	return &ContentTypeError{URL: resp.URL, Want: "application/json", Got: contentType}
}

func snippet(payload []byte) string {
	s := strings.TrimSpace(string(payload))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
