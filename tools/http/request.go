// Package http is the fetch client shared by the toolkits.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DefaultUserAgent is sent when Client.UserAgent is empty. Some endpoints
// reject requests without a browser-like agent.
const DefaultUserAgent = "Mozilla/5.0 (compatible; agent-playground/1.0)"

const maxErrorBody = 512

// StatusError is returned for non-2xx responses
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d: %s", e.URL, e.Status, e.Body)
}

// Client performs GET requests on behalf of tools
type Client struct {
	http      *http.Client
	UserAgent string
	Headers   map[string]string
}

// NewClient creates a client with the given timeout (30s when zero)
func NewClient(timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		UserAgent: DefaultUserAgent,
	}
}

// WithCookies gives the client a cookie jar so session cookies set by one
// response are sent on later requests.
func (c *Client) WithCookies() *Client {
	jar, _ := cookiejar.New(nil)
	c.http.Jar = jar
	return c
}

// Get fetches rawURL with params appended and returns the open response.
// The caller must close the body.
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values) (*http.Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	ua := c.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{URL: u.Redacted(), Status: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}

// GetJSON fetches rawURL and decodes the JSON body into v
func (c *Client) GetJSON(ctx context.Context, rawURL string, params url.Values, v any) error {
	resp, err := c.Get(ctx, rawURL, params)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// GetDocument fetches rawURL and parses the body as HTML
func (c *Client) GetDocument(ctx context.Context, rawURL string, params url.Values) (*goquery.Document, error) {
	resp, err := c.Get(ctx, rawURL, params)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return doc, nil
}

// GetText fetches rawURL and returns the trimmed body
func (c *Client) GetText(ctx context.Context, rawURL string, params url.Values) (string, error) {
	resp, err := c.Get(ctx, rawURL, params)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	return strings.TrimSpace(string(body)), nil
}
