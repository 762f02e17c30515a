package yfinance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	fetch "github.com/KamdynS/agent-playground/tools/http"
)

const (
	DefaultBaseURL   = "https://query2.finance.yahoo.com"
	DefaultCookieURL = "https://fc.yahoo.com"
)

// client talks to the Yahoo Finance JSON endpoints. quoteSummary needs a
// session cookie plus a matching crumb; both are obtained lazily and cached.
type client struct {
	http      *fetch.Client
	baseURL   string
	cookieURL string

	mu    sync.Mutex
	crumb string
}

func newClient(baseURL, cookieURL string, timeout time.Duration) *client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if cookieURL == "" {
		cookieURL = DefaultCookieURL
	}
	return &client{
		http:      fetch.NewClient(timeout).WithCookies(),
		baseURL:   strings.TrimRight(baseURL, "/"),
		cookieURL: cookieURL,
	}
}

// num is Yahoo's {"raw": 1.23, "fmt": "1.23"} value shape
type num struct {
	Raw *float64 `json:"raw"`
	Fmt string   `json:"fmt"`
}

func (n num) ptr() *float64 { return n.Raw }

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *yahooError   `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol             string  `json:"symbol"`
		Currency           string  `json:"currency"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
		PreviousClose      float64 `json:"chartPreviousClose"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

type yahooError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *yahooError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Bar is one OHLCV row
type Bar struct {
	Date   string   `json:"date"`
	Open   *float64 `json:"open,omitempty"`
	High   *float64 `json:"high,omitempty"`
	Low    *float64 `json:"low,omitempty"`
	Close  *float64 `json:"close,omitempty"`
	Volume *float64 `json:"volume,omitempty"`
}

func (c *client) chart(ctx context.Context, symbol, period, interval string) (*chartResult, []Bar, error) {
	var resp chartResponse
	params := url.Values{"range": {period}, "interval": {interval}}
	if err := c.http.GetJSON(ctx, c.baseURL+"/v8/finance/chart/"+url.PathEscape(symbol), params, &resp); err != nil {
		return nil, nil, err
	}
	if resp.Chart.Error != nil {
		return nil, nil, resp.Chart.Error
	}
	if len(resp.Chart.Result) == 0 {
		return nil, nil, fmt.Errorf("no chart data for %s", symbol)
	}

	res := &resp.Chart.Result[0]
	var bars []Bar
	if len(res.Indicators.Quote) > 0 {
		q := res.Indicators.Quote[0]
		at := func(s []*float64, i int) *float64 {
			if i < len(s) {
				return s[i]
			}
			return nil
		}
		bars = make([]Bar, 0, len(res.Timestamp))
		for i, ts := range res.Timestamp {
			bars = append(bars, Bar{
				Date:   time.Unix(ts, 0).UTC().Format(time.DateOnly),
				Open:   at(q.Open, i),
				High:   at(q.High, i),
				Low:    at(q.Low, i),
				Close:  at(q.Close, i),
				Volume: at(q.Volume, i),
			})
		}
	}
	return res, bars, nil
}

type summaryResponse struct {
	QuoteSummary struct {
		Result []map[string]json.RawMessage `json:"result"`
		Error  *yahooError                  `json:"error"`
	} `json:"quoteSummary"`
}

// summary fetches quoteSummary modules and decodes each requested module
// into the matching pointer in out.
func (c *client) summary(ctx context.Context, symbol string, out map[string]any) error {
	modules := make([]string, 0, len(out))
	for m := range out {
		modules = append(modules, m)
	}

	result, err := c.summaryModules(ctx, symbol, strings.Join(modules, ","))
	var se *fetch.StatusError
	if errors.As(err, &se) && se.Status == http.StatusUnauthorized {
		c.resetCrumb()
		result, err = c.summaryModules(ctx, symbol, strings.Join(modules, ","))
	}
	if err != nil {
		return err
	}

	for name, dst := range out {
		raw, ok := result[name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
	}
	return nil
}

func (c *client) summaryModules(ctx context.Context, symbol, modules string) (map[string]json.RawMessage, error) {
	crumb, err := c.getCrumb(ctx)
	if err != nil {
		return nil, fmt.Errorf("crumb: %w", err)
	}

	var resp summaryResponse
	params := url.Values{"modules": {modules}, "crumb": {crumb}}
	if err := c.http.GetJSON(ctx, c.baseURL+"/v10/finance/quoteSummary/"+url.PathEscape(symbol), params, &resp); err != nil {
		return nil, err
	}
	if resp.QuoteSummary.Error != nil {
		return nil, resp.QuoteSummary.Error
	}
	if len(resp.QuoteSummary.Result) == 0 {
		return nil, fmt.Errorf("no data for %s", symbol)
	}
	return resp.QuoteSummary.Result[0], nil
}

func (c *client) getCrumb(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.crumb != "" {
		return c.crumb, nil
	}

	// The cookie host answers with an error status but still sets the cookie.
	if resp, err := c.http.Get(ctx, c.cookieURL, nil); err == nil {
		resp.Body.Close()
	} else if !isStatusError(err) {
		return "", err
	}

	crumb, err := c.http.GetText(ctx, c.baseURL+"/v1/test/getcrumb", nil)
	if err != nil {
		return "", err
	}
	if crumb == "" {
		return "", errors.New("empty crumb")
	}
	c.crumb = crumb
	return crumb, nil
}

func (c *client) resetCrumb() {
	c.mu.Lock()
	c.crumb = ""
	c.mu.Unlock()
}

func isStatusError(err error) bool {
	var se *fetch.StatusError
	return errors.As(err, &se)
}

type searchResponse struct {
	News []struct {
		UUID                string `json:"uuid"`
		Title               string `json:"title"`
		Publisher           string `json:"publisher"`
		Link                string `json:"link"`
		ProviderPublishTime int64  `json:"providerPublishTime"`
		Type                string `json:"type"`
	} `json:"news"`
}

func (c *client) news(ctx context.Context, symbol string, count int) (*searchResponse, error) {
	var resp searchResponse
	params := url.Values{
		"q":           {symbol},
		"quotesCount": {"0"},
		"newsCount":   {fmt.Sprint(count)},
	}
	if err := c.http.GetJSON(ctx, c.baseURL+"/v1/finance/search", params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
