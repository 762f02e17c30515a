// Package duckduckgo is a web and news search toolkit backed by DuckDuckGo.
package duckduckgo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/KamdynS/agent-playground/tools"
	fetch "github.com/KamdynS/agent-playground/tools/http"
)

const (
	// Name is the toolkit name used in agent definitions
	Name = "duckduckgo"

	FeatureSearch = "search"
	FeatureNews   = "news"

	DefaultHTMLURL = "https://html.duckduckgo.com/html/"
	DefaultSiteURL = "https://duckduckgo.com"

	defaultMaxResults = 5
	maxResultsLimit   = 20
)

var defaultFeatures = map[string]bool{
	FeatureSearch: true,
	FeatureNews:   true,
}

var vqdPattern = regexp.MustCompile(`vqd=["']?([0-9-]+)`)

// Config configures the toolkit. Zero values select public endpoints and all
// features.
type Config struct {
	Features map[string]bool
	HTMLURL  string
	SiteURL  string
	Timeout  time.Duration
	// Region is passed as the "kl" parameter, e.g. "us-en"
	Region string
}

// Result is a single web search hit
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// NewsResult is a single news hit
type NewsResult struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Body   string `json:"body,omitempty"`
	Source string `json:"source,omitempty"`
	Date   string `json:"date,omitempty"`
	Image  string `json:"image,omitempty"`
}

// Toolkit exposes duckduckgo_search and duckduckgo_news
type Toolkit struct {
	features map[string]bool
	client   *fetch.Client
	htmlURL  string
	siteURL  string
	region   string
}

// New creates the toolkit
func New(cfg Config) (*Toolkit, error) {
	features, err := tools.Features(defaultFeatures, cfg.Features)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", Name, err)
	}
	if cfg.HTMLURL == "" {
		cfg.HTMLURL = DefaultHTMLURL
	}
	if cfg.SiteURL == "" {
		cfg.SiteURL = DefaultSiteURL
	}
	if cfg.Region == "" {
		cfg.Region = "wt-wt"
	}
	return &Toolkit{
		features: features,
		client:   fetch.NewClient(cfg.Timeout),
		htmlURL:  cfg.HTMLURL,
		siteURL:  strings.TrimRight(cfg.SiteURL, "/"),
		region:   cfg.Region,
	}, nil
}

func (t *Toolkit) Name() string { return Name }

func (t *Toolkit) Features() map[string]bool {
	out := make(map[string]bool, len(t.features))
	for k, v := range t.features {
		out[k] = v
	}
	return out
}

type searchArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

func (a searchArgs) normalize() (searchArgs, error) {
	a.Query = strings.TrimSpace(a.Query)
	if a.Query == "" {
		return a, errors.New("query is required")
	}
	if a.MaxResults <= 0 {
		a.MaxResults = defaultMaxResults
	}
	if a.MaxResults > maxResultsLimit {
		a.MaxResults = maxResultsLimit
	}
	return a, nil
}

var searchSchema = tools.Object(map[string]any{
	"query":       tools.Prop("string", "The query to search for."),
	"max_results": tools.Prop("integer", "The maximum number of results to return (default 5)."),
}, "query")

func (t *Toolkit) Tools() []tools.Tool {
	var out []tools.Tool
	if t.features[FeatureSearch] {
		out = append(out, tools.NewFunc("duckduckgo_search",
			"Use this function to search DuckDuckGo for a query. Returns a JSON list of results with title, url and snippet.",
			searchSchema,
			func(ctx context.Context, in searchArgs) (any, error) {
				in, err := in.normalize()
				if err != nil {
					return nil, err
				}
				return t.Search(ctx, in.Query, in.MaxResults)
			}))
	}
	if t.features[FeatureNews] {
		out = append(out, tools.NewFunc("duckduckgo_news",
			"Use this function to get the latest news from DuckDuckGo. Returns a JSON list of articles.",
			searchSchema,
			func(ctx context.Context, in searchArgs) (any, error) {
				in, err := in.normalize()
				if err != nil {
					return nil, err
				}
				return t.News(ctx, in.Query, in.MaxResults)
			}))
	}
	return out
}

// Search scrapes the HTML results page
func (t *Toolkit) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	doc, err := t.client.GetDocument(ctx, t.htmlURL, url.Values{"q": {query}, "kl": {t.region}})
	if err != nil {
		return nil, fmt.Errorf("duckduckgo search: %w", err)
	}

	results := make([]Result, 0, maxResults)
	doc.Find("div.result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.HasClass("result--ad") {
			return true
		}
		link := s.Find("a.result__a").First()
		title := strings.TrimSpace(link.Text())
		href, ok := link.Attr("href")
		if !ok || title == "" {
			return true
		}
		results = append(results, Result{
			Title:   title,
			URL:     resolveRedirect(href),
			Snippet: strings.TrimSpace(s.Find(".result__snippet").First().Text()),
		})
		return len(results) < maxResults
	})
	return results, nil
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg= click-through links
func resolveRedirect(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

type newsResponse struct {
	Results []struct {
		Date    int64  `json:"date"`
		Title   string `json:"title"`
		Excerpt string `json:"excerpt"`
		URL     string `json:"url"`
		Image   string `json:"image"`
		Source  string `json:"source"`
	} `json:"results"`
}

// News queries the news endpoint. It first obtains the vqd token the
// endpoint requires from the regular search page.
func (t *Toolkit) News(ctx context.Context, query string, maxResults int) ([]NewsResult, error) {
	vqd, err := t.token(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo news: %w", err)
	}

	var resp newsResponse
	params := url.Values{
		"q":     {query},
		"vqd":   {vqd},
		"l":     {t.region},
		"o":     {"json"},
		"noamp": {"1"},
	}
	if err := t.client.GetJSON(ctx, t.siteURL+"/news.js", params, &resp); err != nil {
		return nil, fmt.Errorf("duckduckgo news: %w", err)
	}

	out := make([]NewsResult, 0, min(maxResults, len(resp.Results)))
	for _, r := range resp.Results {
		if len(out) == maxResults {
			break
		}
		item := NewsResult{
			Title:  r.Title,
			URL:    r.URL,
			Body:   r.Excerpt,
			Source: r.Source,
			Image:  r.Image,
		}
		if r.Date > 0 {
			item.Date = time.Unix(r.Date, 0).UTC().Format(time.RFC3339)
		}
		out = append(out, item)
	}
	return out, nil
}

func (t *Toolkit) token(ctx context.Context, query string) (string, error) {
	resp, err := t.client.Get(ctx, t.siteURL+"/", url.Values{"q": {query}})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	page, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	m := vqdPattern.FindSubmatch(page)
	if m == nil {
		return "", errors.New("search token not found")
	}
	return string(m[1]), nil
}

var _ tools.Toolkit = (*Toolkit)(nil)
