package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	DefaultDuckDuckGoURL = "https://html.duckduckgo.com/html/"
	DefaultUserAgent     = "Mozilla/5.0 (compatible; nexushealth/1.0)"
)

// ErrNoResults is returned when a search succeeds but yields nothing usable.
var ErrNoResults = errors.New("search returned no results")

// Result is one web search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Searcher runs a web search and returns at most limit results.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// SearcherFunc adapts a function to Searcher.
type SearcherFunc func(ctx context.Context, query string, limit int) ([]Result, error)

func (f SearcherFunc) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	return f(ctx, query, limit)
}

// DuckDuckGo scrapes the DuckDuckGo HTML endpoint.
type DuckDuckGo struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

func NewDuckDuckGo(baseURL, userAgent string, client *http.Client) *DuckDuckGo {
	if baseURL == "" {
		baseURL = DefaultDuckDuckGoURL
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &DuckDuckGo{baseURL: baseURL, userAgent: userAgent, httpClient: client}
}

func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	values := url.Values{}
	values.Set("q", query)
	searchURL := fmt.Sprintf("%s?%s", d.baseURL, values.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", d.userAgent)
	httpResp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("non-200 response from search engine: %d", httpResp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(httpResp.Body)
	if err != nil {
		return nil, err
	}

	var results []Result
	doc.Find(".result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		link := s.Find("a.result__a").First()
		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		target := resolveDuckDuckGoLink(href)
		if target == "" {
			return true
		}
		results = append(results, Result{
			Title:   strings.TrimSpace(link.Text()),
			URL:     target,
			Snippet: strings.TrimSpace(s.Find(".result__snippet").First().Text()),
		})
		return limit <= 0 || len(results) < limit
	})
	if len(results) == 0 {
		return nil, ErrNoResults
	}
	return results, nil
}

// resolveDuckDuckGoLink unwraps the redirect links DuckDuckGo puts in its
// HTML results ("//duckduckgo.com/l/?uddg=<target>").
func resolveDuckDuckGoLink(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

// Searxng queries a SearxNG instance through its JSON API.
type Searxng struct {
	baseURL    string
	httpClient *http.Client
}

func NewSearxng(baseURL string, client *http.Client) *Searxng {
	if client == nil {
		client = http.DefaultClient
	}
	return &Searxng{baseURL: strings.TrimRight(baseURL, "/"), httpClient: client}
}

func (s *Searxng) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	values := url.Values{}
	values.Set("q", query)
	values.Set("safesearch", "0")
	values.Set("format", "json")
	searchURL := fmt.Sprintf("%s/search?%s", s.baseURL, values.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}
	httpResp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("non-200 response from search engine: %d", httpResp.StatusCode)
	}

	var searchResponse struct {
		Results []struct {
			URL     string `json:"url"`
			Title   string `json:"title"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&searchResponse); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	var results []Result
	for _, r := range searchResponse.Results {
		if r.URL == "" || r.Title == "" {
			continue
		}
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: r.Content})
		if limit > 0 && len(results) == limit {
			break
		}
	}
	if len(results) == 0 {
		return nil, ErrNoResults
	}
	return results, nil
}
