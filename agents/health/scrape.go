package health

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
)

// DefaultMaxPageChars bounds how much of a visited page reaches the prompt.
const DefaultMaxPageChars = 6000

var blankLines = regexp.MustCompile(`\r?\n{2,}`)

// Scraper fetches a page and converts its main content to markdown.
type Scraper struct {
	userAgent  string
	maxChars   int
	httpClient *http.Client
}

func NewScraper(userAgent string, maxChars int, client *http.Client) *Scraper {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxPageChars
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Scraper{userAgent: userAgent, maxChars: maxChars, httpClient: client}
}

// Visit returns the markdown rendering of the page at rawURL.
func (s *Scraper) Visit(ctx context.Context, rawURL string) (string, error) {
	parsedURL, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("User-Agent", s.userAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml")
	httpResp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("non-200 response from %s: %d", parsedURL.Host, httpResp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(httpResp.Body)
	if err != nil {
		return "", err
	}

	markdown, err := htmltomarkdown.ConvertString(
		mainContent(doc),
		converter.WithDomain(fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)),
	)
	if err != nil {
		return "", err
	}
	return truncate(cleanMarkdown(markdown), s.maxChars), nil
}

func mainContent(doc *goquery.Document) string {
	for _, tag := range []string{"script", "style", "nav", "header", "footer", "aside", "form"} {
		doc.Find(tag).Remove()
	}
	for _, selector := range []string{"main", "article", "#content, #main", ".content, .main", "body"} {
		sel := doc.Find(selector)
		if sel.Length() == 0 {
			continue
		}
		if html, err := sel.First().Html(); err == nil && strings.TrimSpace(html) != "" {
			return html
		}
	}
	html, _ := doc.Html()
	return html
}

func cleanMarkdown(content string) string {
	content = blankLines.ReplaceAllString(content, "\n\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "\n\n[truncated]"
}
