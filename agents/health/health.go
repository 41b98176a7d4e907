// Package health is the health question capability. It answers from web
// search results, optionally reading the top hit in full.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/owulveryck/nexushealth/internal/a2a"
	"github.com/owulveryck/nexushealth/internal/config"
	"github.com/owulveryck/nexushealth/internal/llm"
)

const (
	CapabilityName = "health_agent"
	Description    = "This is a health agent which supports the hospital to handle health based questions for patients, " +
		"such as symptoms and recovery. " +
		"Current or prospective patients can use it to find answers about their health and hospital treatments."

	// UnavailableNote is appended to answers produced without web sources.
	UnavailableNote = "Note: web sources were unavailable, so this answer is based on general medical knowledge only."
)

const systemPrompt = `You are a helpful AI assistant that answers health questions for hospital patients.
Use the web sources provided, when there are any, and give one clear, comprehensive, human-readable answer.
Format everything, including lists or multiple points, as a single answer. Do not invent sources.`

// Agent answers health questions.
type Agent struct {
	llm        llm.Client
	searcher   Searcher
	scraper    *Scraper
	maxResults int
	logger     *slog.Logger
}

type Option func(*Agent)

// WithScraper enables reading the top search result.
func WithScraper(s *Scraper) Option {
	return func(a *Agent) { a.scraper = s }
}

func WithMaxResults(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxResults = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) { a.logger = logger }
}

func New(client llm.Client, searcher Searcher, opts ...Option) *Agent {
	a := &Agent{
		llm:        client,
		searcher:   searcher,
		maxResults: 5,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FromConfig builds the agent with the search backend and scraper the
// configuration selects.
func FromConfig(client llm.Client, cfg config.SearchConfig, logger *slog.Logger) *Agent {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	var searcher Searcher
	switch cfg.Backend {
	case "searxng":
		searcher = NewSearxng(cfg.SearxURL, httpClient)
	default:
		searcher = NewDuckDuckGo("", cfg.UserAgent, httpClient)
	}

	opts := []Option{WithMaxResults(cfg.MaxResults), WithLogger(logger)}
	if cfg.ScrapeTop {
		opts = append(opts, WithScraper(NewScraper(cfg.UserAgent, 0, httpClient)))
	}
	return New(client, searcher, opts...)
}

// Handle answers one question. Search problems are not fatal: the model
// still answers and the reply says the web sources were unavailable.
func (a *Agent) Handle(ctx context.Context, msg *a2a.Message) (*a2a.Message, error) {
	question := strings.TrimSpace(msg.Text())
	if question == "" {
		return a2a.NewTextMessage(a2a.RoleAgent, "Please ask a health question."), nil
	}

	results, err := a.searcher.Search(ctx, question, a.maxResults)
	webAvailable := err == nil
	if err != nil {
		a.logger.WarnContext(ctx, "Web search failed", "error", err)
	}

	var page string
	if webAvailable && a.scraper != nil {
		page, err = a.scraper.Visit(ctx, results[0].URL)
		if err != nil {
			a.logger.WarnContext(ctx, "Could not visit top result", "url", results[0].URL, "error", err)
			page = ""
		}
	}

	answer, err := a.llm.Generate(ctx, llm.Request{
		System: systemPrompt,
		Prompt: buildPrompt(question, results, page),
	})
	if err != nil {
		return nil, fmt.Errorf("generating health answer: %w", err)
	}

	answer = strings.TrimSpace(answer)
	if !webAvailable {
		answer += "\n\n" + UnavailableNote
	}
	return a2a.NewTextMessage(a2a.RoleAgent, answer), nil
}

func buildPrompt(question string, results []Result, page string) string {
	var b strings.Builder
	if len(results) == 0 {
		b.WriteString("No web sources are available for this question. Answer from general medical knowledge and say so.\n\n")
	} else {
		b.WriteString("Web search results:\n")
		for i, r := range results {
			fmt.Fprintf(&b, "[%d] %s (%s)\n", i+1, r.Title, r.URL)
			if r.Snippet != "" {
				fmt.Fprintf(&b, "    %s\n", r.Snippet)
			}
		}
		b.WriteString("\n")
	}
	if page != "" {
		fmt.Fprintf(&b, "Content of the top result:\n%s\n\n", page)
	}
	fmt.Fprintf(&b, "Now, fulfill the following user request:\n%s\n", question)
	return b.String()
}
