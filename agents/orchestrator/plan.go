package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/owulveryck/nexushealth/internal/classify"
	"github.com/owulveryck/nexushealth/internal/llm"
	"github.com/owulveryck/nexushealth/internal/tool"
)

// ErrEmptyQuery is returned for a blank query.
var ErrEmptyQuery = errors.New("query is empty")

// Step is one planned sub-question and the tool that will answer it.
type Step struct {
	Question string
	Tool     string
	// Independent steps may run concurrently with the step before them.
	Independent bool
}

// Planner decomposes a query into ordered steps, exactly one tool per step.
type Planner interface {
	Plan(ctx context.Context, query string, tools []tool.Descriptor) ([]Step, error)
}

var (
	sentencePattern = regexp.MustCompile(`[^.?!]+[.?!]*`)
	clauseSplitter  = regexp.MustCompile(`(?i)(?:,|;)\s+and\s+|;\s+`)
	leadingFiller   = regexp.MustCompile(`(?i)^(?:also|and|additionally|plus|finally|lastly)\b[,:]?\s*`)
	dependentLead   = regexp.MustCompile(`(?i)^(?:then|after that|based on (?:that|this)|using (?:that|this))\b`)

	// A bare "and" or comma starts a new sub-question only when the next
	// clause opens like a request of its own.
	andJoin     = regexp.MustCompile(`(?i)\s+and\s+`)
	commaJoin   = regexp.MustCompile(`\s*,\s*`)
	requestLead = regexp.MustCompile(`(?i)^(?:can|could|would|will|please|find|check|tell|show|list|look|search|locate|recommend|explain|give|does|do|is|are|what|which|who|where|when|how|should)\b`)
	commandLead = regexp.MustCompile(`(?i)^(?:please|find|check|tell|show|list|look|search|locate|recommend|explain|give)\b`)
)

// RulePlanner splits on sentence ends, on ", and" joins, and on a bare
// "and" or comma that opens a new request, then routes each part through
// Classifier.
type RulePlanner struct {
	Classifier classify.Classifier
}

func (p RulePlanner) Plan(ctx context.Context, query string, tools []tool.Descriptor) ([]Step, error) {
	parts := SplitQuery(query)
	if len(parts) == 0 {
		return nil, ErrEmptyQuery
	}
	return route(ctx, p.classifier(), parts, tools)
}

func (p RulePlanner) classifier() classify.Classifier {
	if p.Classifier == nil {
		return classify.Keyword{}
	}
	return p.Classifier
}

// SplitQuery breaks a query into sub-questions in order.
func SplitQuery(query string) []string {
	var parts []string
	for _, sentence := range sentencePattern.FindAllString(query, -1) {
		for _, clause := range clauseSplitter.Split(sentence, -1) {
			for _, piece := range splitAt(andJoin, requestLead, stripFiller(clause)) {
				for _, p := range splitAt(commaJoin, commandLead, piece) {
					p = stripFiller(p)
					if strings.Trim(p, ".?!, ") == "" {
						continue
					}
					parts = append(parts, p)
				}
			}
		}
	}
	return parts
}

func stripFiller(s string) string {
	return strings.TrimSpace(leadingFiller.ReplaceAllString(strings.TrimSpace(s), ""))
}

// splitAt cuts s at each match of sep whose following text matches lead.
func splitAt(sep, lead *regexp.Regexp, s string) []string {
	var out []string
	from := 0
	for _, loc := range sep.FindAllStringIndex(s, -1) {
		if loc[0] <= from || !lead.MatchString(s[loc[1]:]) {
			continue
		}
		out = append(out, s[from:loc[0]])
		from = loc[1]
	}
	return append(out, s[from:])
}

// part is a sub-question with its dependency flag.
type part struct {
	question    string
	independent bool
}

func route(ctx context.Context, c classify.Classifier, questions []string, tools []tool.Descriptor) ([]Step, error) {
	parts := make([]part, len(questions))
	for i, q := range questions {
		parts[i] = part{question: q, independent: i > 0 && !dependentLead.MatchString(q)}
	}
	return routeParts(ctx, c, parts, tools)
}

func routeParts(ctx context.Context, c classify.Classifier, parts []part, tools []tool.Descriptor) ([]Step, error) {
	steps := make([]Step, 0, len(parts))
	for _, p := range parts {
		name, err := c.Classify(ctx, p.question, tools)
		if err != nil {
			return nil, fmt.Errorf("routing %q: %w", p.question, err)
		}
		steps = append(steps, Step{Question: p.question, Tool: name, Independent: p.independent})
	}
	return MergeSteps(steps), nil
}

// MergeSteps joins consecutive steps routed to the same tool.
func MergeSteps(steps []Step) []Step {
	var out []Step
	for _, s := range steps {
		if n := len(out); n > 0 && out[n-1].Tool == s.Tool {
			out[n-1].Question += " " + s.Question
			continue
		}
		out = append(out, s)
	}
	if len(out) > 0 {
		out[0].Independent = false
	}
	return out
}

const decomposePrompt = `You split a user request into the smallest list of self-contained sub-questions,
in the order they should be answered. Reply with JSON only, in the form
{"steps": [{"question": "...", "depends_on_previous": false}]}.`

// LLMPlanner asks a model to decompose the query and routes each part with
// Classifier. Any model or parse failure falls back to RulePlanner.
type LLMPlanner struct {
	Client     llm.Client
	Classifier classify.Classifier
	Logger     *slog.Logger
}

func (p LLMPlanner) Plan(ctx context.Context, query string, tools []tool.Descriptor) ([]Step, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	rules := RulePlanner{Classifier: p.Classifier}

	var b strings.Builder
	b.WriteString("Available specialists:\n")
	for _, t := range tools {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
	}
	fmt.Fprintf(&b, "\nUser request: %s", query)

	reply, err := p.Client.Generate(ctx, llm.Request{System: decomposePrompt, Prompt: b.String(), JSON: true})
	if err != nil {
		p.logger().WarnContext(ctx, "LLM planning failed, using rule-based plan", "error", err)
		return rules.Plan(ctx, query, tools)
	}
	parts, err := parsePlan(reply)
	if err != nil {
		p.logger().WarnContext(ctx, "Unusable LLM plan, using rule-based plan", "error", err)
		return rules.Plan(ctx, query, tools)
	}
	return routeParts(ctx, rules.classifier(), parts, tools)
}

func (p LLMPlanner) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// parsePlan accepts {"steps": [...]} with objects or strings, or a bare array.
func parsePlan(reply string) ([]part, error) {
	raw := []byte(llm.ExtractJSON(reply))

	var wrapped struct {
		Steps json.RawMessage `json:"steps"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Steps) > 0 {
		raw = wrapped.Steps
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decoding plan: %w", err)
	}

	var parts []part
	for _, item := range items {
		var p part
		var q string
		var obj struct {
			Question          string `json:"question"`
			DependsOnPrevious bool   `json:"depends_on_previous"`
		}
		switch {
		case json.Unmarshal(item, &q) == nil:
			p = part{question: q, independent: true}
		case json.Unmarshal(item, &obj) == nil:
			p = part{question: obj.Question, independent: !obj.DependsOnPrevious}
		default:
			return nil, fmt.Errorf("unexpected plan item %s", item)
		}
		p.question = strings.TrimSpace(p.question)
		if p.question != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return nil, errors.New("plan has no steps")
	}
	parts[0].independent = false
	return parts, nil
}
