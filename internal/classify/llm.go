package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/owulveryck/nexushealth/internal/llm"
	"github.com/owulveryck/nexushealth/internal/tool"
)

const routePrompt = `You route user questions to exactly one tool.
Reply with the tool name only, exactly as written, and nothing else.`

// LLM asks a model to pick the tool. A failed call or a reply that is not
// one of the candidate names falls back to Keyword.
type LLM struct {
	Client llm.Client
	Logger *slog.Logger
}

func (c LLM) Classify(ctx context.Context, query string, candidates []tool.Descriptor) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoCandidates
	}

	var b strings.Builder
	b.WriteString("Tools:\n")
	for _, cand := range candidates {
		fmt.Fprintf(&b, "- %s: %s\n", cand.Name, cand.Description)
	}
	fmt.Fprintf(&b, "\nQuestion: %s\nTool name:", query)

	reply, err := c.Client.Generate(ctx, llm.Request{System: routePrompt, Prompt: b.String()})
	if err != nil {
		c.logger().WarnContext(ctx, "LLM routing failed, using keyword routing", "error", err)
		return Best(query, candidates), nil
	}

	name := strings.Trim(strings.TrimSpace(reply), "`'\".")
	for _, cand := range candidates {
		if strings.EqualFold(name, cand.Name) {
			return cand.Name, nil
		}
	}
	c.logger().WarnContext(ctx, "LLM routing reply is not a tool name, using keyword routing", "reply", reply)
	return Best(query, candidates), nil
}

func (c LLM) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}
