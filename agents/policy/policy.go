// Package policy is the insurance coverage capability. It answers from
// indexed policy documents with retrieval-augmented generation.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/philippgille/chromem-go"

	"github.com/owulveryck/nexushealth/internal/a2a"
	"github.com/owulveryck/nexushealth/internal/classify"
	"github.com/owulveryck/nexushealth/internal/llm"
	"github.com/owulveryck/nexushealth/internal/rag"
	"github.com/owulveryck/nexushealth/internal/tool"
	"github.com/owulveryck/nexushealth/internal/transport"
)

const (
	CapabilityName = "policy_agent"
	Description    = "This is an agent for questions around policy coverage. It uses a RAG pattern to find answers " +
		"based on policy documentation. Use it to help answer questions on coverage and waiting periods."

	// NotFoundFormat is the reply when a document has nothing on the question.
	NotFoundFormat = "The information you asked about was not found in the '%s' document."

	// NotFoundToken is what the model is told to reply when the passages do
	// not answer the question.
	NotFoundToken = "NOT_FOUND"

	DefaultTopK      = 4
	DefaultThreshold = 0.3
)

const systemPrompt = `You are a Senior Insurance Coverage Assistant. You determine whether something is covered
based on the provided policy passages. You ONLY use the information in those passages.
Cite the passages you rely on with their bracketed numbers, for example [1].
If the passages do not answer the question, reply with exactly ` + NotFoundToken + ` and nothing else.`

// Agent answers coverage questions from one or more indexed documents.
type Agent struct {
	llm        llm.Client
	classifier classify.Classifier
	tools      *tool.Set
	topK       int
	threshold  float32
	logger     *slog.Logger
}

type Option func(*Agent)

func WithClassifier(c classify.Classifier) Option {
	return func(a *Agent) { a.classifier = c }
}

// WithRetrieval overrides how many passages are retrieved and the minimum
// similarity they need. Non-positive values keep the defaults.
func WithRetrieval(topK int, threshold float32) Option {
	return func(a *Agent) {
		if topK > 0 {
			a.topK = topK
		}
		if threshold > 0 {
			a.threshold = threshold
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) { a.logger = logger }
}

// Open loads the manifest in dbDir and every index it lists. A missing
// manifest or index fails with rag.ErrIndexMissing; two document IDs that
// map to the same tool name fail with tool.ErrToolNameCollision.
func Open(dbDir string, embed chromem.EmbeddingFunc, client llm.Client, opts ...Option) (*Agent, error) {
	a := &Agent{
		llm:        client,
		classifier: classify.Keyword{},
		topK:       DefaultTopK,
		threshold:  DefaultThreshold,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	manifest, err := rag.LoadManifest(dbDir)
	if err != nil {
		return nil, err
	}
	bindings, err := tool.BuildBindings(manifest.Documents(dbDir))
	if err != nil {
		return nil, err
	}

	a.tools = &tool.Set{}
	for i, b := range bindings {
		index, err := rag.OpenIndex(dbDir, manifest.Entries[i], embed)
		if err != nil {
			return nil, err
		}
		if err := a.tools.Add(tool.NewLocal(b.Name, b.Description, a.documentCore(index))); err != nil {
			return nil, err
		}
		a.logger.Info("Loaded policy document", "document", b.Capability, "tool", b.Name, "chunks", index.Count())
	}
	return a, nil
}

// Tools returns the per-document tools in manifest order.
func (a *Agent) Tools() []tool.Tool { return a.tools.Tools() }

// Handle routes the question to one document and answers from it.
func (a *Agent) Handle(ctx context.Context, msg *a2a.Message) (*a2a.Message, error) {
	question := strings.TrimSpace(msg.Text())
	name, err := a.classifier.Classify(ctx, question, a.tools.Descriptors())
	if err != nil {
		return nil, fmt.Errorf("selecting policy document: %w", err)
	}
	t, ok := a.tools.Get(name)
	if !ok {
		return nil, fmt.Errorf("classifier chose unknown document tool %q", name)
	}

	a.logger.DebugContext(ctx, "Selected policy document", "tool", name)
	answer, err := t.Call(ctx, question)
	if err != nil {
		return nil, err
	}
	return a2a.NewTextMessage(a2a.RoleAgent, answer), nil
}

// ToolHandler exposes a single tool as a capability handler.
func ToolHandler(t tool.Tool) transport.Handler {
	return func(ctx context.Context, msg *a2a.Message) (*a2a.Message, error) {
		answer, err := t.Call(ctx, msg.Text())
		if err != nil {
			return nil, err
		}
		return a2a.NewTextMessage(a2a.RoleAgent, answer), nil
	}
}

func (a *Agent) documentCore(index *rag.Index) tool.CoreFunc {
	notFound := fmt.Sprintf(NotFoundFormat, index.Entry().ID)

	return func(ctx context.Context, question string) (string, error) {
		passages, err := index.Query(ctx, question, a.topK, a.threshold)
		if err != nil {
			return "", err
		}
		if len(passages) == 0 {
			a.logger.InfoContext(ctx, "No relevant passages", "document", index.Entry().ID)
			return notFound, nil
		}

		answer, err := a.llm.Generate(ctx, llm.Request{
			System: systemPrompt,
			Prompt: buildPrompt(question, passages),
		})
		if err != nil {
			return "", fmt.Errorf("generating policy answer: %w", err)
		}

		answer = strings.TrimSpace(answer)
		if strings.Trim(answer, ".` ") == NotFoundToken {
			return notFound, nil
		}
		return answer, nil
	}
}

func buildPrompt(question string, passages []rag.Passage) string {
	var b strings.Builder
	b.WriteString("Policy passages:\n\n")
	for i, p := range passages {
		fmt.Fprintf(&b, "[%d] (%s, part %d)\n%s\n\n", i+1, p.Source, p.Chunk+1, p.Content)
	}
	fmt.Fprintf(&b, "Question: %s\n", question)
	b.WriteString("Give a comprehensive response, citing the passages directly.")
	return b.String()
}
