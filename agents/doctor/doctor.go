// Package doctor is the doctor lookup capability: it finds the US state in a
// request and lists matching doctors from a public JSON dataset.
package doctor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/owulveryck/nexushealth/internal/a2a"
)

const (
	CapabilityName = "doctor_agent"
	Description    = "This is a Doctor Agent which helps users find doctors near them."

	DefaultDatasetURL = "https://raw.githubusercontent.com/nicknochnack/ACPWalkthrough/main/doctors.json"
	DefaultTimeout    = 15 * time.Second
)

// Error payloads returned as message content. They are part of the wire
// contract and must not change.
const (
	ErrFetchPayload   = `{"error": "Failed to fetch doctor data."}`
	ErrFormatPayload  = `{"error": "Invalid data format from doctor source."}`
	ErrNoStatePayload = `{"error": "A two-letter US state code is required."}`
)

// Agent serves doctor lookups. It holds no state between requests.
type Agent struct {
	datasetURL string
	client     *http.Client
	logger     *slog.Logger
}

type Option func(*Agent)

func WithHTTPClient(c *http.Client) Option {
	return func(a *Agent) { a.client = c }
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) { a.logger = logger }
}

// New creates a doctor agent reading from datasetURL. An empty URL selects
// DefaultDatasetURL.
func New(datasetURL string, timeout time.Duration, opts ...Option) *Agent {
	if datasetURL == "" {
		datasetURL = DefaultDatasetURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	a := &Agent{
		datasetURL: datasetURL,
		client:     &http.Client{Timeout: timeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handle answers one request. Every failure is reported inside the reply, so
// the returned error is always nil.
func (a *Agent) Handle(ctx context.Context, msg *a2a.Message) (*a2a.Message, error) {
	state, ok := ExtractState(msg.Text())
	if !ok {
		a.logger.InfoContext(ctx, "No state found in doctor request")
		return a2a.NewTextMessage(a2a.RoleAgent, ErrNoStatePayload), nil
	}
	return a2a.NewTextMessage(a2a.RoleAgent, a.ListDoctors(ctx, state)), nil
}

// ListDoctors returns the JSON array of doctors whose address.state equals
// state, ordered by dataset key, or one of the error payloads.
func (a *Agent) ListDoctors(ctx context.Context, state string) string {
	body, err := a.fetch(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "Error fetching doctor data", "url", a.datasetURL, "error", err)
		return ErrFetchPayload
	}

	var dataset map[string]json.RawMessage
	if err := json.Unmarshal(body, &dataset); err != nil {
		a.logger.WarnContext(ctx, "Error decoding doctor data", "error", err)
		return ErrFormatPayload
	}

	keys := make([]string, 0, len(dataset))
	for k := range dataset {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	matches := make([]json.RawMessage, 0)
	for _, k := range keys {
		var d struct {
			Address struct {
				State string `json:"state"`
			} `json:"address"`
		}
		// Entries that are not objects simply do not match.
		if err := json.Unmarshal(dataset[k], &d); err != nil {
			continue
		}
		if d.Address.State == state {
			matches = append(matches, dataset[k])
		}
	}

	out, err := json.Marshal(matches)
	if err != nil {
		return ErrFormatPayload
	}
	a.logger.InfoContext(ctx, "Doctor lookup completed", "state", state, "matches", len(matches))
	return string(out)
}

func (a *Agent) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.datasetURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
