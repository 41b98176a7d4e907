package tool

import (
	"fmt"
	"strings"
)

// DocumentDescriptionFormat describes a per-document retrieval tool.
const DocumentDescriptionFormat = "Use this tool to answer questions specifically about the '%s'"

// Binding records where a tool sends its calls.
type Binding struct {
	Name        string
	Description string
	// Endpoint is a transport endpoint for delegates, or an index location
	// for local document tools.
	Endpoint   string
	Capability string
}

// Document is one source a per-document tool is built for.
type Document struct {
	ID          string
	Description string
	Location    string
}

var nameReplacer = strings.NewReplacer("-", "_", " ", "_")

// SanitizeName turns a document ID into a tool name.
func SanitizeName(id string) string {
	return nameReplacer.Replace(id) + "_query_tool"
}

// BuildBindings builds one binding per document, in order. Two IDs that
// sanitize to the same name fail with ErrToolNameCollision.
func BuildBindings(docs []Document) ([]Binding, error) {
	bindings := make([]Binding, 0, len(docs))
	owners := make(map[string]string, len(docs))

	for _, doc := range docs {
		name := SanitizeName(doc.ID)
		if prev, exists := owners[name]; exists {
			return nil, fmt.Errorf("%w: %q and %q both map to %s", ErrToolNameCollision, prev, doc.ID, name)
		}
		owners[name] = doc.ID
		bindings = append(bindings, Binding{
			Name:        name,
			Description: fmt.Sprintf(DocumentDescriptionFormat, doc.Description),
			Endpoint:    doc.Location,
			Capability:  doc.ID,
		})
	}
	return bindings, nil
}
