package rag

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/owulveryck/nexushealth/internal/tool"
)

// ManifestFile is the manifest's name inside the database directory.
const ManifestFile = "manifest.json"

var (
	// ErrIndexMissing is returned when the manifest or a per-document index is absent.
	ErrIndexMissing = errors.New("index missing")
	// ErrNoDocuments is returned when an indexing run finds nothing to index.
	ErrNoDocuments = errors.New("no documents to index")
)

// Entry is one indexed document.
type Entry struct {
	ID          string
	Description string
}

// IndexDir is the entry's persisted index location under dbDir.
func (e Entry) IndexDir(dbDir string) string {
	return filepath.Join(dbDir, e.ID)
}

// Manifest maps document IDs to descriptions. On disk it is a JSON object;
// key order in the file is kept.
type Manifest struct {
	Entries []Entry
}

// DescribeDocument builds the default description for a document ID.
func DescribeDocument(id string) string {
	return fmt.Sprintf("The '%s' policy document.", titleCase(strings.NewReplacer("-", " ", "_", " ").Replace(id)))
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// Add appends an entry, or replaces the description of an existing ID in place.
func (m *Manifest) Add(id, description string) {
	for i := range m.Entries {
		if m.Entries[i].ID == id {
			m.Entries[i].Description = description
			return
		}
	}
	m.Entries = append(m.Entries, Entry{ID: id, Description: description})
}

func (m *Manifest) Len() int { return len(m.Entries) }

// Documents lists the entries as tool documents located under dbDir.
func (m *Manifest) Documents(dbDir string) []tool.Document {
	docs := make([]tool.Document, len(m.Entries))
	for i, e := range m.Entries {
		docs[i] = tool.Document{ID: e.ID, Description: e.Description, Location: e.IndexDir(dbDir)}
	}
	return docs
}

func (m Manifest) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m.Entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.ID)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Description)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *Manifest) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("manifest must be a JSON object")
	}

	var out Manifest
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		id := tok.(string)

		var description string
		if err := dec.Decode(&description); err != nil {
			return fmt.Errorf("manifest entry %q: %w", id, err)
		}
		out.Add(id, description)
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return err
	}

	*m = out
	return nil
}

// LoadManifest reads <dbDir>/manifest.json.
func LoadManifest(dbDir string) (*Manifest, error) {
	path := filepath.Join(dbDir, ManifestFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: manifest %s not found", ErrIndexMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return &m, nil
}

// Save writes the manifest pretty-printed to <dbDir>/manifest.json.
func (m *Manifest) Save(dbDir string) error {
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dbDir, err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	data = append(data, '\n')
	return os.WriteFile(filepath.Join(dbDir, ManifestFile), data, 0o644)
}
