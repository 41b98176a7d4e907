package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/philippgille/chromem-go"

	"github.com/owulveryck/nexushealth/internal/tool"
)

// IndexerConfig describes one offline indexing run.
type IndexerConfig struct {
	SourceDir    string
	Glob         string
	DBDir        string
	ChunkSize    int
	ChunkOverlap int
	// Concurrency bounds parallel embedding calls. Zero uses GOMAXPROCS.
	Concurrency int
}

// Indexer turns source documents into one persisted index per document plus
// a manifest.
type Indexer struct {
	cfg    IndexerConfig
	embed  chromem.EmbeddingFunc
	logger *slog.Logger
}

func NewIndexer(cfg IndexerConfig, embed chromem.EmbeddingFunc, logger *slog.Logger) *Indexer {
	if cfg.Glob == "" {
		cfg.Glob = "**/*.pdf"
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{cfg: cfg, embed: embed, logger: logger}
}

// Sources lists the files matched by the glob, relative to SourceDir, sorted.
func (ix *Indexer) Sources() ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(ix.cfg.SourceDir), ix.cfg.Glob, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("matching %q in %s: %w", ix.cfg.Glob, ix.cfg.SourceDir, err)
	}
	sort.Strings(matches)
	return matches, nil
}

// Run indexes every matched source and writes the manifest. Each document's
// index directory is rebuilt from scratch. Document IDs are file names
// without extension; IDs whose tool names would collide abort the run before
// anything is written.
func (ix *Indexer) Run(ctx context.Context) (*Manifest, error) {
	sources, err := ix.Sources()
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: nothing matches %q in %s", ErrNoDocuments, ix.cfg.Glob, ix.cfg.SourceDir)
	}

	manifest := &Manifest{}
	owners := make(map[string]string, len(sources))
	for _, rel := range sources {
		id := strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel))
		if prev, exists := owners[id]; exists {
			return nil, fmt.Errorf("documents %s and %s share the ID %q", prev, rel, id)
		}
		owners[id] = rel
		manifest.Add(id, DescribeDocument(id))
	}
	if _, err := tool.BuildBindings(manifest.Documents(ix.cfg.DBDir)); err != nil {
		return nil, err
	}

	var indexed Manifest
	for _, entry := range manifest.Entries {
		rel := owners[entry.ID]
		n, err := ix.indexDocument(ctx, entry, rel)
		if errors.Is(err, ErrNoDocuments) {
			ix.logger.WarnContext(ctx, "Skipping document without text", "source", rel)
			continue
		}
		if err != nil {
			return nil, err
		}
		ix.logger.InfoContext(ctx, "Indexed document",
			"id", entry.ID,
			"source", rel,
			"chunks", n,
			"index_dir", entry.IndexDir(ix.cfg.DBDir),
		)
		indexed.Add(entry.ID, entry.Description)
	}
	if indexed.Len() == 0 {
		return nil, fmt.Errorf("%w: no extractable text in %s", ErrNoDocuments, ix.cfg.SourceDir)
	}

	if err := indexed.Save(ix.cfg.DBDir); err != nil {
		return nil, fmt.Errorf("saving manifest: %w", err)
	}
	return &indexed, nil
}

func (ix *Indexer) indexDocument(ctx context.Context, entry Entry, rel string) (int, error) {
	text, err := ExtractText(filepath.Join(ix.cfg.SourceDir, rel))
	if err != nil {
		return 0, err
	}
	chunks := Chunk(text, ix.cfg.ChunkSize, ix.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		return 0, ErrNoDocuments
	}

	dir := entry.IndexDir(ix.cfg.DBDir)
	if err := os.RemoveAll(dir); err != nil {
		return 0, fmt.Errorf("clearing %s: %w", dir, err)
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return 0, fmt.Errorf("creating index %s: %w", dir, err)
	}
	coll, err := db.CreateCollection(entry.ID, map[string]string{"source": rel}, ix.embed)
	if err != nil {
		return 0, fmt.Errorf("creating collection %s: %w", entry.ID, err)
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:       fmt.Sprintf("%s-%04d", entry.ID, i),
			Content:  c,
			Metadata: map[string]string{"source": rel, "chunk": strconv.Itoa(i)},
		}
	}
	if err := coll.AddDocuments(ctx, docs, ix.cfg.Concurrency); err != nil {
		return 0, fmt.Errorf("embedding %s: %w", rel, err)
	}
	return len(docs), nil
}
