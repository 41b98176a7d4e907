package rag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/philippgille/chromem-go"
)

// Passage is one retrieved chunk.
type Passage struct {
	Content    string
	Source     string
	Chunk      int
	Similarity float32
}

// Index is the read side of one document's persisted vector store.
type Index struct {
	entry Entry
	coll  *chromem.Collection
}

// OpenIndex loads the persisted index of entry from dbDir. A missing
// directory, collection or an empty collection is ErrIndexMissing.
func OpenIndex(dbDir string, entry Entry, embed chromem.EmbeddingFunc) (*Index, error) {
	dir := entry.IndexDir(dbDir)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrIndexMissing, dir)
		}
		return nil, fmt.Errorf("checking index %s: %w", dir, err)
	}

	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("opening index %s: %w", dir, err)
	}
	coll := db.GetCollection(entry.ID, embed)
	if coll == nil || coll.Count() == 0 {
		return nil, fmt.Errorf("%w: collection %q in %s is empty", ErrIndexMissing, entry.ID, dir)
	}
	return &Index{entry: entry, coll: coll}, nil
}

func (ix *Index) Entry() Entry { return ix.entry }
func (ix *Index) Count() int   { return ix.coll.Count() }

// Query returns up to k passages whose similarity is at least threshold,
// most similar first.
func (ix *Index) Query(ctx context.Context, query string, k int, threshold float32) ([]Passage, error) {
	n := min(max(k, 1), ix.coll.Count())
	results, err := ix.coll.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", ix.entry.ID, err)
	}

	passages := make([]Passage, 0, len(results))
	for _, r := range results {
		if r.Similarity < threshold {
			continue
		}
		chunk, _ := strconv.Atoi(r.Metadata["chunk"])
		passages = append(passages, Passage{
			Content:    r.Content,
			Source:     r.Metadata["source"],
			Chunk:      chunk,
			Similarity: r.Similarity,
		})
	}
	return passages, nil
}
