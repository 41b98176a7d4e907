package rag

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/philippgille/chromem-go"

	"github.com/owulveryck/nexushealth/internal/config"
)

// NewEmbeddingFunc returns the chromem embedding function selected by cfg.
func NewEmbeddingFunc(cfg config.EmbeddingConfig) (chromem.EmbeddingFunc, error) {
	switch cfg.Provider {
	case "ollama", "":
		return chromem.NewEmbeddingFuncOllama(cfg.Model, cfg.BaseURL), nil
	case "openai":
		if cfg.BaseURL == "" {
			return chromem.NewEmbeddingFuncOpenAI(cfg.APIKey, chromem.EmbeddingModelOpenAI(cfg.Model)), nil
		}
		return chromem.NewEmbeddingFuncOpenAICompat(cfg.BaseURL, cfg.APIKey, cfg.Model, nil), nil
	case "hash":
		if cfg.Dimensions <= 0 {
			return nil, fmt.Errorf("hash embeddings need a positive dimension count, got %d", cfg.Dimensions)
		}
		return NewHashEmbeddingFunc(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// NewHashEmbeddingFunc returns a deterministic bag-of-words embedding with
// dims dimensions. It needs no model server, which makes it suitable for
// tests and offline smoke runs.
func NewHashEmbeddingFunc(dims int) chromem.EmbeddingFunc {
	return func(_ context.Context, text string) ([]float32, error) {
		v := make([]float32, dims)
		for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(tok))
			v[h.Sum32()%uint32(dims)]++
		}

		var norm float64
		for _, x := range v {
			norm += float64(x) * float64(x)
		}
		if norm == 0 {
			v[0] = 1
			return v, nil
		}
		scale := float32(1 / math.Sqrt(norm))
		for i := range v {
			v[i] *= scale
		}
		return v, nil
	}
}
