// Package memorytest provides deterministic stand-ins for memory backends.
package memorytest

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"

	"github.com/aschepis/backscratcher/claw/memory"
)

// HashEmbedder builds word-hash vectors so texts sharing words score close
// under cosine similarity. It needs no external service.
type HashEmbedder struct {
	Dimensions int

	mu    sync.Mutex
	calls map[memory.EmbedMode]int
}

// NewHashEmbedder returns an embedder producing vectors of the given size.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	return &HashEmbedder{Dimensions: dimensions, calls: map[memory.EmbedMode]int{}}
}

// Embed implements memory.Embedder.
func (e *HashEmbedder) Embed(ctx context.Context, text string, mode memory.EmbedMode) ([]float32, error) {
	e.mu.Lock()
	if e.calls == nil {
		e.calls = map[memory.EmbedMode]int{}
	}
	e.calls[mode]++
	e.mu.Unlock()

	embedding := make([]float32, e.Dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	for _, word := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		hash := h.Sum32()
		for i := 0; i < 3; i++ {
			dim := int((hash + uint32(i)*2654435761) % uint32(e.Dimensions)) //nolint:gosec // test helper
			embedding[dim] += float32(math.Sin(float64(hash+uint32(i))*0.1) + 1.0)
		}
	}

	var magnitude float64
	for _, v := range embedding {
		magnitude += float64(v) * float64(v)
	}
	if magnitude == 0 {
		// Keep the vector normalizable for cosine backends.
		embedding[0] = 1
		return embedding, nil
	}
	norm := float32(math.Sqrt(magnitude))
	for i := range embedding {
		embedding[i] /= norm
	}
	return embedding, nil
}

// Calls reports how many times Embed ran in the given mode.
func (e *HashEmbedder) Calls(mode memory.EmbedMode) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[mode]
}

// CosineSimilarity between two equal-length vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		fa, fb := float64(a[i]), float64(b[i])
		dot += fa * fb
		na += fa * fa
		nb += fb * fb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
