// Package chromem is an embedded semantic index backed by chromem-go.
// It needs no network services beyond the embedder, which makes it the
// backend for local deployments and tests.
package chromem

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/claw/memory"
)

const DefaultCollection = "gravity-claw"

// Options configures the index.
type Options struct {
	// Path enables on-disk persistence when non-empty.
	Path string
	// Compress gzips persisted documents.
	Compress bool
	// Collection names the chromem collection.
	Collection string
}

// Index stores message embeddings in a single chromem collection.
type Index struct {
	db       *chromem.DB
	col      *chromem.Collection
	embedder memory.Embedder
	opts     Options
	logger   zerolog.Logger
}

var _ memory.Index = (*Index)(nil)

// New opens (or creates) the chromem database described by opts.
func New(embedder memory.Embedder, opts Options, logger zerolog.Logger) (*Index, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if opts.Collection == "" {
		opts.Collection = DefaultCollection
	}

	var (
		db  *chromem.DB
		err error
	)
	if opts.Path != "" {
		db, err = chromem.NewPersistentDB(opts.Path, opts.Compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem db at %s: %w", opts.Path, err)
		}
	} else {
		db = chromem.NewDB()
	}

	return &Index{
		db:       db,
		embedder: embedder,
		opts:     opts,
		logger:   logger.With().Str("component", "chromem_index").Logger(),
	}, nil
}

// EnsureReady creates the collection if needed. chromem is in-process, so it
// is ready as soon as the collection exists.
func (i *Index) EnsureReady(ctx context.Context) error {
	// Embeddings are always supplied, so no embedding func is registered.
	col, err := i.db.GetOrCreateCollection(i.opts.Collection, nil, nil)
	if err != nil {
		return fmt.Errorf("create collection %s: %w", i.opts.Collection, err)
	}
	i.col = col
	i.logger.Info().
		Str("collection", i.opts.Collection).
		Int("documents", col.Count()).
		Bool("persistent", i.opts.Path != "").
		Msg("Semantic index ready")
	return nil
}

// Upsert implements memory.Index. chromem replaces documents with the same id.
func (i *Index) Upsert(ctx context.Context, doc memory.Document) error {
	if i.col == nil {
		return fmt.Errorf("index not ready")
	}
	vec, err := i.embedder.Embed(ctx, doc.Text, memory.ModePassage)
	if err != nil {
		return fmt.Errorf("embed passage: %w", err)
	}

	return i.col.AddDocument(ctx, chromem.Document{
		ID:        doc.ID,
		Content:   doc.Text,
		Embedding: vec,
		Metadata: map[string]string{
			"text":            doc.Text,
			"role":            doc.Role,
			"timestamp":       doc.Timestamp,
			"conversation_id": doc.ConversationID,
		},
	})
}

// Query implements memory.Index.
func (i *Index) Query(ctx context.Context, text string, topK int, filter memory.Filter) ([]memory.Record, error) {
	if i.col == nil {
		return nil, fmt.Errorf("index not ready")
	}

	// chromem rejects nResults larger than the collection.
	n := min(topK, i.col.Count())
	if n <= 0 {
		return []memory.Record{}, nil
	}

	vec, err := i.embedder.Embed(ctx, text, memory.ModeQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var where map[string]string
	if filter.ConversationID != "" {
		where = map[string]string{"conversation_id": filter.ConversationID}
	}

	results, err := i.col.QueryEmbedding(ctx, vec, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	records := make([]memory.Record, 0, len(results))
	for _, r := range results {
		records = append(records, memory.Record{
			ID:             r.ID,
			Text:           r.Metadata["text"],
			Role:           r.Metadata["role"],
			Timestamp:      r.Metadata["timestamp"],
			ConversationID: r.Metadata["conversation_id"],
			Score:          float64(r.Similarity),
		})
	}
	return records, nil
}

// Count reports how many documents the collection holds.
func (i *Index) Count() int {
	if i.col == nil {
		return 0
	}
	return i.col.Count()
}
