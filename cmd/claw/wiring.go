package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/claw/config"
	"github.com/aschepis/backscratcher/claw/conversations"
	"github.com/aschepis/backscratcher/claw/memory"
	"github.com/aschepis/backscratcher/claw/memory/chromem"
	"github.com/aschepis/backscratcher/claw/memory/ollama"
	"github.com/aschepis/backscratcher/claw/memory/pinecone"
	"github.com/aschepis/backscratcher/claw/migrations"
	"github.com/aschepis/backscratcher/claw/workqueue"
)

// memoryStack is the opened database plus the memory facade built on it.
type memoryStack struct {
	db     *sql.DB
	store  *conversations.Store
	memory *memory.Memory
	close  []func()
}

func (s *memoryStack) Close() {
	if s.memory != nil {
		if err := s.memory.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: draining indexer: %v\n", err)
		}
	}
	for i := len(s.close) - 1; i >= 0; i-- {
		s.close[i]()
	}
	if s.db != nil {
		_ = s.db.Close() //nolint:errcheck // No remedy for db close errors
	}
}

// openDatabase creates the database directory if needed, then opens and migrates it.
func openDatabase(path string, logger zerolog.Logger) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	logger.Info().Str("path", path).Msg("Opening database")
	return migrations.Open(path, logger)
}

// buildIndex returns the configured vector index. The returned cleanup
// releases the query cache, if any.
func buildIndex(cfg *config.Config, logger zerolog.Logger) (memory.Index, func(), error) {
	mc := cfg.Memory
	switch mc.Backend {
	case config.BackendChromem:
		embedder, err := ollama.NewEmbedder(ollama.Options{
			Host:  mc.Ollama.Host,
			Model: ollama.Model(mc.Ollama.Model),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create ollama embedder: %w", err)
		}
		cached, err := memory.NewCachingEmbedder(embedder, mc.QueryCacheSize)
		if err != nil {
			return nil, nil, err
		}
		idx, err := chromem.New(cached, chromem.Options{
			Path:       mc.Chromem.Path,
			Compress:   mc.Chromem.Compress,
			Collection: mc.Chromem.Collection,
		}, logger)
		if err != nil {
			cached.Close()
			return nil, nil, err
		}
		logger.Info().Str("path", mc.Chromem.Path).Str("model", mc.Ollama.Model).Msg("Using chromem vector index")
		return idx, cached.Close, nil

	case config.BackendPinecone:
		opts := pinecone.Options{
			APIKey:        mc.Pinecone.APIKey,
			ControlURL:    mc.Pinecone.ControlURL,
			IndexName:     mc.Pinecone.IndexName,
			EmbedModel:    mc.Pinecone.EmbedModel,
			Dimension:     mc.Pinecone.Dimension,
			Cloud:         mc.Pinecone.Cloud,
			Region:        mc.Pinecone.Region,
			ReadyInterval: mc.Pinecone.ReadyIntervalDuration(),
			ReadyAttempts: mc.Pinecone.ReadyAttempts,
		}
		cached, err := memory.NewCachingEmbedder(pinecone.NewEmbedder(opts), mc.QueryCacheSize)
		if err != nil {
			return nil, nil, err
		}
		idx, err := pinecone.New(cached, opts, logger)
		if err != nil {
			cached.Close()
			return nil, nil, err
		}
		logger.Info().Str("index", mc.Pinecone.IndexName).Msg("Using pinecone vector index")
		return idx, cached.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown memory backend %q", mc.Backend)
	}
}

// openMemory opens the database and the index, waits for the index to be
// ready and starts the write-behind indexer.
func openMemory(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*memoryStack, error) {
	stack := &memoryStack{}

	db, err := openDatabase(cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}
	stack.db = db
	stack.store = conversations.NewStore(db, logger)

	index, cleanup, err := buildIndex(cfg, logger)
	if err != nil {
		stack.Close()
		return nil, err
	}
	stack.close = append(stack.close, cleanup)

	readyCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	if err := index.EnsureReady(readyCtx); err != nil {
		stack.Close()
		return nil, fmt.Errorf("vector index not ready: %w", err)
	}

	indexerCfg, err := workqueue.LoadConfig()
	if err != nil {
		stack.Close()
		return nil, fmt.Errorf("failed to read indexer settings: %w", err)
	}
	stack.memory = memory.New(stack.store, index, memory.Config{
		Scope:   memory.Scope(cfg.Memory.Scope),
		Indexer: indexerCfg,
	}, logger)
	return stack, nil
}
