// Package memory combines the durable message log with a semantic index.
//
// Every message is written to the log synchronously and then indexed in the
// background. Recent history comes from the log; long-term recall comes from
// the index. The two are eventually consistent: a message is linked to its
// index entry only after the upsert succeeds, and the reconciler re-indexes
// anything left unlinked.
package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/aschepis/backscratcher/claw/conversations"
	"github.com/aschepis/backscratcher/claw/metrics"
	"github.com/aschepis/backscratcher/claw/workqueue"
)

const (
	DefaultRecallTopK   = 5
	DefaultRecentLimit  = 10
	DefaultReindexBatch = 200
)

// Log is the subset of the conversation store Memory needs.
type Log interface {
	Append(ctx context.Context, conversationID string, role conversations.Role, content string) (conversations.Message, error)
	Recent(ctx context.Context, conversationID string, limit int) ([]conversations.Message, error)
	LinkExternalID(ctx context.Context, id int64, externalID string) error
	Unindexed(ctx context.Context, limit int) ([]conversations.Message, error)
}

// Config tunes the facade.
type Config struct {
	// Scope limits Recall to the asking conversation or searches all of them.
	Scope Scope
	// Indexer configures the write-behind queue.
	Indexer workqueue.Config
}

// Memory is the facade the agent and tools talk to.
type Memory struct {
	log     Log
	index   Index
	indexer *workqueue.ShardExecutor
	scope   Scope
	logger  zerolog.Logger
}

// New wires the log and index together and starts the write-behind indexer.
// Call Close to drain it.
func New(log Log, index Index, cfg Config, logger zerolog.Logger) *Memory {
	logger = logger.With().Str("component", "memory").Logger()

	if cfg.Scope == "" {
		cfg.Scope = ScopeConversation
	}
	if cfg.Indexer.Name == "" {
		cfg.Indexer.Name = "indexer"
	}

	return &Memory{
		log:     log,
		index:   index,
		indexer: workqueue.NewShardExecutor(cfg.Indexer, logger),
		scope:   cfg.Scope,
		logger:  logger,
	}
}

// Remember appends a message to the log and schedules it for indexing.
// Only the log write can fail; indexing problems are logged and counted.
func (m *Memory) Remember(ctx context.Context, conversationID string, role conversations.Role, content string) (conversations.Message, error) {
	msg, err := m.log.Append(ctx, conversationID, role, content)
	if err != nil {
		return conversations.Message{}, fmt.Errorf("remember message: %w", err)
	}
	m.enqueue(ctx, msg)
	return msg, nil
}

// Recall returns up to topK stored messages semantically close to query.
// It never fails: any backend problem yields an empty result.
func (m *Memory) Recall(ctx context.Context, conversationID, query string, topK int) (records []Record) {
	if topK <= 0 {
		topK = DefaultRecallTopK
	}
	if strings.TrimSpace(query) == "" {
		return []Record{}
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Interface("panic", r).Msg("Recall panicked")
			metrics.RecallTotal.WithLabelValues(metrics.OutcomeError).Inc()
			records = []Record{}
		}
	}()

	filter := Filter{}
	if m.scope == ScopeConversation {
		filter.ConversationID = conversationID
	}

	records, err := m.index.Query(ctx, query, topK, filter)
	if err != nil {
		m.logger.Warn().Err(err).Str("conversation", conversationID).Msg("Semantic recall failed")
		metrics.RecallTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return []Record{}
	}
	metrics.RecallTotal.WithLabelValues(metrics.OutcomeOK).Inc()
	if records == nil {
		records = []Record{}
	}
	return records
}

// RecentContext returns the last limit messages of the conversation as turns, oldest first.
func (m *Memory) RecentContext(ctx context.Context, conversationID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	msgs, err := m.log.Recent(ctx, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("load recent context: %w", err)
	}
	return lo.Map(msgs, func(msg conversations.Message, _ int) Turn {
		return Turn{Role: string(msg.Role), Content: msg.Content}
	}), nil
}

// Reindex enqueues up to batch messages that have no index entry yet and
// returns how many were accepted.
func (m *Memory) Reindex(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = DefaultReindexBatch
	}
	msgs, err := m.log.Unindexed(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("list unindexed messages: %w", err)
	}

	queued := 0
	for _, msg := range msgs {
		if m.enqueue(ctx, msg) {
			queued++
		}
	}
	if queued > 0 {
		metrics.ReconciledTotal.Add(float64(queued))
		m.logger.Info().Int("queued", queued).Int("found", len(msgs)).Msg("Re-enqueued unindexed messages")
	}
	return queued, nil
}

// Flush waits until every index write already queued for the conversation has finished.
func (m *Memory) Flush(ctx context.Context, conversationID string) error {
	return m.indexer.Barrier(ctx, conversationID)
}

// Close drains the write-behind queue.
func (m *Memory) Close() error {
	return m.indexer.Close()
}

// enqueue schedules an upsert for msg. The job outlives the caller's request,
// so it runs on a context that keeps values but drops cancellation.
func (m *Memory) enqueue(ctx context.Context, msg conversations.Message) bool {
	jobCtx := context.WithoutCancel(ctx)
	doc := Document{
		ID:             ExternalID(msg.ID),
		Text:           msg.Content,
		Role:           string(msg.Role),
		Timestamp:      msg.Timestamp,
		ConversationID: msg.ConversationID,
	}

	err := m.indexer.Submit(jobCtx, msg.ConversationID, workqueue.JobFunc(func(ctx context.Context) error {
		return m.indexMessage(ctx, msg.ID, doc)
	}))
	if err != nil {
		metrics.IndexDroppedTotal.Inc()
		m.logger.Warn().Err(err).Int64("message_id", msg.ID).Msg("Could not enqueue index write")
		return false
	}
	return true
}

func (m *Memory) indexMessage(ctx context.Context, id int64, doc Document) error {
	if err := m.index.Upsert(ctx, doc); err != nil {
		metrics.IndexUpsertsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return fmt.Errorf("upsert %s: %w", doc.ID, err)
	}
	metrics.IndexUpsertsTotal.WithLabelValues(metrics.OutcomeOK).Inc()

	if err := m.log.LinkExternalID(ctx, id, doc.ID); err != nil {
		// The vector is stored; a failed link only means the reconciler
		// will upsert the same id again, which overwrites.
		return workqueue.Permanent(fmt.Errorf("link %s: %w", doc.ID, err))
	}
	m.logger.Debug().Str("id", doc.ID).Msg("Indexed message")
	return nil
}
