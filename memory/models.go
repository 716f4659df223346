package memory

import (
	"context"
	"strconv"
)

// Record is one semantic search hit.
type Record struct {
	ID             string  `json:"id"`
	Text           string  `json:"text"`
	Role           string  `json:"role"`
	Timestamp      string  `json:"timestamp"`
	ConversationID string  `json:"conversation_id"`
	Score          float64 `json:"score"`
}

// Turn is a {role, content} pair fed back to the model as history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Document is what the indexer writes for each logged message.
type Document struct {
	ID             string
	Text           string
	Role           string
	Timestamp      string
	ConversationID string
}

// Filter narrows a Query. Empty fields match everything.
type Filter struct {
	ConversationID string
}

// Index is a vector store holding one embedding per message.
// Implementations return errors; Memory decides what callers see.
type Index interface {
	// EnsureReady verifies or provisions the backing index and blocks until it serves requests.
	EnsureReady(ctx context.Context) error
	// Upsert embeds doc.Text in passage mode and stores it under doc.ID, replacing any previous entry.
	Upsert(ctx context.Context, doc Document) error
	// Query embeds text in query mode and returns up to topK records, best first.
	Query(ctx context.Context, text string, topK int, filter Filter) ([]Record, error)
}

// Scope decides which conversations Recall searches.
type Scope string

const (
	ScopeConversation Scope = "conversation"
	ScopeGlobal       Scope = "global"
)

// ExternalID is the index key for a logged message.
func ExternalID(messageID int64) string {
	return "msg-" + strconv.FormatInt(messageID, 10)
}
