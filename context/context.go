// Package context carries per-turn identifiers through context.Context.
// It lives in its own package so chat, agent and tools can share the keys
// without importing each other.
package context

import (
	stdctx "context"
)

type conversationKey struct{}

type turnKey struct{}

// WithConversationID records the conversation a turn belongs to.
func WithConversationID(ctx stdctx.Context, id string) stdctx.Context {
	return stdctx.WithValue(ctx, conversationKey{}, id)
}

// GetConversationID returns the conversation id and whether it was set.
func GetConversationID(ctx stdctx.Context) (string, bool) {
	id, ok := ctx.Value(conversationKey{}).(string)
	return id, ok
}

// WithTurnID tags the context with the id used to correlate a turn's logs.
func WithTurnID(ctx stdctx.Context, id string) stdctx.Context {
	return stdctx.WithValue(ctx, turnKey{}, id)
}

// GetTurnID returns the turn id, or "" when none was set.
func GetTurnID(ctx stdctx.Context) string {
	id, _ := ctx.Value(turnKey{}).(string)
	return id
}
