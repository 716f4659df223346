package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	ctxpkg "github.com/aschepis/backscratcher/claw/context"
	"github.com/aschepis/backscratcher/claw/memory"
)

const maxSearchLimit = 20

// Recaller is the part of the memory facade search_memory needs.
type Recaller interface {
	Recall(ctx context.Context, conversationID, query string, topK int) []memory.Record
}

// RegisterMemoryTools registers search_memory backed by mem. The conversation
// searched is the one recorded on the call's context.
func (r *Registry) RegisterMemoryTools(mem Recaller) {
	r.logger.Info().Msg("Registering memory tools in registry")

	r.Register("search_memory", func(ctx context.Context, args map[string]any) (string, error) {
		query := strings.TrimSpace(stringArg(args, "query"))
		if query == "" {
			return "", errors.New("query cannot be empty")
		}
		limit := intArg(args, "limit", memory.DefaultRecallTopK)
		if limit <= 0 {
			limit = memory.DefaultRecallTopK
		}
		if limit > maxSearchLimit {
			limit = maxSearchLimit
		}

		convID, _ := ctxpkg.GetConversationID(ctx)
		records := mem.Recall(ctx, convID, query, limit)
		r.logger.Debug().Str("conversation", convID).Int("result_count", len(records)).Msg("search_memory returned results")
		if len(records) == 0 {
			return "No matching memories found.", nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Found %d memories:\n", len(records))
		for _, rec := range records {
			fmt.Fprintf(&b, "- [%s] %s: %s (score %.2f)\n", rec.Timestamp, rec.Role, rec.Text, rec.Score)
		}
		return strings.TrimRight(b.String(), "\n"), nil
	})
}
