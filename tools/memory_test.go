package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	ctxpkg "github.com/aschepis/backscratcher/claw/context"
	"github.com/aschepis/backscratcher/claw/memory"
)

type recallCall struct {
	conversationID string
	query          string
	topK           int
}

type fakeRecaller struct {
	records []memory.Record
	calls   []recallCall
}

func (f *fakeRecaller) Recall(_ context.Context, conversationID, query string, topK int) []memory.Record {
	f.calls = append(f.calls, recallCall{conversationID, query, topK})
	return f.records
}

func TestSearchMemory(t *testing.T) {
	rec := &fakeRecaller{records: []memory.Record{
		{ID: "msg-2", Text: "I am allergic to peanuts", Role: "user", Timestamp: "2026-01-02T10:00:00.000Z", Score: 0.91},
	}}
	reg := NewRegistry(zerolog.Nop())
	reg.RegisterMemoryTools(rec)

	ctx := ctxpkg.WithConversationID(context.Background(), "chat-7")
	got := reg.Execute(ctx, "search_memory", map[string]any{"query": "  allergies ", "limit": float64(3)})

	want := "Found 1 memories:\n- [2026-01-02T10:00:00.000Z] user: I am allergic to peanuts (score 0.91)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if len(rec.calls) != 1 {
		t.Fatalf("Recall called %d times", len(rec.calls))
	}
	if c := rec.calls[0]; c.conversationID != "chat-7" || c.query != "allergies" || c.topK != 3 {
		t.Errorf("unexpected recall call %+v", c)
	}
}

func TestSearchMemory_Limits(t *testing.T) {
	tests := []struct {
		name  string
		limit any
		want  int
	}{
		{"default", nil, memory.DefaultRecallTopK},
		{"zero", float64(0), memory.DefaultRecallTopK},
		{"capped", float64(500), maxSearchLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecaller{}
			reg := NewRegistry(zerolog.Nop())
			reg.RegisterMemoryTools(rec)

			args := map[string]any{"query": "bees"}
			if tt.limit != nil {
				args["limit"] = tt.limit
			}
			if got := reg.Execute(context.Background(), "search_memory", args); got != "No matching memories found." {
				t.Errorf("got %q", got)
			}
			if rec.calls[0].topK != tt.want {
				t.Errorf("topK = %d, want %d", rec.calls[0].topK, tt.want)
			}
		})
	}
}

func TestSearchMemory_EmptyQuery(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	reg.RegisterMemoryTools(&fakeRecaller{})

	got := reg.Execute(context.Background(), "search_memory", map[string]any{})
	if !strings.HasPrefix(got, `Error executing tool "search_memory": query cannot be empty`) {
		t.Errorf("got %q", got)
	}
}
