package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	ctxpkg "github.com/aschepis/backscratcher/claw/context"
	"github.com/aschepis/backscratcher/claw/llm"
	"github.com/aschepis/backscratcher/claw/memory"
	"github.com/aschepis/backscratcher/claw/tools"
)

// scriptedClient replays responses in order and keeps a copy of every request.
type scriptedClient struct {
	responses []*llm.Response
	errs      []error
	requests  []llm.Request
}

func (c *scriptedClient) Synchronous(_ context.Context, req *llm.Request) (*llm.Response, error) {
	cp := *req
	cp.Messages = append([]llm.Message(nil), req.Messages...)
	c.requests = append(c.requests, cp)

	i := len(c.requests) - 1
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	if i < len(c.responses) {
		return c.responses[i], nil
	}
	return c.responses[len(c.responses)-1], nil
}

type fakeMemory struct {
	recent  []memory.Turn
	records []memory.Record
}

func (m *fakeMemory) RecentContext(context.Context, string, int) ([]memory.Turn, error) {
	return m.recent, nil
}

func (m *fakeMemory) Recall(context.Context, string, string, int) []memory.Record {
	return m.records
}

type toolCall struct {
	name         string
	args         map[string]any
	conversation string
}

type fakeTools struct {
	calls []toolCall
}

func (f *fakeTools) Specs() []llm.ToolSpec {
	return []llm.ToolSpec{{Name: "get_current_time"}}
}

func (f *fakeTools) Execute(ctx context.Context, name string, args map[string]any) string {
	conv, _ := ctxpkg.GetConversationID(ctx)
	f.calls = append(f.calls, toolCall{name: name, args: args, conversation: conv})
	return "result of " + name
}

func textResponse(text string) *llm.Response {
	return &llm.Response{Content: []llm.ContentBlock{{Type: llm.ContentBlockTypeText, Text: text}}}
}

func toolResponse(uses ...llm.ToolUseBlock) *llm.Response {
	resp := &llm.Response{}
	for i := range uses {
		resp.Content = append(resp.Content, llm.ContentBlock{Type: llm.ContentBlockTypeToolUse, ToolUse: &uses[i]})
	}
	return resp
}

func newTestLoop(t *testing.T, client llm.Client, mem Memory, tl ToolExecutor, cfg Config) *Loop {
	t.Helper()
	loop, err := NewLoop(client, mem, tl, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	return loop
}

func TestRun_SingleCallTermination(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{textResponse("Hello there")}}
	loop := newTestLoop(t, client, &fakeMemory{}, &fakeTools{}, Config{Model: "m"})

	got, err := loop.Run(context.Background(), "c1", "hi")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "Hello there" {
		t.Errorf("got %q", got)
	}
	if len(client.requests) != 1 {
		t.Fatalf("model called %d times, want 1", len(client.requests))
	}
	req := client.requests[0]
	if req.Model != "m" || req.MaxTokens != DefaultMaxTokens || len(req.Tools) != 1 {
		t.Errorf("unexpected request %+v", req)
	}
}

func TestRun_CapTermination(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		toolResponse(llm.ToolUseBlock{ID: "t", Name: "get_current_time", Input: map[string]any{}}),
	}}
	tl := &fakeTools{}
	loop := newTestLoop(t, client, &fakeMemory{}, tl, Config{MaxIterations: 3})

	got, err := loop.Run(context.Background(), "c1", "loop forever")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != MaxStepsReached {
		t.Errorf("got %q", got)
	}
	if len(client.requests) != 3 {
		t.Errorf("model called %d times, want exactly 3", len(client.requests))
	}
	if len(tl.calls) != 3 {
		t.Errorf("tools executed %d times, want 3", len(tl.calls))
	}
}

func TestRun_DefaultCap(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		toolResponse(llm.ToolUseBlock{ID: "t", Name: "get_current_time", Input: map[string]any{}}),
	}}
	loop := newTestLoop(t, client, &fakeMemory{}, &fakeTools{}, Config{})

	if got, _ := loop.Run(context.Background(), "c1", "x"); got != MaxStepsReached {
		t.Errorf("got %q", got)
	}
	if len(client.requests) != DefaultMaxIterations {
		t.Errorf("model called %d times, want %d", len(client.requests), DefaultMaxIterations)
	}
}

func TestRun_ToolCallOrdering(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		toolResponse(
			llm.ToolUseBlock{ID: "call_a", Name: "first", Input: map[string]any{"n": float64(1)}},
			llm.ToolUseBlock{ID: "call_b", Name: "second", Input: map[string]any{"n": float64(2)}},
		),
		textResponse("done"),
	}}
	tl := &fakeTools{}
	loop := newTestLoop(t, client, &fakeMemory{}, tl, Config{})

	got, err := loop.Run(context.Background(), "c9", "do two things")
	if err != nil || got != "done" {
		t.Fatalf("Run = %q, %v", got, err)
	}

	if len(tl.calls) != 2 || tl.calls[0].name != "first" || tl.calls[1].name != "second" {
		t.Fatalf("tool calls out of order: %+v", tl.calls)
	}
	for _, c := range tl.calls {
		if c.conversation != "c9" {
			t.Errorf("tool %s saw conversation %q", c.name, c.conversation)
		}
	}

	msgs := client.requests[1].Messages
	if len(msgs) != 4 {
		t.Fatalf("second request has %d messages, want 4", len(msgs))
	}
	assistant := msgs[1]
	if assistant.Role != llm.RoleAssistant || len(assistant.Content) != 2 {
		t.Fatalf("unexpected assistant message %+v", assistant)
	}
	for i, want := range []struct{ id, content string }{
		{"call_a", "result of first"},
		{"call_b", "result of second"},
	} {
		m := msgs[2+i]
		if m.Role != llm.RoleTool {
			t.Errorf("message %d role = %s", 2+i, m.Role)
		}
		res := m.Content[0].ToolResult
		if res == nil || res.ID != want.id || res.Content != want.content {
			t.Errorf("tool result %d = %+v, want %+v", i, res, want)
		}
	}
}

func TestRun_MalformedArgumentsBecomeEmpty(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		toolResponse(llm.ToolUseBlock{ID: "x", Name: "get_current_time", RawInput: "{not json"}),
		textResponse("ok"),
	}}
	tl := &fakeTools{}
	loop := newTestLoop(t, client, &fakeMemory{}, tl, Config{})

	if _, err := loop.Run(context.Background(), "c1", "time?"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(tl.calls) != 1 {
		t.Fatalf("tools executed %d times", len(tl.calls))
	}
	if args := tl.calls[0].args; args == nil || len(args) != 0 {
		t.Errorf("args = %#v, want empty map", args)
	}
}

func TestRun_UnknownToolResult(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		toolResponse(llm.ToolUseBlock{ID: "u1", Name: "teleport", Input: map[string]any{}}),
		textResponse("sorry"),
	}}
	reg := tools.NewRegistry(zerolog.Nop())
	loop := newTestLoop(t, client, &fakeMemory{}, reg, Config{})

	if got, err := loop.Run(context.Background(), "c1", "beam me up"); err != nil || got != "sorry" {
		t.Fatalf("Run = %q, %v", got, err)
	}
	msgs := client.requests[1].Messages
	res := msgs[len(msgs)-1].Content[0].ToolResult
	if res == nil || res.ID != "u1" || res.Content != `Error: Unknown tool "teleport"` {
		t.Errorf("unexpected tool result %+v", res)
	}
}

func TestRun_Sentinels(t *testing.T) {
	tests := []struct {
		name   string
		client *scriptedClient
	}{
		{"no choices", &scriptedClient{errs: []error{llm.ErrNoChoices}, responses: []*llm.Response{{}}}},
		{"empty content", &scriptedClient{responses: []*llm.Response{textResponse("   ")}}},
		{"no blocks", &scriptedClient{responses: []*llm.Response{{}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loop := newTestLoop(t, tt.client, &fakeMemory{}, &fakeTools{}, Config{})
			got, err := loop.Run(context.Background(), "c1", "hello")
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got != NoResponse {
				t.Errorf("got %q, want %q", got, NoResponse)
			}
		})
	}
}

func TestRun_TransportErrorPropagates(t *testing.T) {
	boom := llm.NewNetworkError("connection reset", errors.New("reset"))
	client := &scriptedClient{errs: []error{boom}, responses: []*llm.Response{{}}}
	loop := newTestLoop(t, client, &fakeMemory{}, &fakeTools{}, Config{})

	_, err := loop.Run(context.Background(), "c1", "hello")
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped network error", err)
	}
}

func TestRun_PromptIncludesContext(t *testing.T) {
	mem := &fakeMemory{
		recent: []memory.Turn{
			{Role: "user", Content: "My name is Alex"},
			{Role: "assistant", Content: "Nice to meet you, Alex!"},
			{Role: "user", Content: "What's my name?"},
		},
		records: []memory.Record{
			{Text: "My name is Alex", Role: "user", Timestamp: "2026-01-01T09:00:00.000Z"},
		},
	}
	client := &scriptedClient{responses: []*llm.Response{textResponse("Alex")}}
	loop := newTestLoop(t, client, mem, &fakeTools{}, Config{})

	if _, err := loop.Run(context.Background(), "c1", "What's my name?"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	req := client.requests[0]

	if !strings.HasPrefix(req.System, Persona) {
		t.Error("system prompt does not start with the persona")
	}
	if !strings.Contains(req.System, "Relevant past memories") ||
		!strings.Contains(req.System, "- [2026-01-01T09:00:00.000Z] user: My name is Alex") {
		t.Errorf("system prompt missing memories:\n%s", req.System)
	}

	// The remembered copy of the current message is not sent twice.
	want := []string{"My name is Alex", "Nice to meet you, Alex!", "What's my name?"}
	if len(req.Messages) != len(want) {
		t.Fatalf("got %d messages, want %d", len(req.Messages), len(want))
	}
	for i, w := range want {
		if got := req.Messages[i].Content[0].Text; got != w {
			t.Errorf("message %d = %q, want %q", i, got, w)
		}
	}
	if req.Messages[1].Role != llm.RoleAssistant || req.Messages[2].Role != llm.RoleUser {
		t.Error("roles not preserved")
	}
}

func TestRun_KeepsEarlierIdenticalMessage(t *testing.T) {
	mem := &fakeMemory{
		recent: []memory.Turn{
			{Role: "user", Content: "ping"},
			{Role: "assistant", Content: "pong"},
		},
	}
	client := &scriptedClient{responses: []*llm.Response{textResponse("pong again")}}
	loop := newTestLoop(t, client, mem, &fakeTools{}, Config{})

	if _, err := loop.Run(context.Background(), "c1", "ping"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	msgs := client.requests[0].Messages
	want := []struct {
		role llm.MessageRole
		text string
	}{
		{llm.RoleUser, "ping"},
		{llm.RoleAssistant, "pong"},
		{llm.RoleUser, "ping"},
	}
	if len(msgs) != len(want) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(want))
	}
	for i, w := range want {
		if msgs[i].Role != w.role || msgs[i].Content[0].Text != w.text {
			t.Errorf("message %d = %s %q, want %s %q", i, msgs[i].Role, msgs[i].Content[0].Text, w.role, w.text)
		}
	}
}

func TestBuildSystemPrompt_NoMemories(t *testing.T) {
	if got := BuildSystemPrompt("persona", nil); got != "persona" {
		t.Errorf("got %q", got)
	}
}

func TestNewLoop_RequiresDependencies(t *testing.T) {
	if _, err := NewLoop(nil, &fakeMemory{}, &fakeTools{}, Config{}, zerolog.Nop()); err == nil {
		t.Error("expected error for nil client")
	}
	if _, err := NewLoop(&scriptedClient{}, nil, &fakeTools{}, Config{}, zerolog.Nop()); err == nil {
		t.Error("expected error for nil memory")
	}
	if _, err := NewLoop(&scriptedClient{}, &fakeMemory{}, nil, Config{}, zerolog.Nop()); err == nil {
		t.Error("expected error for nil tools")
	}
}
