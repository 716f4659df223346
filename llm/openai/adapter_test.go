package openai

import (
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aschepis/backscratcher/claw/llm"
)

func TestFromOpenAIToolCall(t *testing.T) {
	tests := []struct {
		name      string
		args      string
		wantNil   bool
		wantQuery string
	}{
		{name: "object", args: `{"query":"bees"}`, wantQuery: "bees"},
		{name: "empty", args: ""},
		{name: "malformed", args: `{"query":`, wantNil: true},
		{name: "not an object", args: `["a"]`, wantNil: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			block := FromOpenAIToolCall(openai.ToolCall{
				ID:       "call-1",
				Type:     openai.ToolTypeFunction,
				Function: openai.FunctionCall{Name: "search_memory", Arguments: tt.args},
			})
			if block.ID != "call-1" || block.Name != "search_memory" || block.RawInput != tt.args {
				t.Errorf("unexpected block: %+v", block)
			}
			if tt.wantNil {
				if block.Input != nil {
					t.Errorf("expected nil input, got %v", block.Input)
				}
				return
			}
			if block.Input == nil {
				t.Fatal("expected non-nil input")
			}
			if tt.wantQuery != "" && block.Input["query"] != tt.wantQuery {
				t.Errorf("query = %v", block.Input["query"])
			}
		})
	}
}

func TestToOpenAIMessages_ToolRoundTrip(t *testing.T) {
	msgs := []llm.Message{
		llm.NewTextMessage(llm.RoleUser, "what time is it?"),
		llm.NewToolUseMessage("", []llm.ToolUseBlock{
			{ID: "call-1", Name: "get_current_time", Input: map[string]any{"timezone": "UTC"}},
			{ID: "call-2", Name: "broken", RawInput: `{"oops`},
		}),
		llm.NewToolResultMessage(llm.ToolResultBlock{ID: "call-1", Content: "12:00"}),
		llm.NewToolResultMessage(llm.ToolResultBlock{ID: "call-2", Content: "Error"}),
	}

	out, err := ToOpenAIMessages(msgs)
	if err != nil {
		t.Fatalf("ToOpenAIMessages: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("got %d messages, want 4", len(out))
	}
	if out[0].Role != openai.ChatMessageRoleUser || out[0].Content != "what time is it?" {
		t.Errorf("user message = %+v", out[0])
	}

	asst := out[1]
	if asst.Role != openai.ChatMessageRoleAssistant || len(asst.ToolCalls) != 2 {
		t.Fatalf("assistant message = %+v", asst)
	}
	if asst.ToolCalls[0].Function.Arguments != `{"timezone":"UTC"}` {
		t.Errorf("arguments = %s", asst.ToolCalls[0].Function.Arguments)
	}
	if asst.ToolCalls[1].Function.Arguments != `{}` {
		t.Errorf("malformed arguments should be replaced, got %s", asst.ToolCalls[1].Function.Arguments)
	}

	for i, id := range []string{"call-1", "call-2"} {
		m := out[2+i]
		if m.Role != openai.ChatMessageRoleTool || m.ToolCallID != id {
			t.Errorf("tool message %d = %+v", i, m)
		}
	}
}

func TestToOpenAITool(t *testing.T) {
	tool := ToOpenAITool(&llm.ToolSpec{
		Name:        "search_memory",
		Description: "Search past messages",
		Schema: llm.ToolSchema{
			Properties: map[string]any{"query": map[string]any{"type": "string"}},
			Required:   []string{"query"},
		},
	})
	if tool.Type != openai.ToolTypeFunction || tool.Function.Name != "search_memory" {
		t.Fatalf("unexpected tool: %+v", tool)
	}
	params, ok := tool.Function.Parameters.(map[string]any)
	if !ok {
		t.Fatalf("parameters type %T", tool.Function.Parameters)
	}
	if params["type"] != "object" {
		t.Errorf("schema type = %v, want object", params["type"])
	}
	if req, _ := params["required"].([]string); len(req) != 1 || req[0] != "query" {
		t.Errorf("required = %v", params["required"])
	}
}
