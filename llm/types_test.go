package llm

import "testing"

func TestNewTextMessage(t *testing.T) {
	msg := NewTextMessage(RoleUser, "Hello, world!")
	if msg.Role != RoleUser {
		t.Errorf("Expected role %v, got %v", RoleUser, msg.Role)
	}
	if len(msg.Content) != 1 || msg.Content[0].Type != ContentBlockTypeText || msg.Content[0].Text != "Hello, world!" {
		t.Errorf("unexpected content: %+v", msg.Content)
	}
}

func TestNewToolUseMessage(t *testing.T) {
	msg := NewToolUseMessage("checking", []ToolUseBlock{
		{ID: "call-1", Name: "get_current_time", Input: map[string]any{}},
		{ID: "call-2", Name: "search_memory", Input: map[string]any{"query": "bees"}},
	})
	if msg.Role != RoleAssistant {
		t.Errorf("Expected role %v, got %v", RoleAssistant, msg.Role)
	}
	if len(msg.Content) != 3 {
		t.Fatalf("Expected 3 content blocks, got %d", len(msg.Content))
	}
	if msg.Content[0].Text != "checking" {
		t.Errorf("text block should come first, got %+v", msg.Content[0])
	}
	// Each block must point at its own call, not a shared loop variable.
	if msg.Content[1].ToolUse.ID != "call-1" || msg.Content[2].ToolUse.ID != "call-2" {
		t.Errorf("tool ids out of order: %s, %s", msg.Content[1].ToolUse.ID, msg.Content[2].ToolUse.ID)
	}
}

func TestNewToolResultMessage(t *testing.T) {
	msg := NewToolResultMessage(ToolResultBlock{ID: "call-1", Content: "2025-01-01"})
	if msg.Role != RoleTool {
		t.Errorf("Expected role %v, got %v", RoleTool, msg.Role)
	}
	if len(msg.Content) != 1 || msg.Content[0].ToolResult == nil || msg.Content[0].ToolResult.ID != "call-1" {
		t.Errorf("unexpected content: %+v", msg.Content)
	}
}

func TestResponseAccessors(t *testing.T) {
	resp := &Response{Content: []ContentBlock{
		{Type: ContentBlockTypeText, Text: "first"},
		{Type: ContentBlockTypeToolUse, ToolUse: &ToolUseBlock{ID: "a", Name: "x"}},
		{Type: ContentBlockTypeText, Text: "second"},
	}}
	if got := resp.Text(); got != "first\nsecond" {
		t.Errorf("Text() = %q", got)
	}
	if uses := resp.ToolUses(); len(uses) != 1 || uses[0].ID != "a" {
		t.Errorf("ToolUses() = %+v", uses)
	}
	if (&Response{}).Text() != "" {
		t.Error("empty response should have empty text")
	}
}
