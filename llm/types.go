package llm

import "strings"

// MessageRole is the author of a message in a model conversation.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	// RoleTool carries the output of one tool call back to the model.
	RoleTool MessageRole = "tool"
)

// Message is a provider-neutral conversation message made of content blocks.
type Message struct {
	Role    MessageRole
	Content []ContentBlock
}

// ContentBlock is one piece of a message: text, a tool call, or a tool result.
type ContentBlock struct {
	Type       ContentBlockType
	Text       string
	ToolUse    *ToolUseBlock
	ToolResult *ToolResultBlock
}

// ContentBlockType tags a ContentBlock.
type ContentBlockType string

const (
	ContentBlockTypeText       ContentBlockType = "text"
	ContentBlockTypeToolUse    ContentBlockType = "tool_use"
	ContentBlockTypeToolResult ContentBlockType = "tool_result"
)

// ToolUseBlock is a tool invocation requested by the model.
// Input is nil when the provider sent arguments that were not a JSON object.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input map[string]any
	// RawInput is the arguments string as the provider sent it.
	RawInput string
}

// ToolResultBlock answers the ToolUseBlock with the same ID.
type ToolResultBlock struct {
	ID      string
	Content string
}

// ToolSpec describes a tool the model may call.
type ToolSpec struct {
	Name        string
	Description string
	Schema      ToolSchema
}

// ToolSchema is the JSON schema of a tool's arguments.
type ToolSchema struct {
	Type       string
	Properties map[string]any
	Required   []string
}

// Request is one chat completion call.
type Request struct {
	Model     string
	Messages  []Message
	System    string
	Tools     []ToolSpec
	MaxTokens int64
}

// Response is the model's reply to a Request.
type Response struct {
	Content    []ContentBlock
	Usage      *Usage
	StopReason string
}

// Usage reports token accounting for a call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Text joins the text blocks of the response.
func (r *Response) Text() string {
	var parts []string
	for _, b := range r.Content {
		if b.Type == ContentBlockTypeText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ToolUses returns the tool calls of the response in order.
func (r *Response) ToolUses() []ToolUseBlock {
	var uses []ToolUseBlock
	for _, b := range r.Content {
		if b.Type == ContentBlockTypeToolUse && b.ToolUse != nil {
			uses = append(uses, *b.ToolUse)
		}
	}
	return uses
}

// NewTextMessage builds a single-text-block message.
func NewTextMessage(role MessageRole, text string) Message {
	return Message{
		Role:    role,
		Content: []ContentBlock{{Type: ContentBlockTypeText, Text: text}},
	}
}

// NewToolUseMessage builds the assistant message that issued tool calls.
// Any accompanying text is kept ahead of the calls.
func NewToolUseMessage(text string, toolUses []ToolUseBlock) Message {
	content := make([]ContentBlock, 0, len(toolUses)+1)
	if text != "" {
		content = append(content, ContentBlock{Type: ContentBlockTypeText, Text: text})
	}
	for _, tu := range toolUses {
		content = append(content, ContentBlock{Type: ContentBlockTypeToolUse, ToolUse: &tu})
	}
	return Message{Role: RoleAssistant, Content: content}
}

// NewToolResultMessage builds the tool-role message answering one call.
func NewToolResultMessage(result ToolResultBlock) Message {
	return Message{
		Role:    RoleTool,
		Content: []ContentBlock{{Type: ContentBlockTypeToolResult, ToolResult: &result}},
	}
}
