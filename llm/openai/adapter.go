package openai

import (
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aschepis/backscratcher/claw/llm"
)

// ToOpenAIMessages converts llm messages to chat messages. A message holding
// several tool results expands to one tool-role message per result.
func ToOpenAIMessages(msgs []llm.Message) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, msg := range msgs {
		converted, err := ToOpenAIMessage(msg)
		if err != nil {
			return nil, err
		}
		result = append(result, converted...)
	}
	return result, nil
}

// ToOpenAIMessage converts a single llm.Message.
func ToOpenAIMessage(msg llm.Message) ([]openai.ChatCompletionMessage, error) {
	var (
		texts     []string
		toolCalls []openai.ToolCall
		results   []openai.ChatCompletionMessage
	)

	for _, block := range msg.Content {
		switch block.Type {
		case llm.ContentBlockTypeText:
			texts = append(texts, block.Text)
		case llm.ContentBlockTypeToolUse:
			if block.ToolUse == nil {
				continue
			}
			args := block.ToolUse.RawInput
			if args == "" || !json.Valid([]byte(args)) {
				input := block.ToolUse.Input
				if input == nil {
					input = map[string]any{}
				}
				b, err := json.Marshal(input)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal tool input: %w", err)
				}
				args = string(b)
			}
			toolCalls = append(toolCalls, openai.ToolCall{
				ID:   block.ToolUse.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      block.ToolUse.Name,
					Arguments: args,
				},
			})
		case llm.ContentBlockTypeToolResult:
			if block.ToolResult == nil {
				continue
			}
			results = append(results, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    block.ToolResult.Content,
				ToolCallID: block.ToolResult.ID,
			})
		}
	}

	if len(results) > 0 {
		return results, nil
	}

	out := openai.ChatCompletionMessage{
		Role:      toOpenAIRole(msg.Role),
		Content:   strings.Join(texts, "\n"),
		ToolCalls: toolCalls,
	}
	return []openai.ChatCompletionMessage{out}, nil
}

func toOpenAIRole(role llm.MessageRole) string {
	switch role {
	case llm.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case llm.RoleSystem:
		return openai.ChatMessageRoleSystem
	case llm.RoleTool:
		return openai.ChatMessageRoleTool
	default:
		return openai.ChatMessageRoleUser
	}
}

// ToOpenAITools converts tool specs to function definitions.
func ToOpenAITools(specs []llm.ToolSpec) []openai.Tool {
	result := make([]openai.Tool, 0, len(specs))
	for i := range specs {
		result = append(result, ToOpenAITool(&specs[i]))
	}
	return result
}

// ToOpenAITool converts one tool spec.
func ToOpenAITool(spec *llm.ToolSpec) openai.Tool {
	schemaType := spec.Schema.Type
	if schemaType == "" {
		schemaType = "object"
	}
	properties := spec.Schema.Properties
	if properties == nil {
		properties = map[string]any{}
	}
	parameters := map[string]any{
		"type":       schemaType,
		"properties": properties,
	}
	if len(spec.Schema.Required) > 0 {
		parameters["required"] = spec.Schema.Required
	}

	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  parameters,
		},
	}
}

// FromOpenAIToolCall converts a returned tool call. Input stays nil when the
// arguments are not a JSON object; an empty argument string is an empty object.
func FromOpenAIToolCall(toolCall openai.ToolCall) *llm.ToolUseBlock {
	block := &llm.ToolUseBlock{
		ID:       toolCall.ID,
		Name:     toolCall.Function.Name,
		RawInput: toolCall.Function.Arguments,
	}
	if strings.TrimSpace(toolCall.Function.Arguments) == "" {
		block.Input = map[string]any{}
		return block
	}
	var input map[string]any
	if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &input); err == nil {
		block.Input = input
	}
	return block
}
