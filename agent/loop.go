// Package agent runs one user turn against the language model, executing
// tool calls until the model answers in plain text or the iteration cap is hit.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	ctxpkg "github.com/aschepis/backscratcher/claw/context"
	"github.com/aschepis/backscratcher/claw/llm"
	"github.com/aschepis/backscratcher/claw/memory"
	"github.com/aschepis/backscratcher/claw/metrics"
)

const (
	DefaultMaxIterations = 10
	DefaultMaxTokens     = 2048

	// NoResponse is returned when the model produced no usable text.
	NoResponse = "(No response generated)"
	// MaxStepsReached is returned when the iteration cap runs out.
	MaxStepsReached = "I reached the maximum number of reasoning steps. Please try a simpler question."
)

// Memory is what the loop reads before calling the model.
type Memory interface {
	RecentContext(ctx context.Context, conversationID string, limit int) ([]memory.Turn, error)
	Recall(ctx context.Context, conversationID, query string, topK int) []memory.Record
}

// ToolExecutor lists and runs tools. Execute reports failures as text.
type ToolExecutor interface {
	Specs() []llm.ToolSpec
	Execute(ctx context.Context, name string, args map[string]any) string
}

// Config tunes the loop. Zero values take the defaults.
type Config struct {
	Model         string
	MaxIterations int
	MaxTokens     int64
	RecentLimit   int
	RecallTopK    int
	Persona       string
}

// Loop is the agent reasoning loop.
type Loop struct {
	client llm.Client
	memory Memory
	tools  ToolExecutor
	cfg    Config
	logger zerolog.Logger
}

// NewLoop creates a Loop.
func NewLoop(client llm.Client, mem Memory, tools ToolExecutor, cfg Config, logger zerolog.Logger) (*Loop, error) {
	if client == nil {
		return nil, errors.New("llm client is required")
	}
	if mem == nil {
		return nil, errors.New("memory is required")
	}
	if tools == nil {
		return nil, errors.New("tool executor is required")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = memory.DefaultRecentLimit
	}
	if cfg.RecallTopK <= 0 {
		cfg.RecallTopK = memory.DefaultRecallTopK
	}
	if cfg.Persona == "" {
		cfg.Persona = Persona
	}
	return &Loop{
		client: client,
		memory: mem,
		tools:  tools,
		cfg:    cfg,
		logger: logger.With().Str("component", "agent").Logger(),
	}, nil
}

// Run answers userMessage. The caller normally remembers the message first;
// if it is already the newest turn of the recent context it is not repeated.
// Errors from the model transport are returned wrapped.
func (l *Loop) Run(ctx context.Context, conversationID, userMessage string) (string, error) {
	ctx = ctxpkg.WithConversationID(ctx, conversationID)
	logger := l.logger.With().Str("conversation", conversationID).Str("turn", ctxpkg.GetTurnID(ctx)).Logger()

	req, err := l.prepareRequest(ctx, conversationID, userMessage)
	if err != nil {
		return "", err
	}

	for i := 1; i <= l.cfg.MaxIterations; i++ {
		resp, err := l.client.Synchronous(ctx, req)
		if errors.Is(err, llm.ErrNoChoices) {
			metrics.AgentIterations.Observe(float64(i))
			return NoResponse, nil
		}
		if err != nil {
			return "", fmt.Errorf("model call %d: %w", i, err)
		}

		uses := resp.ToolUses()
		if len(uses) == 0 {
			metrics.AgentIterations.Observe(float64(i))
			text := strings.TrimSpace(resp.Text())
			if text == "" {
				return NoResponse, nil
			}
			logger.Debug().Int("iterations", i).Msg("Agent finished")
			return text, nil
		}

		logger.Debug().Int("iteration", i).Int("tool_calls", len(uses)).Msg("Model requested tools")
		req.Messages = append(req.Messages, llm.NewToolUseMessage(resp.Text(), uses))
		for _, use := range uses {
			args := use.Input
			if args == nil {
				logger.Warn().Str("tool", use.Name).Str("raw", use.RawInput).Msg("Malformed tool arguments, using empty object")
				args = map[string]any{}
			}
			result := l.tools.Execute(ctx, use.Name, args)
			req.Messages = append(req.Messages, llm.NewToolResultMessage(llm.ToolResultBlock{
				ID:      use.ID,
				Content: result,
			}))
		}
	}

	metrics.AgentIterations.Observe(float64(l.cfg.MaxIterations))
	logger.Warn().Int("max_iterations", l.cfg.MaxIterations).Msg("Agent hit iteration cap")
	return MaxStepsReached, nil
}

func (l *Loop) prepareRequest(ctx context.Context, conversationID, userMessage string) (*llm.Request, error) {
	recent, err := l.memory.RecentContext(ctx, conversationID, l.cfg.RecentLimit)
	if err != nil {
		return nil, fmt.Errorf("load recent context: %w", err)
	}
	records := l.memory.Recall(ctx, conversationID, userMessage, l.cfg.RecallTopK)

	if n := len(recent); n > 0 && recent[n-1] == (memory.Turn{Role: string(llm.RoleUser), Content: userMessage}) {
		recent = recent[:n-1]
	}
	messages := lo.Map(recent, func(t memory.Turn, _ int) llm.Message {
		return llm.NewTextMessage(llm.MessageRole(t.Role), t.Content)
	})
	messages = append(messages, llm.NewTextMessage(llm.RoleUser, userMessage))

	return &llm.Request{
		Model:     l.cfg.Model,
		Messages:  messages,
		System:    BuildSystemPrompt(l.cfg.Persona, records),
		Tools:     l.tools.Specs(),
		MaxTokens: l.cfg.MaxTokens,
	}, nil
}
