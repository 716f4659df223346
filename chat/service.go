// Package chat turns inbound transport updates into agent turns: it checks
// the sender allow-list, serializes turns per conversation and delivers the
// reply.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	ctxpkg "github.com/aschepis/backscratcher/claw/context"
	"github.com/aschepis/backscratcher/claw/conversations"
	"github.com/aschepis/backscratcher/claw/metrics"
	"github.com/aschepis/backscratcher/claw/workqueue"
)

const (
	kindText    = "text"
	kindVoice   = "voice"
	kindCommand = "command"
)

// ErrVoiceDisabled is returned for voice updates when no transcriber is configured.
var ErrVoiceDisabled = errors.New("voice transcription is not configured")

// Update is one inbound message, already decoded by the transport.
type Update struct {
	ConversationID string
	SenderID       int64
	Text           string
	// Voice fetches the audio of a voice message; nil for text messages.
	Voice func(ctx context.Context) ([]byte, error)
}

// Replier delivers output to a conversation.
type Replier interface {
	SendText(ctx context.Context, conversationID, text string) error
	SendTyping(ctx context.Context, conversationID string) error
}

// Agent answers one user message.
type Agent interface {
	Run(ctx context.Context, conversationID, userMessage string) (string, error)
}

// Memory records messages.
type Memory interface {
	Remember(ctx context.Context, conversationID string, role conversations.Role, content string) (conversations.Message, error)
}

// Transcriber turns audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Config holds the service settings.
type Config struct {
	AllowedUserIDs []int64
	// TurnTimeout bounds one turn; zero disables it.
	TurnTimeout time.Duration
}

// Service handles updates for every conversation.
type Service struct {
	agent       Agent
	memory      Memory
	transcriber Transcriber
	replier     Replier
	allowed     map[int64]struct{}
	timeout     time.Duration
	lanes       *workqueue.Lanes
	logger      zerolog.Logger
}

// NewService creates a Service. transcriber may be nil, in which case voice
// messages get the voice failure reply.
func NewService(agent Agent, mem Memory, transcriber Transcriber, replier Replier, cfg Config, logger zerolog.Logger) (*Service, error) {
	if agent == nil || mem == nil || replier == nil {
		return nil, errors.New("chat: agent, memory and replier are required")
	}
	if len(cfg.AllowedUserIDs) == 0 {
		return nil, errors.New("chat: allow-list is empty")
	}
	allowed := make(map[int64]struct{}, len(cfg.AllowedUserIDs))
	for _, id := range cfg.AllowedUserIDs {
		allowed[id] = struct{}{}
	}
	logger = logger.With().Str("component", "chat").Logger()
	return &Service{
		agent:       agent,
		memory:      mem,
		transcriber: transcriber,
		replier:     replier,
		allowed:     allowed,
		timeout:     cfg.TurnTimeout,
		lanes:       workqueue.NewLanes(logger),
		logger:      logger,
	}, nil
}

// Authorized reports whether senderID is on the allow-list.
func (s *Service) Authorized(senderID int64) bool {
	_, ok := s.allowed[senderID]
	return ok
}

// Handle queues u on its conversation's lane and returns without waiting.
// Updates from senders outside the allow-list are dropped silently.
func (s *Service) Handle(ctx context.Context, u Update) error {
	if !s.Authorized(u.SenderID) {
		metrics.UnauthorizedTotal.Inc()
		s.logger.Debug().Int64("sender", u.SenderID).Msg("Dropping update from unauthorized sender")
		return nil
	}
	return s.lanes.Go(ctx, u.ConversationID, func(ctx context.Context) {
		s.process(ctx, u)
	})
}

// Stop waits for queued turns to finish and rejects new ones.
func (s *Service) Stop() {
	s.lanes.Stop()
}

func (s *Service) process(ctx context.Context, u Update) {
	turnID := uuid.NewString()
	ctx = ctxpkg.WithTurnID(ctx, turnID)
	ctx = ctxpkg.WithConversationID(ctx, u.ConversationID)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	kind, failure := kindText, TextFailureReply
	if u.Voice != nil {
		kind, failure = kindVoice, VoiceFailureReply
	} else if cmd, ok := parseCommand(u.Text); ok && (cmd == "start" || cmd == "setup") {
		kind = kindCommand
	}
	logger := s.logger.With().Str("turn", turnID).Str("conversation", u.ConversationID).Str("kind", kind).Logger()
	metrics.TurnsTotal.WithLabelValues(kind).Inc()

	start := time.Now()
	err := s.runTurn(ctx, kind, u)
	metrics.TurnDuration.Observe(time.Since(start).Seconds())
	if err == nil {
		logger.Debug().Dur("took", time.Since(start)).Msg("Turn complete")
		return
	}

	metrics.TurnFailuresTotal.WithLabelValues(kind).Inc()
	logger.Error().Err(err).Msg("Turn failed")
	// The turn context may be the reason for the failure.
	if sendErr := s.replier.SendText(context.WithoutCancel(ctx), u.ConversationID, failure); sendErr != nil {
		logger.Warn().Err(sendErr).Msg("Could not deliver failure reply")
	}
}

// runTurn converts a panic into an error so the failure reply is still sent.
func (s *Service) runTurn(ctx context.Context, kind string, u Update) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("turn panic: %v", r)
		}
	}()

	switch kind {
	case kindCommand:
		return s.handleCommand(ctx, u)
	case kindVoice:
		return s.handleVoice(ctx, u)
	default:
		return s.handleText(ctx, u.ConversationID, u.Text)
	}
}

func (s *Service) handleCommand(ctx context.Context, u Update) error {
	cmd, _ := parseCommand(u.Text)
	reply := StartReply
	if cmd == "setup" {
		reply = SetupReply
	}
	return s.replier.SendText(ctx, u.ConversationID, reply)
}

func (s *Service) handleText(ctx context.Context, conversationID, text string) error {
	s.typing(ctx, conversationID)

	if _, err := s.memory.Remember(ctx, conversationID, conversations.RoleUser, text); err != nil {
		return err
	}
	answer, err := s.agent.Run(ctx, conversationID, text)
	if err != nil {
		return fmt.Errorf("agent: %w", err)
	}
	if _, err := s.memory.Remember(ctx, conversationID, conversations.RoleAssistant, answer); err != nil {
		return err
	}
	return s.send(ctx, conversationID, answer)
}

func (s *Service) handleVoice(ctx context.Context, u Update) error {
	if s.transcriber == nil {
		return ErrVoiceDisabled
	}
	s.typing(ctx, u.ConversationID)

	audio, err := u.Voice(ctx)
	if err != nil {
		return fmt.Errorf("download voice: %w", err)
	}
	transcript, err := s.transcriber.Transcribe(ctx, audio)
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}
	if transcript == "" {
		return s.replier.SendText(ctx, u.ConversationID, EmptyVoiceReply)
	}
	if err := s.replier.SendText(ctx, u.ConversationID, HeardReply(transcript)); err != nil {
		return err
	}
	return s.handleText(ctx, u.ConversationID, transcript)
}

func (s *Service) send(ctx context.Context, conversationID, text string) error {
	for _, chunk := range SplitMessage(text, MaxMessageLength) {
		if err := s.replier.SendText(ctx, conversationID, chunk); err != nil {
			return fmt.Errorf("send reply: %w", err)
		}
	}
	return nil
}

// typing is best effort.
func (s *Service) typing(ctx context.Context, conversationID string) {
	if err := s.replier.SendTyping(ctx, conversationID); err != nil {
		s.logger.Debug().Err(err).Str("conversation", conversationID).Msg("Typing action failed")
	}
}
