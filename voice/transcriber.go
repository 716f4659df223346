// Package voice transcribes voice messages with a Whisper model served over
// an OpenAI-compatible audio API (Groq by default).
package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "whisper-large-v3"

	// Telegram voice notes are Opus in an Ogg container.
	fileName = "voice.ogg"
)

// Options configures the transcriber.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Transcriber implements chat.Transcriber.
type Transcriber struct {
	client *openai.Client
	model  string
	logger zerolog.Logger
}

// New creates a Transcriber.
func New(opts Options, logger zerolog.Logger) (*Transcriber, error) {
	if opts.APIKey == "" {
		return nil, errors.New("voice: API key is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	cfg.BaseURL = opts.BaseURL
	return &Transcriber{
		client: openai.NewClientWithConfig(cfg),
		model:  opts.Model,
		logger: logger.With().Str("component", "voice").Logger(),
	}, nil
}

// Transcribe returns the trimmed transcript of audio. Silence yields "".
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("voice: empty audio")
	}
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: fileName,
		Reader:   bytes.NewReader(audio),
		Format:   openai.AudioResponseFormatText,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	t.logger.Debug().Int("audio_bytes", len(audio)).Int("transcript_len", len(text)).Msg("Transcribed voice message")
	return text, nil
}
