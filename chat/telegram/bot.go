// Package telegram connects the chat service to the Telegram Bot API using
// long polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/claw/chat"
)

const (
	DefaultBaseURL     = "https://api.telegram.org"
	DefaultPollTimeout = 30 * time.Second
)

// Options configures the bot.
type Options struct {
	Token   string
	BaseURL string
	// PollTimeout is the long-poll wait passed to getUpdates.
	PollTimeout time.Duration
	// MaxBackoff caps the wait between failed polls.
	MaxBackoff time.Duration
}

// APIError is an unsuccessful Bot API answer.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// Handler receives decoded updates.
type Handler func(ctx context.Context, u chat.Update) error

// Bot is a Telegram Bot API client. It implements chat.Replier.
type Bot struct {
	api         *resty.Client
	files       *resty.Client
	pollTimeout time.Duration
	maxBackoff  time.Duration
	offset      int64
	logger      zerolog.Logger
}

var _ chat.Replier = (*Bot)(nil)

// New creates a Bot. It does not contact Telegram.
func New(opts Options, logger zerolog.Logger) (*Bot, error) {
	if opts.Token == "" {
		return nil, errors.New("telegram: bot token is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = time.Minute
	}
	base := strings.TrimRight(opts.BaseURL, "/")

	return &Bot{
		api: resty.New().
			SetBaseURL(base + "/bot" + opts.Token).
			SetHeader("Content-Type", "application/json").
			SetTimeout(opts.PollTimeout + 15*time.Second),
		files: resty.New().
			SetBaseURL(base + "/file/bot" + opts.Token).
			SetTimeout(time.Minute),
		pollTimeout: opts.PollTimeout,
		maxBackoff:  opts.MaxBackoff,
		logger:      logger.With().Str("component", "telegram").Logger(),
	}, nil
}

type apiResponse[T any] struct {
	OK          bool   `json:"ok"`
	Result      T      `json:"result"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// call posts body to method and returns the decoded result.
func call[T any](ctx context.Context, b *Bot, method string, body any) (T, error) {
	var out apiResponse[T]
	resp, err := b.api.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post("/" + method)
	if err != nil {
		return out.Result, fmt.Errorf("telegram %s: %w", method, err)
	}
	if !out.OK || resp.IsError() {
		apiErr := &APIError{Method: method, Code: out.ErrorCode, Description: out.Description}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode()
		}
		if out.Parameters != nil && out.Parameters.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(out.Parameters.RetryAfter) * time.Second
		}
		return out.Result, apiErr
	}
	return out.Result, nil
}

// User is a Telegram account.
type User struct {
	ID       int64  `json:"id"`
	IsBot    bool   `json:"is_bot"`
	Username string `json:"username"`
}

// GetMe checks the token and returns the bot's own account.
func (b *Bot) GetMe(ctx context.Context) (User, error) {
	return call[User](ctx, b, "getMe", map[string]any{})
}

// SendText implements chat.Replier.
func (b *Bot) SendText(ctx context.Context, chatID, text string) error {
	_, err := call[struct{}](ctx, b, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
	return err
}

// SendTyping implements chat.Replier.
func (b *Bot) SendTyping(ctx context.Context, chatID string) error {
	_, err := call[bool](ctx, b, "sendChatAction", map[string]any{
		"chat_id": chatID,
		"action":  "typing",
	})
	return err
}

type file struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
}

// Download fetches a file by id.
func (b *Bot) Download(ctx context.Context, fileID string) ([]byte, error) {
	f, err := call[file](ctx, b, "getFile", map[string]any{"file_id": fileID})
	if err != nil {
		return nil, err
	}
	if f.FilePath == "" {
		return nil, fmt.Errorf("telegram getFile: no file path for %s", fileID)
	}
	resp, err := b.files.R().SetContext(ctx).Get("/" + f.FilePath)
	if err != nil {
		return nil, fmt.Errorf("telegram download: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("telegram download: status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}

type update struct {
	UpdateID int64    `json:"update_id"`
	Message  *message `json:"message"`
}

type message struct {
	MessageID int64 `json:"message_id"`
	From      *User `json:"from"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	Text  string `json:"text"`
	Voice *struct {
		FileID   string `json:"file_id"`
		Duration int    `json:"duration"`
	} `json:"voice"`
}

// Run long-polls for updates and passes text and voice messages to h until
// ctx is cancelled. Poll failures are retried with exponential backoff.
func (b *Bot) Run(ctx context.Context, h Handler) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = min(time.Second, b.maxBackoff)
	exp.MaxInterval = b.maxBackoff
	exp.MaxElapsedTime = 0

	b.logger.Info().Dur("poll_timeout", b.pollTimeout).Msg("Polling for updates")
	for {
		updates, err := b.poll(ctx)
		if ctx.Err() != nil {
			b.logger.Info().Msg("Stopped polling")
			return nil
		}
		if err != nil {
			wait := exp.NextBackOff()
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > wait {
				wait = apiErr.RetryAfter
			}
			b.logger.Warn().Err(err).Dur("wait", wait).Msg("getUpdates failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		exp.Reset()

		for _, u := range updates {
			b.offset = u.UpdateID + 1
			b.dispatch(ctx, u, h)
		}
	}
}

func (b *Bot) poll(ctx context.Context) ([]update, error) {
	return call[[]update](ctx, b, "getUpdates", map[string]any{
		"offset":          b.offset,
		"timeout":         int(b.pollTimeout / time.Second),
		"allowed_updates": []string{"message"},
	})
}

func (b *Bot) dispatch(ctx context.Context, u update, h Handler) {
	m := u.Message
	if m == nil || m.From == nil {
		return
	}
	cu := chat.Update{
		ConversationID: strconv.FormatInt(m.Chat.ID, 10),
		SenderID:       m.From.ID,
		Text:           m.Text,
	}
	switch {
	case m.Voice != nil:
		fileID := m.Voice.FileID
		cu.Voice = func(ctx context.Context) ([]byte, error) {
			return b.Download(ctx, fileID)
		}
	case m.Text == "":
		// Stickers, photos and the like are ignored.
		return
	}

	if err := h(ctx, cu); err != nil {
		b.logger.Warn().Err(err).Int64("update_id", u.UpdateID).Msg("Update not handled")
	}
}
