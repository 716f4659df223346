package llm

import (
	"context"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// RetryConfig bounds WithRetry.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 500 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 10 * time.Second
	}
	return c
}

// WithRetry retries retryable errors with exponential backoff. A provider
// retry-after hint stretches the next wait, capped at MaxInterval.
func WithRetry(client Client, cfg RetryConfig, logger zerolog.Logger) Client {
	cfg = cfg.withDefaults()
	if cfg.MaxRetries == 0 {
		return client
	}
	return &retryingClient{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "llm_retry").Logger(),
	}
}

type retryingClient struct {
	client Client
	cfg    RetryConfig
	logger zerolog.Logger
}

func (c *retryingClient) Synchronous(ctx context.Context, req *Request) (*Response, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.cfg.InitialInterval
	exp.MaxInterval = c.cfg.MaxInterval
	exp.MaxElapsedTime = 0
	exp.Reset()

	hinted := &hintedBackOff{BackOff: backoff.WithMaxRetries(exp, uint64(c.cfg.MaxRetries)), max: c.cfg.MaxInterval}
	policy := backoff.WithContext(hinted, ctx)

	var resp *Response
	err := backoff.RetryNotify(func() error {
		r, err := c.client.Synchronous(ctx, req)
		if err != nil {
			if !IsRetryableError(err) {
				return backoff.Permanent(err)
			}
			hinted.hint = ExtractRetryAfter(err)
			return err
		}
		resp = r
		return nil
	}, policy, func(err error, wait time.Duration) {
		c.logger.Info().Err(err).Dur("wait", wait).Msg("Retrying model request")
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// hintedBackOff waits at least as long as the last retry-after hint.
type hintedBackOff struct {
	backoff.BackOff
	hint *time.Duration
	max  time.Duration
}

func (h *hintedBackOff) NextBackOff() time.Duration {
	d := h.BackOff.NextBackOff()
	if d == backoff.Stop || h.hint == nil {
		return d
	}
	if hint := min(*h.hint, h.max); hint > d {
		d = hint
	}
	h.hint = nil
	return d
}
