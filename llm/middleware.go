package llm

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/claw/metrics"
)

// LoggingMiddleware logs each call's size, latency and outcome.
func LoggingMiddleware(logger zerolog.Logger) Middleware {
	logger = logger.With().Str("component", "llm").Logger()
	return MiddlewareFunc{
		BeforeRequestFunc: func(ctx context.Context, req *Request) (*Request, error) {
			logger.Debug().
				Str("model", req.Model).
				Int("messages", len(req.Messages)).
				Int("tools", len(req.Tools)).
				Msg("Sending model request")
			return req, nil
		},
		AfterResponseFunc: func(ctx context.Context, req *Request, resp *Response) (*Response, error) {
			event := logger.Debug().
				Str("stopReason", resp.StopReason).
				Int("toolCalls", len(resp.ToolUses()))
			if resp.Usage != nil {
				event = event.Int64("inputTokens", resp.Usage.InputTokens).Int64("outputTokens", resp.Usage.OutputTokens)
			}
			event.Msg("Received model response")
			return resp, nil
		},
		OnErrorFunc: func(ctx context.Context, req *Request, err error) error {
			logger.Warn().Err(err).Str("model", req.Model).Bool("retryable", IsRetryableError(err)).Msg("Model request failed")
			return err
		},
	}
}

// MetricsMiddleware counts calls by outcome.
func MetricsMiddleware() Middleware {
	return MiddlewareFunc{
		AfterResponseFunc: func(ctx context.Context, req *Request, resp *Response) (*Response, error) {
			metrics.ModelCallsTotal.WithLabelValues(metrics.OutcomeOK).Inc()
			return resp, nil
		},
		OnErrorFunc: func(ctx context.Context, req *Request, err error) error {
			metrics.ModelCallsTotal.WithLabelValues(metrics.OutcomeError).Inc()
			return err
		},
	}
}
