// Package llm is claw's provider-neutral view of a chat completion model.
//
// Messages are lists of content blocks (text, tool calls, tool results).
// A Client sends a Request and returns a Response; provider packages such as
// llm/openai translate to and from their SDK types and map failures to *Error.
//
// Cross-cutting behaviour is layered on a Client without touching providers:
//
//	client := llm.WithRetry(
//	    llm.WrapWithMiddleware(base, llm.LoggingMiddleware(logger), llm.MetricsMiddleware()),
//	    llm.RetryConfig{MaxRetries: 3},
//	    logger,
//	)
//
// WithRetry retries only errors for which IsRetryableError is true.
package llm
