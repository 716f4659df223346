// Package pinecone implements the semantic index on Pinecone's REST API:
// the control plane for index provisioning, the inference API for
// embeddings, and the index data plane for upsert and query.
package pinecone

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/aschepis/backscratcher/claw/memory"
)

const (
	DefaultControlURL = "https://api.pinecone.io"
	DefaultIndexName  = "gravity-claw"
	DefaultEmbedModel = "multilingual-e5-large"
	DefaultDimension  = 1024
	DefaultCloud      = "aws"
	DefaultRegion     = "us-east-1"

	apiVersion = "2025-01"
)

// Options configures the Pinecone client.
type Options struct {
	APIKey     string
	ControlURL string
	IndexName  string
	EmbedModel string
	Dimension  int
	Cloud      string
	Region     string

	// ReadyInterval and ReadyAttempts bound EnsureReady's polling.
	ReadyInterval time.Duration
	ReadyAttempts int

	Timeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ControlURL == "" {
		o.ControlURL = DefaultControlURL
	}
	if o.IndexName == "" {
		o.IndexName = DefaultIndexName
	}
	if o.EmbedModel == "" {
		o.EmbedModel = DefaultEmbedModel
	}
	if o.Dimension <= 0 {
		o.Dimension = DefaultDimension
	}
	if o.Cloud == "" {
		o.Cloud = DefaultCloud
	}
	if o.Region == "" {
		o.Region = DefaultRegion
	}
	if o.ReadyInterval <= 0 {
		o.ReadyInterval = 2 * time.Second
	}
	if o.ReadyAttempts <= 0 {
		o.ReadyAttempts = 60
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	return o
}

// APIError is a non-2xx answer from Pinecone.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pinecone %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

func newRestClient(baseURL, apiKey string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetHeader("Api-Key", apiKey).
		SetHeader("X-Pinecone-API-Version", apiVersion).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
}

func checkResponse(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("pinecone %s: %w", op, err)
	}
	if resp.IsError() {
		return &APIError{Op: op, StatusCode: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
	}
	return nil
}

func hasStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

type embedRequest struct {
	Model      string            `json:"model"`
	Parameters map[string]string `json:"parameters"`
	Inputs     []embedInput      `json:"inputs"`
}

type embedInput struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Data []struct {
		Values []float32 `json:"values"`
	} `json:"data"`
}

// Embedder calls Pinecone's hosted inference endpoint.
type Embedder struct {
	rest  *resty.Client
	model string
}

var _ memory.Embedder = (*Embedder)(nil)

// NewEmbedder returns an embedder for opts.EmbedModel.
func NewEmbedder(opts Options) *Embedder {
	opts = opts.withDefaults()
	return &Embedder{
		rest:  newRestClient(opts.ControlURL, opts.APIKey, opts.Timeout),
		model: opts.EmbedModel,
	}
}

// Embed implements memory.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string, mode memory.EmbedMode) ([]float32, error) {
	inputType := "passage"
	if mode == memory.ModeQuery {
		inputType = "query"
	}

	var out embedResponse
	resp, err := e.rest.R().
		SetContext(ctx).
		SetBody(embedRequest{
			Model:      e.model,
			Parameters: map[string]string{"input_type": inputType, "truncate": "END"},
			Inputs:     []embedInput{{Text: text}},
		}).
		SetResult(&out).
		Post("/embed")
	if err := checkResponse("embed", resp, err); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 || len(out.Data[0].Values) == 0 {
		return nil, fmt.Errorf("pinecone embed: empty embedding")
	}
	return out.Data[0].Values, nil
}
