package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"github.com/aschepis/backscratcher/claw/memory"
)

type Model string

const (
	ModelMXBAI Model = "mxbai-embed-large"
)

// DefaultQueryPrefix is the retrieval instruction mxbai-embed-large expects on queries.
const DefaultQueryPrefix = "Represent this sentence for searching relevant passages: "

// Options configures the embedder. Empty Host uses OLLAMA_HOST or the local default.
type Options struct {
	Host          string
	Model         Model
	QueryPrefix   string
	PassagePrefix string
}

type embedder struct {
	client *api.Client
	opts   Options
}

// NewEmbedder returns a memory.Embedder backed by an Ollama server.
func NewEmbedder(opts Options) (memory.Embedder, error) {
	if opts.Model == "" {
		opts.Model = ModelMXBAI
	}
	if opts.Model == ModelMXBAI && opts.QueryPrefix == "" {
		opts.QueryPrefix = DefaultQueryPrefix
	}

	var (
		cli *api.Client
		err error
	)
	if opts.Host != "" {
		base, perr := url.Parse(opts.Host)
		if perr != nil {
			return nil, fmt.Errorf("invalid ollama host %q: %w", opts.Host, perr)
		}
		cli = api.NewClient(base, http.DefaultClient)
	} else {
		cli, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, err
		}
	}
	return &embedder{client: cli, opts: opts}, nil
}

func (e *embedder) Embed(ctx context.Context, text string, mode memory.EmbedMode) ([]float32, error) {
	input := e.opts.PassagePrefix + text
	if mode == memory.ModeQuery {
		input = e.opts.QueryPrefix + text
	}

	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: string(e.opts.Model),
		Input: input,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama returned no embeddings")
	}
	return resp.Embeddings[0], nil
}
