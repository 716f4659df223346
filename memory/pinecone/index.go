package pinecone

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/claw/memory"
)

type indexDescription struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
	Host      string `json:"host"`
	Status    struct {
		Ready bool   `json:"ready"`
		State string `json:"state"`
	} `json:"status"`
}

type createIndexRequest struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
	Spec      struct {
		Serverless struct {
			Cloud  string `json:"cloud"`
			Region string `json:"region"`
		} `json:"serverless"`
	} `json:"spec"`
}

type vector struct {
	ID       string            `json:"id"`
	Values   []float32         `json:"values"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type upsertRequest struct {
	Vectors []vector `json:"vectors"`
}

type queryRequest struct {
	Vector          []float32      `json:"vector"`
	TopK            int            `json:"topK"`
	IncludeMetadata bool           `json:"includeMetadata"`
	Filter          map[string]any `json:"filter,omitempty"`
}

type queryResponse struct {
	Matches []struct {
		ID       string            `json:"id"`
		Score    float64           `json:"score"`
		Metadata map[string]string `json:"metadata"`
	} `json:"matches"`
}

// Index is a serverless Pinecone index holding one vector per message.
type Index struct {
	opts     Options
	control  *resty.Client
	embedder memory.Embedder
	logger   zerolog.Logger

	mu   sync.RWMutex
	data *resty.Client
}

var _ memory.Index = (*Index)(nil)

// New returns an index client. Embeddings come from embedder, normally a
// (possibly cached) pinecone Embedder.
func New(embedder memory.Embedder, opts Options, logger zerolog.Logger) (*Index, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("pinecone api key is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	opts = opts.withDefaults()
	return &Index{
		opts:     opts,
		control:  newRestClient(opts.ControlURL, opts.APIKey, opts.Timeout),
		embedder: embedder,
		logger:   logger.With().Str("component", "pinecone_index").Str("index", opts.IndexName).Logger(),
	}, nil
}

// EnsureReady creates the index when missing and polls until Pinecone reports
// it ready. Running out of attempts is an error the caller should treat as fatal.
func (i *Index) EnsureReady(ctx context.Context) error {
	desc, err := i.describe(ctx)
	if hasStatus(err, http.StatusNotFound) {
		i.logger.Info().Int("dimension", i.opts.Dimension).Msg("Creating Pinecone index")
		if err := i.create(ctx); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if desc == nil || !desc.Status.Ready {
		i.logger.Info().Msg("Waiting for Pinecone index to be ready")
		policy := backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewConstantBackOff(i.opts.ReadyInterval), uint64(i.opts.ReadyAttempts-1)),
			ctx,
		)
		err = backoff.Retry(func() error {
			d, err := i.describe(ctx)
			if err != nil {
				return err
			}
			if !d.Status.Ready {
				return fmt.Errorf("index state %q", d.Status.State)
			}
			desc = d
			return nil
		}, policy)
		if err != nil {
			return fmt.Errorf("pinecone index %s not ready after %d attempts: %w", i.opts.IndexName, i.opts.ReadyAttempts, err)
		}
	}

	host := desc.Host
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	i.mu.Lock()
	i.data = newRestClient(host, i.opts.APIKey, i.opts.Timeout)
	i.mu.Unlock()

	i.logger.Info().Str("host", desc.Host).Msg("Pinecone index ready")
	return nil
}

// Upsert implements memory.Index.
func (i *Index) Upsert(ctx context.Context, doc memory.Document) error {
	data, err := i.dataPlane()
	if err != nil {
		return err
	}
	values, err := i.embedder.Embed(ctx, doc.Text, memory.ModePassage)
	if err != nil {
		return fmt.Errorf("embed passage: %w", err)
	}

	resp, err := data.R().
		SetContext(ctx).
		SetBody(upsertRequest{Vectors: []vector{{
			ID:     doc.ID,
			Values: values,
			Metadata: map[string]string{
				"text":            doc.Text,
				"role":            doc.Role,
				"timestamp":       doc.Timestamp,
				"conversation_id": doc.ConversationID,
			},
		}}}).
		Post("/vectors/upsert")
	return checkResponse("upsert", resp, err)
}

// Query implements memory.Index.
func (i *Index) Query(ctx context.Context, text string, topK int, filter memory.Filter) ([]memory.Record, error) {
	data, err := i.dataPlane()
	if err != nil {
		return nil, err
	}
	values, err := i.embedder.Embed(ctx, text, memory.ModeQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	req := queryRequest{Vector: values, TopK: topK, IncludeMetadata: true}
	if filter.ConversationID != "" {
		req.Filter = map[string]any{"conversation_id": map[string]string{"$eq": filter.ConversationID}}
	}

	var out queryResponse
	resp, err := data.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/query")
	if err := checkResponse("query", resp, err); err != nil {
		return nil, err
	}

	records := make([]memory.Record, 0, len(out.Matches))
	for _, m := range out.Matches {
		records = append(records, memory.Record{
			ID:             m.ID,
			Text:           m.Metadata["text"],
			Role:           m.Metadata["role"],
			Timestamp:      m.Metadata["timestamp"],
			ConversationID: m.Metadata["conversation_id"],
			Score:          m.Score,
		})
	}
	return records, nil
}

func (i *Index) dataPlane() (*resty.Client, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.data == nil {
		return nil, fmt.Errorf("pinecone index %s not ready", i.opts.IndexName)
	}
	return i.data, nil
}

func (i *Index) describe(ctx context.Context) (*indexDescription, error) {
	var desc indexDescription
	resp, err := i.control.R().
		SetContext(ctx).
		SetPathParam("name", i.opts.IndexName).
		SetResult(&desc).
		Get("/indexes/{name}")
	if err := checkResponse("describe index", resp, err); err != nil {
		return nil, err
	}
	return &desc, nil
}

func (i *Index) create(ctx context.Context) error {
	req := createIndexRequest{Name: i.opts.IndexName, Dimension: i.opts.Dimension, Metric: "cosine"}
	req.Spec.Serverless.Cloud = i.opts.Cloud
	req.Spec.Serverless.Region = i.opts.Region

	resp, err := i.control.R().
		SetContext(ctx).
		SetBody(req).
		Post("/indexes")
	err = checkResponse("create index", resp, err)
	if hasStatus(err, http.StatusConflict) {
		// Someone else created it between describe and create.
		return nil
	}
	return err
}
