// Package embedclient calls the external embedding endpoint and enforces
// the fixed output dimension, with smart chunking for oversized inputs and
// a deterministic local fallback when the endpoint is unreachable.
package embedclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog"

	"github.com/jetgogoing/sage-memory/pkg/memorytypes"
	"github.com/jetgogoing/sage-memory/pkg/resilience"
	"github.com/jetgogoing/sage-memory/pkg/sageerr"
)

const (
	// DefaultChunkSize is the character budget per chunk when splitting
	// oversized input.
	DefaultChunkSize = 8000
)

// Options parameterizes a single Embed call.
type Options struct {
	EnableChunking bool
	ChunkSize      int
}

// DefaultOptions returns chunking enabled with the 8000-char default size.
func DefaultOptions() Options {
	return Options{EnableChunking: true, ChunkSize: DefaultChunkSize}
}

// Client wraps an OpenAI-compatible embeddings endpoint (SiliconFlow by
// default) and never fails on oversized input; it chunks instead. It only
// returns an error if the server's returned vector has the wrong dimension.
type Client struct {
	oa    openai.Client
	model string
	log   zerolog.Logger

	breakers *resilience.Registry
	retry    *resilience.RetryPolicy
}

// New builds a Client pointed at baseURL with the given API key and model.
func New(apiKey, baseURL, model string, log zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, sageerr.New(sageerr.KindConfiguration, "embedding client requires an API key")
	}
	if strings.TrimSpace(baseURL) == "" {
		return nil, sageerr.New(sageerr.KindConfiguration, "embedding client requires a base URL")
	}
	oa := openai.NewClient(option.WithAPIKey(apiKey), option.WithBaseURL(baseURL))
	return &Client{
		oa:       oa,
		model:    model,
		log:      log.With().Str("component", "embedclient").Logger(),
		breakers: resilience.NewRegistry(),
		retry:    resilience.NetworkRetry(),
	}, nil
}

// Embed returns a Dimension-wide vector for text, chunking and mean-pooling
// transparently when text exceeds opts.ChunkSize.
func (c *Client) Embed(ctx context.Context, text string, opts Options) (memorytypes.Embedding, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}

	if !opts.EnableChunking || len(text) <= opts.ChunkSize {
		return c.embedSingle(ctx, text)
	}

	chunks := splitIntoChunks(text, opts.ChunkSize)
	if len(chunks) <= 1 {
		return c.embedSingle(ctx, text)
	}

	vectors := make([]memorytypes.Embedding, 0, len(chunks))
	for _, chunk := range chunks {
		vec, err := c.embedSingle(ctx, chunk)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vec)
	}
	return meanPool(vectors), nil
}

func (c *Client) breaker() *resilience.Breaker {
	return c.breakers.Get("embedding_client", resilience.DefaultBreakerConfig())
}

// Breakers exposes the client's circuit-breaker registry so callers such as
// the tool server's reset_circuit_breaker handler can inspect or reset it.
func (c *Client) Breakers() *resilience.Registry {
	return c.breakers
}

// embedSingle embeds one chunk via the remote endpoint, falling back to the
// deterministic hash-seeded vector on any transport failure after retries
// are exhausted.
func (c *Client) embedSingle(ctx context.Context, text string) (memorytypes.Embedding, error) {
	var vec memorytypes.Embedding
	err := resilience.Wrap(c.breaker(), c.retry, ctx, func(ctx context.Context) error {
		resp, callErr := c.oa.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Model: openai.EmbeddingModel(c.model),
			Input: openai.EmbeddingNewParamsInputUnion{
				OfString: openai.String(text),
			},
			EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
		})
		if callErr != nil {
			return sageerr.Wrap(sageerr.KindEmbeddingService, "embeddings.New", callErr)
		}
		if len(resp.Data) == 0 {
			return sageerr.New(sageerr.KindEmbeddingService, "embeddings response had no data")
		}
		vec = toFloat32(resp.Data[0].Embedding)
		return nil
	})
	if err != nil {
		if sageerr.Is(err, sageerr.KindBreakerOpen) {
			c.log.Warn().Msg("embedding breaker open; using deterministic fallback")
		} else {
			c.log.Warn().Err(err).Msg("embedding call failed after retries; using deterministic fallback")
		}
		return deterministicFallback(text), nil
	}

	if len(vec) != memorytypes.Dimension {
		return nil, sageerr.New(sageerr.KindEmbeddingService,
			fmt.Sprintf("embedding dimension mismatch: got %d want %d", len(vec), memorytypes.Dimension))
	}
	return vec, nil
}

func toFloat32(in []float64) memorytypes.Embedding {
	out := make(memorytypes.Embedding, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

// meanPool averages a set of equal-length vectors element-wise.
func meanPool(vectors []memorytypes.Embedding) memorytypes.Embedding {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	out := make(memorytypes.Embedding, dim)
	for _, v := range vectors {
		for i := 0; i < dim && i < len(v); i++ {
			out[i] += v[i]
		}
	}
	n := float32(len(vectors))
	for i := range out {
		out[i] /= n
	}
	return out
}
