// Package genclient calls the external chat-completion endpoint to
// compress retrieved memory fragments into a context blob, with a
// deterministic local fallback that never raises to the caller.
package genclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog"

	"github.com/jetgogoing/sage-memory/pkg/resilience"
	"github.com/jetgogoing/sage-memory/pkg/sageerr"
)

// Options tunes a single Compress call.
type Options struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// DefaultOptions returns the generation defaults used for context fusion.
func DefaultOptions() Options {
	return Options{MaxTokens: 1000, Temperature: 0.3, TopP: 0.9}
}

// Client wraps an OpenAI-compatible chat-completions endpoint.
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
		return nil, sageerr.New(sageerr.KindConfiguration, "generator client requires an API key")
	}
	if strings.TrimSpace(baseURL) == "" {
		return nil, sageerr.New(sageerr.KindConfiguration, "generator client requires a base URL")
	}
	oa := openai.NewClient(option.WithAPIKey(apiKey), option.WithBaseURL(baseURL))
	return &Client{
		oa:       oa,
		model:    model,
		log:      log.With().Str("component", "genclient").Logger(),
		breakers: resilience.NewRegistry(),
		retry:    resilience.NetworkRetry(),
	}, nil
}

// Compress builds the two-message chat described by the memory fusion
// template (system carries template + inlined fragments, user carries the
// original query) and asks the model to produce a context blob. On HTTP
// failure after retries, it returns a deterministic local summary instead
// of an error; the caller must never see a Compress failure.
func (c *Client) Compress(ctx context.Context, template string, fragments []string, query string, opts Options) string {
	systemPrompt := RenderTemplate(template, fragments, opts.MaxTokens)

	var content string
	err := resilience.Wrap(c.breaker(), c.retry, ctx, func(ctx context.Context) error {
		params := openai.ChatCompletionNewParams{
			Model: openai.ChatModel(c.model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(systemPrompt),
				openai.UserMessage(query),
			},
		}
		if opts.MaxTokens > 0 {
			params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
		}
		if opts.Temperature > 0 {
			params.Temperature = openai.Float(opts.Temperature)
		}
		if opts.TopP > 0 {
			params.TopP = openai.Float(opts.TopP)
		}

		resp, callErr := c.oa.Chat.Completions.New(ctx, params)
		if callErr != nil {
			return sageerr.Wrap(sageerr.KindGeneratorService, "chat.completions.New", callErr)
		}
		if len(resp.Choices) == 0 {
			return sageerr.New(sageerr.KindGeneratorService, "chat completion response had no choices")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("generator call failed after retries; using deterministic local summary")
		return LocalSummary(fragments)
	}
	return content
}

func (c *Client) breaker() *resilience.Breaker {
	return c.breakers.Get("generator_client", resilience.DefaultBreakerConfig())
}

// Breakers exposes the client's circuit-breaker registry so callers such as
// the tool server's reset_circuit_breaker handler can inspect or reset it.
func (c *Client) Breakers() *resilience.Registry {
	return c.breakers
}

// LocalSummary concatenates truncated fragments under numbered headings
// when the remote summarizer is unavailable.
func LocalSummary(fragments []string) string {
	if len(fragments) == 0 {
		return "没有找到相关历史记忆。"
	}
	var b strings.Builder
	for i, frag := range fragments {
		b.WriteString(fmt.Sprintf("[片段 %d]\n", i+1))
		b.WriteString(truncate(frag, 500))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "...[truncated]"
}
