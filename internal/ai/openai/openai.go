package openai

import (
	"context"
	"errors"
	"io"
	"iter"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/dioniDR/ai-forge/internal/ai"
	"github.com/rs/zerolog/log"
	goopenai "github.com/sashabaranov/go-openai"
)

const (
	Name         = "openai"
	DefaultBase  = "https://api.openai.com"
	DefaultModel = "gpt-4o-mini"
)

var allowedOptions = []string{"top_p"}

// ErrMissingKey is returned by New when no API key is configured.
var ErrMissingKey = errors.New("missing OPENAI_API_KEY")

type Client struct {
	BaseURL      string
	DefaultModel string

	api          *goopenai.Client
	probeTimeout time.Duration
	cache        ai.ModelCache
}

// New builds a client for an OpenAI-compatible API. baseURL may be given with
// or without the trailing /v1.
func New(apiKey, baseURL string, timeout time.Duration) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingKey
	}
	if baseURL == "" {
		baseURL = DefaultBase
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(baseURL, "/v1") {
		baseURL += "/v1"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	cfg := goopenai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &Client{
		BaseURL:      baseURL,
		DefaultModel: DefaultModel,
		api:          goopenai.NewClientWithConfig(cfg),
		probeTimeout: 5 * time.Second,
	}, nil
}

func (c *Client) Name() string { return Name }
func (c *Client) Kind() string { return "cloud" }

func (c *Client) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()
	_, err := c.api.ListModels(ctx)
	return err == nil
}

func (c *Client) ListModels(ctx context.Context) []string {
	if models, ok := c.cache.Get(); ok {
		return models
	}
	list, err := c.api.ListModels(ctx)
	if err != nil {
		log.Warn().Str("provider", Name).Err(err).Msg("list models failed")
		return []string{}
	}
	models := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, m.ID)
	}
	c.cache.Put(models)
	return models
}

func (c *Client) ClearModelCache() { c.cache.Clear() }

func (c *Client) ConfigInfo() map[string]any {
	var age any
	d, cached := c.cache.Age()
	if cached {
		age = d.Seconds()
	}
	return map[string]any{
		"name":          Name,
		"type":          c.Kind(),
		"base_url":      c.BaseURL,
		"default_model": c.DefaultModel,
		"models_cached": cached,
		"cache_age":     age,
	}
}

func (c *Client) request(req ai.ChatRequest, stream bool) goopenai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = c.DefaultModel
	}
	var messages []goopenai.ChatCompletionMessage
	if req.SystemPrompt != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: req.Message})

	out := goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		Stream:      stream,
	}
	// Temperature is omitempty upstream; a zero would be dropped.
	if req.Temperature == 0 {
		out.Temperature = math.SmallestNonzeroFloat32
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	if v, ok := ai.FilterOptions(req.Options, allowedOptions...)["top_p"].(float64); ok {
		out.TopP = float32(v)
	}
	return out
}

func (c *Client) Chat(ctx context.Context, req ai.ChatRequest) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, c.request(req, false))
	if err != nil {
		return "", wrapErr("chat", err)
	}
	if len(resp.Choices) == 0 {
		return "", &ai.ProviderError{Provider: Name, Op: "chat", Err: errors.New("no choices")}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *Client) ChatStream(ctx context.Context, req ai.ChatRequest) iter.Seq[ai.Chunk] {
	return func(yield func(ai.Chunk) bool) {
		stream, err := c.api.CreateChatCompletionStream(ctx, c.request(req, true))
		if err != nil {
			yield(ai.Failure(wrapErr("chat_stream", err).Error()))
			return
		}
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				yield(ai.Final())
				return
			}
			if err != nil {
				yield(ai.Failure(wrapErr("chat_stream", err).Error()))
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			if !yield(ai.Fragment(resp.Choices[0].Delta.Content)) {
				return
			}
		}
	}
}

func wrapErr(op string, err error) *ai.ProviderError {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return ai.StatusError(Name, op, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return ai.StatusError(Name, op, reqErr.HTTPStatusCode, reqErr.Error())
	}
	return ai.TransportError(Name, op, err)
}
