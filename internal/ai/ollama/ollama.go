package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/dioniDR/ai-forge/internal/ai"
	"github.com/go-resty/resty/v2"
	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog/log"
)

const (
	Name         = "ollama"
	DefaultHost  = "http://localhost:11434"
	DefaultModel = "llama3.2"

	maxLineSize = 1 << 20
)

// Passthrough options accepted from callers. Anything else is dropped.
var allowedOptions = []string{"top_p", "top_k", "repeat_penalty", "num_ctx"}

// ErrMalformedChunk is reported for a stream line that is not valid JSON.
var ErrMalformedChunk = errors.New("malformed stream line")

type Client struct {
	Host         string
	DefaultModel string

	http  *resty.Client
	pull  *resty.Client
	probe *resty.Client

	cache ai.ModelCache
}

type Option func(*Client)

// WithTimeouts sets the per-call deadlines for chat/model calls, model
// downloads and liveness probes. Zero values keep the defaults.
func WithTimeouts(call, pull, probe time.Duration) Option {
	return func(c *Client) {
		if call > 0 {
			c.http.SetTimeout(call)
		}
		if pull > 0 {
			c.pull.SetTimeout(pull)
		}
		if probe > 0 {
			c.probe.SetTimeout(probe)
		}
	}
}

func WithDefaultModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.DefaultModel = model
		}
	}
}

func New(host string, opts ...Option) *Client {
	if host == "" {
		host = DefaultHost
	}
	host = strings.TrimRight(host, "/")
	c := &Client{
		Host:         host,
		DefaultModel: DefaultModel,
		http:         newHTTP(host, 60*time.Second),
		pull:         newHTTP(host, 300*time.Second),
		probe:        newHTTP(host, 5*time.Second),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newHTTP(host string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(host).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
}

func (c *Client) Name() string { return Name }
func (c *Client) Kind() string { return "local" }

func (c *Client) Available(ctx context.Context) bool {
	resp, err := c.probe.R().SetContext(ctx).Get("/api/tags")
	if err != nil {
		return false
	}
	return resp.StatusCode() == http.StatusOK
}

func (c *Client) ListModels(ctx context.Context) []string {
	if models, ok := c.cache.Get(); ok {
		return models
	}

	resp, err := c.http.R().SetContext(ctx).Get("/api/tags")
	if err != nil {
		log.Warn().Str("provider", Name).Err(err).Msg("list models failed")
		return []string{}
	}
	if resp.StatusCode() != http.StatusOK {
		log.Warn().Str("provider", Name).Int("status", resp.StatusCode()).Msg("list models failed")
		return []string{}
	}
	var list api.ListResponse
	if err := json.Unmarshal(resp.Body(), &list); err != nil {
		log.Warn().Str("provider", Name).Err(err).Msg("list models: bad response")
		return []string{}
	}
	models := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, m.Name)
	}
	c.cache.Put(models)
	return models
}

// ClearModelCache forces the next ListModels call to hit the daemon.
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
		"base_url":      c.Host,
		"default_model": c.DefaultModel,
		"models_cached": cached,
		"cache_age":     age,
	}
}

func (c *Client) generateRequest(req ai.ChatRequest, stream bool) *api.GenerateRequest {
	model := req.Model
	if model == "" {
		model = c.DefaultModel
	}
	opts := ai.FilterOptions(req.Options, allowedOptions...)
	opts["temperature"] = req.Temperature
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	return &api.GenerateRequest{
		Model:   model,
		Prompt:  req.Message,
		System:  req.SystemPrompt,
		Stream:  &stream,
		Options: opts,
	}
}

// generateLine is one object of a /api/generate response. Response is a
// pointer so that lines without a fragment can be told apart.
type generateLine struct {
	Response *string `json:"response"`
	Done     bool    `json:"done"`
	Error    string  `json:"error"`
}

func (c *Client) Chat(ctx context.Context, req ai.ChatRequest) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(c.generateRequest(req, false)).
		Post("/api/generate")
	if err != nil {
		return "", ai.TransportError(Name, "chat", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", ai.StatusError(Name, "chat", resp.StatusCode(), resp.String())
	}
	var out generateLine
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", &ai.ProviderError{Provider: Name, Op: "chat", Status: resp.StatusCode(), Err: fmt.Errorf("decode response: %w", err)}
	}
	if out.Error != "" {
		return "", &ai.ProviderError{Provider: Name, Op: "chat", Status: resp.StatusCode(), Err: errors.New(out.Error)}
	}
	if out.Response == nil {
		return "", nil
	}
	return *out.Response, nil
}

func (c *Client) ChatStream(ctx context.Context, req ai.ChatRequest) iter.Seq[ai.Chunk] {
	return func(yield func(ai.Chunk) bool) {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(c.generateRequest(req, true)).
			SetDoNotParseResponse(true).
			Post("/api/generate")
		if err != nil {
			closeBody(resp)
			yield(ai.Failure(ai.TransportError(Name, "chat_stream", err).Error()))
			return
		}
		body := resp.RawBody()
		defer body.Close()
		if resp.StatusCode() != http.StatusOK {
			yield(ai.Failure(ai.StatusError(Name, "chat_stream", resp.StatusCode(), "").Error()))
			return
		}

		err = eachLine(body, func(line []byte) bool {
			var chunk generateLine
			if err := decodeLine(line, &chunk); err != nil {
				log.Debug().Str("provider", Name).Err(err).Msg("skipping stream line")
				return true
			}
			if chunk.Error != "" {
				yield(ai.Failure(errorMessage("chat_stream", chunk.Error)))
				return false
			}
			if chunk.Response != nil && *chunk.Response != "" {
				if !yield(ai.Fragment(*chunk.Response)) {
					return false
				}
			}
			if chunk.Done {
				yield(ai.Final())
				return false
			}
			return true
		})
		if errors.Is(err, errStopped) {
			return
		}
		if err != nil {
			yield(ai.Failure(ai.TransportError(Name, "chat_stream", err).Error()))
			return
		}
		yield(ai.Failure(errorMessage("chat_stream", "stream closed before completion")))
	}
}

type pullLine struct {
	api.ProgressResponse
	Error string `json:"error"`
}

// PullModel downloads a model, relaying each progress update as an envelope
// whose text is a JSON object. The envelope for status "success" is terminal.
func (c *Client) PullModel(ctx context.Context, model string) iter.Seq[ai.Chunk] {
	return func(yield func(ai.Chunk) bool) {
		stream := true
		resp, err := c.pull.R().
			SetContext(ctx).
			SetBody(&api.PullRequest{Model: model, Stream: &stream}).
			SetDoNotParseResponse(true).
			Post("/api/pull")
		if err != nil {
			closeBody(resp)
			yield(ai.Failure(ai.TransportError(Name, "pull_model", err).Error()))
			return
		}
		body := resp.RawBody()
		defer body.Close()
		if resp.StatusCode() != http.StatusOK {
			yield(ai.Failure(ai.StatusError(Name, "pull_model", resp.StatusCode(), "").Error()))
			return
		}

		err = eachLine(body, func(line []byte) bool {
			var p pullLine
			if err := decodeLine(line, &p); err != nil {
				log.Debug().Str("provider", Name).Err(err).Msg("skipping pull line")
				return true
			}
			if p.Error != "" {
				yield(ai.Failure(errorMessage("pull_model", p.Error)))
				return false
			}
			if p.Status == "" {
				return true
			}
			progress := 0.0
			if p.Total > 0 {
				progress = float64(p.Completed) / float64(p.Total) * 100
			}
			info, _ := json.Marshal(map[string]any{
				"status":    p.Status,
				"digest":    p.Digest,
				"progress":  progress,
				"total":     p.Total,
				"completed": p.Completed,
			})
			done := p.Status == "success"
			if done {
				c.ClearModelCache()
			}
			if !yield(ai.Chunk{Response: string(info), Done: done}) {
				return false
			}
			return !done
		})
		if errors.Is(err, errStopped) {
			return
		}
		if err != nil {
			yield(ai.Failure(ai.TransportError(Name, "pull_model", err).Error()))
			return
		}
		yield(ai.Failure(errorMessage("pull_model", "stream closed before success")))
	}
}

// DeleteModel removes a model and drops the cached model list. Failures are
// reported as false.
func (c *Client) DeleteModel(ctx context.Context, model string) bool {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(&api.DeleteRequest{Model: model}).
		Delete("/api/delete")
	if err != nil {
		log.Warn().Str("provider", Name).Str("model", model).Err(err).Msg("delete model failed")
		return false
	}
	if resp.StatusCode() != http.StatusOK {
		return false
	}
	c.ClearModelCache()
	return true
}

func (c *Client) ModelInfo(ctx context.Context, model string) (map[string]any, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(&api.ShowRequest{Model: model}).
		Post("/api/show")
	if err != nil {
		return nil, ai.TransportError(Name, "model_info", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, ai.StatusError(Name, "model_info", resp.StatusCode(), resp.String())
	}
	out := map[string]any{}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, &ai.ProviderError{Provider: Name, Op: "model_info", Status: resp.StatusCode(), Err: err}
	}
	return out, nil
}

var errStopped = errors.New("stopped")

// eachLine calls fn for every non-empty line of r until fn returns false, in
// which case errStopped is returned.
func eachLine(r io.Reader, fn func([]byte) bool) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if !fn(line) {
			return errStopped
		}
	}
	return sc.Err()
}

func decodeLine(line []byte, v any) error {
	if err := json.Unmarshal(line, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedChunk, err)
	}
	return nil
}

func errorMessage(op, msg string) string {
	return fmt.Sprintf("Error in %s (%s): %s", Name, op, msg)
}

func closeBody(resp *resty.Response) {
	if resp != nil && resp.RawResponse != nil && resp.RawResponse.Body != nil {
		resp.RawResponse.Body.Close()
	}
}
