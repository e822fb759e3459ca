package app

import (
	"context"
	"maps"
	"net/http"
	"time"

	"github.com/dioniDR/ai-forge/internal/ai"
	"github.com/dioniDR/ai-forge/internal/ai/registry"
	"github.com/dioniDR/ai-forge/internal/metrics"
	"github.com/gin-gonic/gin"
)

// ChatParams is the body of POST /chat. Unset fields fall back to the stored
// configuration.
type ChatParams struct {
	Message      string         `json:"message" binding:"required"`
	Provider     string         `json:"provider"`
	Model        string         `json:"model"`
	SystemPrompt *string        `json:"system_prompt"`
	Temperature  *float64       `json:"temperature"`
	MaxTokens    *int           `json:"max_tokens"`
	Stream       *bool          `json:"stream"`
	Task         string         `json:"task"`
	Options      map[string]any `json:"options"`
}

// Resolve picks the provider and builds the request for params. The provider
// is the named one, else the best for Task, else the configured default.
// stream reports whether the caller asked for (or the config defaults to) a
// streamed reply.
func (a *App) Resolve(params ChatParams) (p ai.Provider, req ai.ChatRequest, stream bool, err error) {
	st := a.Config.Settings()

	switch {
	case params.Provider != "":
		p, err = a.Providers.Get(params.Provider)
	case params.Task != "":
		var ok bool
		if p, ok = a.Providers.BestForTask(params.Task); !ok {
			err = &registry.NotFoundError{Name: "for task " + params.Task, Available: []string{}}
		}
	case st.DefaultProvider != "":
		p, err = a.Providers.Get(st.DefaultProvider)
	default:
		var ok bool
		if p, ok = a.Providers.BestForTask("general"); !ok {
			err = &registry.NotFoundError{Name: "default", Available: []string{}}
		}
	}
	if err != nil {
		return nil, ai.ChatRequest{}, false, err
	}

	req = ai.ChatRequest{
		Message:      params.Message,
		Model:        params.Model,
		SystemPrompt: st.SystemPrompt,
		Temperature:  st.Temperature,
		MaxTokens:    st.MaxTokens,
		Options:      st.Options,
	}
	if req.Model == "" {
		req.Model = st.DefaultModel
	}
	if params.SystemPrompt != nil {
		req.SystemPrompt = *params.SystemPrompt
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
	maps.Copy(req.Options, params.Options)

	stream = st.Stream
	if params.Stream != nil {
		stream = *params.Stream
	}
	return p, req, stream, nil
}

// Chat runs a one-shot completion and records it in the chat metrics.
func (a *App) Chat(ctx context.Context, p ai.Provider, req ai.ChatRequest) (string, error) {
	start := time.Now()
	out, err := p.Chat(ctx, req)
	status := metrics.StatusOK
	if err != nil {
		status = metrics.StatusError
	}
	metrics.ObserveChat(p.Name(), metrics.ModeSync, status, time.Since(start))
	return out, err
}

// Stream relays a chat stream to emit until the terminal envelope, stopping
// early when emit fails, and records it in the chat metrics.
func (a *App) Stream(ctx context.Context, p ai.Provider, req ai.ChatRequest, emit func(ai.Chunk) error) error {
	start := time.Now()
	status := metrics.StatusOK
	var err error
	for ch := range ai.UntilDone(p.ChatStream(ctx, req)) {
		if ch.Done && ch.Response != "" {
			status = metrics.StatusError
		}
		if err = emit(ch); err != nil {
			status = metrics.StatusError
			break
		}
	}
	metrics.ObserveChat(p.Name(), metrics.ModeStream, status, time.Since(start))
	return err
}

func (a *App) chat(c *gin.Context) {
	var params ChatParams
	if err := c.ShouldBindJSON(&params); err != nil {
		Fail(c, Invalid(err))
		return
	}
	p, req, stream, err := a.Resolve(params)
	if err != nil {
		Fail(c, err)
		return
	}

	if !stream {
		out, err := a.Chat(c.Request.Context(), p, req)
		if err != nil {
			Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"response": out})
		return
	}

	sseHeaders(c)
	if err := a.Stream(c.Request.Context(), p, req, func(ch ai.Chunk) error { return writeEvent(c, ch) }); err != nil {
		_ = c.Error(err)
	}
}
