package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dioniDR/ai-forge/internal/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL), srv
}

func collect(seq func(func(ai.Chunk) bool)) []ai.Chunk {
	var out []ai.Chunk
	for c := range seq {
		out = append(out, c)
	}
	return out
}

func writeTags(w http.ResponseWriter, names ...string) {
	models := make([]map[string]any, 0, len(names))
	for _, n := range names {
		models = append(models, map[string]any{"name": n})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"models": models})
}

func TestAvailable(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeTags(w)
	})
	assert.True(t, c.Available(context.Background()))

	down := httptest.NewServer(http.NotFoundHandler())
	url := down.URL
	down.Close()
	assert.False(t, New(url).Available(context.Background()))
}

func TestAvailableTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(srv.URL, WithTimeouts(0, 0, 50*time.Millisecond))
	assert.False(t, c.Available(context.Background()))
}

func TestListModelsCache(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeTags(w, "llama3.2", "qwen2.5")
	})
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c.cache.Now = func() time.Time { return now }
	ctx := context.Background()

	assert.Equal(t, []string{"llama3.2", "qwen2.5"}, c.ListModels(ctx))
	assert.Equal(t, []string{"llama3.2", "qwen2.5"}, c.ListModels(ctx))
	assert.EqualValues(t, 1, hits.Load())

	now = now.Add(299 * time.Second)
	c.ListModels(ctx)
	assert.EqualValues(t, 1, hits.Load())

	now = now.Add(2 * time.Second)
	c.ListModels(ctx)
	assert.EqualValues(t, 2, hits.Load())

	c.ClearModelCache()
	c.ListModels(ctx)
	assert.EqualValues(t, 3, hits.Load())
}

func TestListModelsFailure(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	models := c.ListModels(context.Background())
	require.NotNil(t, models)
	assert.Empty(t, models)
	assert.False(t, c.ConfigInfo()["models_cached"].(bool))
}

func TestChatPayload(t *testing.T) {
	var got map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"model":"llama3.2","response":"42","done":true}`)
	})

	out, err := c.Chat(context.Background(), ai.ChatRequest{
		Message:      "6*7?",
		SystemPrompt: "be precise",
		Temperature:  0.1,
		MaxTokens:    100,
		Options:      map[string]any{"top_p": 0.9, "seed": 7, "num_ctx": 2048},
	})
	require.NoError(t, err)
	assert.Equal(t, "42", out)

	assert.Equal(t, DefaultModel, got["model"])
	assert.Equal(t, "6*7?", got["prompt"])
	assert.Equal(t, "be precise", got["system"])
	assert.Equal(t, false, got["stream"])
	opts := got["options"].(map[string]any)
	assert.Equal(t, 0.1, opts["temperature"])
	assert.EqualValues(t, 100, opts["num_predict"])
	assert.Equal(t, 0.9, opts["top_p"])
	assert.EqualValues(t, 2048, opts["num_ctx"])
	assert.NotContains(t, opts, "seed")
}

func TestChatNoMaxTokens(t *testing.T) {
	var got map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, `{"response":"ok","done":true}`)
	})
	_, err := c.Chat(context.Background(), ai.ChatRequest{Message: "hi", Model: "mistral", Temperature: 0.7})
	require.NoError(t, err)
	assert.Equal(t, "mistral", got["model"])
	assert.NotContains(t, got["options"].(map[string]any), "num_predict")
}

func TestChatUpstreamError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	})
	_, err := c.Chat(context.Background(), ai.ChatRequest{Message: "hi"})
	require.Error(t, err)

	var perr *ai.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusNotFound, perr.Status)
	assert.Equal(t, "chat", perr.Op)
	assert.True(t, errors.Is(err, ai.ErrTransport))
	assert.Contains(t, err.Error(), "Error in ollama (chat)")
}

func TestChatTransportError(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	url := down.URL
	down.Close()

	_, err := New(url).Chat(context.Background(), ai.ChatRequest{Message: "hi"})
	var perr *ai.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Zero(t, perr.Status)
	assert.ErrorIs(t, err, ai.ErrTransport)
}

func TestChatStreamSkipsMalformedLines(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":`)
		fmt.Fprintln(w, `{"response":"4"}`)
		fmt.Fprintln(w, `{"done":true}`)
		fmt.Fprintln(w, `{"response":"ignored"}`)
	})

	chunks := collect(c.ChatStream(context.Background(), ai.ChatRequest{Message: "2+2"}))
	require.Len(t, chunks, 2)
	assert.Equal(t, ai.Chunk{Response: "4"}, chunks[0])
	assert.Equal(t, ai.Final(), chunks[1])
}

func TestChatStreamSingleTerminal(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		for _, s := range []string{"The", " answer", " is", " 4"} {
			fmt.Fprintf(w, "{\"response\":%q,\"done\":false}\n", s)
		}
		fmt.Fprintln(w, `{"response":"","done":true}`)
	})

	chunks := collect(c.ChatStream(context.Background(), ai.ChatRequest{Message: "2+2"}))
	require.Len(t, chunks, 5)
	terminals := 0
	for _, ch := range chunks {
		if ch.Done {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals)
	assert.True(t, chunks[len(chunks)-1].Done)
	assert.Empty(t, chunks[len(chunks)-1].Response)
}

func TestChatStreamBadStatus(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprintln(w, `{"response":"partial"}`)
	})
	chunks := collect(c.ChatStream(context.Background(), ai.ChatRequest{Message: "hi"}))
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].Done)
	assert.Contains(t, chunks[0].Response, "502")
}

func TestChatStreamTruncated(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"half"}`)
	})
	chunks := collect(c.ChatStream(context.Background(), ai.ChatRequest{Message: "hi"}))
	require.Len(t, chunks, 2)
	assert.Equal(t, "half", chunks[0].Response)
	assert.True(t, chunks[1].Done)
	assert.NotEmpty(t, chunks[1].Response)
}

func TestChatStreamUpstreamErrorLine(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"error":"out of memory"}`)
	})
	chunks := collect(c.ChatStream(context.Background(), ai.ChatRequest{Message: "hi"}))
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].Done)
	assert.Contains(t, chunks[0].Response, "out of memory")
}

func TestChatStreamConsumerStops(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		for i := range 100 {
			fmt.Fprintf(w, "{\"response\":\"%d\"}\n", i)
		}
		fmt.Fprintln(w, `{"done":true}`)
	})
	n := 0
	for range c.ChatStream(context.Background(), ai.ChatRequest{Message: "count"}) {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}

func TestPullModel(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			hits.Add(1)
			writeTags(w, "llama3.2")
		case "/api/pull":
			var req map[string]any
			_ = json.NewDecoder(r.Body).Decode(&req)
			assert.Equal(t, "phi3", req["model"])
			fmt.Fprintln(w, `{"status":"pulling manifest"}`)
			fmt.Fprintln(w, `not json`)
			fmt.Fprintln(w, `{"status":"downloading","digest":"sha256:abc","total":200,"completed":50}`)
			fmt.Fprintln(w, `{"status":"success"}`)
		}
	})
	ctx := context.Background()
	c.ListModels(ctx)

	chunks := collect(c.PullModel(ctx, "phi3"))
	require.Len(t, chunks, 3)
	assert.False(t, chunks[0].Done)
	assert.True(t, chunks[2].Done)

	var progress map[string]any
	require.NoError(t, json.Unmarshal([]byte(chunks[1].Response), &progress))
	assert.Equal(t, "downloading", progress["status"])
	assert.Equal(t, 25.0, progress["progress"])

	c.ListModels(ctx)
	assert.EqualValues(t, 2, hits.Load(), "successful pull clears the model cache")
}

func TestPullModelFailure(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	chunks := collect(c.PullModel(context.Background(), "phi3"))
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].Done)
	assert.Contains(t, chunks[0].Response, "pull_model")
}

func TestDeleteModel(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			hits.Add(1)
			writeTags(w, "llama3.2")
		case "/api/delete":
			assert.Equal(t, http.MethodDelete, r.Method)
			var req map[string]any
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req["model"] == "missing" {
				w.WriteHeader(http.StatusNotFound)
			}
		}
	})
	ctx := context.Background()
	c.ListModels(ctx)

	assert.False(t, c.DeleteModel(ctx, "missing"))
	c.ListModels(ctx)
	assert.EqualValues(t, 1, hits.Load())

	assert.True(t, c.DeleteModel(ctx, "llama3.2"))
	c.ListModels(ctx)
	assert.EqualValues(t, 2, hits.Load())
}

func TestModelInfo(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != "llama3.2" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `{"modelfile":"FROM llama3.2","details":{"family":"llama"}}`)
	})
	info, err := c.ModelInfo(context.Background(), "llama3.2")
	require.NoError(t, err)
	assert.Equal(t, "FROM llama3.2", info["modelfile"])

	_, err = c.ModelInfo(context.Background(), "nope")
	assert.ErrorIs(t, err, ai.ErrTransport)
}

func TestChatStreamSkipsEmptyFragments(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"","done":false}`)
		fmt.Fprintln(w, `{"response":"4","done":false}`)
		fmt.Fprintln(w, `{"response":"","done":false}`)
		fmt.Fprintln(w, `{"response":"","done":true}`)
	})

	chunks := collect(c.ChatStream(context.Background(), ai.ChatRequest{Message: "2+2"}))
	assert.Equal(t, []ai.Chunk{ai.Fragment("4"), ai.Final()}, chunks)
}
