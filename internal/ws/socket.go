// Package ws serves streaming chat over Socket.IO.
package ws

import (
	"context"
	"net/http"
	"sync"

	"github.com/dioniDR/ai-forge/internal/ai"
	"github.com/dioniDR/ai-forge/internal/app"
	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/rs/zerolog/log"
)

const (
	EventChat      = "chat"
	EventCancel    = "chat:cancel"
	EventChunk     = "chat:chunk"
	EventProviders = "providers:list"
	EventError     = "error"
)

// Emitter is the part of a socket connection a chat stream writes to.
type Emitter interface {
	ID() string
	Emit(event string, v ...interface{})
}

type Server struct {
	app *app.App

	mu      sync.Mutex
	streams map[string]context.CancelFunc // socket id -> running chat
}

func New(a *app.App) *Server {
	return &Server{app: a, streams: make(map[string]context.CancelFunc)}
}

// Mount attaches the Socket.IO server to the app's engine. Close the returned
// server on shutdown.
func (srv *Server) Mount(r *gin.Engine) *socketio.Server {
	io := socketio.NewServer(nil)

	io.OnConnect("/", func(s socketio.Conn) error {
		log.Info().Str("sid", s.ID()).Msg("socket connected")
		return nil
	})

	io.OnEvent("/", EventChat, func(s socketio.Conn, params app.ChatParams) map[string]any {
		return srv.chat(s, params)
	})

	io.OnEvent("/", EventCancel, func(s socketio.Conn) map[string]any {
		return map[string]any{"ok": srv.cancel(s.ID())}
	})

	io.OnEvent("/", EventProviders, func(s socketio.Conn) map[string]any {
		return map[string]any{"providers": srv.app.Providers.Names()}
	})

	io.OnError("/", func(s socketio.Conn, e error) {
		sid := ""
		if s != nil {
			sid = s.ID()
		}
		log.Error().Str("sid", sid).Err(e).Msg("socket error")
	})
	io.OnDisconnect("/", func(s socketio.Conn, reason string) {
		srv.cancel(s.ID())
		log.Info().Str("sid", s.ID()).Str("reason", reason).Msg("socket disconnected")
	})

	go func() {
		if err := io.Serve(); err != nil {
			log.Error().Err(err).Msg("socket server stopped")
		}
	}()

	r.GET("/socket.io/*any", gin.WrapH(io))
	r.POST("/socket.io/*any", gin.WrapH(io))

	// Basic CORS preflight for Socket.IO POST
	r.OPTIONS("/socket.io/*any", func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Status(http.StatusNoContent)
	})

	return io
}

// chat starts streaming a reply to s and acks right away. A new chat on the
// same connection replaces the running one.
func (srv *Server) chat(s Emitter, params app.ChatParams) map[string]any {
	if params.Message == "" {
		return srv.err(s, "bad_request", "message is required")
	}
	p, req, _, err := srv.app.Resolve(params)
	if err != nil {
		return srv.err(s, "provider_unavailable", err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv.mu.Lock()
	if prev := srv.streams[s.ID()]; prev != nil {
		prev()
	}
	srv.streams[s.ID()] = cancel
	srv.mu.Unlock()

	log.Info().Str("sid", s.ID()).Str("provider", p.Name()).Str("model", req.Model).Msg("socket chat")
	go func() {
		defer srv.finish(ctx, s.ID())
		_ = srv.app.Stream(ctx, p, req, func(ch ai.Chunk) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s.Emit(EventChunk, ch)
			return nil
		})
	}()
	return map[string]any{"ok": true, "provider": p.Name(), "model": req.Model}
}

// finish drops the cancel func for sid if it still belongs to ctx.
func (srv *Server) finish(ctx context.Context, sid string) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if ctx.Err() == nil {
		if cancel := srv.streams[sid]; cancel != nil {
			cancel()
			delete(srv.streams, sid)
		}
	}
}

func (srv *Server) cancel(sid string) bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	cancel, ok := srv.streams[sid]
	if ok {
		cancel()
		delete(srv.streams, sid)
	}
	return ok
}

func (srv *Server) err(s Emitter, code, message string) map[string]any {
	s.Emit(EventError, map[string]any{"code": code, "message": message})
	return map[string]any{"error": message}
}
