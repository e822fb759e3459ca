// Package app composes the config store, prompt library and provider registry
// behind the HTTP surface shared by every specialized app.
package app

import (
	"net/http"
	"time"

	"github.com/dioniDR/ai-forge/internal/ai/registry"
	"github.com/dioniDR/ai-forge/internal/configstore"
	"github.com/dioniDR/ai-forge/internal/logging"
	"github.com/dioniDR/ai-forge/internal/metrics"
	"github.com/dioniDR/ai-forge/internal/prompts"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Options struct {
	// Name is the app slug reported by /health.
	Name      string
	Config    *configstore.Store
	Prompts   *prompts.Library
	Providers *registry.Registry
	// CORSOrigins restricts cross-origin callers; empty allows any origin.
	CORSOrigins []string
	// Routes registers app specific endpoints after the base ones.
	Routes func(*App)
}

type App struct {
	Name      string
	Config    *configstore.Store
	Prompts   *prompts.Library
	Providers *registry.Registry
	Engine    *gin.Engine

	now func() time.Time
}

func New(opts Options) *App {
	a := &App{
		Name:      opts.Name,
		Config:    opts.Config,
		Prompts:   opts.Prompts,
		Providers: opts.Providers,
		Engine:    gin.New(),
		now:       time.Now,
	}

	corsConfig := cors.DefaultConfig()
	if len(opts.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = opts.CORSOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", logging.RequestIDHeader}
	corsConfig.MaxAge = 12 * time.Hour

	r := a.Engine
	r.Use(gin.Recovery())
	r.Use(logging.Middleware())
	r.Use(metrics.Middleware())
	r.Use(cors.New(corsConfig))

	r.GET("/health", a.health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	a.promptRoutes(r.Group("/prompts"))
	a.configRoutes(r.Group("/config"))
	a.providerRoutes(r.Group("/providers"))
	r.POST("/chat", a.chat)

	if opts.Routes != nil {
		opts.Routes(a)
	}
	return a
}

func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.Engine.ServeHTTP(w, r)
}

func (a *App) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"app":       a.Name,
		"timestamp": a.now().Format(time.RFC3339),
	})
}
