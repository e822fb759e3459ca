package app

import (
	"errors"
	"net/http"

	"github.com/dioniDR/ai-forge/internal/ai"
	"github.com/dioniDR/ai-forge/internal/ai/registry"
	"github.com/gin-gonic/gin"
)

func (a *App) providerRoutes(g *gin.RouterGroup) {
	g.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"providers": a.Providers.Names()})
	})
	g.GET("/info", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"providers": a.Providers.Info(c.Request.Context())})
	})
	g.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"results": a.Providers.Check(c.Request.Context())})
	})
	g.POST("/reload", func(c *gin.Context) {
		a.Providers.Reload(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"message": "Providers reloaded", "providers": a.Providers.Names()})
	})
	g.GET("/best", a.bestProvider)
	g.GET("/:name", a.withProvider(func(c *gin.Context, p ai.Provider) {
		info, err := a.Providers.Describe(c.Request.Context(), c.Param("name"))
		if err != nil {
			Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, info)
	}))
	g.GET("/:name/test", a.withProvider(func(c *gin.Context, p ai.Provider) {
		c.JSON(http.StatusOK, ai.TestConnection(c.Request.Context(), p))
	}))
	g.GET("/:name/models", a.withProvider(func(c *gin.Context, p ai.Provider) {
		c.JSON(http.StatusOK, gin.H{"provider": c.Param("name"), "models": p.ListModels(c.Request.Context())})
	}))
	g.POST("/:name/models/pull", a.withManager(a.pullModel))
	g.GET("/:name/models/:model", a.withManager(a.modelInfo))
	g.DELETE("/:name/models/:model", a.withManager(a.deleteModel))
}

func (a *App) withProvider(h func(*gin.Context, ai.Provider)) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := a.Providers.Get(c.Param("name"))
		if err != nil {
			Fail(c, err)
			return
		}
		h(c, p)
	}
}

func (a *App) withManager(h func(*gin.Context, ai.Provider, ai.ModelManager)) gin.HandlerFunc {
	return a.withProvider(func(c *gin.Context, p ai.Provider) {
		m, ok := p.(ai.ModelManager)
		if !ok {
			Fail(c, ErrUnsupported)
			return
		}
		h(c, p, m)
	})
}

func (a *App) bestProvider(c *gin.Context) {
	task := c.DefaultQuery("task", "general")
	p, ok := a.Providers.BestForTask(task)
	if !ok {
		Fail(c, &registry.NotFoundError{Name: "for task " + task, Available: a.Providers.Names()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task, "provider": p.Name()})
}

type pullRequest struct {
	Model string `json:"model" binding:"required"`
}

func (a *App) pullModel(c *gin.Context, _ ai.Provider, m ai.ModelManager) {
	var req pullRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, Invalid(err))
		return
	}
	sseHeaders(c)
	for ch := range ai.UntilDone(m.PullModel(c.Request.Context(), req.Model)) {
		if err := writeEvent(c, ch); err != nil {
			_ = c.Error(err)
			return
		}
	}
}

func (a *App) modelInfo(c *gin.Context, p ai.Provider, m ai.ModelManager) {
	ctx := c.Request.Context()
	model := c.Param("model")
	info, err := m.ModelInfo(ctx, model)
	if err != nil {
		failUpstream(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"provider":  c.Param("name"),
		"model":     model,
		"available": ai.ValidateModel(ctx, p, model),
		"info":      info,
	})
}

func (a *App) deleteModel(c *gin.Context, _ ai.Provider, m ai.ModelManager) {
	c.JSON(http.StatusOK, gin.H{"deleted": m.DeleteModel(c.Request.Context(), c.Param("model"))})
}

func sseHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
}

func writeEvent(c *gin.Context, ch ai.Chunk) error {
	if _, err := c.Writer.Write(ai.Encode(ch)); err != nil {
		return errors.Join(errClientGone, err)
	}
	c.Writer.Flush()
	return nil
}

var errClientGone = errors.New("client disconnected")
