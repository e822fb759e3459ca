package app

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
)

func (a *App) configRoutes(g *gin.RouterGroup) {
	g.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, a.Config.Snapshot())
	})
	g.POST("", a.updateConfig)
	g.GET("/info", func(c *gin.Context) {
		c.JSON(http.StatusOK, a.Config.Info())
	})
	g.GET("/validate", func(c *gin.Context) {
		c.JSON(http.StatusOK, a.Config.Validate())
	})
	g.POST("/reset", a.resetConfig)
	g.POST("/backup", a.backupConfig)
	g.GET("/recommended", func(c *gin.Context) {
		c.JSON(http.StatusOK, a.Providers.AutoConfigure())
	})
}

func (a *App) updateConfig(c *gin.Context) {
	var updates map[string]any
	if err := c.ShouldBindJSON(&updates); err != nil {
		Fail(c, Invalid(err))
		return
	}
	if updates == nil {
		Fail(c, Invalid(errors.New("body must be a JSON object")))
		return
	}
	cfg, err := a.Config.Update(updates)
	if err != nil {
		Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Configuration updated successfully", "config": cfg})
}

// bindOptional binds an optional JSON body; an empty body leaves v untouched.
func bindOptional(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return Invalid(err)
	}
	return nil
}

type resetRequest struct {
	Keys []string `json:"keys"`
}

func (a *App) resetConfig(c *gin.Context) {
	var req resetRequest
	if err := bindOptional(c, &req); err != nil {
		Fail(c, err)
		return
	}
	if err := a.Config.Reset(req.Keys...); err != nil {
		Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Configuration reset", "config": a.Config.Snapshot()})
}

type backupRequest struct {
	Path string `json:"path"`
}

func (a *App) backupConfig(c *gin.Context) {
	var req backupRequest
	if err := bindOptional(c, &req); err != nil {
		Fail(c, err)
		return
	}
	// Backups requested over HTTP stay next to the config file.
	if req.Path != "" {
		req.Path = filepath.Join(filepath.Dir(a.Config.Path()), filepath.Base(req.Path))
	}
	path, err := a.Config.Backup(req.Path)
	if err != nil {
		Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Backup created", "path": path})
}
