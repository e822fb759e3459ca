package app

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dioniDR/ai-forge/internal/prompts"
	"github.com/gin-gonic/gin"
)

func (a *App) promptRoutes(g *gin.RouterGroup) {
	g.GET("", a.listPrompts)
	g.POST("", a.savePrompt)
	g.POST("/use", a.usePrompt)
	g.GET("/search", a.searchPrompts)
	g.GET("/categories", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"categories": a.Prompts.Categories()})
	})
	g.GET("/tags", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tags": a.Prompts.Tags()})
	})
	g.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, a.Prompts.Stats())
	})
	g.GET("/export", func(c *gin.Context) {
		c.JSON(http.StatusOK, a.Prompts.Snapshot(c.Query("category")))
	})
	g.POST("/import", a.importPrompts)
	g.GET("/:id", a.getPrompt)
	g.PUT("/:id", a.updatePrompt)
	g.DELETE("/:id", a.deletePrompt)
}

func (a *App) listPrompts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"prompts": a.Prompts.GetAll()})
}

type savePromptRequest struct {
	Name        string   `json:"name" binding:"required"`
	Prompt      string   `json:"prompt" binding:"required"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
}

func (a *App) savePrompt(c *gin.Context) {
	var req savePromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, Invalid(err))
		return
	}
	p, err := a.Prompts.Save(prompts.NewPrompt(req))
	if err != nil {
		Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Prompt saved successfully", "prompt": p})
}

type usePromptRequest struct {
	PromptID string `json:"prompt_id" binding:"required"`
}

// usePrompt copies a prompt's text into the config's system_prompt.
func (a *App) usePrompt(c *gin.Context) {
	var req usePromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, Invalid(err))
		return
	}
	p, err := a.Prompts.Get(req.PromptID)
	if err != nil {
		Fail(c, err)
		return
	}
	if err := a.Config.Set("system_prompt", p.Prompt); err != nil {
		Fail(c, err)
		return
	}
	if p, err = a.Prompts.MarkUsed(p.ID); err != nil {
		Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Prompt '%s' applied successfully", p.Name),
		"prompt":  p,
	})
}

func (a *App) searchPrompts(c *gin.Context) {
	q := prompts.Query{Text: c.Query("q"), Category: c.Query("category")}
	for _, t := range strings.Split(c.Query("tags"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			q.Tags = append(q.Tags, t)
		}
	}
	c.JSON(http.StatusOK, gin.H{"results": a.Prompts.Search(q)})
}

func (a *App) importPrompts(c *gin.Context) {
	overwrite := false
	if v := c.Query("overwrite"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			Fail(c, Invalid(err))
			return
		}
		overwrite = b
	}
	st, err := a.Prompts.Import(c.Request.Body, overwrite)
	if err != nil {
		Fail(c, Invalid(err))
		return
	}
	c.JSON(http.StatusOK, st)
}

func (a *App) getPrompt(c *gin.Context) {
	p, err := a.Prompts.Get(c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prompt": p})
}

func (a *App) updatePrompt(c *gin.Context) {
	var patch prompts.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		Fail(c, Invalid(err))
		return
	}
	p, err := a.Prompts.Update(c.Param("id"), patch)
	if err != nil {
		Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Prompt updated successfully", "prompt": p})
}

func (a *App) deletePrompt(c *gin.Context) {
	p, err := a.Prompts.Delete(c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Prompt '%s' deleted successfully", p.Name),
		"prompt":  p,
	})
}
