// Package calculator is the math-solving app built on the shared facade.
package calculator

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/dioniDR/ai-forge/internal/app"
	"github.com/gin-gonic/gin"
)

const Name = "calculator"

const systemPrompt = `You are an AI calculator and an expert in mathematics.

INSTRUCTIONS:
- Solve math problems step by step
- Show your work clearly and in order
- Use markdown for equations when it helps
- For a simple calculation, give the answer directly
- For a complex one, explain each step
- Only answer math questions
- Be precise and concise

RESPONSE FORMAT:
📊 **Problem:** [restate the problem]
🔢 **Answer:** [final result]
📝 **Explanation:** [steps if needed]`

// Defaults is the initial configuration document of the calculator.
func Defaults() map[string]any {
	return map[string]any{
		"app_name":         "Calculator AI",
		"default_provider": "ollama",
		"default_model":    "llama3.2",
		"temperature":      0.1,
		"system_prompt":    systemPrompt,
		"max_tokens":       1000,
		"stream":           true,
	}
}

type calculateRequest struct {
	Problem   string `json:"problem" binding:"required"`
	ShowSteps *bool  `json:"show_steps"`
	Precision *int   `json:"precision"`
}

// Routes registers the calculator endpoints on a.
func Routes(a *app.App) {
	a.Engine.POST("/calculate", func(c *gin.Context) {
		var req calculateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			app.Fail(c, app.Invalid(err))
			return
		}
		showSteps := req.ShowSteps == nil || *req.ShowSteps

		no := false
		p, chat, _, err := a.Resolve(app.ChatParams{
			Message: problemMessage(req.Problem, showSteps, req.Precision),
			Task:    "math",
			Stream:  &no,
		})
		if err != nil {
			app.Fail(c, err)
			return
		}
		solution, err := a.Chat(c.Request.Context(), p, chat)
		if err != nil {
			app.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"problem":    req.Problem,
			"solution":   solution,
			"show_steps": showSteps,
		})
	})
}

func problemMessage(problem string, showSteps bool, precision *int) string {
	var sb strings.Builder
	sb.WriteString(problem)
	if !showSteps {
		sb.WriteString("\n\nGive only the final answer, without steps.")
	}
	if precision != nil && *precision >= 0 {
		fmt.Fprintf(&sb, "\n\nRound the final result to %d decimal places.", *precision)
	}
	return sb.String()
}
