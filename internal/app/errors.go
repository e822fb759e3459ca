package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dioniDR/ai-forge/internal/ai"
	"github.com/dioniDR/ai-forge/internal/ai/registry"
	"github.com/dioniDR/ai-forge/internal/prompts"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var (
	// ErrValidation marks malformed request bodies.
	ErrValidation = errors.New("invalid request")
	// ErrUnsupported marks operations the selected provider does not offer.
	ErrUnsupported = errors.New("operation not supported by provider")
)

// Invalid wraps a binding error as ErrValidation.
func Invalid(err error) error {
	return fmt.Errorf("%w: %v", ErrValidation, err)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, prompts.ErrNotFound), errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// Fail writes {"detail": message} with the status matching err.
func Fail(c *gin.Context, err error) {
	failWith(c, statusOf(err), err)
}

// failUpstream is fail for endpoints proxying an upstream model service,
// where transport failures become 502.
func failUpstream(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError && errors.Is(err, ai.ErrTransport) {
		status = http.StatusBadGateway
	}
	failWith(c, status, err)
}

func failWith(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"detail": err.Error()})
}
