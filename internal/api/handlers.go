package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourorg/bulk-tickets/internal/helpdesk"
)

// Diagnostics are the read-only helpdesk calls exposed for operators.
type Diagnostics interface {
	VerifyAuth(ctx context.Context) helpdesk.AuthCheck
	TicketFields(ctx context.Context) ([]helpdesk.TicketField, error)
}

type Handler struct {
	helpdesk  Diagnostics
	configErr error
}

// NewHandler takes the startup configuration error, if any, so readiness
// and diagnostics can report it without calling the remote API.
func NewHandler(d Diagnostics, configErr error) *Handler {
	return &Handler{helpdesk: d, configErr: configErr}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Ready(c *gin.Context) {
	if h.configErr != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": h.configErr.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// AuthTest verifies the API key against the helpdesk account endpoint.
func (h *Handler) AuthTest(c *gin.Context) {
	if h.configErr != nil {
		c.JSON(http.StatusOK, helpdesk.AuthCheck{Error: h.configErr.Error()})
		return
	}
	c.JSON(http.StatusOK, h.helpdesk.VerifyAuth(c.Request.Context()))
}

func (h *Handler) TicketFields(c *gin.Context) {
	if h.configErr != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": h.configErr.Error()})
		return
	}
	fields, err := h.helpdesk.TicketFields(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if fields == nil {
		fields = []helpdesk.TicketField{}
	}
	c.JSON(http.StatusOK, fields)
}
