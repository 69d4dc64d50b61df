package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	ledger Pinger
}

func NewHealthHandler(ledger Pinger) *HealthHandler {
	return &HealthHandler{ledger: ledger}
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code, ledger := "healthy", http.StatusOK, "up"
	if err := h.ledger.Ping(ctx); err != nil {
		status, code, ledger = "unhealthy", http.StatusServiceUnavailable, err.Error()
	}

	c.JSON(code, gin.H{
		"status":    status,
		"ledger":    ledger,
		"timestamp": time.Now().UTC(),
		"service":   "studio-booking",
		"version":   "1.0.0",
	})
}
