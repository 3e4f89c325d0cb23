package handlers

import (
	"github.com/dhima/mysql-connector/internal/api/response"
	"github.com/dhima/mysql-connector/internal/logging"
	"github.com/gin-gonic/gin"
)

// SessionState is the part of a session the health check reads.
type SessionState interface {
	Initialized() bool
	IsOpen() (bool, error)
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	logger logging.Logger
	state  SessionState
}

// NewHealthHandler creates a new health check handler.
func NewHealthHandler(logger logging.Logger, state SessionState) *HealthHandler {
	return &HealthHandler{logger: logger, state: state}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status" example:"ok"`
	Service     string `json:"service" example:"mysql-connector"`
	Version     string `json:"version" example:"1.0.0"`
	Initialized bool   `json:"initialized"`
	Open        bool   `json:"open"`
}

// Health always answers 200 while the process is up. Status is "degraded"
// until the session has been configured against a reachable server.
func (h *HealthHandler) Health(c *gin.Context) {
	initialized := h.state.Initialized()
	open, _ := h.state.IsOpen()

	status := "ok"
	if !initialized {
		status = "degraded"
	}

	response.OK(c, HealthResponse{
		Status:      status,
		Service:     "mysql-connector",
		Version:     "1.0.0",
		Initialized: initialized,
		Open:        open,
	})
}
