package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"santrack/dashboard/internal/session"
)

type healthResponse struct {
	Status      string `json:"status"`
	Storage     string `json:"storage"`
	Backend     string `json:"backend"`
	Environment string `json:"environment"`
}

func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	resp := healthResponse{
		Status:      "ok",
		Storage:     "ok",
		Backend:     h.cfg.Session.Backend,
		Environment: h.cfg.Environment,
	}

	if pinger, ok := h.store.Storage().(session.Pinger); ok {
		if err := pinger.Ping(ctx); err != nil {
			h.log.Error().Err(err).Msg("session storage ping failed")
			status = http.StatusServiceUnavailable
			resp.Status = "degraded"
			resp.Storage = "error"
		}
	}

	c.JSON(status, resp)
}
