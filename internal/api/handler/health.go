package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/repoanalyzer/internal/health"
	"github.com/qs3c/repoanalyzer/internal/pkg/response"
)

type HealthHandler struct {
	registry *health.Registry
}

func NewHealthHandler(registry *health.Registry) *HealthHandler {
	return &HealthHandler{registry: registry}
}

// Report 健康与队列状态
// GET /api/v1/health
func (h *HealthHandler) Report(c *gin.Context) {
	report, err := h.registry.Snapshot()
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, report)
}
