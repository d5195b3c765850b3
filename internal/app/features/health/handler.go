package health

import (
	"context"
	"net/http"

	"github.com/dalemusser/juntos/internal/app/system/docstore"
	"github.com/dalemusser/juntos/internal/app/system/httpx"
	"github.com/dalemusser/juntos/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Pinger is anything besides the document service that health should check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies needed for health checks.
type Handler struct {
	Docs  docstore.Service
	Cache Pinger
	Log   *zap.Logger
}

// NewHandler constructs a health Handler. cache may be nil.
func NewHandler(docs docstore.Service, cache Pinger, logger *zap.Logger) *Handler {
	return &Handler{
		Docs:  docs,
		Cache: cache,
		Log:   logger,
	}
}

// healthResponse is the JSON structure for the health check response.
type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Cache    string `json:"cache,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "database":"connected" }
//
// On failure: 503 and
//
//	{ "status":"error", "database":"disconnected", "message":"Database unavailable" }
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	resp := healthResponse{
		Status:   "ok",
		Database: "connected",
	}

	if err := h.Docs.Ping(ctx); err != nil {
		h.Log.Error("health-check: document service ping failed", zap.Error(err))
		resp.Status = "error"
		resp.Database = "disconnected"
		resp.Message = "Database unavailable"
		httpx.JSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	if h.Cache != nil {
		resp.Cache = "connected"
		if err := h.Cache.Ping(ctx); err != nil {
			h.Log.Warn("health-check: cache ping failed", zap.Error(err))
			resp.Cache = "degraded"
		}
	}

	httpx.JSON(w, http.StatusOK, resp)
}
