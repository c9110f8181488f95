package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/docchat/internal/api"
)

// IndexProbe reports whether the chunk index has been built.
type IndexProbe interface {
	Exists(ctx context.Context) (bool, error)
}

type HealthHandler struct {
	index IndexProbe
}

func NewHealthHandler(index IndexProbe) *HealthHandler {
	return &HealthHandler{index: index}
}

type HealthResponse struct {
	Status string `json:"status"`
	Index  string `json:"index"`
}

// Health answers 200 while the backing store is reachable. A missing index
// is reported, not treated as a failure.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	exists, err := h.index.Exists(r.Context())
	if err != nil {
		api.JSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Index: "unknown"})
		return
	}

	index := "missing"
	if exists {
		index = "ready"
	}
	api.JSON(w, http.StatusOK, HealthResponse{Status: "ok", Index: index})
}
