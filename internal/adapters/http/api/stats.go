package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/trainingbot/internal/adapters/repository"
)

const (
	defaultTopModules = 5
	maxTopModules     = 50
)

// StatsProvider aggregates the history store.
type StatsProvider interface {
	Stats(ctx context.Context, topN int) (repository.Stats, error)
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	statsProvider StatsProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider}
}

// HandleStats handles GET /stats?top=N.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.stats"
	top := defaultTopModules
	if raw := r.URL.Query().Get("top"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 || v > maxTopModules {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		top = v
	}
	stats, err := h.statsProvider.Stats(r.Context(), top)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
