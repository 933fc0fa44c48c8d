package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/trainingbot/internal/adapters/repository"
	"github.com/okian/trainingbot/internal/domain/model"
	"github.com/okian/trainingbot/internal/domain/types"
)

const defaultRunsLimit = 20

// RunsDependencies reads recorded runs.
type RunsDependencies interface {
	Recent(ctx context.Context, n int) ([]model.RunResult, error)
	Run(ctx context.Context, id string) (model.RunResult, error)
}

// RunsHandler handles run history requests.
type RunsHandler struct {
	deps     RunsDependencies
	maxLimit int
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(deps RunsDependencies, maxLimit int) *RunsHandler {
	if maxLimit < 1 {
		maxLimit = defaultRunsLimit
	}
	return &RunsHandler{deps: deps, maxLimit: maxLimit}
}

// HandleListRuns handles GET /runs?limit=N. Without limit the most recent
// 20 runs are returned, newest first.
func (h *RunsHandler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_runs"
	n := min(defaultRunsLimit, h.maxLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		if v > h.maxLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrBadRequest))
			return
		}
		n = v
	}
	runs, err := h.deps.Recent(r.Context(), n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, types.SummarizeAll(runs))
}

// HandleGetRun handles GET /runs/{id} with the full RunResult.
func (h *RunsHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_run"
	id := r.PathValue("id")
	if strings.TrimSpace(id) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	run, err := h.deps.Run(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, run)
}
