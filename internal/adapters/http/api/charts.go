package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/okian/kline/internal/testcharts"
)

// maxChartBody caps the size of a chart registration body.
const maxChartBody = 1 << 20

// ChartsHandler handles chart registration.
type ChartsHandler struct {
	deps Dependencies
}

// NewChartsHandler creates a new charts handler.
func NewChartsHandler(deps Dependencies) *ChartsHandler {
	return &ChartsHandler{deps: deps}
}

// HandleRegister handles POST /v1/charts. The body is a chart fixture:
// birth year plus the twelve palaces.
func (h *ChartsHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var f testcharts.Fixture
	if err := json.NewDecoder(io.LimitReader(r.Body, maxChartBody)).Decode(&f); err != nil {
		writeError(w, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	c, err := f.Almanac()
	if err != nil {
		writeError(w, err)
		return
	}
	info, err := h.deps.RegisterChart(r.Context(), c, f.BirthYear)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// HandleGet handles GET /v1/charts/{id}.
func (h *ChartsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	info, err := h.deps.ChartInfo(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// HandleDelete handles DELETE /v1/charts/{id}.
func (h *ChartsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.RemoveChart(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
