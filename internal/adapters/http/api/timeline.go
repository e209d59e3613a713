package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/okian/kline/internal/domain/curve"
	"github.com/okian/kline/internal/domain/model"
)

// TimelineHandler serves timelines and series of registered charts.
type TimelineHandler struct {
	deps Dependencies
}

// NewTimelineHandler creates a new timeline handler.
func NewTimelineHandler(deps Dependencies) *TimelineHandler {
	return &TimelineHandler{deps: deps}
}

// streamEvent is one line of a streamed timeline response.
type streamEvent struct {
	Progress *curve.Progress `json:"progress,omitempty"`
	Timeline *model.Timeline `json:"timeline,omitempty"`
	Error    *errorResponse  `json:"error,omitempty"`
}

// HandleTimeline handles GET /v1/charts/{id}/timeline?strategy=&refresh=&stream=.
// With stream=true the response is newline-delimited JSON: progress events
// followed by the timeline or an error.
func (h *TimelineHandler) HandleTimeline(w http.ResponseWriter, r *http.Request) {
	refresh, err := boolQuery(r, "refresh")
	if err != nil {
		writeError(w, err)
		return
	}
	stream, err := boolQuery(r, "stream")
	if err != nil {
		writeError(w, err)
		return
	}
	id := r.PathValue("id")
	strategy := r.URL.Query().Get("strategy")

	if !stream {
		tl, err := h.deps.Timeline(r.Context(), id, strategy, refresh, nil)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, tl)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	flusher, _ := w.(http.Flusher)
	emit := func(ev streamEvent) {
		_ = enc.Encode(ev)
		if flusher != nil {
			flusher.Flush()
		}
	}
	tl, err := h.deps.Timeline(r.Context(), id, strategy, refresh, func(p curve.Progress) {
		emit(streamEvent{Progress: &p})
	})
	if err != nil {
		_, code := classify(err)
		emit(streamEvent{Error: &errorResponse{Code: code, Message: err.Error()}})
		return
	}
	emit(streamEvent{Timeline: tl})
}

// HandleDecades handles GET /v1/charts/{id}/decades.
func (h *TimelineHandler) HandleDecades(w http.ResponseWriter, r *http.Request) {
	h.series(w, r, model.KindDecade, "")
}

// HandleYears handles GET /v1/charts/{id}/years?start=.
func (h *TimelineHandler) HandleYears(w http.ResponseWriter, r *http.Request) {
	h.series(w, r, model.KindYear, "start")
}

// HandleMonths handles GET /v1/charts/{id}/months?year=.
func (h *TimelineHandler) HandleMonths(w http.ResponseWriter, r *http.Request) {
	h.series(w, r, model.KindMonth, "year")
}

func (h *TimelineHandler) series(w http.ResponseWriter, r *http.Request, kind model.Kind, yearParam string) {
	var year int
	var err error
	if yearParam != "" {
		if year, err = intQuery(r, yearParam); err != nil {
			writeError(w, err)
			return
		}
	}
	refresh, err := boolQuery(r, "refresh")
	if err != nil {
		writeError(w, err)
		return
	}
	tl, err := h.deps.Series(r.Context(), r.PathValue("id"), kind, year, refresh)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tl)
}

// narrativesRequest is the body of POST /v1/charts/{id}/narratives.
type narrativesRequest struct {
	Kind    string `json:"kind"`
	Year    int    `json:"year,omitempty"`
	Indices []int  `json:"indices,omitempty"`
}

type narrativesResponse struct {
	Status     string `json:"status"`
	Queued     int    `json:"queued"`
	Duplicates int    `json:"duplicates"`
}

// HandleNarratives handles POST /v1/charts/{id}/narratives.
func (h *TimelineHandler) HandleNarratives(w http.ResponseWriter, r *http.Request) {
	var req narrativesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if req.Kind == "" {
		req.Kind = string(model.KindLifetime)
	}
	kind, err := model.ParseKind(req.Kind)
	if err != nil {
		writeError(w, err)
		return
	}
	queued, dups, err := h.deps.RequestNarratives(r.Context(), r.PathValue("id"), kind, req.Year, req.Indices)
	if err != nil {
		writeError(w, err)
		return
	}
	status := "accepted"
	if queued == 0 && dups > 0 {
		status = "duplicate"
	}
	writeJSON(w, http.StatusAccepted, narrativesResponse{Status: status, Queued: queued, Duplicates: dups})
}
