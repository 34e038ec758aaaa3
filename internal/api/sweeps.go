package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/matk/internal/engine"
	"github.com/seantiz/matk/internal/model"
	"github.com/seantiz/matk/internal/results"
	"github.com/seantiz/matk/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 8 << 20 // 8 MB
)

// listSweepsResponse wraps the paginated list response.
type listSweepsResponse struct {
	Sweeps []*model.Sweep `json:"sweeps"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// sampleResponse is one sample in GET /v1/sweeps/:id/samples. Missing values
// are encoded as null since JSON has no NaN.
type sampleResponse struct {
	Position   int        `json:"position"`
	Index      string     `json:"index"`
	Status     string     `json:"status"`
	Params     []*float64 `json:"params"`
	Values     []*float64 `json:"values,omitempty"`
	Error      string     `json:"error,omitempty"`
	DurationMS int        `json:"duration_ms"`
}

type samplesResponse struct {
	SweepID  string           `json:"sweep_id"`
	ParNames []string         `json:"par_names"`
	ObsNames []string         `json:"obs_names"`
	Samples  []sampleResponse `json:"samples"`
}

func (s *Server) handleCreateSweep(w http.ResponseWriter, r *http.Request) {
	var req createSweepRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sweepSubmissions.WithLabelValues("invalid", submitRejected).Inc()
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	kind := submissionKind(req)

	engReq, err := s.toEngineRequest(req)
	if err != nil {
		sweepSubmissions.WithLabelValues(kind, submitRejected).Inc()
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sw, err := s.engine.Submit(r.Context(), engReq)
	if err != nil {
		if isConfigError(err) {
			sweepSubmissions.WithLabelValues(kind, submitRejected).Inc()
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		sweepSubmissions.WithLabelValues(kind, submitError).Inc()
		s.logger.Error("submit sweep", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to submit sweep")
		return
	}

	sweepSubmissions.WithLabelValues(kind, submitAccepted).Inc()
	s.writeJSON(w, http.StatusAccepted, sw)
}

func (s *Server) handleGetSweep(w http.ResponseWriter, r *http.Request) {
	sw, ok := s.lookupSweep(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, sw)
}

func (s *Server) handleListSweeps(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	sweeps, total, err := s.store.ListSweeps(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list sweeps", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list sweeps")
		return
	}

	if sweeps == nil {
		sweeps = []*model.Sweep{}
	}

	s.writeJSON(w, http.StatusOK, listSweepsResponse{
		Sweeps: sweeps,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Server) handleGetSamples(w http.ResponseWriter, r *http.Request) {
	sw, ok := s.lookupSweep(w, r)
	if !ok {
		return
	}
	recs, err := s.store.GetSamples(r.Context(), sw.ID)
	if err != nil {
		s.logger.Error("get samples", "sweep_id", sw.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get samples")
		return
	}

	out := samplesResponse{
		SweepID:  sw.ID,
		ParNames: sw.ParNames,
		ObsNames: sw.ObsNames,
		Samples:  make([]sampleResponse, len(recs)),
	}
	for i, rec := range recs {
		out.Samples[i] = sampleToResponse(rec)
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleGetResults serves the sweep's results file. It is only available
// once the sweep has finished.
func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	sw, ok := s.lookupSweep(w, r)
	if !ok {
		return
	}
	if !model.IsTerminal(sw.Status) {
		s.writeError(w, http.StatusConflict, "sweep has not finished")
		return
	}
	recs, err := s.store.GetSamples(r.Context(), sw.ID)
	if err != nil {
		s.logger.Error("get samples for results", "sweep_id", sw.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get samples")
		return
	}

	var buf bytes.Buffer
	if err := results.Write(&buf, results.FromSamples(sw.ParNames, sw.ObsNames, recs)); err != nil {
		s.logger.Error("format results", "sweep_id", sw.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to format results")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleCancelSweep(w http.ResponseWriter, r *http.Request) {
	sw, ok := s.lookupSweep(w, r)
	if !ok {
		return
	}

	if err := s.engine.Cancel(sw.ID); err != nil {
		if errors.Is(err, engine.ErrNotActive) {
			s.writeError(w, http.StatusConflict, "sweep is not active")
			return
		}
		s.logger.Error("cancel sweep", "sweep_id", sw.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to cancel sweep")
		return
	}

	s.writeJSON(w, http.StatusAccepted, sw)
}

// lookupSweep loads the sweep named by the {id} URL parameter, writing a
// 404 or 500 response when it cannot.
func (s *Server) lookupSweep(w http.ResponseWriter, r *http.Request) (*model.Sweep, bool) {
	id := chi.URLParam(r, "id")

	sw, err := s.store.GetSweep(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "sweep not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("get sweep", "sweep_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get sweep")
		return nil, false
	}
	return sw, true
}

func sampleToResponse(rec model.SampleRecord) sampleResponse {
	return sampleResponse{
		Position:   rec.Position,
		Index:      rec.Index.String(),
		Status:     rec.Status,
		Params:     nullableFloats(rec.Params),
		Values:     nullableFloats(rec.Values),
		Error:      rec.Error,
		DurationMS: rec.DurationMS,
	}
}

func nullableFloats(vs []float64) []*float64 {
	if vs == nil {
		return nil
	}
	out := make([]*float64, len(vs))
	for i, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[i] = &vs[i]
	}
	return out
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
