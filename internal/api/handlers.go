package api

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/QTest-hq/codehealth/internal/analyzer"
	"github.com/QTest-hq/codehealth/internal/report"
	"github.com/QTest-hq/codehealth/pkg/model"
)

// AnalyzeRequest is the request body for starting an analysis
type AnalyzeRequest struct {
	Target      string `json:"target"`
	ProjectRoot string `json:"projectRoot,omitempty"`
}

// AnalyzeResponse reports a finished analysis
type AnalyzeResponse struct {
	Summary *analyzer.Summary     `json:"summary"`
	Results []analyzer.FileResult `json:"results"`
}

// TierSummaryResponse counts indexed files per tier. Stored holds the
// counts of the run store when one is configured.
type TierSummaryResponse struct {
	OutputDir string                   `json:"outputDir"`
	Total     int                      `json:"total"`
	Tiers     map[model.HealthTier]int `json:"tiers"`
	Stored    map[model.HealthTier]int `json:"stored,omitempty"`
}

// ReportListing is one saved record in a report listing
type ReportListing struct {
	Report          string           `json:"report"`
	FilePath        string           `json:"filePath"`
	Tier            model.HealthTier `json:"tier"`
	Complexity      int              `json:"complexity"`
	Maintainability float64          `json:"maintainability"`
	Fallback        bool             `json:"fallback,omitempty"`
}

// TierResponse lists the entries of one tier
type TierResponse struct {
	Tier    model.HealthTier         `json:"tier"`
	Total   int                      `json:"total"`
	Entries []model.HealthIndexEntry `json:"entries"`
}

func (s *Server) tierSummary(w http.ResponseWriter, r *http.Request) {
	resp := TierSummaryResponse{
		OutputDir: s.writer.OutputDir(),
		Tiers:     make(map[model.HealthTier]int),
	}

	for _, tier := range model.Tiers() {
		entries, err := s.writer.LoadIndex(tier)
		if err != nil {
			log.Error().Err(err).Str("tier", string(tier)).Msg("failed to load index")
			respondError(w, http.StatusInternalServerError, "failed to load index")
			return
		}
		resp.Tiers[tier] = len(entries)
		resp.Total += len(entries)
	}

	if s.runs != nil {
		stored, err := s.runs.TierCounts(r.Context())
		if err != nil {
			log.Warn().Err(err).Msg("failed to count stored tiers")
		} else {
			resp.Stored = stored
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) listTier(w http.ResponseWriter, r *http.Request) {
	tier, err := model.ParseTier(chi.URLParam(r, "tier"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit, err := queryInt(r, "limit", 0)
	if err != nil || limit < 0 {
		respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	entries, err := s.writer.LoadIndex(tier)
	if err != nil {
		log.Error().Err(err).Str("tier", string(tier)).Msg("failed to load index")
		respondError(w, http.StatusInternalServerError, "failed to load index")
		return
	}

	resp := TierResponse{Tier: tier, Total: len(entries), Entries: entries}
	if limit > 0 && limit < len(entries) {
		resp.Entries = entries[:limit]
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	rel := r.URL.Query().Get("path")
	if rel == "" {
		respondError(w, http.StatusBadRequest, "path is required")
		return
	}

	// Accept the source path or the report path itself
	name := rel
	if path.Ext(rel) != ".json" {
		name = report.ReportName(rel)
	}

	rec, err := s.writer.LoadRecord(name)
	switch {
	case errors.Is(err, report.ErrInvalidRecordPath):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, fs.ErrNotExist):
		respondError(w, http.StatusNotFound, "report not found")
		return
	case err != nil:
		log.Error().Err(err).Str("path", rel).Msg("failed to load report")
		respondError(w, http.StatusInternalServerError, "failed to load report")
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

// listReports lists every saved record, optionally only those in a tier
// worse than ?below=
func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	var below model.HealthTier
	if v := r.URL.Query().Get("below"); v != "" {
		tier, err := model.ParseTier(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		below = tier
	}

	listing := make([]ReportListing, 0)
	err := s.writer.WalkRecords(func(rel string, rec *model.AnalysisRecord) error {
		if below != "" && !rec.HealthLevel.WorseThan(below) {
			return nil
		}
		listing = append(listing, ReportListing{
			Report:          rel,
			FilePath:        rec.FilePath,
			Tier:            rec.HealthLevel,
			Complexity:      rec.Analysis.Complexity,
			Maintainability: rec.Analysis.Maintainability,
			Fallback:        rec.IsFallback(),
		})
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Error().Err(err).Msg("failed to list reports")
		respondError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}

	respondJSON(w, http.StatusOK, listing)
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Target == "" {
		respondError(w, http.StatusBadRequest, "target is required")
		return
	}

	summary, err := s.runner.Run(r.Context(), analyzer.Request{
		Target:      req.Target,
		ProjectRoot: req.ProjectRoot,
		OutputDir:   s.cfg.OutputDir,
	})
	switch {
	case errors.Is(err, analyzer.ErrNoFiles):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, fs.ErrNotExist):
		respondError(w, http.StatusBadRequest, "target does not exist")
		return
	case err != nil:
		log.Error().Err(err).Str("target", req.Target).Msg("analysis failed")
		respondError(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	respondJSON(w, http.StatusOK, AnalyzeResponse{Summary: summary, Results: summary.Results})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		respondError(w, http.StatusServiceUnavailable, "run history not available")
		return
	}

	limit, err := queryInt(r, "limit", 20)
	if err != nil || limit <= 0 {
		respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		respondError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	runs, err := s.runs.ListRuns(r.Context(), limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("failed to list runs")
		respondError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	respondJSON(w, http.StatusOK, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		respondError(w, http.StatusServiceUnavailable, "run history not available")
		return
	}

	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid run ID")
		return
	}

	run, err := s.runs.GetRun(r.Context(), runID)
	if err != nil {
		log.Error().Err(err).Str("run_id", runID.String()).Msg("failed to get run")
		respondError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	if run == nil {
		respondError(w, http.StatusNotFound, "run not found")
		return
	}

	respondJSON(w, http.StatusOK, run)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
