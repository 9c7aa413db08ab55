package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/hkcovid-dashboard/internal/covid"
	"github.com/JakeFAU/hkcovid-dashboard/internal/dashboard"
	"github.com/JakeFAU/hkcovid-dashboard/internal/loader"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// dataset returns the current dataset or writes a 503.
func (s *Server) dataset(w http.ResponseWriter) (covid.Dataset, bool) {
	ds, ok := s.data.Current()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no dataset loaded yet")
		return covid.Dataset{}, false
	}
	return ds, true
}

// filtered returns the current dataset and the request's filter, writing
// 503 or 400 on failure.
func (s *Server) filtered(w http.ResponseWriter, r *http.Request) (covid.Dataset, covid.MapFilter, bool) {
	ds, ok := s.dataset(w)
	if !ok {
		return covid.Dataset{}, covid.MapFilter{}, false
	}
	f, err := s.parseFilter(r.URL.Query(), ds)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return covid.Dataset{}, covid.MapFilter{}, false
	}
	return ds, f, true
}

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	ds, _ := s.data.Current()
	now := s.clock.Now()
	var buf bytes.Buffer
	err := dashboard.RenderPage(&buf, dashboard.PageData{
		Title:          s.cfg.Dashboard.Title,
		Disclaimer:     s.cfg.Dashboard.Disclaimer,
		LastUpdate:     dashboard.LastUpdate(now, s.loc),
		RefreshSeconds: s.cfg.Dashboard.RefreshIntervalSeconds,
		Controls:       dashboard.DefaultControls(ds, now.In(s.loc), s.defaultStart),
	})
	if err != nil {
		s.logger.Error("render dashboard failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "render failed")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) controls(w http.ResponseWriter, _ *http.Request) {
	ds, ok := s.dataset(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, dashboard.DefaultControls(ds, s.clock.Now().In(s.loc), s.defaultStart))
}

func (s *Server) mapFigure(w http.ResponseWriter, r *http.Request) {
	ds, f, ok := s.filtered(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, dashboard.BuildMap(ds, f))
}

func (s *Server) caseOptions(w http.ResponseWriter, _ *http.Request) {
	ds, ok := s.dataset(w)
	if !ok {
		return
	}
	opts, def := dashboard.CaseOptions(ds)
	writeJSON(w, http.StatusOK, map[string]any{"options": opts, "default": def})
}

func (s *Server) caseDetail(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.dataset(w)
	if !ok {
		return
	}
	caseNo, err := strconv.Atoi(chi.URLParam(r, "case_no"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "case_no must be an integer")
		return
	}
	card, err := dashboard.DescribeCase(ds, caseNo)
	if errors.Is(err, dashboard.ErrCaseNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.data.RefreshStats(r.Context())
	if errors.Is(err, loader.ErrNoData) {
		writeError(w, http.StatusServiceUnavailable, "no dataset loaded yet")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cards":      dashboard.StatsCards(stats),
		"fetched_at": stats.FetchedAt,
	})
}

func (s *Server) lastUpdate(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"text": dashboard.LastUpdate(s.clock.Now(), s.loc)})
}

func (s *Server) districts(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.dataset(w)
	if !ok {
		return
	}
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = dashboard.ModeShowAll
	}
	selected, err := dashboard.DistrictSelection(ds, mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mode": mode, "districts": selected})
}

func (s *Server) highRiskTable(w http.ResponseWriter, r *http.Request) {
	ds, f, ok := s.filtered(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": dashboard.HighRiskTable(ds, f)})
}

func (s *Server) hospitalTable(w http.ResponseWriter, r *http.Request) {
	ds, f, ok := s.filtered(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": dashboard.HospitalTable(ds, f)})
}

func (s *Server) exportXLSX(w http.ResponseWriter, r *http.Request) {
	ds, f, ok := s.filtered(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := dashboard.ExportXLSX(&buf, ds, f); err != nil {
		s.logger.Error("xlsx export failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="hkcovid.xlsx"`)
	_, _ = w.Write(buf.Bytes())
}
