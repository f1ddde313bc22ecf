package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/id/uuid"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/pipeline"
)

const maxBodyBytes = 1 << 20

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// statusFor maps a workflow error to an HTTP status. The body is always the workflow response.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case crawler.IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) unavailable(w http.ResponseWriter, what string) {
	writeError(w, http.StatusServiceUnavailable, what+" is not configured")
}

func (s *Server) crawl(w http.ResponseWriter, r *http.Request) {
	if s.svc.Crawler == nil {
		s.unavailable(w, "crawler")
		return
	}
	var req crawler.CrawlRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.svc.Crawler.Crawl(r.Context(), req)
	if err != nil {
		s.logger.Warn("crawl failed", zap.String("stock_code", req.StockCode), zap.Error(err))
	}
	writeJSON(w, statusFor(err), resp)
}

func (s *Server) analysis(w http.ResponseWriter, r *http.Request) {
	if s.svc.Analyzer == nil {
		s.unavailable(w, "analyzer")
		return
	}
	var req pipeline.AnalysisRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.svc.Analyzer.Analyze(r.Context(), req)
	if err != nil {
		s.logger.Warn("analysis failed", zap.String("stock_code", req.StockCode), zap.Error(err))
	}
	writeJSON(w, statusFor(err), resp)
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	if s.svc.Reports == nil {
		s.unavailable(w, "reports")
		return
	}
	q := r.URL.Query()
	nameOrCode := strings.TrimSpace(q.Get("name_or_code"))
	if nameOrCode == "" {
		nameOrCode = strings.TrimSpace(q.Get("stock_name"))
	}
	if nameOrCode == "" {
		nameOrCode = strings.TrimSpace(q.Get("stock_code"))
	}
	resp, err := s.svc.Reports.List(r.Context(), nameOrCode)
	writeJSON(w, statusFor(err), resp)
}

func (s *Server) collectReports(w http.ResponseWriter, r *http.Request) {
	if s.svc.Reports == nil {
		s.unavailable(w, "reports")
		return
	}
	var req pipeline.ReportRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.svc.Reports.Collect(r.Context(), req)
	if err != nil {
		s.logger.Warn("report collection failed", zap.String("stock_name", req.StockName), zap.Error(err))
	}
	writeJSON(w, statusFor(err), resp)
}

func (s *Server) submitCrawlJob(w http.ResponseWriter, r *http.Request) {
	if s.svc.Jobs == nil {
		s.unavailable(w, "job queue")
		return
	}
	var req crawler.CrawlRequest
	if !decode(w, r, &req) {
		return
	}
	if _, err := pipeline.ValidateCrawl(req, s.cfg.Crawler.MaxPages, s.cfg.Crawler.PageSize); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	jobID, err := s.svc.Jobs.Submit(r.Context(), req)
	switch {
	case errors.Is(err, crawler.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		s.logger.Error("submit job failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
	}
}

func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (crawler.Job, bool) {
	if s.svc.JobStore == nil {
		s.unavailable(w, "job store")
		return crawler.Job{}, false
	}
	jobID := chi.URLParam(r, "job_id")
	if !uuid.Valid(jobID) {
		writeError(w, http.StatusNotFound, "job not found")
		return crawler.Job{}, false
	}
	job, err := s.svc.JobStore.GetJob(r.Context(), jobID)
	if errors.Is(err, crawler.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return crawler.Job{}, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return crawler.Job{}, false
	}
	return job, true
}

func (s *Server) getJobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	job.Result = nil
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) getJobResult(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if job.Result == nil {
		writeJSON(w, http.StatusConflict, map[string]string{
			"status":     crawler.StatusError,
			"message":    "job has no result yet",
			"job_status": string(job.Status),
		})
		return
	}
	writeJSON(w, http.StatusOK, job.Result)
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	if s.svc.Jobs == nil {
		s.unavailable(w, "job queue")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	if !uuid.Valid(jobID) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	job, err := s.svc.Jobs.Cancel(r.Context(), jobID)
	switch {
	case errors.Is(err, crawler.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, crawler.ErrJobFinished):
		writeJSON(w, http.StatusConflict, map[string]string{
			"status":     crawler.StatusError,
			"message":    err.Error(),
			"job_status": string(job.Status),
		})
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": string(job.Status)})
	}
}
