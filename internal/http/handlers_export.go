package http

import (
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"taxfolio/internal/core"
	"taxfolio/internal/export"
	"taxfolio/internal/log"
	"taxfolio/internal/storage"
)

func (s *Server) handleExportPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	jobs, err := s.repo.ListExportJobs(r.Context(), 20)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "list export jobs failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	years, _ := s.repo.TaxYears(r.Context())

	s.render(w, r, "export.html", struct {
		Year        core.TaxYear
		Years       []core.TaxYear
		Jobs        []storage.ExportJob
		AsyncBroker bool
	}{Year: parseTaxYearParam(r), Years: years, Jobs: jobs, AsyncBroker: s.broker != nil})
}

// handleExportRun starts an export. CSV and JSON are streamed in the
// response; XLSX and PDF become jobs, queued to the worker when a broker
// is configured and rendered inline otherwise.
func (s *Server) handleExportRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		respondFormError(w, "Invalid request format")
		return
	}

	year := parseTaxYearParam(r)
	format := strings.ToLower(strings.TrimSpace(r.Form.Get("format")))
	if !export.ValidFormat(format) {
		respondFieldError(w, "Unknown export format")
		return
	}

	switch format {
	case export.FormatCSV, export.FormatJSON:
		s.streamExport(w, r, year, format)
	default:
		s.queueExport(w, r, year, format)
	}
}

func (s *Server) streamExport(w http.ResponseWriter, r *http.Request, year core.TaxYear, format string) {
	ctx := r.Context()
	data, err := export.Collect(ctx, s.repo, year)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "export collect failed",
			log.FieldTaxYear, year.Label(), "error", err)
		respondServerError(w, "Error building export")
		return
	}

	filename := fmt.Sprintf("taxfolio-%s.%s", year.Label(), format)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	switch format {
	case export.FormatCSV:
		w.Header().Set("Content-Type", "text/csv")
		err = export.WriteCSV(w, data)
	case export.FormatJSON:
		w.Header().Set("Content-Type", "application/json")
		err = export.WriteJSON(w, data)
	}
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "export write failed",
			log.FieldFormat, format, "error", err)
		return
	}

	log.FromContext(ctx).InfoContext(ctx, "export streamed",
		log.FieldTaxYear, year.Label(),
		log.FieldFormat, format)
}

func (s *Server) queueExport(w http.ResponseWriter, r *http.Request, year core.TaxYear, format string) {
	ctx := r.Context()
	job := storage.ExportJob{
		ID:      uuid.NewString(),
		Format:  format,
		TaxYear: year,
	}
	if err := s.repo.CreateExportJob(ctx, job); err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "create export job failed", "error", err)
		respondServerError(w, "Error creating export job")
		return
	}

	queued := false
	if s.broker != nil {
		if err := s.broker.PublishExportJob(ctx, job.ID); err != nil {
			log.FromContext(ctx).WarnContext(ctx, "publish export job failed, rendering inline",
				log.FieldJobID, job.ID, "error", err)
		} else {
			queued = true
		}
	}

	if !queued {
		// No broker (or publish failed): render inline so the export
		// still arrives, just without background processing.
		path, err := s.renderer.Render(ctx, job)
		if err != nil {
			_ = s.repo.UpdateExportJob(ctx, job.ID, storage.JobFailed, "", err.Error())
			log.FromContext(ctx).ErrorContext(ctx, "inline export failed",
				log.FieldJobID, job.ID, "error", err)
			respondServerError(w, "Error generating export")
			return
		}
		if err := s.repo.UpdateExportJob(ctx, job.ID, storage.JobCompleted, path, ""); err != nil {
			log.FromContext(ctx).ErrorContext(ctx, "update export job failed",
				log.FieldJobID, job.ID, "error", err)
		}
	}

	frag, err := s.exportJobsFragment(r)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "jobs fragment failed", "error", err)
		respondServerError(w, "Error rendering job list")
		return
	}

	msg := fmt.Sprintf("%s export ready", strings.ToUpper(format))
	if queued {
		msg = fmt.Sprintf("%s export queued", strings.ToUpper(format))
	}
	_ = NewHTMXResponse().
		TriggerExportQueued(job.ID).
		TriggerSuccessNotification(msg).
		Body(string(frag)).
		Write(w)
}

func (s *Server) handleExportJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	frag, err := s.exportJobsFragment(r)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "jobs fragment failed", "error", err)
		respondServerError(w, "Error loading jobs")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(frag))
}

func (s *Server) exportJobsFragment(r *http.Request) (string, error) {
	jobs, err := s.repo.ListExportJobs(r.Context(), 20)
	if err != nil {
		return "", err
	}
	frag, err := s.renderFragment("_jobs.html", struct {
		Jobs []storage.ExportJob
	}{Jobs: jobs})
	return string(frag), err
}

// handleExportDownload serves a completed job's file from the export dir.
func (s *Server) handleExportDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	jobID := sanitizeInput(r.URL.Query().Get("id"))
	if jobID == "" {
		respondFieldError(w, "Missing job id")
		return
	}

	job, err := s.repo.GetExportJob(ctx, jobID)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if job.Status != storage.JobCompleted || job.FilePath == "" {
		respondFieldError(w, "Export not ready")
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(job.FilePath)+`"`)
	http.ServeFile(w, r, job.FilePath)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	year := parseTaxYearParam(r)

	cacheKey := "page:summary:" + year.Label()
	if frag, ok := s.pageCache.Get(cacheKey); ok {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(frag))
		return
	}

	summary, err := s.repo.Summarize(ctx, year)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "summarize failed",
			log.FieldTaxYear, year.Label(), "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	years, _ := s.repo.TaxYears(ctx)

	var buf strings.Builder
	if err := s.templates.ExecuteTemplate(&buf, "summary.html", struct {
		Year    core.TaxYear
		Years   []core.TaxYear
		Summary core.TaxYearSummary
	}{Year: year, Years: years, Summary: summary}); err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "summary template failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	page := buf.String()
	s.pageCache.Set(cacheKey, template.HTML(page))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}

// handleReports compares every tax year on file side by side.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	years, err := s.repo.TaxYears(ctx)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "list tax years failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	summaries := make([]core.TaxYearSummary, 0, len(years))
	for _, year := range years {
		summary, err := s.repo.Summarize(ctx, year)
		if err != nil {
			log.FromContext(ctx).ErrorContext(ctx, "summarize failed",
				log.FieldTaxYear, year.Label(), "error", err)
			continue
		}
		summaries = append(summaries, summary)
	}

	s.render(w, r, "reports.html", struct {
		Summaries []core.TaxYearSummary
	}{Summaries: summaries})
}
