package http

import (
	"fmt"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"taxfolio/internal/importer"
	"taxfolio/internal/log"
)

// Statement uploads are capped at 10 MB per request.
const maxUploadBytes = 10 << 20

func (s *Server) handleImportPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.render(w, r, "import.html", nil)
}

// handleImportUpload accepts one or more statement files (CSV or PDF)
// in a single multipart request and returns a result fragment per file.
func (s *Server) handleImportUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondFormError(w, "Upload too large or malformed")
		return
	}

	files := r.MultipartForm.File["statements"]
	if len(files) == 0 {
		respondFieldError(w, "Choose at least one CSV or PDF statement")
		return
	}

	var results []importer.Result
	var failures []string
	for _, fh := range files {
		res, err := s.importOne(r, fh.Filename, fh)
		if err != nil {
			log.FromContext(ctx).WarnContext(ctx, "statement import failed",
				log.FieldSourceFile, fh.Filename, "error", err)
			failures = append(failures, fmt.Sprintf("%s: %v", fh.Filename, err))
			continue
		}
		results = append(results, res)
	}

	totalInserted, totalDuplicates := 0, 0
	for _, res := range results {
		totalInserted += res.Inserted
		totalDuplicates += res.Duplicates
	}
	if totalInserted > 0 {
		s.invalidatePages()
	}

	var buf strings.Builder
	if err := s.templates.ExecuteTemplate(&buf, "_import_result.html", struct {
		Results  []importer.Result
		Failures []string
	}{Results: results, Failures: failures}); err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "import result template failed", "error", err)
		respondServerError(w, "Error rendering import result")
		return
	}

	builder := NewHTMXResponse().
		TriggerImportCompleted(totalInserted, totalDuplicates).
		Body(buf.String())
	if len(failures) == 0 {
		builder.TriggerSuccessNotification(fmt.Sprintf("Imported %d transactions (%d duplicates skipped)", totalInserted, totalDuplicates))
	} else {
		builder.TriggerNotification(NotificationWarning, fmt.Sprintf("Imported %d transactions, %d files failed", totalInserted, len(failures)))
	}
	_ = builder.Write(w)
}

// importOne routes a single upload through the importer. PDF statements
// are staged to a temp file first; the extraction library needs a
// seekable file on disk.
func (s *Server) importOne(r *http.Request, name string, fh *multipart.FileHeader) (importer.Result, error) {
	f, err := fh.Open()
	if err != nil {
		return importer.Result{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	if strings.ToLower(filepath.Ext(name)) != ".pdf" {
		return s.imports.ImportFile(r.Context(), name, f)
	}

	tmp, err := os.CreateTemp("", "statement-*.pdf")
	if err != nil {
		return importer.Result{}, fmt.Errorf("stage pdf: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, f); err != nil {
		return importer.Result{}, fmt.Errorf("stage pdf: %w", err)
	}
	return s.imports.ImportPDF(r.Context(), tmp.Name(), name)
}

// renderFragment executes a partial template into a string for HTMX swaps.
func (s *Server) renderFragment(name string, data any) (template.HTML, error) {
	var buf strings.Builder
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
