package http

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"taxfolio/internal/cache"
	"taxfolio/internal/core"
	"taxfolio/internal/importer"
	"taxfolio/internal/log"
	"taxfolio/internal/rules"
	"taxfolio/internal/storage"
	"taxfolio/internal/ws"
	appweb "taxfolio/web"
)

// Broker is the slice of the AMQP client the server publishes on. A nil
// broker means no message queue is configured; async work falls back to
// inline execution.
type Broker interface {
	PublishExportJob(ctx context.Context, jobID string) error
	PublishSheetsSync(ctx context.Context, queueID int64) error
}

// ExportRenderer builds an export file inline when no broker is available.
type ExportRenderer interface {
	Render(ctx context.Context, job storage.ExportJob) (string, error)
}

// Options wires the server's dependencies.
type Options struct {
	Addr              string
	Repo              *storage.SQLiteRepository
	Engine            *rules.Engine
	Importer          *importer.Service
	Broker            Broker
	Renderer          ExportRenderer
	Hub               *ws.Hub
	ReceiptsDir       string
	SheetsSyncEnabled bool
	Logger            *log.Logger
	CacheManager      *cache.Manager
}

type Server struct {
	http.Server
	repo    *storage.SQLiteRepository
	engine  *rules.Engine
	imports *importer.Service

	broker      Broker
	renderer    ExportRenderer
	hub         *ws.Hub
	receiptsDir string
	syncSheets  bool

	templates   *template.Template
	rateLimiter *rateLimiter
	// Rendered page fragments keyed "page:<name>:<tax year>"; any write
	// for a year invalidates the whole "page:" prefix.
	pageCache *cache.LRUCache[template.HTML]

	logger       *log.Logger
	shutdownOnce sync.Once
}

var templateFuncs = template.FuncMap{
	"pounds": formatPounds,
	"categories": func() []core.CategoryInfo {
		return core.Categories()
	},
	"businessCategories": func() []core.CategoryInfo {
		return core.BusinessCategories()
	},
	"percent": func(f float64) string {
		return fmt.Sprintf("%.0f%%", f*100)
	},
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(opts Options) (*Server, error) {
	mux := http.NewServeMux()

	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}

	s := &Server{
		Server: http.Server{
			Addr:         opts.Addr,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		repo:        opts.Repo,
		engine:      opts.Engine,
		imports:     opts.Importer,
		broker:      opts.Broker,
		renderer:    opts.Renderer,
		hub:         opts.Hub,
		receiptsDir: opts.ReceiptsDir,
		syncSheets:  opts.SheetsSyncEnabled,
		rateLimiter: newRateLimiter(),
		pageCache:   cache.NewLRUCache[template.HTML](100, 2*time.Minute),
		logger:      logger.WithComponent(log.ComponentHTTP),
	}

	if opts.CacheManager != nil {
		opts.CacheManager.Register(s.pageCache)
	}

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	s.templates = t

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600")
			static.ServeHTTP(w, r)
		}))
	}

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	mux.HandleFunc("/", s.secure(s.handleDashboard))
	mux.HandleFunc("/import", s.secure(s.handleImportPage))
	mux.HandleFunc("/import/upload", s.secure(s.handleImportUpload))
	mux.HandleFunc("/review", s.secure(s.handleReviewPage))
	mux.HandleFunc("/review/list", s.secure(s.handleReviewList))
	mux.HandleFunc("/review/categorize", s.secure(s.handleCategorize))
	mux.HandleFunc("/review/suggest", s.secure(s.handleSuggest))
	mux.HandleFunc("/review/receipt", s.secure(s.handleReceiptUpload))
	mux.HandleFunc("/review/delete", s.secure(s.handleDeleteTransaction))
	mux.HandleFunc("/receipts", s.secure(s.handleReceiptView))
	mux.HandleFunc("/income", s.secure(s.handleIncome))
	mux.HandleFunc("/income/update", s.secure(s.handleUpdateIncome))
	mux.HandleFunc("/income/delete", s.secure(s.handleDeleteIncome))
	mux.HandleFunc("/expenses", s.secure(s.handleExpenses))
	mux.HandleFunc("/expenses/update", s.secure(s.handleUpdateExpense))
	mux.HandleFunc("/expenses/delete", s.secure(s.handleDeleteExpense))
	mux.HandleFunc("/mileage", s.secure(s.handleMileage))
	mux.HandleFunc("/mileage/delete", s.secure(s.handleDeleteMileage))
	mux.HandleFunc("/donations", s.secure(s.handleDonations))
	mux.HandleFunc("/donations/delete", s.secure(s.handleDeleteDonation))
	mux.HandleFunc("/rules", s.secure(s.handleRules))
	mux.HandleFunc("/rules/toggle", s.secure(s.handleToggleRule))
	mux.HandleFunc("/rules/delete", s.secure(s.handleDeleteRule))
	mux.HandleFunc("/rules/dry-run", s.secure(s.handleRuleDryRun))
	mux.HandleFunc("/rules/apply", s.secure(s.handleRuleApply))
	mux.HandleFunc("/summary", s.secure(s.handleSummary))
	mux.HandleFunc("/reports", s.secure(s.handleReports))
	mux.HandleFunc("/settings", s.secure(s.handleSettings))
	mux.HandleFunc("/audit", s.secure(s.handleAudit))
	mux.HandleFunc("/export", s.secure(s.handleExportPage))
	mux.HandleFunc("/export/run", s.secure(s.handleExportRun))
	mux.HandleFunc("/export/jobs", s.secure(s.handleExportJobs))
	mux.HandleFunc("/export/download", s.secure(s.handleExportDownload))

	if s.hub != nil {
		mux.Handle("/ws/jobs", s.hub)
	}

	return s, nil
}

// secure wraps a handler with client identification, rate limiting on
// mutating methods, security headers, and request logging.
func (s *Server) secure(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		reqLogger := s.logger.With(log.FieldRequestID, requestID)
		ctx := context.WithValue(r.Context(), log.LoggerContextKey, reqLogger)
		r = r.WithContext(ctx)

		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			if !s.rateLimiter.allow(clientIP) {
				reqLogger.WarnContext(ctx, "rate limit exceeded",
					log.FieldClientIP, clientIP,
					log.FieldMethod, r.Method,
					log.FieldPath, r.URL.Path)
				w.Header().Set("Retry-After", "60")
				http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				return
			}
		}

		setSecurityHeaders(w)

		rw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		log.LogHTTPEnd(ctx, reqLogger, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.statusCode = code
	sw.ResponseWriter.WriteHeader(code)
}

// render executes a page template; template failures surface as 500s.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		s.logger.ErrorContext(r.Context(), "template execution failed",
			"template", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// invalidatePages drops every cached page fragment. Called after any
// write so dashboards and summaries never serve stale totals.
func (s *Server) invalidatePages() {
	s.pageCache.DeletePrefix("page:")
}

// Shutdown stops the rate limiter alongside the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
