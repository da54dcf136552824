// Package web serves the home, upload and analyze views and relays the
// browser's submits to the analysis backend.
package web

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
	"golang.org/x/time/rate"

	"github.com/sabio/csv-analyst-web/pkg/analyst"
	"github.com/sabio/csv-analyst-web/pkg/chart"
	"github.com/sabio/csv-analyst-web/pkg/settings"
)

//go:embed templates/*.html
var templateFS embed.FS

// Backend is the remote analysis service
type Backend interface {
	UploadDataset(ctx context.Context, filename string, content io.Reader) (*analyst.UploadResponse, error)
	ListDatasets(ctx context.Context) ([]analyst.DatasetRef, error)
	Analyze(ctx context.Context, datasetID, question string) (*analyst.Result, error)
	Ping(ctx context.Context) error
	BaseURL() string
}

// Make sure the analyst client satisfies Backend
var _ Backend = (*analyst.Client)(nil)

// Server renders the views and handles their forms
type Server struct {
	backend  Backend
	renderer *chart.Renderer
	views    *viewStore
	limiter  *rate.Limiter
	pages    map[string]*template.Template
	logger   log.Logger
}

// NewServer creates a Server
func NewServer(cfg *settings.Settings, backend Backend, renderer *chart.Renderer) (*Server, error) {
	if cfg == nil {
		cfg = settings.Default()
	}
	if renderer == nil {
		renderer = chart.NewRenderer(cfg.ChartWidth, cfg.ChartHeight)
	}

	pages, err := parsePages()
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	logger := log.DefaultLogger

	return &Server{
		backend:  backend,
		renderer: renderer,
		views:    newViewStore(cfg.MaxViews, cfg.MaxHeldBytes(), logger),
		limiter:  newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		pages:    pages,
		logger:   logger,
	}, nil
}

func parsePages() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template)
	for _, name := range []string{pageHome, pageUpload, pageAnalyze} {
		tmpl, err := template.New(name).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, err
		}
		pages[name] = tmpl
	}
	return pages, nil
}

// ServeHTTP routes requests to the handlers
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("Request", "path", r.URL.Path, "method", r.Method)

	switch r.URL.Path {
	case "/":
		s.only(w, r, http.MethodGet, s.handleHome)
	case "/upload":
		switch r.Method {
		case http.MethodGet:
			s.handleUploadPage(w, r)
		case http.MethodPost:
			s.handleUpload(w, r)
		default:
			s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	case "/upload/select":
		s.only(w, r, http.MethodPost, s.handleSelect)
	case "/analyze":
		switch r.Method {
		case http.MethodGet:
			s.handleAnalyzePage(w, r)
		case http.MethodPost:
			s.handleAnalyze(w, r)
		default:
			s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	case "/analyze/export.xlsx":
		s.only(w, r, http.MethodGet, s.handleExport)
	case "/health":
		s.only(w, r, http.MethodGet, s.handleHealth)
	default:
		s.sendError(w, http.StatusNotFound, "Not found")
	}
}

func (s *Server) only(w http.ResponseWriter, r *http.Request, method string, h http.HandlerFunc) {
	if r.Method != method {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	h(w, r)
}

// handleHealth reports this process and the backend's reachability
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	const healthTimeout = 3 * time.Second

	overallStatus := "healthy"
	response := map[string]interface{}{
		"status": overallStatus,
		"views":  s.views.len(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	err := s.backend.Ping(ctx)
	cancel()

	if err != nil {
		overallStatus = "unhealthy"
		response["backend"] = map[string]interface{}{
			"ok":    false,
			"url":   s.backend.BaseURL(),
			"error": err.Error(),
		}
	} else {
		response["backend"] = map[string]interface{}{
			"ok":  true,
			"url": s.backend.BaseURL(),
		}
	}

	response["status"] = overallStatus
	statusCode := http.StatusOK
	if overallStatus != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	s.sendJSON(w, statusCode, response)
}

// render executes a page into a buffer so template failures become a 500
func (s *Server) render(w http.ResponseWriter, status int, name string, data *pageData) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.sendError(w, http.StatusInternalServerError, fmt.Sprintf("Unknown page %q", name))
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		s.logger.Error("Failed to render page", "page", name, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to render page")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// redirect sends the browser back to a view after a form submit
func (s *Server) redirect(w http.ResponseWriter, r *http.Request, path string) {
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to marshal JSON: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	body, _ := json.Marshal(map[string]string{"error": message})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
