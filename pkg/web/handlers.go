package web

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/sabio/csv-analyst-web/pkg/analyst"
	"github.com/sabio/csv-analyst-web/pkg/chart"
	"github.com/sabio/csv-analyst-web/pkg/upload"
)

// Page names, matching the files under templates/
const (
	pageHome    = "home"
	pageUpload  = "upload"
	pageAnalyze = "analyze"
)

// maxFormOverhead is the multipart framing allowed on top of the file itself
const maxFormOverhead = 1 << 20

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// sampleQuestions are suggested on the analyze view
var sampleQuestions = []string{
	"Show me total sales for each state in bar chart",
	"What are the top 10 customers by sales?",
	"Create a bar chart of profit by state",
	"Show me the most profitable states",
	"Visualize sales performance by region",
	"What are the columns in the dataset?",
}

// pageData is passed to every template
type pageData struct {
	Title   string
	Active  string
	Upload  *uploadData
	Analyze *analyzeData
}

type uploadData struct {
	Selection   *selectionInfo
	Status      string
	StatusClass string
	Uploading   bool
	MaxSize     string
}

type selectionInfo struct {
	Name string
	Size string
	Type string
}

type analyzeData struct {
	FetchError string
	Datasets   []analyst.DatasetRef
	DatasetID  string
	Question   string
	Analyzing  bool
	Notice     string
	Samples    []string
	History    []Question
	Result     *resultData
}

type resultData struct {
	Chart       *chartData
	LegacyImage template.URL
	FinalAnswer string
	Error       string
}

type chartData struct {
	Key        string
	Title      string
	Image      template.URL
	Diagnostic string
	Exportable bool
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, pageHome, &pageData{Title: "Home", Active: pageHome})
}

func (s *Server) handleUploadPage(w http.ResponseWriter, r *http.Request) {
	var state uploadSnapshot
	if v := s.existingView(r); v != nil {
		state = v.uploadState()
	}

	data := &uploadData{
		Status:      state.status,
		StatusClass: statusClass(state.status),
		Uploading:   state.uploading,
		MaxSize:     upload.FormatSize(upload.MaxFileSize),
	}
	if sel := state.selection; sel != nil {
		data.Selection = &selectionInfo{
			Name: sel.Name,
			Size: upload.FormatSize(sel.Size),
			Type: sel.ContentType,
		}
	}

	s.render(w, http.StatusOK, pageUpload, &pageData{Title: "Upload", Active: pageUpload, Upload: data})
}

// handleSelect validates a chosen file and holds it for upload. The file
// name is checked before any of the content is read.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	v := s.viewFor(w, r)

	r.Body = http.MaxBytesReader(w, r.Body, upload.MaxFileSize+maxFormOverhead)

	// the rest of the body is drained so the browser sees the redirect
	back := func() {
		_, _ = io.Copy(io.Discard, r.Body)
		s.redirect(w, r, "/upload")
	}

	// selection is frozen while an upload is running
	if !v.uploadMu.TryLock() {
		back()
		return
	}
	defer v.uploadMu.Unlock()

	part, err := filePart(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			v.selectFile(nil, upload.ErrTooLarge.Error())
		} else {
			s.logger.Warn("Failed to read selected file", "view", v.id, "error", err)
			v.selectFile(nil, "")
		}
		back()
		return
	}
	if part == nil {
		v.selectFile(nil, "")
		back()
		return
	}
	defer part.Close()

	name := part.FileName()
	if err := upload.Validate(name, 0); err != nil {
		status := err.Error()
		if errors.Is(err, upload.ErrNoFile) {
			status = ""
		}
		v.selectFile(nil, status)
		back()
		return
	}

	content, err := io.ReadAll(io.LimitReader(part, upload.MaxFileSize+1))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			v.selectFile(nil, upload.ErrTooLarge.Error())
		} else {
			s.logger.Warn("Failed to read selected file", "view", v.id, "error", err)
			v.selectFile(nil, msgUploadFailed)
		}
		back()
		return
	}

	size := int64(len(content))
	if err := upload.Validate(name, size); err != nil {
		v.selectFile(nil, err.Error())
		back()
		return
	}

	if !s.views.makeRoom(v, size) {
		s.logger.Warn("No room to hold selected file", "view", v.id, "size", size)
		v.selectFile(nil, msgUploadFailed)
		back()
		return
	}

	contentType := part.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = "text/csv"
	}

	s.logger.Info("File selected", "view", v.id, "file", name, "size", size)
	v.selectFile(&selection{
		Name:        name,
		Size:        size,
		ContentType: contentType,
		Data:        content,
	}, "")

	back()
}

// filePart returns the "file" part of a multipart form, or nil when the
// form carries none
func filePart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, err
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}

// handleUpload sends the held selection to the backend
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	v := s.viewFor(w, r)

	if !v.uploadMu.TryLock() {
		s.logger.Debug("Upload already in flight", "view", v.id)
		s.redirect(w, r, "/upload")
		return
	}
	defer v.uploadMu.Unlock()

	sel := v.currentSelection()
	if sel == nil {
		v.setUploadStatus(msgNoSelection, false)
		s.redirect(w, r, "/upload")
		return
	}

	if !s.allowSubmit() {
		v.setUploadStatus(msgRateLimited, false)
		s.redirect(w, r, "/upload")
		return
	}

	v.setUploadStatus(msgUploading, true)

	// the upload outlives the browser's request; the client's own timeout
	// still applies
	ctx := context.WithoutCancel(r.Context())
	resp, err := s.backend.UploadDataset(ctx, sel.Name, bytes.NewReader(sel.Data))
	if err != nil {
		s.logger.Error("Upload failed", "view", v.id, "file", sel.Name, "error", err)
		v.finishUpload(uploadErrorStatus(err), false)
		s.redirect(w, r, "/upload")
		return
	}

	s.logger.Info("Upload complete", "view", v.id, "file", sel.Name, "dataset_id", resp.DatasetID)
	v.finishUpload(uploadSuccessStatus(resp), true)
	s.redirect(w, r, "/upload")
}

func (s *Server) handleAnalyzePage(w http.ResponseWriter, r *http.Request) {
	page := &pageData{Title: "Analyze", Active: pageAnalyze}

	datasets, err := s.backend.ListDatasets(r.Context())
	if err != nil {
		s.logger.Error("Failed to list datasets", "error", err)
		page.Analyze = &analyzeData{FetchError: datasetsErrorStatus(err)}
		s.render(w, http.StatusOK, pageAnalyze, page)
		return
	}

	var state analyzeSnapshot
	var history []Question
	if v := s.existingView(r); v != nil {
		state = v.analyzeState()
		history = v.history.Recent()
	}

	page.Analyze = &analyzeData{
		Datasets:  datasets,
		DatasetID: state.datasetID,
		Question:  state.question,
		Analyzing: state.analyzing,
		Notice:    state.notice,
		Samples:   sampleQuestions,
		History:   history,
		Result:    s.resultData(state),
	}

	s.render(w, http.StatusOK, pageAnalyze, page)
}

// handleAnalyze submits a question about a dataset
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	v := s.viewFor(w, r)

	datasetID := strings.TrimSpace(r.PostFormValue("dataset_id"))
	question := r.PostFormValue("question")

	if !v.analyzeMu.TryLock() {
		s.logger.Debug("Analysis already in flight", "view", v.id)
		s.redirect(w, r, "/analyze")
		return
	}
	defer v.analyzeMu.Unlock()

	v.setForm(datasetID, question)

	if datasetID == "" || strings.TrimSpace(question) == "" {
		v.setNotice(msgMissingQuestion)
		s.redirect(w, r, "/analyze")
		return
	}

	if !s.allowSubmit() {
		v.setNotice(msgRateLimited)
		s.redirect(w, r, "/analyze")
		return
	}

	v.beginAnalysis()

	result, err := s.backend.Analyze(context.WithoutCancel(r.Context()), datasetID, question)
	if err != nil {
		s.logger.Error("Analysis failed", "view", v.id, "dataset_id", datasetID, "error", err)
		v.finishAnalysis(nil, nil, nil, analysisErrorStatus(err))
		s.redirect(w, r, "/analyze")
		return
	}

	v.history.Add(datasetID, strings.TrimSpace(question))

	var spec *chart.Spec
	var rendered *chart.View
	if result.HasChartSpecification() {
		spec = chart.Parse(result.ChartSpecification)
		rendered = s.renderer.RenderSpec(spec)
		if rendered.Diagnostic != "" {
			s.logger.Warn("Chart not rendered", "view", v.id, "diagnostic", rendered.Diagnostic)
		}
	}

	s.logger.Info("Analysis complete", "view", v.id, "dataset_id", datasetID, "chart", rendered != nil && !rendered.Empty())
	v.finishAnalysis(result, spec, rendered, "")
	s.redirect(w, r, "/analyze")
}

// handleExport downloads the last rendered chart as a workbook
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	v := s.existingView(r)
	if v == nil {
		s.sendError(w, http.StatusNotFound, "No chart to export")
		return
	}
	state := v.analyzeState()

	var buf bytes.Buffer
	if err := chart.WriteWorkbook(&buf, state.spec); err != nil {
		if errors.Is(err, chart.ErrNothingToExport) {
			s.sendError(w, http.StatusNotFound, "No chart to export")
			return
		}
		s.logger.Error("Failed to export chart", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to export chart")
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="chart.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// resultData prepares the stored analysis result for display
func (s *Server) resultData(state analyzeSnapshot) *resultData {
	if state.result == nil {
		return nil
	}

	out := &resultData{
		FinalAnswer: state.result.FinalAnswer,
		Error:       state.result.Error,
	}

	if v := state.chart; !v.Empty() {
		out.Chart = &chartData{
			Key:        v.Key,
			Title:      v.Title,
			Image:      template.URL(v.DataURI()),
			Diagnostic: v.Diagnostic,
			Exportable: v.Diagnostic == "" && len(v.SVG) > 0 && state.spec != nil && len(state.spec.Data.Datasets) > 0,
		}
	} else if img := legacyImage(state.result.ChartImage); img != "" {
		out.LegacyImage = template.URL(img)
	}

	return out
}

// legacyImage accepts an image data URI, an absolute http(s) URL or raw
// base64 PNG data
func legacyImage(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, "data:image/") {
		return s
	}
	if u, err := url.Parse(s); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return s
	}
	if _, err := base64.StdEncoding.DecodeString(s); err != nil {
		return ""
	}
	return "data:image/png;base64," + s
}
