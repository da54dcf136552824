package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/grafana/grafana-plugin-sdk-go/backend/log"

	"github.com/sabio/csv-analyst-web/pkg/analyst"
	"github.com/sabio/csv-analyst-web/pkg/chart"
)

// viewCookie carries the id of a browser's view state
const viewCookie = "analyst_view"

// selection is a validated file waiting to be uploaded
type selection struct {
	Name        string
	Size        int64
	ContentType string
	Data        []byte
}

// view is the state of the upload and analyze pages for one browser
type view struct {
	id      string
	created time.Time
	history *History

	// uploadMu and analyzeMu are held while a backend call is in flight;
	// a submit that cannot take them is dropped
	uploadMu  sync.Mutex
	analyzeMu sync.Mutex

	mu           sync.Mutex
	selection    *selection
	uploadStatus string
	uploading    bool
	datasetID    string
	question     string
	analyzing    bool
	notice       string
	result       *analyst.Result
	spec         *chart.Spec
	chart        *chart.View
}

func newView(id string) *view {
	return &view{
		id:      id,
		created: time.Now(),
		history: NewHistory(),
	}
}

// selectFile replaces the current selection and its status line
func (v *view) selectFile(sel *selection, status string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selection = sel
	v.uploadStatus = status
}

func (v *view) currentSelection() *selection {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.selection
}

// heldBytes is the size of the file waiting to be uploaded
func (v *view) heldBytes() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.selection == nil {
		return 0
	}
	return int64(len(v.selection.Data))
}

func (v *view) setUploadStatus(status string, uploading bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.uploadStatus = status
	v.uploading = uploading
}

// finishUpload records the outcome; the selection is dropped only on success
func (v *view) finishUpload(status string, succeeded bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.uploadStatus = status
	v.uploading = false
	if succeeded {
		v.selection = nil
	}
}

func (v *view) setForm(datasetID, question string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.datasetID = datasetID
	v.question = question
}

func (v *view) setNotice(notice string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notice = notice
}

// beginAnalysis clears the previous result
func (v *view) beginAnalysis() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.analyzing = true
	v.notice = ""
	v.result = nil
	v.spec = nil
	v.chart = nil
}

func (v *view) finishAnalysis(result *analyst.Result, spec *chart.Spec, rendered *chart.View, notice string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.analyzing = false
	v.result = result
	v.spec = spec
	v.chart = rendered
	v.notice = notice
}

// uploadSnapshot is a consistent copy of the upload page state
type uploadSnapshot struct {
	selection *selection
	status    string
	uploading bool
}

func (v *view) uploadState() uploadSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return uploadSnapshot{selection: v.selection, status: v.uploadStatus, uploading: v.uploading}
}

// analyzeSnapshot is a consistent copy of the analyze page state
type analyzeSnapshot struct {
	datasetID string
	question  string
	analyzing bool
	notice    string
	result    *analyst.Result
	spec      *chart.Spec
	chart     *chart.View
}

func (v *view) analyzeState() analyzeSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return analyzeSnapshot{
		datasetID: v.datasetID,
		question:  v.question,
		analyzing: v.analyzing,
		notice:    v.notice,
		result:    v.result,
		spec:      v.spec,
		chart:     v.chart,
	}
}

// viewStore holds the view of every known browser, evicting the oldest
// once maxViews is reached. Selected files across all views are kept
// within maxHeld bytes.
type viewStore struct {
	mu       sync.RWMutex
	views    map[string]*view
	order    []string
	maxViews int
	maxHeld  int64
	logger   log.Logger
}

func newViewStore(maxViews int, maxHeld int64, logger log.Logger) *viewStore {
	return &viewStore{
		views:    make(map[string]*view),
		maxViews: maxViews,
		maxHeld:  maxHeld,
		logger:   logger,
	}
}

// lookup returns the view for id, or nil when there is none
func (s *viewStore) lookup(id string) *view {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.views[id]
}

// get returns the view for id, creating it if needed
func (s *viewStore) get(id string) *view {
	s.mu.RLock()
	v, exists := s.views[id]
	s.mu.RUnlock()

	if exists {
		return v
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	if v, exists = s.views[id]; exists {
		return v
	}

	for s.maxViews > 0 && len(s.views) >= s.maxViews && len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.views, oldest)
		s.logger.Debug("Evicted view", "view", oldest)
	}

	v = newView(id)
	s.views[id] = v
	s.order = append(s.order, id)
	return v
}

// makeRoom drops the selections of the oldest idle views until need more
// bytes fit the budget. keep is never touched. It reports whether need fits.
func (s *viewStore) makeRoom(keep *view, need int64) bool {
	if s.maxHeld <= 0 {
		return true
	}

	s.mu.RLock()
	views := make([]*view, 0, len(s.order))
	for _, id := range s.order {
		views = append(views, s.views[id])
	}
	s.mu.RUnlock()

	held := need
	for _, v := range views {
		if v != keep {
			held += v.heldBytes()
		}
	}

	for _, v := range views {
		if held <= s.maxHeld {
			break
		}
		// views with an upload in flight keep their file
		if v == keep || !v.uploadMu.TryLock() {
			continue
		}
		if n := v.heldBytes(); n > 0 {
			v.selectFile(nil, "")
			held -= n
			s.logger.Debug("Dropped held file", "view", v.id, "bytes", n)
		}
		v.uploadMu.Unlock()
	}

	return held <= s.maxHeld
}

func (s *viewStore) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.views)
}

// viewID returns the view id carried by the request's cookie
func viewID(r *http.Request) (string, bool) {
	c, err := r.Cookie(viewCookie)
	if err != nil {
		return "", false
	}
	id, err := uuid.Parse(c.Value)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

// existingView returns the caller's view without creating one; nil for
// browsers that have not submitted anything yet
func (s *Server) existingView(r *http.Request) *view {
	if id, ok := viewID(r); ok {
		return s.views.lookup(id)
	}
	return nil
}

// viewFor returns the caller's view, issuing a cookie for new browsers.
// Only handlers that change view state call it.
func (s *Server) viewFor(w http.ResponseWriter, r *http.Request) *view {
	if id, ok := viewID(r); ok {
		return s.views.get(id)
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     viewCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return s.views.get(id)
}
