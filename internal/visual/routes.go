package visual

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/dynadash/internal/audit"
	"github.com/ziadkadry99/dynadash/internal/download"
	"github.com/ziadkadry99/dynadash/internal/frame"
	"github.com/ziadkadry99/dynadash/internal/inject"
	"github.com/ziadkadry99/dynadash/internal/realtime"
	"github.com/ziadkadry99/dynadash/internal/viewer"
)

// Options configures the visualisation routes.
type Options struct {
	Variable     string
	DownloadName string
	LoadTimeout  time.Duration
	MaxBytes     int
	// Audit records create, update, share, download and delete events
	// when set.
	Audit *audit.Store
}

// Handler serves visualisation pages, documents, downloads and the API.
type Handler struct {
	store     *Store
	downloads *download.Registry
	hub       *realtime.Hub
	injector  inject.Injector
	opts      Options

	sessMu   sync.Mutex
	sessions map[string]*session
}

// session is the headless viewer kept for one visualisation between
// status requests.
type session struct {
	mu         sync.Mutex // serializes load cycles started by requests
	loader     *viewer.Loader
	primary    *frame.Frame
	fullscreen *viewer.FullscreenToggle
}

// NewHandler creates a Handler. hub may be nil to disable progress events.
func NewHandler(store *Store, downloads *download.Registry, hub *realtime.Hub, opts Options) *Handler {
	if opts.DownloadName == "" {
		opts.DownloadName = "dashboard.html"
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = viewer.DefaultTimeout
	}
	return &Handler{
		store:     store,
		downloads: downloads,
		hub:       hub,
		injector:  inject.Injector{Variable: opts.Variable},
		opts:      opts,
		sessions:  make(map[string]*session),
	}
}

// RegisterRoutes mounts all visualisation routes onto the given router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/visual/view/{id}", h.handleView)
	r.Get("/visual/view/{id}/document", h.handleDocument)
	r.Get("/visual/{id}/download", h.handleDownload)
	r.Post("/visual/{id}/download", h.handleDownload)
	r.Get("/downloads/{token}", h.handleDownloadToken)

	r.Route("/api/v1/visualisations", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/{id}", h.handleGet)
		r.Delete("/{id}", h.handleDelete)
		r.Put("/{id}/dataset", h.handleUpdateDataset)
		r.Get("/{id}/status", h.handleStatus)
		r.Get("/{id}/history", h.handleHistory)
		r.Get("/{id}/preview", h.handlePreview)
		r.Post("/{id}/fullscreen", h.handleFullscreen)
		r.Delete("/{id}/fullscreen", h.handleFullscreen)
		r.Post("/{id}/keys", h.handleKey)
		r.Get("/{id}/shares", h.handleListShares)
		r.Post("/{id}/shares", h.handleShare)
		r.Delete("/{id}/shares/{target}", h.handleUnshare)
	})
	r.Get("/api/v1/shared-visualisations", h.handleSharedWith)
}

// Render injects the visualisation's dataset into its template. This is
// the document handed out by downloads.
func (h *Handler) Render(v *Visualisation) (string, error) {
	return h.injector.Inject(v.Template, v.Dataset)
}

// frameDocument is the document loaded into the page's sandboxed frames:
// the rendered dashboard plus the liveness beacon.
func (h *Handler) frameDocument(v *Visualisation) (string, error) {
	return h.injector.Inject(inject.Insert(v.Template, frameBeacon), v.Dataset)
}

func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	v, ok := h.lookup(w, r)
	if !ok {
		return
	}

	page := viewPage{
		Title:          v.Title,
		DownloadURL:    "/visual/" + v.ID + "/download",
		TimeoutMillis:  h.opts.LoadTimeout.Milliseconds(),
		FailedMessage:  viewer.Message(viewer.ErrSubdocumentLoadFailed),
		TimeoutMessage: viewer.Message(viewer.ErrSubdocumentLoadTimeout),
	}
	doc, err := h.frameDocument(v)
	if err != nil {
		log.Printf("visual: rendering %s: %v", v.ID, err)
		page.ErrorMessage = viewer.Message(err)
	} else {
		page.Document = doc
	}
	if page.Description, err = renderDescription(v.Description); err != nil {
		log.Printf("visual: rendering description of %s: %v", v.ID, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := viewTemplate.Execute(w, page); err != nil {
		log.Printf("visual: executing view template: %v", err)
	}
}

func (h *Handler) handleDocument(w http.ResponseWriter, r *http.Request) {
	v, ok := h.lookup(w, r)
	if !ok {
		return
	}
	doc, err := h.frameDocument(v)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": viewer.Message(err)})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", "sandbox allow-scripts")
	w.Write([]byte(doc))
}

// handleDownload re-renders on every request so the file reflects the
// current dataset, then hands out a single-use link.
func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	v, ok := h.lookup(w, r)
	if !ok {
		return
	}
	doc, err := h.Render(v)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": viewer.Message(err)})
		return
	}
	obj := h.downloads.Create(h.opts.DownloadName, "text/html; charset=utf-8", []byte(doc))
	h.record(r.Context(), audit.Entry{Action: audit.ActionDownloaded, VisualisationID: v.ID, ActorID: v.UserID})
	http.Redirect(w, r, "/downloads/"+obj.Token, http.StatusSeeOther)
}

func (h *Handler) handleDownloadToken(w http.ResponseWriter, r *http.Request) {
	h.downloads.Serve(w, chi.URLParam(r, "token"))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.List(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if list == nil {
		list = []Visualisation{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	v, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleCreate validates and stores a visualisation, reporting progress to
// the owner's room as it goes.
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title is required"})
		return
	}

	h.emit(req.UserID, realtime.Progress(0, "Starting dashboard generation..."))
	h.emit(req.UserID, realtime.Progress(10, "Analyzing dataset structure..."))

	tmpl := h.injector.Prepare(req.Template)
	if _, err := h.injector.Inject(tmpl, req.Dataset); err != nil {
		msg := viewer.Message(err)
		h.emit(req.UserID, realtime.Failure(msg))
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": msg})
		return
	}
	h.emit(req.UserID, realtime.Progress(90, "Dashboard template prepared, saving..."))

	v, err := h.store.Create(r.Context(), Visualisation{
		UserID:      req.UserID,
		Title:       req.Title,
		Description: req.Description,
		Template:    tmpl,
		Dataset:     req.Dataset,
	})
	if err != nil {
		h.emit(req.UserID, realtime.Failure("Unexpected error: "+err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	h.record(r.Context(), audit.Entry{
		Action: audit.ActionCreated, VisualisationID: v.ID, ActorID: v.UserID, Summary: v.Title,
	})
	h.emit(req.UserID, realtime.Progress(100, "Dashboard saved! Redirecting..."))
	h.emit(req.UserID, realtime.Complete("/visual/view/"+v.ID))
	writeJSON(w, http.StatusCreated, v)
}

func (h *Handler) handleUpdateDataset(w http.ResponseWriter, r *http.Request) {
	var dataset json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&dataset); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid dataset"})
		return
	}
	id := chi.URLParam(r, "id")
	err := h.store.UpdateDataset(r.Context(), id, dataset)
	switch {
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	default:
		if sess := h.cachedSession(id); sess != nil {
			sess.loader.SetDataset(dataset)
		}
		h.record(r.Context(), audit.Entry{Action: audit.ActionDatasetUpdated, VisualisationID: id})
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.store.Delete(r.Context(), id)
	switch {
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	default:
		h.dropSession(id)
		h.record(r.Context(), audit.Entry{Action: audit.ActionDeleted, VisualisationID: id})
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleHistory lists the audit trail of one visualisation, newest first.
// It keeps working after the visualisation is deleted.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if h.opts.Audit == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "audit trail disabled"})
		return
	}
	entries, err := h.opts.Audit.Query(r.Context(), audit.QueryFilter{VisualisationID: chi.URLParam(r, "id")})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleStatus runs a load cycle in the visualisation's headless session
// and reports how each surface ended up.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	v, ok := h.lookup(w, r)
	if !ok {
		return
	}

	sess := h.session(v)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := sess.loader.Load(); err == nil {
		ctx, cancel := context.WithTimeout(r.Context(), h.opts.LoadTimeout+time.Second)
		defer cancel()
		if err := sess.loader.Wait(ctx); err != nil {
			log.Printf("visual: waiting for %s: %v", v.ID, err)
		}
	}

	resp := statusResponse{
		ID:           v.ID,
		Cycle:        sess.loader.Cycle(),
		Loading:      sess.loader.LoadingIndicator(),
		Fullscreen:   sess.fullscreen.Shown(),
		ScrollLocked: sess.fullscreen.ScrollLocked(),
	}
	if doc, ok := sess.primary.Document(); ok {
		resp.DocumentTitle = strings.TrimSpace(doc.Find("title").First().Text())
	}
	for _, s := range sess.loader.Snapshot() {
		resp.Surfaces = append(resp.Surfaces, surfaceStatus{
			Surface: s.Surface,
			State:   s.State.String(),
			Message: s.Message,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleFullscreen shows (POST) or hides (DELETE) the session's fullscreen
// surface.
func (h *Handler) handleFullscreen(w http.ResponseWriter, r *http.Request) {
	v, ok := h.lookup(w, r)
	if !ok {
		return
	}
	sess := h.session(v)
	if r.Method == http.MethodDelete {
		sess.fullscreen.Exit()
	} else {
		sess.fullscreen.Enter()
	}
	writeJSON(w, http.StatusOK, fullscreenResponse{
		Shown:        sess.fullscreen.Shown(),
		ScrollLocked: sess.fullscreen.ScrollLocked(),
	})
}

// handleKey delivers a key press to the session; Escape leaves fullscreen.
func (h *Handler) handleKey(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "key is required"})
		return
	}
	v, ok := h.lookup(w, r)
	if !ok {
		return
	}
	sess := h.session(v)
	consumed := sess.fullscreen.HandleKey(req.Key)
	writeJSON(w, http.StatusOK, fullscreenResponse{
		Shown:        sess.fullscreen.Shown(),
		ScrollLocked: sess.fullscreen.ScrollLocked(),
		Consumed:     &consumed,
	})
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	v, ok := h.lookup(w, r)
	if !ok {
		return
	}
	rows := DefaultPreviewRows
	if s := r.URL.Query().Get("rows"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "rows must be a positive integer"})
			return
		}
		rows = n
	}
	p, err := NewPreview(v.Dataset, rows)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleListShares(w http.ResponseWriter, r *http.Request) {
	v, ok := h.lookup(w, r)
	if !ok {
		return
	}
	shares, err := h.store.Shares(r.Context(), v.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if shares == nil {
		shares = []Share{}
	}
	writeJSON(w, http.StatusOK, shares)
}

func (h *Handler) handleShare(w http.ResponseWriter, r *http.Request) {
	var req shareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	id := chi.URLParam(r, "id")
	sh, err := h.store.Share(r.Context(), id, req.OwnerID, req.TargetID)
	if err != nil {
		writeShareError(w, err)
		return
	}
	h.record(r.Context(), audit.Entry{
		Action: audit.ActionShared, VisualisationID: id, ActorID: req.OwnerID, Summary: req.TargetID,
	})
	writeJSON(w, http.StatusCreated, sh)
}

func (h *Handler) handleUnshare(w http.ResponseWriter, r *http.Request) {
	id, target := chi.URLParam(r, "id"), chi.URLParam(r, "target")
	owner := r.URL.Query().Get("owner_id")
	if err := h.store.Unshare(r.Context(), id, owner, target); err != nil {
		writeShareError(w, err)
		return
	}
	h.record(r.Context(), audit.Entry{
		Action: audit.ActionUnshared, VisualisationID: id, ActorID: owner, Summary: target,
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleSharedWith lists what other users have shared with user_id.
func (h *Handler) handleSharedWith(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user_id")
	if user == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	list, err := h.store.SharedWith(r.Context(), user)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if list == nil {
		list = []SharedVisualisation{}
	}
	writeJSON(w, http.StatusOK, list)
}

func writeShareError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrShareNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrNotOwner):
		status = http.StatusForbidden
	case errors.Is(err, ErrAlreadyShared):
		status = http.StatusConflict
	case errors.Is(err, ErrInvalidShare):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// session returns the visualisation's headless viewer, creating it on
// first use.
func (h *Handler) session(v *Visualisation) *session {
	h.sessMu.Lock()
	defer h.sessMu.Unlock()
	if sess, ok := h.sessions[v.ID]; ok {
		return sess
	}

	primary := frame.New("dashboard-frame", frame.Options{MaxBytes: h.opts.MaxBytes})
	sess := &session{
		primary: primary,
		loader: viewer.New(viewer.Options{
			Template:   v.Template,
			Dataset:    v.Dataset,
			Variable:   h.opts.Variable,
			Primary:    primary,
			Fullscreen: frame.New("fullscreen-frame", frame.Options{MaxBytes: h.opts.MaxBytes}),
			Timeout:    h.opts.LoadTimeout,
		}),
		fullscreen: &viewer.FullscreenToggle{OnChange: func(shown bool) {
			log.Printf("visual: %s fullscreen shown=%t", v.ID, shown)
		}},
	}
	h.sessions[v.ID] = sess
	return sess
}

func (h *Handler) cachedSession(id string) *session {
	h.sessMu.Lock()
	defer h.sessMu.Unlock()
	return h.sessions[id]
}

func (h *Handler) dropSession(id string) {
	h.sessMu.Lock()
	delete(h.sessions, id)
	h.sessMu.Unlock()
}

// lookup loads the visualisation named in the URL. When the request names
// a user_id, that user must own the visualisation or have it shared.
func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*Visualisation, bool) {
	v, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return nil, false
	}

	if user := r.URL.Query().Get("user_id"); user != "" {
		allowed, err := h.store.CanView(r.Context(), v, user)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return nil, false
		}
		if !allowed {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "permission denied"})
			return nil, false
		}
	}
	return v, true
}

func (h *Handler) emit(userID string, ev realtime.Event) {
	if h.hub == nil || userID == "" {
		return
	}
	h.hub.Emit(userID, ev)
}

func (h *Handler) record(ctx context.Context, e audit.Entry) {
	if h.opts.Audit == nil {
		return
	}
	if err := h.opts.Audit.Log(ctx, e); err != nil {
		log.Printf("visual: recording %s of %s: %v", e.Action, e.VisualisationID, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
