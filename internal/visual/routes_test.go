package visual

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/dynadash/internal/audit"
	"github.com/ziadkadry99/dynadash/internal/db"
	"github.com/ziadkadry99/dynadash/internal/download"
	"github.com/ziadkadry99/dynadash/internal/realtime"
)

const dashTemplate = `<html><head><title>d</title></head><body><div id="chart"></div></body></html>`

func setupRouter(t *testing.T, hub *realtime.Hub) (chi.Router, *Store) {
	t.Helper()
	store := setupStore(t)
	h := NewHandler(store, download.NewRegistry(time.Minute), hub, Options{
		LoadTimeout: 2 * time.Second,
	})
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r, store
}

func create(t *testing.T, store *Store, v Visualisation) *Visualisation {
	t.Helper()
	created, err := store.Create(context.Background(), v)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return created
}

func parseHTML(t *testing.T, body []byte) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

func TestViewPage(t *testing.T) {
	r, store := setupRouter(t, nil)
	v := create(t, store, Visualisation{
		Title:       "Regional sales",
		Description: "Sales **by region**.\n\n<script>alert(1)</script>",
		Template:    dashTemplate,
		Dataset:     json.RawMessage(`[{"a":1}]`),
	})

	req := httptest.NewRequest(http.MethodGet, "/visual/view/"+v.ID, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	doc := parseHTML(t, w.Body.Bytes())

	primary, ok := doc.Find("#dashboard-frame").Attr("srcdoc")
	if !ok {
		t.Fatal("primary frame has no srcdoc")
	}
	if !strings.Contains(primary, `<script>window.dynadashData = [{"a":1}];</script></head>`) {
		t.Errorf("srcdoc missing injected dataset: %s", primary)
	}
	if !strings.Contains(primary, `data-dynadash="beacon"`) {
		t.Errorf("srcdoc missing liveness beacon: %s", primary)
	}
	full, _ := doc.Find("#fullscreen-frame").Attr("srcdoc")
	if full != primary {
		t.Error("fullscreen frame srcdoc differs from primary")
	}
	doc.Find("iframe").Each(func(_ int, f *goquery.Selection) {
		if got, _ := f.Attr("sandbox"); got != "allow-scripts" {
			t.Errorf("%s sandbox = %q, want allow-scripts only", f.AttrOr("id", "?"), got)
		}
	})

	body := doc.Find("body")
	if got := body.AttrOr("data-msg-failed", ""); got != "Failed to load dashboard content." {
		t.Errorf("data-msg-failed = %q", got)
	}
	if got := body.AttrOr("data-msg-timeout", ""); got != "Dashboard did not load correctly or is empty after timeout." {
		t.Errorf("data-msg-timeout = %q", got)
	}
	if got := body.AttrOr("data-msg-render", "x"); got != "" {
		t.Errorf("data-msg-render = %q, want empty for a renderable template", got)
	}
	if got := strings.TrimSpace(doc.Find("#dashboard-error p").Text()); got != "" {
		t.Errorf("error panel prefilled with %q", got)
	}

	for _, id := range []string{"#dashboard-loading", "#dashboard-error", "#fullscreen-container", "#fullscreen-error",
		"#reload-dashboard-btn", "#refresh-btn-dashboard", "#download-btn-dashboard",
		"#fullscreen-btn", "#exit-fullscreen-btn"} {
		if doc.Find(id).Length() != 1 {
			t.Errorf("page missing %s", id)
		}
	}

	desc := doc.Find(".description")
	if got := desc.Find("strong").Text(); got != "by region" {
		t.Errorf("description strong = %q", got)
	}
	if desc.Find("script").Length() != 0 {
		t.Error("description contains a script element")
	}
}

func TestViewPageTemplateMissing(t *testing.T) {
	r, store := setupRouter(t, nil)
	v := create(t, store, Visualisation{Title: "Empty", Template: "  "})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/visual/view/"+v.ID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	doc := parseHTML(t, w.Body.Bytes())
	if got := doc.Find("#dashboard-error p").Text(); got != "Dashboard template is missing or could not be loaded." {
		t.Errorf("error message = %q", got)
	}
	if got := doc.Find("body").AttrOr("data-msg-render", ""); got != "Dashboard template is missing or could not be loaded." {
		t.Errorf("data-msg-render = %q", got)
	}
	if srcdoc, _ := doc.Find("#dashboard-frame").Attr("srcdoc"); srcdoc != "" {
		t.Errorf("expected empty srcdoc, got %q", srcdoc)
	}
}

func TestViewNotFound(t *testing.T) {
	r, _ := setupRouter(t, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/visual/view/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestDocumentEndpoint(t *testing.T) {
	r, store := setupRouter(t, nil)
	v := create(t, store, Visualisation{Title: "t", Template: dashTemplate})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/visual/view/"+v.ID+"/document", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("Content-Security-Policy"); got != "sandbox allow-scripts" {
		t.Errorf("CSP = %q", got)
	}
	if !strings.Contains(w.Body.String(), "window.dynadashData = [];") {
		t.Errorf("body = %s", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `data-dynadash="beacon"`) {
		t.Errorf("document missing liveness beacon")
	}
}

func fetchDownload(t *testing.T, r http.Handler, id string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/visual/"+id+"/download", nil))
	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d: %s", w.Code, w.Body.String())
	}
	loc := w.Header().Get("Location")
	if !strings.HasPrefix(loc, "/downloads/") {
		t.Fatalf("Location = %q", loc)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, loc, nil))
	return w, loc
}

func TestDownloadReflectsCurrentDataset(t *testing.T) {
	r, store := setupRouter(t, nil)
	v := create(t, store, Visualisation{Title: "t", Template: dashTemplate, Dataset: json.RawMessage(`[1]`)})

	w, loc := fetchDownload(t, r, v.ID)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("Content-Disposition"); got != `attachment; filename="dashboard.html"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if !strings.Contains(w.Body.String(), "window.dynadashData = [1];") {
		t.Errorf("download body = %s", w.Body.String())
	}
	if strings.Contains(w.Body.String(), `data-dynadash="beacon"`) {
		t.Error("download carries the frame beacon")
	}

	// The link is revoked once used.
	again := httptest.NewRecorder()
	r.ServeHTTP(again, httptest.NewRequest(http.MethodGet, loc, nil))
	if again.Code != http.StatusNotFound {
		t.Errorf("reused link: expected 404, got %d", again.Code)
	}

	put := httptest.NewRequest(http.MethodPut, "/api/v1/visualisations/"+v.ID+"/dataset", strings.NewReader(`[2,3]`))
	pw := httptest.NewRecorder()
	r.ServeHTTP(pw, put)
	if pw.Code != http.StatusNoContent {
		t.Fatalf("update dataset: expected 204, got %d", pw.Code)
	}

	w, _ = fetchDownload(t, r, v.ID)
	if !strings.Contains(w.Body.String(), "window.dynadashData = [2,3];") {
		t.Errorf("download did not reflect new dataset: %s", w.Body.String())
	}
}

func TestDownloadTemplateMissing(t *testing.T) {
	r, store := setupRouter(t, nil)
	v := create(t, store, Visualisation{Title: "t", Template: ""})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/visual/"+v.ID+"/download", nil))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	var body map[string]string
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["error"] != "Dashboard template is missing or could not be loaded." {
		t.Errorf("error = %q", body["error"])
	}
}

func getStatus(t *testing.T, r http.Handler, id string) statusResponse {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/visualisations/"+id+"/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp statusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	return resp
}

func TestStatusEndpoint(t *testing.T) {
	r, store := setupRouter(t, nil)
	good := create(t, store, Visualisation{Title: "good", Template: dashTemplate})

	resp := getStatus(t, r, good.ID)
	if len(resp.Surfaces) != 2 {
		t.Fatalf("expected 2 surfaces, got %+v", resp.Surfaces)
	}
	for _, s := range resp.Surfaces {
		if s.State != "displayed" {
			t.Errorf("%s = %s (%s), want displayed", s.Surface, s.State, s.Message)
		}
	}
	if resp.DocumentTitle != "d" {
		t.Errorf("document title = %q, want d", resp.DocumentTitle)
	}
	if resp.Loading {
		t.Error("loading indicator still shown after settling")
	}

	// The session is reused, so a second request starts a new cycle.
	if again := getStatus(t, r, good.ID); again.Cycle != resp.Cycle+1 {
		t.Errorf("cycle = %d, want %d", again.Cycle, resp.Cycle+1)
	}
}

// A document that parses but has an empty body, such as one whose script
// builds the page, is displayed on both surfaces.
func TestStatusEmptyBodyDisplayed(t *testing.T) {
	r, store := setupRouter(t, nil)
	v := create(t, store, Visualisation{
		Title:    "scripted",
		Template: `<html><head></head><body><script>document.body.append("x")</script></body></html>`,
	})

	resp := getStatus(t, r, v.ID)
	for _, s := range resp.Surfaces {
		if s.State != "displayed" {
			t.Errorf("%s = %s (%s), want displayed", s.Surface, s.State, s.Message)
		}
	}
}

func TestStatusOversizedDocument(t *testing.T) {
	store := setupStore(t)
	h := NewHandler(store, download.NewRegistry(time.Minute), nil, Options{
		LoadTimeout: 2 * time.Second,
		MaxBytes:    64,
	})
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	v := create(t, store, Visualisation{Title: "big", Template: dashTemplate, Dataset: json.RawMessage(`[1,2,3,4,5,6,7,8,9]`)})

	for _, s := range getStatus(t, r, v.ID).Surfaces {
		if s.State != "errored" || s.Message != "Failed to load dashboard content." {
			t.Errorf("%s = %+v, want errored load failure", s.Surface, s)
		}
	}
}

func TestSessionFollowsDatasetUpdates(t *testing.T) {
	store := setupStore(t)
	h := NewHandler(store, download.NewRegistry(time.Minute), nil, Options{LoadTimeout: 2 * time.Second})
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	v := create(t, store, Visualisation{Title: "t", Template: dashTemplate, Dataset: json.RawMessage(`[1]`)})

	getStatus(t, r, v.ID)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/v1/visualisations/"+v.ID+"/dataset", strings.NewReader(`[4,5]`)))
	if w.Code != http.StatusNoContent {
		t.Fatalf("update dataset: expected 204, got %d", w.Code)
	}

	sess := h.cachedSession(v.ID)
	if sess == nil {
		t.Fatal("no session after status request")
	}
	doc, err := sess.loader.Render()
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(doc, "window.dynadashData = [4,5];") {
		t.Errorf("session render = %s", doc)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/visualisations/"+v.ID, nil))
	if h.cachedSession(v.ID) != nil {
		t.Error("session kept after delete")
	}
}

func TestFullscreenSession(t *testing.T) {
	r, store := setupRouter(t, nil)
	v := create(t, store, Visualisation{Title: "t", Template: dashTemplate})

	call := func(method, path, body string) fullscreenResponse {
		t.Helper()
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, "/api/v1/visualisations/"+v.ID+path, strings.NewReader(body)))
		if w.Code != http.StatusOK {
			t.Fatalf("%s %s: expected 200, got %d", method, path, w.Code)
		}
		var resp fullscreenResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decoding: %v", err)
		}
		return resp
	}

	if got := call(http.MethodPost, "/fullscreen", ""); !got.Shown || !got.ScrollLocked {
		t.Errorf("enter = %+v", got)
	}
	if st := getStatus(t, r, v.ID); !st.Fullscreen || !st.ScrollLocked {
		t.Errorf("status after enter = %+v", st)
	}
	if got := call(http.MethodPost, "/keys", `{"key":"Escape"}`); got.Shown || got.Consumed == nil || !*got.Consumed {
		t.Errorf("escape = %+v", got)
	}
	if got := call(http.MethodPost, "/keys", `{"key":"Escape"}`); got.Consumed == nil || *got.Consumed {
		t.Errorf("second escape consumed: %+v", got)
	}
	call(http.MethodPost, "/fullscreen", "")
	if got := call(http.MethodDelete, "/fullscreen", ""); got.Shown || got.ScrollLocked {
		t.Errorf("exit = %+v", got)
	}
}

func TestCreateEmitsProgress(t *testing.T) {
	hub := realtime.NewHub(nil)
	ws := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		hub.Close()
		ws.Close()
	})
	r, _ := setupRouter(t, hub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sub, err := realtime.Dial(ctx, "ws"+strings.TrimPrefix(ws.URL, "http"), "42")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer sub.Close()

	body, _ := json.Marshal(createRequest{
		UserID:   "42",
		Title:    "Generated",
		Template: dashTemplate,
		Dataset:  json.RawMessage(`[{"x":1}]`),
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/visualisations/", bytes.NewReader(body)))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created Visualisation
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if !strings.HasPrefix(created.Template, "<!DOCTYPE html>") || !strings.Contains(created.Template, `data-dynadash="guard"`) {
		t.Errorf("stored template was not prepared: %s", created.Template)
	}

	wantPercents := []int{0, 10, 90, 100}
	for _, p := range wantPercents {
		ev, err := sub.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if ev.Type != realtime.EventProgress || ev.Percent != p {
			t.Errorf("event = %+v, want progress %d", ev, p)
		}
	}
	ev, err := sub.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ev.Type != realtime.EventComplete || ev.RedirectURL != "/visual/view/"+created.ID {
		t.Errorf("event = %+v, want completion", ev)
	}
}

func TestCreateRejectsMissingTemplate(t *testing.T) {
	r, store := setupRouter(t, nil)
	body := `{"title":"x","template":""}`
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/visualisations/", strings.NewReader(body)))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	list, _ := store.List(context.Background(), "")
	if len(list) != 0 {
		t.Errorf("rejected visualisation was stored")
	}
}

func TestListAndDelete(t *testing.T) {
	r, store := setupRouter(t, nil)
	v := create(t, store, Visualisation{UserID: "5", Title: "t", Template: dashTemplate})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/visualisations/?user_id=5", nil))
	var list []Visualisation
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(list) != 1 || list[0].ID != v.ID {
		t.Errorf("list = %+v", list)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/visualisations/"+v.ID, nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/visualisations/"+v.ID, nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", w.Code)
	}
}

func TestHistoryRecordsActions(t *testing.T) {
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	store := NewStore(database)
	h := NewHandler(store, download.NewRegistry(time.Minute), nil, Options{Audit: audit.NewStore(database)})
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	body := `{"user_id":"9","title":"Audited","template":"<html><body><p>x</p></body></html>"}`
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/visualisations/", strings.NewReader(body)))
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", w.Code)
	}
	var v Visualisation
	json.Unmarshal(w.Body.Bytes(), &v)

	fetchDownload(t, r, v.ID)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/visualisations/"+v.ID, nil))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/visualisations/"+v.ID+"/history", nil))
	var entries []audit.Entry
	if err := json.Unmarshal(w.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decoding history: %v", err)
	}
	want := []audit.Action{audit.ActionDeleted, audit.ActionDownloaded, audit.ActionCreated}
	if len(entries) != len(want) {
		t.Fatalf("history = %+v", entries)
	}
	for i, a := range want {
		if entries[i].Action != a {
			t.Errorf("entry %d = %s, want %s", i, entries[i].Action, a)
		}
	}
	if entries[2].ActorID != "9" || entries[2].Summary != "Audited" {
		t.Errorf("created entry = %+v", entries[2])
	}
}
