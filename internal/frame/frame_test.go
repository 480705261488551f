package frame

import (
	"errors"
	"strings"
	"testing"
	"time"
)

type result struct {
	loaded bool
	err    error
}

func load(t *testing.T, f *Frame, doc string) result {
	t.Helper()
	ch := make(chan result, 1)
	f.Load(doc,
		func() { ch <- result{loaded: true} },
		func(err error) { ch <- result{err: err} },
	)
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("frame did not report")
		return result{}
	}
}

func TestLoadParsesDocument(t *testing.T) {
	f := New("dashboard-frame", Options{})
	if f.Rendered() {
		t.Fatal("empty frame reported rendered")
	}

	doc := `<html><head><script>window.dynadashData = [];</script></head><body><div id="chart">ok</div></body></html>`
	r := load(t, f, doc)
	if !r.loaded {
		t.Fatalf("expected load, got error %v", r.err)
	}
	if !f.Rendered() {
		t.Error("expected rendered after load")
	}

	d, ok := f.Document()
	if !ok {
		t.Fatal("Document() returned nothing")
	}
	if got := d.Find("#chart").Text(); got != "ok" {
		t.Errorf("#chart text = %q, want %q", got, "ok")
	}
	if n := d.Find("head script").Length(); n != 1 {
		t.Errorf("found %d head scripts, want 1", n)
	}
}

func TestLoadTooLarge(t *testing.T) {
	f := New("fullscreen-frame", Options{MaxBytes: 16})
	r := load(t, f, strings.Repeat("x", 17))
	if !errors.Is(r.err, ErrTooLarge) {
		t.Fatalf("error = %v, want ErrTooLarge", r.err)
	}
	if f.Rendered() {
		t.Error("oversized document reported rendered")
	}
}

func TestLoadEmptyBody(t *testing.T) {
	f := New("dashboard-frame", Options{})
	r := load(t, f, "<html><head></head><body>   </body></html>")
	if !r.loaded {
		t.Fatalf("empty body should still load, got %v", r.err)
	}
	if f.Rendered() {
		t.Error("empty body reported rendered")
	}
}

// A template whose script builds the body after load must not be
// reported as a failed load.
func TestLoadScriptFilledBody(t *testing.T) {
	f := New("dashboard-frame", Options{})
	doc := `<html><head><script>window.dynadashData = [];</script></head>` +
		`<body><script>document.body.innerHTML = "<div>chart</div>";</script></body></html>`
	if r := load(t, f, doc); !r.loaded {
		t.Fatalf("script-filled body failed to load: %v", r.err)
	}
	// Scripts are not run here, so only the script element is present.
	if f.Rendered() {
		t.Error("body holding only scripts reported rendered")
	}
}

func TestNewerLoadWins(t *testing.T) {
	f := New("dashboard-frame", Options{})
	f.Load(`<body><p id="old">old</p></body>`, func() {}, func(error) {})
	r := load(t, f, `<body><p id="new">new</p></body>`)
	if !r.loaded {
		t.Fatalf("load failed: %v", r.err)
	}

	d, _ := f.Document()
	if d.Find("#new").Length() != 1 || d.Find("#old").Length() != 0 {
		t.Error("stale document replaced newer content")
	}
}
