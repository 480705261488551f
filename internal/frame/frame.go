// Package frame is a headless sandboxed document viewer. Each Frame parses
// its document into an isolated node tree; nothing is fetched and no state
// is shared with the host.
package frame

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ErrTooLarge is reported when a document exceeds MaxBytes.
var ErrTooLarge = errors.New("document exceeds size limit")

// Options configures a Frame.
type Options struct {
	MaxBytes int // 0 means unlimited
}

// Frame implements viewer.Frame.
type Frame struct {
	id   string
	opts Options

	mu   sync.Mutex
	seq  uint64
	root *html.Node
}

// New creates an empty frame.
func New(id string, opts Options) *Frame {
	return &Frame{id: id, opts: opts}
}

// ID returns the frame identifier used in logs and errors.
func (f *Frame) ID() string { return f.id }

// Load replaces the frame content and parses doc in the background. A load
// superseded by a newer one reports nothing.
func (f *Frame) Load(doc string, onLoad func(), onError func(error)) {
	f.mu.Lock()
	f.seq++
	seq := f.seq
	f.root = nil
	f.mu.Unlock()

	go func() {
		if f.opts.MaxBytes > 0 && len(doc) > f.opts.MaxBytes {
			f.report(seq, onError, fmt.Errorf("%s: %w (%d > %d bytes)", f.id, ErrTooLarge, len(doc), f.opts.MaxBytes))
			return
		}

		root, err := html.Parse(strings.NewReader(doc))
		if err != nil {
			f.report(seq, onError, fmt.Errorf("%s: parsing document: %w", f.id, err))
			return
		}

		f.mu.Lock()
		if seq != f.seq {
			f.mu.Unlock()
			return
		}
		f.root = root
		f.mu.Unlock()

		// A parsed document counts as loaded even with an empty body;
		// scripts may fill it later and Rendered checks it at timeout.
		onLoad()
	}()
}

// Rendered reports whether the current document has a body with elements
// other than scripts.
func (f *Frame) Rendered() bool {
	f.mu.Lock()
	root := f.root
	f.mu.Unlock()
	return root != nil && hasBodyContent(root)
}

// Document returns the parsed content, or false while nothing is loaded.
func (f *Frame) Document() (*goquery.Document, bool) {
	f.mu.Lock()
	root := f.root
	f.mu.Unlock()
	if root == nil {
		return nil, false
	}
	return goquery.NewDocumentFromNode(root), true
}

func (f *Frame) report(seq uint64, onError func(error), err error) {
	f.mu.Lock()
	current := seq == f.seq
	f.mu.Unlock()
	if current {
		onError(err)
	}
}

func hasBodyContent(root *html.Node) bool {
	return goquery.NewDocumentFromNode(root).Find("body").Children().Not("script").Length() > 0
}
