package viewer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ziadkadry99/dynadash/internal/inject"
)

// DefaultTimeout bounds how long a surface may stay Loading.
const DefaultTimeout = 8 * time.Second

// Frame is an isolated sub-document surface. Load replaces its content and
// reports completion through exactly one of the callbacks, possibly from
// another goroutine. Rendered is the liveness check used when the
// completion signal never arrives.
type Frame interface {
	Load(doc string, onLoad func(), onError func(error))
	Rendered() bool
}

// Change describes one surface transition.
type Change struct {
	Surface Surface
	State   State
	Err     error
	Message string
	Cycle   uint64
}

// Observer is notified of every transition, in order. Observers may read
// the Loader but must not call Load or Reload.
type Observer interface {
	StateChanged(Change)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Change)

func (f ObserverFunc) StateChanged(c Change) { f(c) }

// Options configures a Loader.
type Options struct {
	Template string
	Dataset  any
	// Variable is the global the template reads its data from.
	Variable string

	Primary    Frame
	Fullscreen Frame // optional

	Timeout  time.Duration
	Clock    Clock
	Observer Observer
}

// Loader owns the ViewerState of the primary and fullscreen surfaces.
type Loader struct {
	loadMu   sync.Mutex // serializes load cycles
	mu       sync.Mutex
	notifyMu sync.Mutex // held while draining pending to the observer

	template string
	dataset  any
	injector inject.Injector
	frames   [2]Frame
	timeout  time.Duration
	clock    Clock
	observer Observer

	cycle   uint64
	states  [2]State
	errs    [2]error
	timer   Timer
	settled chan struct{}
	pending []Change
}

// New creates a Loader. Nothing is loaded until Load is called.
func New(opts Options) *Loader {
	l := &Loader{
		template: opts.Template,
		dataset:  opts.Dataset,
		injector: inject.Injector{Variable: opts.Variable},
		frames:   [2]Frame{opts.Primary, opts.Fullscreen},
		timeout:  opts.Timeout,
		clock:    opts.Clock,
		observer: opts.Observer,
	}
	if l.timeout <= 0 {
		l.timeout = DefaultTimeout
	}
	if l.clock == nil {
		l.clock = SystemClock
	}
	return l
}

// Load starts a new load cycle and returns without waiting for the frames.
// Any cycle in flight is superseded. The returned error covers only failures
// detected before the frames are loaded; the surfaces are Errored in that case.
func (l *Loader) Load() error {
	l.loadMu.Lock()
	defer l.loadMu.Unlock()

	l.mu.Lock()
	l.cycle++
	cycle := l.cycle
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.settled = make(chan struct{})

	var changes []Change
	for _, s := range surfaces {
		if l.present(s) {
			l.states[s] = Loading
			l.errs[s] = nil
			changes = append(changes, l.change(s))
		}
	}

	if l.frames[Primary] == nil {
		log.Printf("viewer: cycle %d: %v", cycle, ErrElementsMissing)
		changes = append(changes, l.resolveAll(Errored, ErrElementsMissing)...)
		l.commit(changes)
		return ErrElementsMissing
	}

	doc, err := l.injector.Inject(l.template, l.dataset)
	if err != nil {
		log.Printf("viewer: cycle %d: preparing document: %v", cycle, err)
		changes = append(changes, l.resolveAll(Errored, err)...)
		l.commit(changes)
		return fmt.Errorf("preparing dashboard document: %w", err)
	}

	l.timer = l.clock.AfterFunc(l.timeout, func() { l.expire(cycle) })
	frames := l.frames
	l.commit(changes)

	for _, s := range surfaces {
		f := frames[s]
		if f == nil {
			continue
		}
		f.Load(doc,
			func() { l.loaded(cycle, s) },
			func(err error) { l.failed(cycle, s, err) },
		)
	}
	return nil
}

// Reload restarts the lifecycle from the beginning.
func (l *Loader) Reload() error { return l.Load() }

// Render re-injects the current dataset into the template. Download uses
// this so the file always reflects the latest data.
func (l *Loader) Render() (string, error) {
	l.mu.Lock()
	tmpl, ds, inj := l.template, l.dataset, l.injector
	l.mu.Unlock()
	return inj.Inject(tmpl, ds)
}

// SetDataset replaces the dataset used by later renders and loads.
func (l *Loader) SetDataset(ds any) {
	l.mu.Lock()
	l.dataset = ds
	l.mu.Unlock()
}

// State returns the current state of a surface.
func (l *Loader) State(s Surface) State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.states[s]
}

// Err returns the failure that moved the surface to Errored, if any.
func (l *Loader) Err(s Surface) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errs[s]
}

// Cycle returns the current load cycle number; zero before the first Load.
func (l *Loader) Cycle() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cycle
}

// LoadingIndicator reports whether the loading indicator should be shown.
func (l *Loader) LoadingIndicator() bool {
	return l.State(Primary) == Loading
}

// SurfaceStatus is a point-in-time view of one surface.
type SurfaceStatus struct {
	Surface string `json:"surface"`
	State   State  `json:"state"`
	Message string `json:"message,omitempty"`
}

// Snapshot returns the status of every participating surface.
func (l *Loader) Snapshot() []SurfaceStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []SurfaceStatus
	for _, s := range surfaces {
		if !l.present(s) {
			continue
		}
		out = append(out, SurfaceStatus{
			Surface: s.String(),
			State:   l.states[s],
			Message: Message(l.errs[s]),
		})
	}
	return out
}

// Wait blocks until every surface of the current cycle has left Loading.
func (l *Loader) Wait(ctx context.Context) error {
	l.mu.Lock()
	ch := l.settled
	l.mu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loader) loaded(cycle uint64, s Surface) {
	l.mu.Lock()
	if cycle != l.cycle {
		l.mu.Unlock()
		return
	}
	l.commit(l.resolve(s, Displayed, nil))
}

func (l *Loader) failed(cycle uint64, s Surface, cause error) {
	l.mu.Lock()
	if cycle != l.cycle {
		l.mu.Unlock()
		return
	}
	err := ErrSubdocumentLoadFailed
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrSubdocumentLoadFailed, cause)
	}
	log.Printf("viewer: cycle %d: %s frame: %v", cycle, s, err)
	l.commit(l.resolve(s, Errored, err))
}

// expire is the timeout branch: surfaces still Loading are checked and
// forced to Displayed or Errored.
func (l *Loader) expire(cycle uint64) {
	l.mu.Lock()
	if cycle != l.cycle {
		l.mu.Unlock()
		return
	}
	l.timer = nil

	var changes []Change
	for _, s := range surfaces {
		if !l.present(s) || l.states[s] != Loading {
			continue
		}
		if l.frames[s].Rendered() {
			log.Printf("viewer: cycle %d: %s frame never signalled load, content present", cycle, s)
			changes = append(changes, l.resolve(s, Displayed, nil)...)
		} else {
			log.Printf("viewer: cycle %d: %s frame: %v", cycle, s, ErrSubdocumentLoadTimeout)
			changes = append(changes, l.resolve(s, Errored, ErrSubdocumentLoadTimeout)...)
		}
	}
	l.commit(changes)
}

// present reports whether a surface takes part in load cycles. The primary
// always does, so a missing primary frame is reported rather than skipped.
func (l *Loader) present(s Surface) bool {
	return s == Primary || l.frames[s] != nil
}

// resolve moves a Loading surface to its final state. Callers hold mu.
func (l *Loader) resolve(s Surface, st State, err error) []Change {
	if l.states[s] != Loading {
		return nil
	}
	l.states[s] = st
	l.errs[s] = err
	changes := []Change{l.change(s)}

	for _, o := range surfaces {
		if l.present(o) && l.states[o] == Loading {
			return changes
		}
	}
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	close(l.settled)
	return changes
}

func (l *Loader) resolveAll(st State, err error) []Change {
	var changes []Change
	for _, s := range surfaces {
		if l.present(s) {
			changes = append(changes, l.resolve(s, st, err)...)
		}
	}
	return changes
}

func (l *Loader) change(s Surface) Change {
	return Change{
		Surface: s,
		State:   l.states[s],
		Err:     l.errs[s],
		Message: Message(l.errs[s]),
		Cycle:   l.cycle,
	}
}

// commit queues changes, releases mu and drains the queue to the observer.
// Whoever holds notifyMu delivers, so changes arrive in transition order
// and no goroutine waits on notifyMu while holding mu.
func (l *Loader) commit(changes []Change) {
	if l.observer == nil || len(changes) == 0 {
		l.mu.Unlock()
		return
	}
	l.pending = append(l.pending, changes...)
	l.mu.Unlock()

	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()
	for {
		l.mu.Lock()
		batch := l.pending
		l.pending = nil
		l.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, c := range batch {
			l.observer.StateChanged(c)
		}
	}
}
