// Package progress turns real-time channel events into a progress view and
// renders it.
package progress

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ziadkadry99/dynadash/internal/realtime"
)

const (
	CompleteLabel = "Processing complete! Redirecting..."
	ErrorLabel    = "Error occurred."
)

// ErrProcessing is returned by Run when the server reports a failure.
var ErrProcessing = errors.New("processing failed")

// StepObserver is notified of every percent change, e.g. to advance a
// step indicator on the generate page.
type StepObserver interface {
	StepChanged(percent int)
}

// StepFunc adapts a function to StepObserver.
type StepFunc func(percent int)

func (f StepFunc) StepChanged(percent int) { f(percent) }

// View is what a progress bar and its label show.
type View struct {
	Percent      int
	Label        string
	Done         bool
	Failed       bool
	RedirectURL  string
	ErrorMessage string
}

// EventSource yields channel events; *realtime.Subscription satisfies it.
type EventSource interface {
	Next() (realtime.Event, error)
}

// Tracker applies events to a View. All hooks are optional.
type Tracker struct {
	Reporter Reporter
	Steps    StepObserver
	Navigate func(url string)

	mu   sync.Mutex
	view View
}

// Apply updates the view from ev and reports whether the job has ended.
func (t *Tracker) Apply(ev realtime.Event) bool {
	t.mu.Lock()
	switch ev.Type {
	case realtime.EventProgress:
		t.view.Percent = ev.Percent
		t.view.Label = ev.Message
	case realtime.EventComplete:
		t.view.Percent = 100
		t.view.Label = CompleteLabel
		t.view.Done = true
		t.view.RedirectURL = ev.RedirectURL
	case realtime.EventError:
		t.view.Label = ErrorLabel
		t.view.Failed = true
		t.view.ErrorMessage = ev.Message
	default:
		t.mu.Unlock()
		return false
	}
	v := t.view
	t.mu.Unlock()

	if t.Reporter != nil {
		switch {
		case v.Failed:
			t.Reporter.Fail(v.ErrorMessage)
		case v.Done:
			t.Reporter.Finish(v.Label)
		default:
			t.Reporter.Update(v.Percent, v.Label)
		}
	}
	if t.Steps != nil && !v.Failed {
		t.Steps.StepChanged(v.Percent)
	}
	if v.Done && v.RedirectURL != "" && t.Navigate != nil {
		t.Navigate(v.RedirectURL)
	}
	return v.Done || v.Failed
}

// View returns a copy of the current view.
func (t *Tracker) View() View {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.view
}

// Run applies events from src until the job completes or fails.
func (t *Tracker) Run(src EventSource) error {
	for {
		ev, err := src.Next()
		if err != nil {
			return fmt.Errorf("reading progress: %w", err)
		}
		if !t.Apply(ev) {
			continue
		}
		if v := t.View(); v.Failed {
			return fmt.Errorf("%w: %s", ErrProcessing, v.ErrorMessage)
		}
		return nil
	}
}
