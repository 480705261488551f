// Package viewer drives sandboxed dashboard frames through their load
// lifecycle and owns the fullscreen toggle.
package viewer

import (
	"errors"

	"github.com/ziadkadry99/dynadash/internal/inject"
)

// State is the lifecycle status of one viewer surface.
type State int

const (
	Loading State = iota
	Displayed
	Errored
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Displayed:
		return "displayed"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// MarshalText lets states appear by name in JSON responses.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Surface identifies one of the two viewer instances.
type Surface int

const (
	Primary Surface = iota
	Fullscreen
)

func (s Surface) String() string {
	if s == Fullscreen {
		return "fullscreen"
	}
	return "primary"
}

var surfaces = [...]Surface{Primary, Fullscreen}

var (
	ErrSubdocumentLoadFailed  = errors.New("sub-document failed to load")
	ErrSubdocumentLoadTimeout = errors.New("sub-document did not load before timeout")
	ErrElementsMissing        = errors.New("required viewer elements are missing")
)

// Message returns the user-facing text for a load failure.
func Message(err error) string {
	var serr *inject.SerializationError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, inject.ErrTemplateMissing):
		return "Dashboard template is missing or could not be loaded."
	case errors.As(err, &serr):
		return "The dataset could not be prepared for the dashboard."
	case errors.Is(err, ErrElementsMissing):
		return "Essential dashboard elements missing from page."
	case errors.Is(err, ErrSubdocumentLoadTimeout):
		return "Dashboard did not load correctly or is empty after timeout."
	case errors.Is(err, ErrSubdocumentLoadFailed):
		return "Failed to load dashboard content."
	default:
		return "An unknown error occurred while loading the dashboard."
	}
}
