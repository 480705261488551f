package viewer

import "sync"

// KeyEscape is the key name that leaves fullscreen.
const KeyEscape = "Escape"

// FullscreenToggle shows and hides the fullscreen surface and locks page
// scrolling while it is shown. Enter and Exit are idempotent.
type FullscreenToggle struct {
	mu    sync.Mutex
	shown bool

	// OnChange, if set, is called after every effective transition.
	OnChange func(shown bool)
}

// Enter shows the fullscreen surface. It is a no-op when already shown.
func (f *FullscreenToggle) Enter() { f.set(true) }

// Exit hides the fullscreen surface. It is a no-op when already hidden.
func (f *FullscreenToggle) Exit() { f.set(false) }

// HandleKey exits fullscreen on Escape. The key is only consumed while the
// surface is shown.
func (f *FullscreenToggle) HandleKey(key string) bool {
	if key != KeyEscape {
		return false
	}
	return f.set(false)
}

// Shown reports whether the fullscreen surface is visible.
func (f *FullscreenToggle) Shown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shown
}

// ScrollLocked reports whether page scrolling is suppressed.
func (f *FullscreenToggle) ScrollLocked() bool { return f.Shown() }

func (f *FullscreenToggle) set(shown bool) bool {
	f.mu.Lock()
	if f.shown == shown {
		f.mu.Unlock()
		return false
	}
	f.shown = shown
	cb := f.OnChange
	f.mu.Unlock()

	if cb != nil {
		cb(shown)
	}
	return true
}
