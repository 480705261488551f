package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Reporter renders the progress view of a generation job.
type Reporter interface {
	Update(percent int, message string)
	Finish(message string)
	Fail(message string)
}

// NewReporter returns a TerminalReporter if running in an interactive terminal,
// or a LineReporter if the CI environment variable is set.
func NewReporter() Reporter {
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
		return &LineReporter{Out: os.Stderr}
	}
	return &TerminalReporter{}
}

// TerminalReporter displays a progress bar in the terminal.
type TerminalReporter struct {
	bar *progressbar.ProgressBar
}

func (r *TerminalReporter) ensure() {
	if r.bar == nil {
		r.bar = progressbar.NewOptions(100,
			progressbar.OptionSetDescription("Generating dashboard"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
}

func (r *TerminalReporter) Update(percent int, message string) {
	r.ensure()
	r.bar.Describe(message)
	_ = r.bar.Set(percent)
}

func (r *TerminalReporter) Finish(message string) {
	r.ensure()
	_ = r.bar.Finish()
	fmt.Fprintln(os.Stderr, message)
}

func (r *TerminalReporter) Fail(message string) {
	if r.bar != nil {
		_ = r.bar.Clear()
	}
	fmt.Fprintln(os.Stderr, "Error: "+message)
}

// LineReporter prints line-by-line progress suitable for CI logs.
type LineReporter struct {
	Out io.Writer
}

func (r *LineReporter) Update(percent int, message string) {
	fmt.Fprintf(r.Out, "[%3d%%] %s\n", percent, message)
}

func (r *LineReporter) Finish(message string) {
	fmt.Fprintf(r.Out, "[100%%] %s\n", message)
}

func (r *LineReporter) Fail(message string) {
	fmt.Fprintf(r.Out, "Error: %s\n", message)
}
