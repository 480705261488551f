package visual

import (
	"bytes"
	_ "embed"
	"html/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

//go:embed view.html
var viewHTML string

var viewTemplate = template.Must(template.New("view").Parse(viewHTML))

// viewPage is the data for the host page. ErrorMessage is set only when
// the document could not be rendered; the load failure and timeout texts
// are picked by the page script per surface.
type viewPage struct {
	Title          string
	Description    template.HTML
	Document       string
	ErrorMessage   string
	FailedMessage  string
	TimeoutMessage string
	DownloadURL    string
	TimeoutMillis  int64
}

// frameBeacon answers the host page's liveness check. The frames run
// without allow-same-origin, so the host cannot read their DOM and asks
// over postMessage instead. Script elements do not count as content.
const frameBeacon = `<script data-dynadash="beacon">
window.addEventListener('message', function (e) {
  var m = e.data;
  if (!m || m.type !== 'dynadash:ping' || e.source !== window.parent) return;
  var n = 0, b = document.body;
  if (b) for (var i = 0; i < b.children.length; i++) if (b.children[i].tagName !== 'SCRIPT') n++;
  window.parent.postMessage({type: 'dynadash:pong', cycle: m.cycle, rendered: n > 0}, '*');
});
</script>`

var (
	markdown   = goldmark.New()
	descPolicy = bluemonday.UGCPolicy()
)

// renderDescription converts a markdown description to sanitized HTML.
func renderDescription(src string) (template.HTML, error) {
	if src == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return template.HTML(descPolicy.SanitizeBytes(buf.Bytes())), nil
}
