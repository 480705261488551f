package inject

import "strings"

const (
	doctype      = "<!DOCTYPE html>"
	charsetMeta  = `<meta charset="UTF-8">`
	viewportMeta = `<meta name="viewport" content="width=device-width, initial-scale=1.0">`
	guardMarker  = `data-dynadash="guard"`
)

// guardScript reports uncaught script errors inside the dashboard and warns
// when the dataset variable is missing or empty. VAR is replaced with the
// variable name.
const guardScript = `<script ` + guardMarker + `>
window.addEventListener('error', function (e) {
  var box = document.getElementById('dynadash-error-display');
  if (!box && document.body) {
    box = document.createElement('div');
    box.id = 'dynadash-error-display';
    box.style.cssText = 'position:fixed;top:5px;left:5px;right:5px;padding:10px;background:rgba(220,50,50,.9);color:#fff;border-radius:4px;z-index:20000;font:14px sans-serif;';
    document.body.insertBefore(box, document.body.firstChild);
  }
  if (box) box.textContent = 'Dashboard Error: ' + e.message + ' (in ' + (e.filename || 'inline script') + ':' + e.lineno + ')';
});
document.addEventListener('DOMContentLoaded', function () {
  var d = window.VAR;
  if (d === undefined || d === null || (Array.isArray(d) && d.length === 0)) {
    console.warn('window.VAR is not defined or is empty.');
    if (document.body && !document.getElementById('dynadash-data-warning')) {
      var note = document.createElement('div');
      note.id = 'dynadash-data-warning';
      note.style.cssText = 'padding:10px;background:rgba(255,220,50,.8);color:#000;text-align:center;font:14px sans-serif;';
      note.textContent = 'Notice: Data for this dashboard (window.VAR) was not loaded or is empty. Visualizations may not appear as expected.';
      document.body.insertBefore(note, document.body.firstChild);
    }
  }
});
</script>
`

// Prepare normalizes a generated template before it is stored. It adds a
// doctype, html, head and body elements when missing, a UTF-8 charset and
// a viewport meta tag, and a guard script before the last </body>. Running
// Prepare on its own output changes nothing. A blank template is returned
// unchanged so callers can still report it as missing.
func (i Injector) Prepare(template string) string {
	t := template
	if strings.TrimSpace(t) == "" {
		return t
	}

	lower := asciiLower(t)
	if !strings.HasPrefix(strings.TrimLeft(lower, " \t\r\n"), "<!doctype html") {
		t = doctype + "\n" + t
		lower = asciiLower(t)
	}

	if start, _ := openTag(lower, "html", 0); start == -1 {
		at := afterDoctype(lower)
		t = t[:at] + "\n<html lang=\"en\">" + t[at:]
		if !strings.Contains(lower, "</html>") {
			t += "\n</html>"
		}
		lower = asciiLower(t)
	}

	_, headOpen := openTag(lower, "head", 0)
	if headOpen == -1 {
		at := afterDoctype(lower)
		if _, end := openTag(lower, "html", 0); end != -1 {
			at = end
		}
		t = t[:at] + "\n<head><title>Dashboard</title></head>\n" + t[at:]
		lower = asciiLower(t)
		_, headOpen = openTag(lower, "head", 0)
	}

	head := headRegion(lower, headOpen)
	var meta string
	if !strings.Contains(head, "<meta charset") {
		meta += charsetMeta + "\n"
	}
	if !strings.Contains(head, `name="viewport"`) {
		meta += viewportMeta + "\n"
	}
	if meta != "" {
		t = t[:headOpen] + meta + t[headOpen:]
		lower = asciiLower(t)
	}

	if start, _ := openTag(lower, "body", 0); start == -1 {
		// Wrap whatever follows the head so the content ends up in the body.
		open := headOpen
		if idx := strings.Index(lower, headEnd); idx != -1 {
			open = idx + len(headEnd)
		}
		closeAt := len(t)
		if idx := strings.LastIndex(lower, "</html>"); idx >= open {
			closeAt = idx
		}
		t = t[:open] + "\n<body>" + t[open:closeAt] + "\n</body>\n" + t[closeAt:]
		lower = asciiLower(t)
	}

	if !strings.Contains(t, guardMarker) {
		script := strings.ReplaceAll(guardScript, "VAR", i.variable())
		if at := strings.LastIndex(lower, "</body>"); at != -1 {
			t = t[:at] + script + t[at:]
		} else {
			t += script
		}
	}
	return t
}

func afterDoctype(lower string) int {
	idx := strings.Index(lower, "<!doctype")
	if idx == -1 {
		return 0
	}
	if end := strings.IndexByte(lower[idx:], '>'); end != -1 {
		return idx + end + 1
	}
	return 0
}

// headRegion returns the lowered head content starting at open.
func headRegion(lower string, open int) string {
	if end := strings.Index(lower[open:], headEnd); end != -1 {
		return lower[open : open+end]
	}
	return lower[open:]
}
