package inject

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoDataset is returned by Extract when the document has no assignment
// for the requested variable.
var ErrNoDataset = errors.New("no embedded dataset")

const scriptEnd = ";</script>"

// Extract returns the JSON text assigned to window.<variable> by Inject.
// Only the assignment at the position Inject uses is considered, so
// assignments written by the template itself are ignored. An empty
// variable means DefaultVariable.
func Extract(doc, variable string) (json.RawMessage, error) {
	if variable == "" {
		variable = DefaultVariable
	}
	prefix := "<script>window." + variable + " = "
	lower := asciiLower(doc)

	if idx := strings.LastIndex(lower, headEnd); idx != -1 {
		// The encoded dataset never contains '<', so the last prefix before
		// the closing head is the start of the injected script.
		head := doc[:idx]
		start := strings.LastIndex(head, prefix)
		if start == -1 || !strings.HasSuffix(head, scriptEnd) {
			return nil, ErrNoDataset
		}
		return decodeAssignment(head[start+len(prefix):])
	}

	at := 0
	if end := bodyTagEnd(lower); end != -1 {
		at = end
	}
	if !strings.HasPrefix(doc[at:], prefix) {
		return nil, ErrNoDataset
	}
	return decodeAssignment(doc[at+len(prefix):])
}

// decodeAssignment decodes the JSON value at the start of s, which must be
// followed by the end of the injected script.
func decodeAssignment(s string) (json.RawMessage, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding embedded dataset: %w", err)
	}
	if !strings.HasPrefix(s[dec.InputOffset():], scriptEnd) {
		return nil, fmt.Errorf("decoding embedded dataset: %w", ErrNoDataset)
	}
	return raw, nil
}
