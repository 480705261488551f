// Package inject splices a dataset into a dashboard HTML template as an
// inline script variable.
package inject

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DefaultVariable is the global the dashboard templates read their data from.
const DefaultVariable = "dynadashData"

// ErrTemplateMissing is returned when the template is empty.
var ErrTemplateMissing = errors.New("dashboard template is missing")

// SerializationError wraps a failure to encode the dataset as JSON.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serializing dataset: %v", e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

const headEnd = "</head>"

// Injector embeds datasets under a configurable global variable.
type Injector struct {
	// Variable is the window property assigned. Empty means DefaultVariable.
	Variable string
}

// Inject uses DefaultVariable.
func Inject(template string, dataset any) (string, error) {
	return Injector{}.Inject(template, dataset)
}

// Inject returns template with the dataset assignment inserted before the
// last </head>, else after the first opening body tag, else at the start.
func (i Injector) Inject(template string, dataset any) (string, error) {
	if strings.TrimSpace(template) == "" {
		return "", ErrTemplateMissing
	}

	script, err := i.Script(dataset)
	if err != nil {
		return "", err
	}
	return Insert(template, script), nil
}

// Insert places snippet where Inject places the dataset assignment. A
// blank template is returned unchanged.
func Insert(template, snippet string) string {
	if strings.TrimSpace(template) == "" {
		return template
	}
	at := insertionPoint(asciiLower(template))
	return template[:at] + snippet + template[at:]
}

func insertionPoint(lower string) int {
	if idx := strings.LastIndex(lower, headEnd); idx != -1 {
		return idx
	}
	if end := bodyTagEnd(lower); end != -1 {
		return end
	}
	return 0
}

// Script returns the <script> element assigning dataset to the variable.
func (i Injector) Script(dataset any) (string, error) {
	data, err := marshalDataset(dataset)
	if err != nil {
		return "", err
	}
	return "<script>window." + i.variable() + " = " + string(data) + ";</script>", nil
}

func (i Injector) variable() string {
	if i.Variable == "" {
		return DefaultVariable
	}
	return i.Variable
}

func marshalDataset(dataset any) (data []byte, err error) {
	if dataset == nil {
		return []byte("[]"), nil
	}

	// json.Marshal reports cycles as errors, but a broken Marshaler can
	// still panic; surface that as a serialization failure too.
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, &SerializationError{Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	data, err = json.Marshal(dataset)
	if err != nil {
		return nil, &SerializationError{Err: err}
	}
	if bytes.Equal(data, []byte("null")) {
		return []byte("[]"), nil
	}
	return data, nil
}

// bodyTagEnd returns the offset just past the first opening <body> tag,
// with or without attributes, or -1.
func bodyTagEnd(lower string) int {
	_, end := openTag(lower, "body", 0)
	return end
}

// openTag finds the first opening <name> tag at or after from and returns
// its start and the offset just past its closing '>', or -1, -1.
func openTag(lower, name string, from int) (int, int) {
	start := "<" + name
	for {
		idx := strings.Index(lower[from:], start)
		if idx == -1 {
			return -1, -1
		}
		idx += from
		next := idx + len(start)
		if next < len(lower) {
			switch lower[next] {
			case '>':
				return idx, next + 1
			case ' ', '\t', '\n', '\r', '\f', '/':
				if end := tagEnd(lower, next); end != -1 {
					return idx, end
				}
				return -1, -1
			}
		}
		from = next
	}
}

// tagEnd returns the offset just past the '>' that closes a tag whose
// attributes start at from. A '>' inside a quoted attribute value does not
// close the tag.
func tagEnd(s string, from int) int {
	var quote byte
	afterEquals := false
	for i := from; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '>':
			return i + 1
		case '=':
			afterEquals = true
			continue
		case '"', '\'':
			if afterEquals {
				quote = c
			}
		case ' ', '\t', '\n', '\r', '\f':
			continue
		}
		afterEquals = false
	}
	return -1
}

// asciiLower lowercases A-Z only so byte offsets match the input.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
