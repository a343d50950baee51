// Package depsfile reads and rewrites single fields of a DEPS-style
// manifest. A field is a line of the form
//
//	  "key": "value",  # optional comment
//
// Rewriting a field replaces only the bytes of its value; every other byte
// of the manifest is left untouched.
package depsfile

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	ErrFieldNotFound  = errors.New("field not found")
	ErrAmbiguousField = errors.New("field defined more than once")
	ErrInvalidValue   = errors.New("invalid field value")
)

// Span is the half-open byte range [Start, End) of a field value
type Span struct {
	Start int
	End   int
}

// Field is one well-formed field line
type Field struct {
	Key     string
	Value   string
	Comment string
	Line    int // 1-based
	Span    Span
}

// Fields returns every well-formed field line in document order.
// Lines that do not follow the field grammar are skipped.
func Fields(text string) []Field {
	var fields []Field
	lineNo := 0
	for off := 0; off < len(text); {
		line := text[off:]
		next := len(text)
		if i := strings.IndexByte(line, '\n'); i >= 0 {
			line = line[:i]
			next = off + i + 1
		}
		lineNo++

		if f, ok := parseLine(line); ok {
			f.Line = lineNo
			f.Span.Start += off
			f.Span.End += off
			fields = append(fields, f)
		}
		off = next
	}
	return fields
}

// Find returns the value span of key. The key must be defined by exactly
// one field line.
func Find(text, key string) (Span, error) {
	var found []Field
	for _, f := range Fields(text) {
		if f.Key == key {
			found = append(found, f)
		}
	}

	switch len(found) {
	case 0:
		return Span{}, fmt.Errorf("%w: %q", ErrFieldNotFound, key)
	case 1:
		return found[0].Span, nil
	default:
		return Span{}, fmt.Errorf("%w: %q on lines %d and %d",
			ErrAmbiguousField, key, found[0].Line, found[1].Line)
	}
}

// Get returns the value of key
func Get(text, key string) (string, error) {
	span, err := Find(text, key)
	if err != nil {
		return "", err
	}
	return text[span.Start:span.End], nil
}

// Set returns text with the value of key replaced by value
func Set(text, key, value string) (string, error) {
	if err := validateValue(value); err != nil {
		return "", err
	}
	span, err := Find(text, key)
	if err != nil {
		return "", err
	}
	return text[:span.Start] + value + text[span.End:], nil
}

func validateValue(value string) error {
	if value == "" {
		return fmt.Errorf("%w: empty", ErrInvalidValue)
	}
	if i := strings.IndexFunc(value, func(r rune) bool {
		return r == '"' || unicode.IsSpace(r)
	}); i >= 0 {
		return fmt.Errorf("%w: %q contains %q", ErrInvalidValue, value, value[i])
	}
	return nil
}

// parseLine lexes a single line without its trailing newline. Offsets in
// the returned span are relative to the start of the line.
func parseLine(line string) (Field, bool) {
	line = strings.TrimSuffix(line, "\r")

	i := skipSpace(line, 0)
	key, _, i, ok := quoted(line, i)
	if !ok || i >= len(line) || line[i] != ':' {
		return Field{}, false
	}

	i = skipSpace(line, i+1)
	value, start, i, ok := quoted(line, i)
	if !ok || value == "" || strings.IndexFunc(value, unicode.IsSpace) >= 0 {
		return Field{}, false
	}
	if i >= len(line) || line[i] != ',' {
		return Field{}, false
	}

	i = skipSpace(line, i+1)
	var comment string
	if i < len(line) {
		if line[i] != '#' {
			return Field{}, false
		}
		comment = line[i:]
	}

	return Field{
		Key:     key,
		Value:   value,
		Comment: comment,
		Span:    Span{Start: start, End: start + len(value)},
	}, true
}

// quoted reads a double-quoted token starting at i. It returns the token
// contents, the offset of the first content byte and the offset just past
// the closing quote.
func quoted(line string, i int) (string, int, int, bool) {
	if i >= len(line) || line[i] != '"' {
		return "", 0, 0, false
	}
	end := strings.IndexByte(line[i+1:], '"')
	if end < 0 {
		return "", 0, 0, false
	}
	start := i + 1
	return line[start : start+end], start, start + end + 1, true
}

func skipSpace(line string, i int) int {
	for i < len(line) && (line[i] == ' ' || line[i] == '\t' || line[i] == '\v' || line[i] == '\f') {
		i++
	}
	return i
}
