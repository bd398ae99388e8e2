package script

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"golang.org/x/text/unicode/norm"
)

// ParseError reports structurally invalid script input.
type ParseError struct {
	// Index is the offending action index, or -1 for file-level problems.
	Index int

	// Field names the offending field ("actions", "action", "at", "pos").
	Field string

	Message string
}

func (e *ParseError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("invalid action %d: %s %s", e.Index, e.Field, e.Message)
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid script: %s %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid script: %s", e.Message)
}

// IsParseError reports whether err is or wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

func fileError(field, msg string) *ParseError {
	return &ParseError{Index: -1, Field: field, Message: msg}
}

// Parse decodes a funscript JSON document.
func Parse(r io.Reader) (*Script, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fileError("", "not a JSON object: "+err.Error())
	}
	if top == nil {
		return nil, fileError("", "not a JSON object")
	}

	rawActions, ok := top["actions"]
	if !ok {
		return nil, fileError("actions", "is missing")
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(rawActions, &elems); err != nil || elems == nil {
		return nil, fileError("actions", "must be an array")
	}

	actions := make([]Action, 0, len(elems))
	for i, elem := range elems {
		a, err := parseAction(i, elem)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}

	s, err := Load(actions)
	if err != nil {
		return nil, err
	}

	parseHeader(top, s)
	return s, nil
}

// ParseFile opens and parses the funscript at path.
func ParseFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func parseAction(i int, elem json.RawMessage) (Action, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(elem, &fields); err != nil || fields == nil {
		return Action{}, &ParseError{Index: i, Field: "action", Message: "must be an object"}
	}

	atNum, err := numberField(i, fields, "at")
	if err != nil {
		return Action{}, err
	}
	posNum, err := numberField(i, fields, "pos")
	if err != nil {
		return Action{}, err
	}

	at, err := atNum.Int64()
	if err != nil {
		// Accept integral floats such as 1000.0.
		f, ferr := atNum.Float64()
		if ferr != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64/2 {
			return Action{}, &ParseError{Index: i, Field: "at", Message: "must be an integer"}
		}
		at = int64(f)
	}
	if at < 0 {
		return Action{}, &ParseError{Index: i, Field: "at", Message: "must be non-negative"}
	}

	pos, err := posNum.Float64()
	if err != nil {
		return Action{}, &ParseError{Index: i, Field: "pos", Message: "must be a finite number"}
	}

	return Action{At: at, Pos: pos}, nil
}

func numberField(i int, fields map[string]json.RawMessage, name string) (json.Number, error) {
	raw, ok := fields[name]
	if !ok {
		return "", &ParseError{Index: i, Field: name, Message: "is missing"}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", &ParseError{Index: i, Field: name, Message: "is not valid JSON"}
	}
	n, ok := v.(json.Number)
	if !ok {
		return "", &ParseError{Index: i, Field: name, Message: "must be a number"}
	}
	return n, nil
}

// parseHeader fills the optional top-level fields. Unknown keys are ignored
// and a field of the wrong type is left at its zero value.
func parseHeader(top map[string]json.RawMessage, s *Script) {
	decodeOptional(top, "version", &s.version)
	decodeOptional(top, "inverted", &s.inverted)
	decodeOptional(top, "range", &s.rangeMax)

	raw, ok := top["metadata"]
	if !ok || isNull(raw) {
		return
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		slog.Debug("ignoring script field", "field", "metadata", "error", err)
		return
	}
	var m Metadata
	decodeOptional(fields, "title", &m.Title)
	decodeOptional(fields, "creator", &m.Creator)
	decodeOptional(fields, "description", &m.Description)
	decodeOptional(fields, "tags", &m.Tags)
	s.meta = normalizeMetadata(m)
}

// decodeOptional unmarshals fields[name] into dst. On a type mismatch dst
// is reset to its zero value.
func decodeOptional[T any](fields map[string]json.RawMessage, name string, dst *T) {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		slog.Debug("ignoring script field", "field", name, "error", err)
		return
	}
	*dst = v
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// normalizeMetadata NFC-normalizes every string so titles that differ
// only in Unicode composition compare equal.
func normalizeMetadata(m Metadata) Metadata {
	m.Title = norm.NFC.String(m.Title)
	m.Creator = norm.NFC.String(m.Creator)
	m.Description = norm.NFC.String(m.Description)
	for i, tag := range m.Tags {
		m.Tags[i] = norm.NFC.String(tag)
	}
	return m
}
