package settings

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSrc string

// LoadFile reads a YAML settings file. Missing fields take their defaults.
func LoadFile(path string) (Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("read settings: %w", err)
	}
	p, err := Decode(data)
	if err != nil {
		return Params{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Decode parses YAML settings, fills defaults and bounds from the CUE
// schema, and applies the cross-field checks of Params.Validate.
//
// Example:
//
//	intensity: 1.5
//	min_duration: 40
//	allow_during_fullscreen: false
func Decode(data []byte) (Params, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Params{}, fmt.Errorf("parse settings yaml: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSrc).LookupPath(cue.ParsePath("#Settings"))
	if err := schema.Err(); err != nil {
		return Params{}, fmt.Errorf("settings schema: %w", err)
	}

	v := schema.Unify(ctx.Encode(raw))
	if err := v.Validate(); err != nil {
		return Params{}, schemaError(err)
	}

	var p Params
	if err := v.Decode(&p); err != nil {
		return Params{}, schemaError(err)
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// schemaError converts the first CUE error into a *ParamError.
func schemaError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ParamError{Field: "settings", Message: err.Error()}
	}

	first := errs[0]
	field := "settings"
	if path := first.Path(); len(path) > 0 {
		field = path[len(path)-1]
	}
	msg := strings.TrimSpace(cueerrors.Details(first, nil))
	return &ParamError{Field: field, Message: msg}
}
