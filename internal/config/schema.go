package config

import (
	_ "embed"
	"errors"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource string

// validateFile checks a parsed configuration file against #Config. The
// schema is closed, so unknown (usually misspelled) keys are rejected.
func validateFile(path string, raw map[string]any) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return &Error{Message: "compile configuration schema", Err: err}
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	data := ctx.Encode(raw)
	if err := data.Err(); err != nil {
		return &Error{Key: path, Message: "encode configuration file", Err: err}
	}

	if err := def.Unify(data).Validate(); err != nil {
		return &Error{Key: path, Message: "invalid configuration file", Err: flatten(err)}
	}
	return nil
}

// flatten keeps one line per schema violation.
func flatten(err error) error {
	list := cueerrors.Errors(err)
	if len(list) <= 1 {
		return err
	}
	errs := make([]error, len(list))
	for i, e := range list {
		errs[i] = e
	}
	return errors.Join(errs...)
}
