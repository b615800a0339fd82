// Package secrets decodes configuration values that may reference secrets
// instead of carrying them inline.
//
// Supported forms:
//
//	plain:<value>         the literal value, never expanded further
//	${env:NAME}           replaced by the NAME environment variable
//
// Values without a recognised form are returned unchanged.
package secrets

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Decoder resolves a possibly-encoded configuration value.
type Decoder interface {
	Decode(value string) (string, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(value string) (string, error)

func (f DecoderFunc) Decode(value string) (string, error) { return f(value) }

const plainPrefix = "plain:"

var envRef = regexp.MustCompile(`\$\{env:([A-Za-z_][A-Za-z0-9_]*)\}`)

// MissingError reports a referenced environment variable that is not set.
type MissingError struct {
	Name string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("secret references environment variable %s, which is not set", e.Name)
}

// Env expands ${env:NAME} references using lookup.
func Env(lookup func(string) (string, bool)) Decoder {
	return DecoderFunc(func(value string) (string, error) {
		var missing error
		out := envRef.ReplaceAllStringFunc(value, func(ref string) string {
			name := envRef.FindStringSubmatch(ref)[1]
			v, ok := lookup(name)
			if !ok && missing == nil {
				missing = &MissingError{Name: name}
			}
			return v
		})
		if missing != nil {
			return "", missing
		}
		return out, nil
	})
}

// Default returns the decoder used by the CLI: plain: values are taken
// literally, everything else has its ${env:NAME} references expanded from the
// process environment.
func Default() Decoder {
	env := Env(os.LookupEnv)
	return DecoderFunc(func(value string) (string, error) {
		if v, ok := strings.CutPrefix(value, plainPrefix); ok {
			return v, nil
		}
		return env.Decode(value)
	})
}
