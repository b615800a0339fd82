package change

import (
	"fmt"
	"strings"
)

// Type is the kind of change a file carries.
type Type int

const (
	// TypeApply runs once and is recorded in the ledger.
	TypeApply Type = iota
	// TypeApplyAlways runs on every invocation and is never recorded.
	TypeApplyAlways
	// TypeApplyOnChange runs again whenever its content hash differs from the recorded one.
	TypeApplyOnChange
	// TypeRevert undoes the apply change with the same logical key.
	TypeRevert
)

var typeNames = [...]string{
	TypeApply:         "apply",
	TypeApplyAlways:   "apply_always",
	TypeApplyOnChange: "apply_on_change",
	TypeRevert:        "revert",
}

// ApplyTypes are the change types that move a target forward.
var ApplyTypes = []Type{TypeApply, TypeApplyAlways, TypeApplyOnChange}

// RevertTypes are the change types that move a target backward.
var RevertTypes = []Type{TypeRevert}

// String returns the lower-cased name used in file names.
func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("type(%d)", int(t))
	}
	return typeNames[t]
}

// IsApply reports whether t moves a target forward.
func (t Type) IsApply() bool {
	return t == TypeApply || t == TypeApplyAlways || t == TypeApplyOnChange
}

// Recorded reports whether a successful execution of t leaves a ledger record.
func (t Type) Recorded() bool {
	return t == TypeApply || t == TypeApplyOnChange
}

// ParseType parses a lower-cased type name. Matching is case-insensitive.
func ParseType(s string) (Type, error) {
	lower := strings.ToLower(s)
	for i, name := range typeNames {
		if name == lower {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("unknown change type %q", s)
}
