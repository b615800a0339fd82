package change

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ID is the semantic identity of a change file.
//
// Two IDs are equal iff all seven fields are equal, so ID is usable as a map key.
type ID struct {
	ParentDirectory string
	OrderString     string
	Description     string
	Environment     string
	Type            Type
	Connector       string
	Extension       string
}

// Key is the logical identity of a change: every ID field except its Type.
// An apply and the revert that undoes it share a Key.
type Key struct {
	ParentDirectory string
	OrderString     string
	Description     string
	Environment     string
	Connector       string
	Extension       string
}

// ParseError reports a file or directory name that violates the naming convention.
type ParseError struct {
	Name   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid change file name %q: %s", e.Name, e.Reason)
}

// Order returns the numeric ordering key. The order string is validated by
// Parse and ParseFileName, so the error is only reachable for hand-built IDs.
func (id ID) Order() (int64, error) {
	n, err := strconv.ParseInt(id.OrderString, 10, 64)
	if err != nil {
		return 0, &ParseError{Name: id.FileName(), Reason: "order is not an integer"}
	}
	return n, nil
}

// Key projects the ID onto its type-independent logical key.
func (id ID) Key() Key {
	return Key{
		ParentDirectory: id.ParentDirectory,
		OrderString:     id.OrderString,
		Description:     id.Description,
		Environment:     id.Environment,
		Connector:       id.Connector,
		Extension:       id.Extension,
	}
}

// FileName renders the file name part of the canonical form.
func (id ID) FileName() string {
	return strings.Join([]string{
		id.OrderString,
		id.Description,
		id.Environment,
		id.Type.String(),
		id.Connector,
		id.Extension,
	}, ".")
}

// String renders the canonical, round-trippable form used as the ledger key.
func (id ID) String() string {
	if id.ParentDirectory == "" {
		return id.FileName()
	}
	return id.ParentDirectory + "/" + id.FileName()
}

// Parse parses a canonical ID as produced by String.
func Parse(s string) (ID, error) {
	dir, name := "", s
	if i := strings.LastIndex(s, "/"); i >= 0 {
		dir, name = s[:i], s[i+1:]
	}
	return ParseFileName(dir, name)
}

// ParseFileName parses a change file name found in directory dir, given
// relative to the catalog root with forward slashes.
func ParseFileName(dir, name string) (ID, error) {
	name = norm.NFC.String(name)
	dir = norm.NFC.String(path.Clean("/" + dir))[1:]

	segments := strings.Split(name, ".")
	if len(segments) < 5 {
		return ID{}, &ParseError{Name: name, Reason: "expected <order>.<description>[.<environment>].<type>.<connector>.<extension>"}
	}

	n := len(segments)
	id := ID{
		ParentDirectory: dir,
		OrderString:     segments[0],
		Connector:       segments[n-2],
		Extension:       segments[n-1],
	}

	if _, err := strconv.ParseInt(id.OrderString, 10, 64); err != nil {
		return ID{}, &ParseError{Name: name, Reason: fmt.Sprintf("order %q is not an integer", id.OrderString)}
	}

	t, err := ParseType(segments[n-3])
	if err != nil {
		return ID{}, &ParseError{Name: name, Reason: err.Error()}
	}
	id.Type = t

	// Between the order and the type sit the description and, when there are
	// at least two segments, a trailing environment (possibly empty).
	middle := segments[1 : n-3]
	if len(middle) == 1 {
		id.Description = middle[0]
	} else {
		id.Description = strings.Join(middle[:len(middle)-1], ".")
		id.Environment = middle[len(middle)-1]
	}

	if id.Description == "" {
		return ID{}, &ParseError{Name: name, Reason: "description is empty"}
	}
	if id.Connector == "" {
		return ID{}, &ParseError{Name: name, Reason: "connector is empty"}
	}
	if id.Extension == "" {
		return ID{}, &ParseError{Name: name, Reason: "extension is empty"}
	}
	return id, nil
}

// AppliesTo reports whether the change is eligible in environment env.
// Changes without an environment apply everywhere.
func (id ID) AppliesTo(env string) bool {
	return id.Environment == "" || id.Environment == env
}
