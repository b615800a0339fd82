package config

import "fmt"

// Error is a configuration problem: a missing key, an unparsable value or an
// unknown backend, dialect or connector type. It is never retried.
type Error struct {
	Key     string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Key != "" {
		msg = fmt.Sprintf("config %s: %s", e.Key, e.Message)
	} else {
		msg = "config: " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }
