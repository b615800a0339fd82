package harness

// TraceEvent records one step of a scenario run.
type TraceEvent struct {
	Seq     int64  `json:"seq"`
	Command string `json:"command"`
	// Pending lists what the command resolved: pending changes for apply,
	// revert and pending, the file list for catalog.
	Pending []string `json:"pending,omitempty"`
	// Executed lists the change files the connector ran, in order.
	Executed []string `json:"executed,omitempty"`
	// Error is the error class, empty on success.
	Error  string `json:"error,omitempty"`
	Holder string `json:"holder,omitempty"`
	// Ledger is the ledger after the step, in apply order.
	Ledger []string `json:"ledger"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass   bool         `json:"pass"`
	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// LockHeld reports whether the lock was held when the run ended.
	LockHeld bool `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// executed returns every change executed across the run, in order.
func (r *Result) executed() []string {
	var out []string
	for _, ev := range r.Trace {
		out = append(out, ev.Executed...)
	}
	return out
}
