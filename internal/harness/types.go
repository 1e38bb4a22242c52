package harness

import (
	"fmt"
	"strings"
)

// TraceEvent is the rendered outcome of one flow step.
type TraceEvent struct {
	Step    int    `json:"step"`
	Device  string `json:"device"`
	Op      string `json:"op"`
	Outcome string `json:"outcome"`
}

// String renders the event as one trace line, e.g.
// "03 front scan -> ok id-0001 attended already".
func (e TraceEvent) String() string {
	return fmt.Sprintf("%02d %s %s -> %s", e.Step, e.Device, e.Op, e.Outcome)
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace has one event per flow step.
	Trace []TraceEvent `json:"trace"`

	// Roster is the authority's final state, one line per participant.
	Roster []string `json:"roster"`

	// Errors lists every failed expectation.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Roster: []string{},
		Errors: []string{},
	}
}

// AddError records a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Render returns the trace and final roster as the golden file text.
func (r *Result) Render(name string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", name)
	for _, e := range r.Trace {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	b.WriteString("authority:\n")
	for _, line := range r.Roster {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}
