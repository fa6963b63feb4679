// Package compiler defines the contract of the external query compiler and
// an adapter that drives a compiler executable.
package compiler

import (
	"context"
	"fmt"
	"strings"
)

// Compiler turns query source text into SQL.
//
// A source that does not compile is reported as a *Error carrying at least one
// diagnostic. Any other error means the compiler itself could not run.
type Compiler interface {
	Compile(ctx context.Context, source string) (string, error)
}

// Func adapts an ordinary function to the Compiler interface.
type Func func(ctx context.Context, source string) (string, error)

// Compile calls f.
func (f Func) Compile(ctx context.Context, source string) (string, error) {
	return f(ctx, source)
}

// Span is a byte range into the source text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Location is a line/column range into the source text. Values are zero based.
type Location struct {
	StartLine   int  `json:"start_line"`
	StartColumn int  `json:"start_col"`
	EndLine     *int `json:"end_line,omitempty"`
	EndColumn   *int `json:"end_col,omitempty"`
}

// Diagnostic is one structured compile error.
type Diagnostic struct {
	Kind     string    `json:"kind,omitempty"`
	Code     string    `json:"code,omitempty"`
	Reason   string    `json:"reason"`
	Hints    []string  `json:"hints,omitempty"`
	Span     *Span     `json:"span,omitempty"`
	Display  string    `json:"display,omitempty"`
	Location *Location `json:"location,omitempty"`
}

// Message returns the human-readable text of the diagnostic, preferring the
// pre-formatted display string over the bare reason.
func (d Diagnostic) Message() string {
	if d.Display != "" {
		return d.Display
	}
	return d.Reason
}

// Error is the set of diagnostics produced by a failed compile.
type Error struct {
	Diagnostics []Diagnostic
}

// Error implements error.
func (e *Error) Error() string {
	switch len(e.Diagnostics) {
	case 0:
		return "compile failed"
	case 1:
		return e.Diagnostics[0].Reason
	default:
		return fmt.Sprintf("%s (and %d more)", e.Diagnostics[0].Reason, len(e.Diagnostics)-1)
	}
}

// First returns the first diagnostic.
func (e *Error) First() Diagnostic {
	if len(e.Diagnostics) == 0 {
		return Diagnostic{Reason: "compile failed"}
	}
	return e.Diagnostics[0]
}

// NewError builds an *Error from reasons, one diagnostic per reason.
func NewError(reasons ...string) *Error {
	diags := make([]Diagnostic, 0, len(reasons))
	for _, r := range reasons {
		diags = append(diags, Diagnostic{Reason: strings.TrimSpace(r)})
	}
	return &Error{Diagnostics: diags}
}
