// Package spec holds the pieces shared by the agent and topology documents:
// validation errors, layer descriptors and scope bookkeeping.
package spec

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

var (
	ErrUnknownType       = errors.New("unknown type")
	ErrDuplicateScope    = errors.New("duplicate scope")
	ErrDanglingReference = errors.New("dangling variable reference")
	ErrDuplicateVariable = errors.New("variable already defined")
	ErrMalformedSchedule = errors.New("malformed schedule")
	ErrInvalidValue      = errors.New("invalid value")
	ErrShapeMismatch     = errors.New("shape mismatch")
)

// FieldError ties a validation failure to the document path it was found at,
// e.g. "network_spec[1].units".
type FieldError struct {
	Path   string
	Err    error
	Detail string
}

func (e *FieldError) Error() string {
	var b strings.Builder
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Err.Error())
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Errorf builds a FieldError with a formatted detail message.
func Errorf(path string, kind error, format string, args ...any) error {
	return &FieldError{Path: path, Err: kind, Detail: fmt.Sprintf(format, args...)}
}

// Collector accumulates validation errors so a document reports every
// violation instead of the first one.
type Collector struct {
	err error
}

func (c *Collector) Add(err error) {
	if err == nil {
		return
	}
	c.err = multierr.Append(c.err, err)
}

func (c *Collector) Addf(path string, kind error, format string, args ...any) {
	c.Add(Errorf(path, kind, format, args...))
}

func (c *Collector) Err() error {
	return c.err
}

// Errors flattens an aggregated error into its individual failures.
func Errors(err error) []error {
	return multierr.Errors(err)
}

// Messages renders each failure of an aggregated error on its own line.
func Messages(err error) []string {
	errs := multierr.Errors(err)
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Error())
	}
	return out
}

// Join is a path helper: Join("network_spec", 2, "units") == "network_spec[2].units".
func Join(parts ...any) string {
	var b strings.Builder
	for _, p := range parts {
		switch v := p.(type) {
		case int:
			fmt.Fprintf(&b, "[%d]", v)
		case string:
			if v == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.WriteString(v)
		}
	}
	return b.String()
}
