package services

import (
	"errors"
	"strings"
)

// Failure classes attached to every error an external tool returns.
var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// ToolError is a failure of one step of an external tool invocation.
type ToolError struct {
	Class     error
	Tool      string
	Operation string
	Detail    string
	Err       error
}

func (e *ToolError) Error() string {
	class := e.Class
	if class == nil {
		class = ErrTransient
	}
	var b strings.Builder
	b.WriteString(class.Error())
	b.WriteString(": ")
	wrote := false
	for _, part := range []string{e.Tool, e.Operation, e.Detail} {
		if part == "" {
			continue
		}
		if wrote {
			b.WriteString(": ")
		}
		b.WriteString(part)
		wrote = true
	}
	if !wrote {
		b.WriteString("service failure")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the failure class and the cause to errors.Is.
func (e *ToolError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Class}
	}
	return []error{e.Class, e.Err}
}

// Wrap returns a *ToolError. A nil class is treated as ErrTransient.
func Wrap(class error, tool, operation, detail string, err error) error {
	if class == nil {
		class = ErrTransient
	}
	return &ToolError{
		Class:     class,
		Tool:      strings.TrimSpace(tool),
		Operation: strings.TrimSpace(operation),
		Detail:    strings.TrimSpace(detail),
		Err:       err,
	}
}

// Retryable reports whether a failure may succeed when the same input is
// processed again. Bad input and bad configuration never do.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	for _, fixed := range []error{ErrValidation, ErrConfiguration, ErrNotFound} {
		if errors.Is(err, fixed) {
			return false
		}
	}
	return true
}
