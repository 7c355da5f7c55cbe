package model

import (
	"errors"
	"fmt"
	"strings"
)

// Definition errors are detected while compiling a pipeline and abort it
// before any job runs. Match them with errors.Is.
var (
	ErrUnknownTemplate        = errors.New("unknown template")
	ErrMissingParameter       = errors.New("missing parameter")
	ErrUnknownParameter       = errors.New("unknown parameter")
	ErrTemplateRecursionLimit = errors.New("template recursion limit exceeded")
	ErrDuplicateTemplate      = errors.New("duplicate template")
	ErrDuplicateJobName       = errors.New("duplicate job name")
	ErrEmptyMatrix            = errors.New("empty matrix")
	ErrInvalidTemplate        = errors.New("invalid template")
	ErrUnresolvedDependency   = errors.New("unresolved dependency")
	ErrDependencyCycle        = errors.New("dependency cycle")
	ErrInvalidCondition       = errors.New("invalid condition")
	ErrInvalidDeclaration     = errors.New("invalid declaration")
)

// DefinitionError carries the offending job or template name
type DefinitionError struct {
	Kind    error
	Subject string
	Detail  string
	Cycle   []string
}

// NewDefinitionError builds a DefinitionError of the given kind
func NewDefinitionError(kind error, subject, format string, args ...any) *DefinitionError {
	return &DefinitionError{
		Kind:    kind,
		Subject: subject,
		Detail:  fmt.Sprintf(format, args...),
	}
}

func (e *DefinitionError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.Error())
	if e.Subject != "" {
		fmt.Fprintf(&sb, " %q", e.Subject)
	}
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if len(e.Cycle) > 0 {
		sb.WriteString(" [")
		sb.WriteString(strings.Join(e.Cycle, " -> "))
		sb.WriteString("]")
	}
	return sb.String()
}

func (e *DefinitionError) Unwrap() error {
	return e.Kind
}

// IsDefinitionError reports whether err aborts the pipeline at build time
func IsDefinitionError(err error) bool {
	var de *DefinitionError
	return errors.As(err, &de)
}
