// Package errors provides structured error types for invariant-go.
// It implements error classification, wrapping, and sensitive-data
// redaction for errors that may carry provider credentials.
package errors

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Kind represents the category of an error.
type Kind uint8

const (
	// KindUnknown indicates an error of unknown type.
	KindUnknown Kind = iota
	// KindParse indicates a malformed raw trace record.
	KindParse
	// KindBinding indicates an unresolved identifier or a cyclic
	// declaration dependency in a policy document.
	KindBinding
	// KindLookup indicates a dataflow query on an unregistered event or
	// a selector walk over an unsupported value.
	KindLookup
	// KindEvaluation indicates a predicate call failed at runtime.
	KindEvaluation
	// KindAttribute indicates a structured result was queried for an
	// attribute it does not carry.
	KindAttribute
	// KindConfig indicates a configuration error.
	KindConfig
	// KindAI indicates an LLM provider error.
	KindAI
	// KindValidation indicates invalid caller input.
	KindValidation
	// KindCanceled indicates the evaluation session was abandoned.
	KindCanceled
	// KindInternal indicates an internal error.
	KindInternal
)

// String returns a human-readable string for the error kind.
func (k Kind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindBinding:
		return "binding"
	case KindLookup:
		return "lookup"
	case KindEvaluation:
		return "evaluation"
	case KindAttribute:
		return "attribute"
	case KindConfig:
		return "configuration"
	case KindAI:
		return "ai"
	case KindValidation:
		return "validation"
	case KindCanceled:
		return "canceled"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the standard error type for invariant-go.
type Error struct {
	// Kind is the category of the error.
	Kind Kind
	// Op is the operation being performed when the error occurred.
	Op string
	// Message is a human-readable error message.
	Message string
	// Err is the underlying error.
	Err error
	// Details contains additional context about the error.
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches this error.
// For *Error targets without an Op, only the Kind is compared
// (sentinel error pattern); otherwise both Kind and Op must match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op == "" {
		return e.Kind == t.Kind
	}
	return e.Kind == t.Kind && e.Op == t.Op
}

// WithDetail adds a single detail to the error and returns it.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a new Error with the given kind and formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, kind Kind, op string, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(err error, kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// GetKind returns the Kind of an error, or KindUnknown for foreign errors.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind checks if an error is of a specific kind.
func IsKind(err error, kind Kind) bool {
	return GetKind(err) == kind
}

// Common error constructors for frequently used error types.

// Parse creates a trace parse error.
func Parse(op, message string) *Error {
	return &Error{Kind: KindParse, Op: op, Message: message}
}

// ParseRecord creates a parse error naming the offending record index.
func ParseRecord(op string, index int, message string) *Error {
	e := Newf(KindParse, "record %d: %s", index, message)
	e.Op = op
	return e.WithDetail("record", index)
}

// Binding creates a policy binding error.
func Binding(op, message string) *Error {
	return &Error{Kind: KindBinding, Op: op, Message: message}
}

// Lookup creates a lookup error.
func Lookup(op, message string) *Error {
	return &Error{Kind: KindLookup, Op: op, Message: message}
}

// Evaluation creates an evaluation error.
func Evaluation(op, message string) *Error {
	return &Error{Kind: KindEvaluation, Op: op, Message: message}
}

// EvaluationWrap wraps an error as an evaluation error.
func EvaluationWrap(err error, op, message string) *Error {
	return Wrap(err, KindEvaluation, op, message)
}

// Attribute creates an attribute error listing the valid attribute names.
func Attribute(op, name string, valid []string) *Error {
	e := Newf(KindAttribute, "unknown attribute %q (valid: %s)", name, strings.Join(valid, ", "))
	e.Op = op
	return e
}

// Config creates a configuration error.
func Config(op, message string) *Error {
	return &Error{Kind: KindConfig, Op: op, Message: message}
}

// ConfigWrap wraps an error as a configuration error.
func ConfigWrap(err error, op, message string) *Error {
	return Wrap(err, KindConfig, op, message)
}

// AI creates an LLM provider error.
func AI(op, message string) *Error {
	return &Error{Kind: KindAI, Op: op, Message: message}
}

// Validation creates a validation error.
func Validation(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

// Internal creates an internal error.
func Internal(op, message string) *Error {
	return &Error{Kind: KindInternal, Op: op, Message: message}
}

// Sensitive data redaction patterns.
// These patterns match common API keys and tokens that should never
// appear in error messages surfaced to callers or logs.
var sensitivePatterns = []*regexp.Regexp{
	// OpenAI API keys: sk-..., sk-proj-..., sk-svc-...; Anthropic: sk-ant-...
	regexp.MustCompile(`\bsk-(?:proj-|svc-|ant-)?[a-zA-Z0-9_-]{20,}\b`),
	// Google Gemini API keys: AIza...
	regexp.MustCompile(`\bAIza[a-zA-Z0-9_-]{35,}\b`),
	// Generic bearer tokens
	regexp.MustCompile(`\bBearer\s+[a-zA-Z0-9_-]{20,}\b`),
	// Basic auth with password in URL
	regexp.MustCompile(`://[^:]+:[^@]+@`),
}

// RedactSensitive removes sensitive information from a string.
func RedactSensitive(s string) string {
	result := s
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, "[REDACTED]")
	}
	return result
}

// RedactError creates a new error with sensitive data redacted from its
// message. If the error is nil, returns nil.
func RedactError(err error) error {
	if err == nil {
		return nil
	}
	redacted := RedactSensitive(err.Error())
	if redacted == err.Error() {
		return err
	}
	return fmt.Errorf("%s", redacted)
}

// AIWrapSafe wraps an error as a provider error with sensitive data
// redacted. Use this when the underlying error might contain API keys.
func AIWrapSafe(err error, op, message string) *Error {
	if err == nil {
		return AI(op, message)
	}
	return Wrap(RedactError(err), KindAI, op, message)
}
