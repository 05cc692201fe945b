// Package errors provides error types for tmplhub
package errors

import (
	"encoding/json"
	"fmt"
)

// TemplateError is a tmplhub error carrying a code and optional render context.
type TemplateError struct {
	Code     ErrorCode              `json:"code"`
	Message  string                 `json:"message"`
	Engine   string                 `json:"engine,omitempty"`
	Template string                 `json:"template,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	Cause error `json:"-"`
}

// New creates a TemplateError with the given code and message.
func New(code ErrorCode, message string) *TemplateError {
	return &TemplateError{Code: code, Message: message}
}

// Newf creates a TemplateError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *TemplateError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a TemplateError around cause.
func Wrap(code ErrorCode, message string, cause error) *TemplateError {
	return &TemplateError{Code: code, Message: message, Cause: cause}
}

// Error implements the error interface
func (e *TemplateError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Engine != "" {
		msg += fmt.Sprintf(" (engine: %s)", e.Engine)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause error
func (e *TemplateError) Unwrap() error {
	return e.Cause
}

// Is matches any TemplateError with the same code.
func (e *TemplateError) Is(target error) bool {
	if targetErr, ok := target.(*TemplateError); ok {
		return e.Code == targetErr.Code
	}
	return false
}

// MarshalJSON implements json.Marshaler
func (e *TemplateError) MarshalJSON() ([]byte, error) {
	type Alias TemplateError
	cause := ""
	if e.Cause != nil {
		cause = e.Cause.Error()
	}
	return json.Marshal(&struct {
		*Alias
		CauseMessage string `json:"cause_message,omitempty"`
	}{
		Alias:        (*Alias)(e),
		CauseMessage: cause,
	})
}

// WithCause adds a cause error
func (e *TemplateError) WithCause(cause error) *TemplateError {
	e.Cause = cause
	return e
}

// WithEngine sets the engine name
func (e *TemplateError) WithEngine(engine string) *TemplateError {
	e.Engine = engine
	return e
}

// WithTemplate sets the template name
func (e *TemplateError) WithTemplate(template string) *TemplateError {
	e.Template = template
	return e
}

// WithMetadata adds metadata
func (e *TemplateError) WithMetadata(key string, value interface{}) *TemplateError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// CodeOf returns the code of the first TemplateError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	for err != nil {
		if te, ok := err.(*TemplateError); ok {
			return te.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

// Sentinels for errors.Is comparisons. They match by code only.
var (
	ErrEngineMissing        = New(CodeEngineMissing, "template engine plugin missing")
	ErrEngineNotConfigured  = New(CodeEngineNotConfigured, "no engine with that name configured")
	ErrNamespaceRequired    = New(CodeNamespaceRequired, "namespace required")
	ErrContextUnavailable   = New(CodeContextUnavailable, "template context unavailable")
	ErrCacheNotConfigured   = New(CodeCacheNotConfigured, "cache not configured")
	ErrInvalidCacheType     = New(CodeInvalidCacheType, "invalid cache type")
	ErrInvalidCacheExpire   = New(CodeInvalidCacheExpire, "invalid cache expire")
	ErrInvalidConfig        = New(CodeInvalidConfig, "invalid configuration")
	ErrPluginLoadFailed     = New(CodePluginLoadFailed, "plugin load failed")
	ErrDependencyNotFound   = New(CodeDependencyNotFound, "dependency not found")
	ErrTemplateNotFound     = New(CodeTemplateNotFound, "template not found")
	ErrRenderFailed         = New(CodeRenderFailed, "render failed")
)

// MultiError represents multiple errors that occurred
type MultiError struct {
	Errors []error `json:"errors"`
}

// Error implements the error interface
func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("multiple errors occurred (%d errors): %v", len(e.Errors), e.Errors[0])
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e *MultiError) Unwrap() []error {
	return e.Errors
}

// Add adds an error to the multi-error
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// IsEmpty returns true if no errors are present
func (e *MultiError) IsEmpty() bool {
	return len(e.Errors) == 0
}

// ErrorOrNil returns the multi-error if it contains errors, otherwise nil
func (e *MultiError) ErrorOrNil() error {
	if e.IsEmpty() {
		return nil
	}
	return e
}
