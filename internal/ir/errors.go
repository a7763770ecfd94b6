package ir

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// FixtureError is the single error type surfaced by fixture operations.
// Callers branch on Code; Cause keeps the underlying database or template
// error for logs.
type FixtureError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Key is the fixture being resolved or registered, if any.
	Key FixtureKey

	// Message is a human-readable description.
	Message string

	// Path is the dependency chain for cyclic dependency errors, outermost
	// first, ending with the key that was requested a second time.
	Path []FixtureKey

	// Cause is the wrapped underlying error.
	Cause error
}

// ErrorCode categorizes fixture errors.
type ErrorCode string

const (
	// ErrCodeNotRegistered indicates no recipe exists for the requested key.
	ErrCodeNotRegistered ErrorCode = "NOT_REGISTERED"

	// ErrCodeCyclicDependency indicates a recipe transitively requested itself.
	ErrCodeCyclicDependency ErrorCode = "CYCLIC_DEPENDENCY"

	// ErrCodeGenerationFailure indicates the generation expression failed.
	ErrCodeGenerationFailure ErrorCode = "GENERATION_FAILURE"

	// ErrCodeInvalidRecipeList indicates a register call was rejected.
	ErrCodeInvalidRecipeList ErrorCode = "INVALID_RECIPE_LIST"

	// ErrCodePermissionDenied indicates the caller touched engine-owned state
	// without going through the engine.
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// ErrCodeAdmissionFailed indicates the per-key admission wait expired.
	ErrCodeAdmissionFailed ErrorCode = "ADMISSION_FAILED"

	// ErrCodeNotInstalled indicates the engine has not been installed.
	ErrCodeNotInstalled ErrorCode = "NOT_INSTALLED"
)

// Error implements the error interface.
func (e *FixtureError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Key.EntityType != "" {
		fmt.Fprintf(&b, " (key=%s)", e.Key)
	}
	if len(e.Path) > 0 {
		b.WriteString(" [")
		b.WriteString(FormatPath(e.Path))
		b.WriteString("]")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *FixtureError) Unwrap() error {
	return e.Cause
}

// FormatPath renders a dependency path as "a/x -> b/y -> a/x".
func FormatPath(path []FixtureKey) string {
	parts := make([]string, len(path))
	for i, k := range path {
		parts[i] = k.String()
	}
	return strings.Join(parts, " -> ")
}

// CodeOf returns the code of the outermost FixtureError in err's chain, or
// the empty string.
func CodeOf(err error) ErrorCode {
	var fe *FixtureError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

func hasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// IsNotRegistered reports whether err is a NOT_REGISTERED error.
func IsNotRegistered(err error) bool { return hasCode(err, ErrCodeNotRegistered) }

// IsCyclicDependency reports whether err is a CYCLIC_DEPENDENCY error.
func IsCyclicDependency(err error) bool { return hasCode(err, ErrCodeCyclicDependency) }

// IsGenerationFailure reports whether err is a GENERATION_FAILURE error.
func IsGenerationFailure(err error) bool { return hasCode(err, ErrCodeGenerationFailure) }

// IsInvalidRecipeList reports whether err is an INVALID_RECIPE_LIST error.
func IsInvalidRecipeList(err error) bool { return hasCode(err, ErrCodeInvalidRecipeList) }

// IsPermissionDenied reports whether err is a PERMISSION_DENIED error.
func IsPermissionDenied(err error) bool { return hasCode(err, ErrCodePermissionDenied) }

// IsAdmissionFailed reports whether err is an ADMISSION_FAILED error.
func IsAdmissionFailed(err error) bool { return hasCode(err, ErrCodeAdmissionFailed) }

// IsNotInstalled reports whether err is a NOT_INSTALLED error.
func IsNotInstalled(err error) bool { return hasCode(err, ErrCodeNotInstalled) }

// NewNotRegistered creates a NOT_REGISTERED error.
func NewNotRegistered(key FixtureKey) *FixtureError {
	return &FixtureError{
		Code:    ErrCodeNotRegistered,
		Key:     key,
		Message: "no recipe registered",
	}
}

// NewCyclicDependency creates a CYCLIC_DEPENDENCY error for the given path.
func NewCyclicDependency(key FixtureKey, path []FixtureKey) *FixtureError {
	return &FixtureError{
		Code:    ErrCodeCyclicDependency,
		Key:     key,
		Message: "recipe depends on itself",
		Path:    slices.Clone(path),
	}
}

// NewGenerationFailure wraps cause as a GENERATION_FAILURE.
func NewGenerationFailure(key FixtureKey, cause error) *FixtureError {
	return &FixtureError{
		Code:    ErrCodeGenerationFailure,
		Key:     key,
		Message: "generation expression failed",
		Cause:   cause,
	}
}

// NewInvalidRecipeList creates an INVALID_RECIPE_LIST error.
func NewInvalidRecipeList(entityType, format string, args ...any) *FixtureError {
	return &FixtureError{
		Code:    ErrCodeInvalidRecipeList,
		Key:     FixtureKey{EntityType: entityType},
		Message: fmt.Sprintf(format, args...),
	}
}

// NewPermissionDenied wraps cause as a PERMISSION_DENIED error.
func NewPermissionDenied(key FixtureKey, cause error) *FixtureError {
	return &FixtureError{
		Code:    ErrCodePermissionDenied,
		Key:     key,
		Message: "access to engine-owned state denied",
		Cause:   cause,
	}
}

// NewAdmissionFailed wraps cause as an ADMISSION_FAILED error.
func NewAdmissionFailed(key FixtureKey, cause error) *FixtureError {
	return &FixtureError{
		Code:    ErrCodeAdmissionFailed,
		Key:     key,
		Message: "timed out waiting for concurrent resolution",
		Cause:   cause,
	}
}

// NewNotInstalled creates a NOT_INSTALLED error.
func NewNotInstalled(cause error) *FixtureError {
	return &FixtureError{
		Code:    ErrCodeNotInstalled,
		Message: "fixture engine is not installed",
		Cause:   cause,
	}
}
