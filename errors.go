package flowi

import (
	"errors"
	"strings"
)

// Issue codes (exported consts for IDE completion and type safety by convention)
const (
	CodeInvalidType   = "invalid_type"
	CodeRequired      = "required"
	CodeForbidden     = "forbidden"
	CodeUnknownKey    = "unknown_key"
	CodeTooSmall      = "too_small"
	CodeTooBig        = "too_big"
	CodeTooShort      = "too_short"
	CodeTooLong       = "too_long"
	CodeTooFew        = "too_few"
	CodeTooMany       = "too_many"
	CodePattern       = "pattern"
	CodeInvalidEnum   = "invalid_enum"
	CodeInvalidFormat = "invalid_format"
	// Caller predicates that fail with a plain error.
	CodeCustom = "custom"
	// Dependency temporary/unavailable errors (for mapping to 5xx at API layer)
	CodeDependencyUnavailable = "dependency_unavailable"
)

// Status classifies a ValidationError for transport layers.
type Status string

const (
	StatusBadInput    Status = "bad_input"
	StatusUnavailable Status = "unavailable"
)

// Placeholder is the generic label rendered into messages whose value has no
// label yet. It is replaced once a label or key becomes known.
const Placeholder = "Value"

// Composition errors, returned by Build and raised by MustBuild.
var (
	ErrInvalidValidator = errors.New("flowi: no valid shape, chain, keymap, or function was provided")
	ErrInvalidMessage   = errors.New("flowi: invalid override message")
	ErrInvalidKeys      = errors.New("flowi: invalid key list")
	ErrInvalidLabels    = errors.New("flowi: labels must map keys to non-empty strings")
)

// ErrAsyncStage is returned by the synchronous entry points when a stage would
// have to suspend.
var ErrAsyncStage = errors.New("flowi: use the async validation functions when using any async function")

// ValidationError is the single error type describing a failed validation.
type ValidationError struct {
	// Message is the user-facing message.
	Message string
	// Note keeps the original message before any override, for diagnostics.
	Note string
	// IsExplicit is set once a caller-supplied message was applied; the message
	// is never overwritten afterwards.
	IsExplicit bool
	// Label is the human name of the offending value or key (nearest wins).
	Label string
	// Key is the bracketed key path, built while the error leaves nested
	// key maps (for example "a[b]").
	Key    string
	Status Status
	Code   string
	Cause  error

	// templated reports that Message/Note still contain Placeholder.
	templated bool
	// render re-renders a shape message for a label; set for shape errors.
	render func(label string) string
}

// NewValidationError returns a ValidationError with the default status and
// code. Messages containing Placeholder are relabeled as the error propagates.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		Message:   message,
		Note:      message,
		Status:    StatusBadInput,
		Code:      CodeCustom,
		templated: strings.Contains(message, Placeholder),
	}
}

func (e *ValidationError) Error() string { return e.Message }

// Unwrap returns the underlying cause, if any.
func (e *ValidationError) Unwrap() error { return e.Cause }

// AsValidationError extracts a *ValidationError from err using errors.As.
func AsValidationError(err error) (*ValidationError, bool) {
	if err == nil {
		return nil, false
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// clone returns a shallow copy. Failures returned by callers are annotated on
// the copy, never on the caller's value.
func (e *ValidationError) clone() *ValidationError {
	c := *e
	return &c
}

// normalize fills the defaults of errors built as struct literals.
func (e *ValidationError) normalize() *ValidationError {
	if e.Status == "" {
		e.Status = StatusBadInput
	}
	if e.Code == "" {
		e.Code = CodeCustom
	}
	if e.Note == "" {
		e.Note = e.Message
		e.templated = e.Label == "" && strings.Contains(e.Message, Placeholder)
	}
	return e
}

// substitute replaces Placeholder with name in a still-templated message.
func (e *ValidationError) substitute(name string) {
	if !e.templated || name == "" {
		return
	}
	note := strings.Replace(e.Note, Placeholder, name, 1)
	if e.render != nil {
		note = e.render(name)
	}
	if !e.IsExplicit {
		e.Message = note
	}
	e.Note = note
	e.templated = false
}

// backfillLabel attaches label when the error has none yet.
func (e *ValidationError) backfillLabel(label string) {
	if e.Label != "" || label == "" {
		return
	}
	e.Label = label
	e.substitute(label)
}

// override applies a caller message unless an explicit one is already set.
func (e *ValidationError) override(msg string) {
	if msg == "" || e.IsExplicit {
		return
	}
	e.Message = msg
	e.IsExplicit = true
}

// prefixKey records that the error happened under key.
func (e *ValidationError) prefixKey(key string) {
	if e.Key == "" {
		e.Key = key
		return
	}
	e.Key = key + "[" + e.Key + "]"
}
