package schema

import (
	"maps"

	"github.com/reoring/flowi"
	"github.com/reoring/flowi/i18n"
)

// Error is a shape failure. Its message is rendered from the i18n template of
// its code, for whatever label the caller settles on.
type Error struct {
	code   string
	params map[string]string
	// path locates the failure below the checked value, for example "[2]" or
	// ".name".
	path  string
	cause error
}

var (
	_ flowi.TemplatedError = (*Error)(nil)
	_ flowi.CodedError     = (*Error)(nil)
)

func newError(code string, params map[string]string) *Error {
	return &Error{code: code, params: params}
}

// Code returns the issue code (one of the flowi.Code* constants).
func (e *Error) Code() string { return e.code }

// Path returns the location of the failure inside the checked value.
func (e *Error) Path() string { return e.path }

// Params returns a copy of the template parameters.
func (e *Error) Params() map[string]string { return maps.Clone(e.params) }

// Render formats the message for label.
func (e *Error) Render(label string) string {
	data := make(map[string]string, len(e.params)+1)
	maps.Copy(data, e.params)
	data["label"] = label + e.path
	return i18n.T(e.code, data)
}

func (e *Error) Error() string { return e.Render(flowi.Placeholder) }

func (e *Error) Unwrap() error { return e.cause }

// under relocates a child failure below seg.
func under(err error, seg string) error {
	se, ok := err.(*Error)
	if !ok {
		return &Error{code: flowi.CodeCustom, path: seg, cause: err}
	}
	c := *se
	c.path = seg + c.path
	return &c
}
