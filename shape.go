package flowi

// CheckOptions are passed to a Shape on every check.
type CheckOptions struct {
	// Convert allows the shape to return a normalized value (trimmed, cased,
	// parsed) instead of rejecting non-canonical input.
	Convert bool
	// AllowUnknown lets keyed shapes accept record keys they do not declare.
	AllowUnknown bool
}

// Description is the static metadata of a Shape.
type Description struct {
	// Label is the human name declared on the shape, if any.
	Label string
	// Keys lists the child keys of a keyed shape, used for key discovery.
	Keys []string
}

// Shape is the contract of an external schema validator. Check returns the
// (possibly normalized) value together with an error when v does not conform.
// The returned value is meaningful even on failure when opt.Convert is set.
type Shape interface {
	Check(v any, opt CheckOptions) (any, error)
	Describe() Description
}

// TemplatedError is implemented by shape errors whose message can be rendered
// for a given label.
type TemplatedError interface {
	error
	Render(label string) string
}

// CodedError is implemented by errors carrying an issue code.
type CodedError interface {
	error
	Code() string
}
