package flowi

import "go.uber.org/zap"

// UnknownPolicy controls how a KeyMap treats record keys it does not know.
type UnknownPolicy int

const (
	UnknownAllow    UnknownPolicy = iota // Keep unknown keys untouched.
	UnknownStrip                         // Drop unknown keys before validating.
	UnknownDisallow                      // Reject the first unknown key.
)

// String returns the policy name used by rule files and the CLI.
func (p UnknownPolicy) String() string {
	switch p {
	case UnknownStrip:
		return "strip"
	case UnknownDisallow:
		return "disallow"
	default:
		return "allow"
	}
}

// ParseUnknownPolicy maps "strip"/"disallow"/"allow" (or "") to a policy.
func ParseUnknownPolicy(s string) (UnknownPolicy, bool) {
	switch s {
	case "", "allow":
		return UnknownAllow, true
	case "strip":
		return UnknownStrip, true
	case "disallow":
		return UnknownDisallow, true
	}
	return UnknownAllow, false
}

// convertMode is the tri-state convert flag of a chain or key map.
type convertMode int

const (
	convertUnset convertMode = iota
	convertOn
	convertOff
)

func modeOf(on bool) convertMode {
	if on {
		return convertOn
	}
	return convertOff
}

func (m convertMode) resolve(fallback bool) bool {
	switch m {
	case convertOn:
		return true
	case convertOff:
		return false
	}
	return fallback
}

// Option configures a single evaluation call.
type Option func(*evalOptions)

type evalOptions struct {
	unknown    UnknownPolicy
	unknownSet bool
	convert    bool
	logger     *zap.Logger
}

func newEvalOptions(opts []Option) evalOptions {
	o := evalOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithUnknown sets the unknown-key policy of the top-level KeyMap for this call.
// It overrides the policy configured with KeyMapBuilder.Unknown.
func WithUnknown(p UnknownPolicy) Option {
	return func(o *evalOptions) {
		o.unknown = p
		o.unknownSet = true
	}
}

// WithStrip is a shortcut for WithUnknown(UnknownStrip).
func WithStrip() Option { return WithUnknown(UnknownStrip) }

// WithConvert sets the ambient convert default used by chains and key maps
// whose own convert flag is unset.
func WithConvert(on bool) Option {
	return func(o *evalOptions) { o.convert = on }
}

// WithLogger attaches a logger receiving debug events about failing and
// suspended stages.
func WithLogger(l *zap.Logger) Option {
	return func(o *evalOptions) {
		if l != nil {
			o.logger = l
		}
	}
}
