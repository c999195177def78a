package schema

import (
	"strings"
	"time"

	"github.com/reoring/flowi"
)

// BoolShape checks booleans. Convert mode also accepts "true" and "false".
type BoolShape struct{ label string }

var _ flowi.Shape = BoolShape{}

func Bool() BoolShape { return BoolShape{} }

func (s BoolShape) Label(name string) BoolShape { s.label = name; return s }
func (s BoolShape) Describe() flowi.Description { return flowi.Description{Label: s.label} }

func (s BoolShape) Check(v any, opt flowi.CheckOptions) (any, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		if opt.Convert {
			switch strings.ToLower(strings.TrimSpace(b)) {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
		}
	}
	return v, newError(flowi.CodeInvalidType, map[string]string{"expected": "a boolean"})
}

// TimeShape checks time.Time values. Convert mode parses RFC 3339 strings and
// normalizes the result to UTC.
type TimeShape struct {
	label         string
	after, before *time.Time
}

var _ flowi.Shape = TimeShape{}

func Time() TimeShape { return TimeShape{} }

func (s TimeShape) Label(name string) TimeShape  { s.label = name; return s }
func (s TimeShape) After(t time.Time) TimeShape  { s.after = &t; return s }
func (s TimeShape) Before(t time.Time) TimeShape { s.before = &t; return s }
func (s TimeShape) Describe() flowi.Description  { return flowi.Description{Label: s.label} }

func (s TimeShape) Check(v any, opt flowi.CheckOptions) (any, error) {
	var t time.Time
	switch x := v.(type) {
	case time.Time:
		t = x
	case string:
		if !opt.Convert {
			return v, newError(flowi.CodeInvalidType, map[string]string{"expected": "a time"})
		}
		p, err := parseRFC3339(x)
		if err != nil {
			e := newError(flowi.CodeInvalidFormat, map[string]string{"format": "an RFC 3339 time"})
			e.cause = err
			return v, e
		}
		t = p.UTC()
	default:
		return v, newError(flowi.CodeInvalidType, map[string]string{"expected": "a time"})
	}
	var out any = v
	if opt.Convert {
		out = t
	}
	if s.after != nil && !t.After(*s.after) {
		return out, newError(flowi.CodeTooSmall, map[string]string{"limit": s.after.UTC().Format(time.RFC3339Nano)})
	}
	if s.before != nil && !t.Before(*s.before) {
		return out, newError(flowi.CodeTooBig, map[string]string{"limit": s.before.UTC().Format(time.RFC3339Nano)})
	}
	return out, nil
}

func parseRFC3339(s string) (time.Time, error) {
	// RFC3339Nano accepts optional fractional seconds.
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		if t2, err2 := time.Parse(time.RFC3339, s); err2 == nil {
			return t2, nil
		}
		return time.Time{}, err
	}
	return t, nil
}

// AnyShape accepts every value, including nil.
type AnyShape struct{ label string }

var _ flowi.Shape = AnyShape{}

func Any() AnyShape { return AnyShape{} }

func (s AnyShape) Label(name string) AnyShape  { s.label = name; return s }
func (s AnyShape) Describe() flowi.Description { return flowi.Description{Label: s.label} }

func (s AnyShape) Check(v any, _ flowi.CheckOptions) (any, error) { return v, nil }
