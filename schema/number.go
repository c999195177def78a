package schema

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/reoring/flowi"
)

// NumberShape checks numbers of any Go numeric kind and json.Number.
type NumberShape struct {
	label    string
	min, max *float64
	integer  bool
	positive bool
}

var _ flowi.Shape = NumberShape{}

// Number returns a shape accepting any finite number. In convert mode numeric
// strings and json.Number values are parsed into float64.
func Number() NumberShape { return NumberShape{} }

func (s NumberShape) Label(name string) NumberShape { s.label = name; return s }
func (s NumberShape) Min(n float64) NumberShape     { s.min = &n; return s }
func (s NumberShape) Max(n float64) NumberShape     { s.max = &n; return s }
func (s NumberShape) Integer() NumberShape          { s.integer = true; return s }
func (s NumberShape) Positive() NumberShape         { s.positive = true; return s }

func (s NumberShape) Describe() flowi.Description { return flowi.Description{Label: s.label} }

func (s NumberShape) Check(v any, opt flowi.CheckOptions) (any, error) {
	f, ok := toFloat(v, opt.Convert)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return v, newError(flowi.CodeInvalidType, map[string]string{"expected": "a number"})
	}
	out := v
	if opt.Convert {
		switch v.(type) {
		case string, json.Number:
			out = f
		}
	}
	switch {
	case s.integer && f != math.Trunc(f):
		return out, newError(flowi.CodeInvalidType, map[string]string{"expected": "an integer"})
	case s.positive && f <= 0:
		return out, newError(flowi.CodeTooSmall, map[string]string{"limit": "a positive number"})
	case s.min != nil && f < *s.min:
		return out, newError(flowi.CodeTooSmall, map[string]string{"limit": formatFloat(*s.min)})
	case s.max != nil && f > *s.max:
		return out, newError(flowi.CodeTooBig, map[string]string{"limit": formatFloat(*s.max)})
	}
	return out, nil
}

func toFloat(v any, convert bool) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		if !convert {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
