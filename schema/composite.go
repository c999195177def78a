package schema

import (
	"maps"
	"slices"
	"sort"
	"strconv"

	"github.com/reoring/flowi"
)

// ArrayShape checks []any values element by element.
type ArrayShape struct {
	label    string
	item     flowi.Shape
	min, max int
}

var _ flowi.Shape = ArrayShape{}

// Array returns a shape accepting slices whose elements all satisfy item. A nil
// item accepts any element.
func Array(item flowi.Shape) ArrayShape { return ArrayShape{item: item, min: -1, max: -1} }

func (s ArrayShape) Label(name string) ArrayShape { s.label = name; return s }
func (s ArrayShape) Min(n int) ArrayShape         { s.min = n; return s }
func (s ArrayShape) Max(n int) ArrayShape         { s.max = n; return s }

func (s ArrayShape) Describe() flowi.Description { return flowi.Description{Label: s.label} }

func (s ArrayShape) Check(v any, opt flowi.CheckOptions) (any, error) {
	in, ok := v.([]any)
	if !ok {
		return v, newError(flowi.CodeInvalidType, map[string]string{"expected": "an array"})
	}
	if s.min >= 0 && len(in) < s.min {
		return v, newError(flowi.CodeTooFew, map[string]string{"limit": strconv.Itoa(s.min)})
	}
	if s.max >= 0 && len(in) > s.max {
		return v, newError(flowi.CodeTooMany, map[string]string{"limit": strconv.Itoa(s.max)})
	}
	if s.item == nil {
		return v, nil
	}
	var out []any
	for i, el := range in {
		got, err := s.item.Check(el, opt)
		if opt.Convert && got != nil {
			if out == nil {
				out = slices.Clone(in)
			}
			out[i] = got
		}
		if err != nil {
			return arrayResult(in, out), under(err, "["+strconv.Itoa(i)+"]")
		}
	}
	return arrayResult(in, out), nil
}

func arrayResult(in, out []any) []any {
	if out != nil {
		return out
	}
	return in
}

// Fields maps object keys to the shapes of their values.
type Fields map[string]flowi.Shape

// ObjectShape checks map[string]any records against per-key shapes.
type ObjectShape struct {
	label    string
	fields   Fields
	keys     []string
	required []string
}

var _ flowi.Shape = ObjectShape{}

// Object returns a shape for records with the given fields. Keys outside
// fields are rejected unless the caller allows unknown keys.
func Object(fields Fields) ObjectShape {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return ObjectShape{fields: maps.Clone(fields), keys: keys}
}

func (s ObjectShape) Label(name string) ObjectShape { s.label = name; return s }

// Required marks keys that must be present.
func (s ObjectShape) Required(keys ...string) ObjectShape {
	s.required = append(slices.Clone(s.required), keys...)
	return s
}

// Describe lists the declared keys so key maps can discover them.
func (s ObjectShape) Describe() flowi.Description {
	return flowi.Description{Label: s.label, Keys: slices.Clone(s.keys)}
}

func (s ObjectShape) Check(v any, opt flowi.CheckOptions) (any, error) {
	rec, ok := v.(map[string]any)
	if !ok {
		return v, newError(flowi.CodeInvalidType, map[string]string{"expected": "an object"})
	}
	for _, k := range s.required {
		if _, ok := rec[k]; !ok {
			return v, under(newError(flowi.CodeRequired, nil), "."+k)
		}
	}
	if !opt.AllowUnknown {
		recKeys := make([]string, 0, len(rec))
		for k := range rec {
			recKeys = append(recKeys, k)
		}
		sort.Strings(recKeys)
		for _, k := range recKeys {
			if _, ok := s.fields[k]; !ok {
				return v, under(newError(flowi.CodeUnknownKey, nil), "."+k)
			}
		}
	}
	var out map[string]any
	for _, k := range s.keys {
		val, ok := rec[k]
		if !ok {
			continue
		}
		got, err := s.fields[k].Check(val, opt)
		if opt.Convert && got != nil {
			if out == nil {
				out = maps.Clone(rec)
			}
			out[k] = got
		}
		if err != nil {
			return objectResult(rec, out, opt), under(err, "."+k)
		}
	}
	return objectResult(rec, out, opt), nil
}

func objectResult(rec, out map[string]any, opt flowi.CheckOptions) any {
	if opt.Convert && out != nil {
		return out
	}
	return rec
}
