package schema

import (
	"net/mail"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/reoring/flowi"
)

// StringShape checks strings. Methods return modified copies.
type StringShape struct {
	label        string
	min, max     int
	length       int
	pattern      *regexp.Regexp
	patternName  string
	trim         bool
	lower, upper bool
	uuid         bool
	email        bool
	oneOf        []string
}

var _ flowi.Shape = StringShape{}

// String returns a shape accepting any string.
func String() StringShape { return StringShape{min: -1, max: -1, length: -1} }

func (s StringShape) Label(name string) StringShape { s.label = name; return s }
func (s StringShape) Min(n int) StringShape         { s.min = n; return s }
func (s StringShape) Max(n int) StringShape         { s.max = n; return s }
func (s StringShape) Len(n int) StringShape         { s.length = n; return s }

// Trim requires no surrounding whitespace; convert mode trims instead.
func (s StringShape) Trim() StringShape { s.trim = true; return s }

// Lowercase requires a lowercase string; convert mode lowercases instead.
func (s StringShape) Lowercase() StringShape { s.lower, s.upper = true, false; return s }

// Uppercase requires an uppercase string; convert mode uppercases instead.
func (s StringShape) Uppercase() StringShape { s.upper, s.lower = true, false; return s }

// Pattern requires a match of re. name is shown in messages when set.
func (s StringShape) Pattern(re *regexp.Regexp, name ...string) StringShape {
	s.pattern = re
	s.patternName = ""
	if len(name) > 0 {
		s.patternName = name[0]
	}
	return s
}

// UUID requires a UUID; convert mode canonicalizes it to the lowercase hyphenated form.
func (s StringShape) UUID() StringShape { s.uuid = true; return s }

// Email requires a bare address such as "ann@example.com".
func (s StringShape) Email() StringShape { s.email = true; return s }

// OneOf restricts the value to the listed strings.
func (s StringShape) OneOf(values ...string) StringShape {
	s.oneOf = slices.Clone(values)
	return s
}

func (s StringShape) Describe() flowi.Description { return flowi.Description{Label: s.label} }

func (s StringShape) Check(v any, opt flowi.CheckOptions) (any, error) {
	str, ok := v.(string)
	if !ok {
		return v, newError(flowi.CodeInvalidType, map[string]string{"expected": "a string"})
	}
	if opt.Convert {
		str = s.normalize(str)
	} else if err := s.checkCanonical(str); err != nil {
		return str, err
	}
	n := utf8.RuneCountInString(str)
	switch {
	case s.length >= 0 && n != s.length:
		code := flowi.CodeTooShort
		if n > s.length {
			code = flowi.CodeTooLong
		}
		return str, newError(code, map[string]string{"limit": strconv.Itoa(s.length)})
	case s.min >= 0 && n < s.min:
		return str, newError(flowi.CodeTooShort, map[string]string{"limit": strconv.Itoa(s.min)})
	case s.max >= 0 && n > s.max:
		return str, newError(flowi.CodeTooLong, map[string]string{"limit": strconv.Itoa(s.max)})
	}
	if s.pattern != nil && !s.pattern.MatchString(str) {
		if s.patternName != "" {
			return str, newError(flowi.CodeInvalidFormat, map[string]string{"format": s.patternName})
		}
		return str, newError(flowi.CodePattern, nil)
	}
	if s.uuid {
		u, err := uuid.Parse(str)
		if err != nil {
			e := newError(flowi.CodeInvalidFormat, map[string]string{"format": "a valid UUID"})
			e.cause = err
			return str, e
		}
		if opt.Convert {
			str = u.String()
		}
	}
	if s.email {
		if a, err := mail.ParseAddress(str); err != nil || a.Address != str {
			return str, newError(flowi.CodeInvalidFormat, map[string]string{"format": "an email address"})
		}
	}
	if len(s.oneOf) > 0 && !slices.Contains(s.oneOf, str) {
		return str, newError(flowi.CodeInvalidEnum, map[string]string{"values": strings.Join(s.oneOf, ", ")})
	}
	return str, nil
}

func (s StringShape) normalize(str string) string {
	if s.trim {
		str = strings.TrimSpace(str)
	}
	switch {
	case s.lower:
		str = strings.ToLower(str)
	case s.upper:
		str = strings.ToUpper(str)
	}
	return str
}

func (s StringShape) checkCanonical(str string) error {
	switch {
	case s.trim && strings.TrimSpace(str) != str:
		return newError(flowi.CodeInvalidFormat, map[string]string{"format": "trimmed"})
	case s.lower && strings.ToLower(str) != str:
		return newError(flowi.CodeInvalidFormat, map[string]string{"format": "lowercase"})
	case s.upper && strings.ToUpper(str) != str:
		return newError(flowi.CodeInvalidFormat, map[string]string{"format": "uppercase"})
	}
	return nil
}
