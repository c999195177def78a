package flowi

import (
	"fmt"
	"sort"
)

// Schema maps record keys to validators. Keys are evaluated in ascending order;
// use Fields when the evaluation order matters. A key absent from the record is
// skipped; a key present with a nil value (JSON null) is validated.
type Schema map[string]any

// Field is one key of an ordered schema. Message, when set, overrides the
// message of failures produced by Validator.
type Field struct {
	Key       string
	Validator any
	Message   string
}

// Fields is a schema evaluated in declaration order. Absent keys are skipped
// and present nil values are validated, as with Schema.
type Fields []Field

// KeySelector selects the keys a Require or Forbid rule applies to.
type KeySelector struct {
	mode selectorMode
	keys []string
}

type selectorMode int

const (
	selectOnly selectorMode = iota
	selectAll
	selectNone
)

var (
	// AllKeys applies a rule to every key the key map knows when the rule is
	// added, or to the Use allow-list when one is set.
	AllKeys = KeySelector{mode: selectAll}
	// NoKeys clears every rule of that kind.
	NoKeys = KeySelector{mode: selectNone}
)

// Only applies a rule to the listed keys.
func Only(keys ...string) KeySelector {
	return KeySelector{mode: selectOnly, keys: append([]string(nil), keys...)}
}

func (s KeySelector) validate() error {
	if s.mode != selectOnly {
		return nil
	}
	if len(s.keys) == 0 {
		return fmt.Errorf("%w: empty key list", ErrInvalidKeys)
	}
	for _, k := range s.keys {
		if k == "" {
			return fmt.Errorf("%w: empty key", ErrInvalidKeys)
		}
	}
	return nil
}

// keySet is an insertion-ordered set of keys. It only grows.
type keySet struct {
	order []string
	index map[string]struct{}
}

func (s *keySet) add(keys ...string) {
	if s.index == nil {
		s.index = make(map[string]struct{}, len(keys))
	}
	for _, k := range keys {
		if _, ok := s.index[k]; ok {
			continue
		}
		s.index[k] = struct{}{}
		s.order = append(s.order, k)
	}
}

func (s keySet) has(k string) bool {
	_, ok := s.index[k]
	return ok
}

func (s keySet) list() []string { return append([]string(nil), s.order...) }

func (s keySet) clone() keySet {
	var c keySet
	c.add(s.order...)
	return c
}

// sortedKeys returns record keys in ascending order for deterministic behavior.
func sortedKeys(rec map[string]any) []string {
	ks := make([]string, 0, len(rec))
	for k := range rec {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}
