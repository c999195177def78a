package flowi

import (
	"context"
	"fmt"
	"maps"

	"github.com/reoring/flowi/async"
	"github.com/reoring/flowi/i18n"
)

// keyRule is one explicit Require or Forbid list.
type keyRule struct {
	keys []string
	msg  string
}

// KeyMapBuilder composes a KeyMap.
type KeyMapBuilder struct {
	km  KeyMap
	err error
}

// NewKeyMap starts a key map with v as its first stage. v may be any validator
// accepted by NewChain, a Schema or Fields. A nil v starts an empty key map.
func NewKeyMap(v any, msg ...string) *KeyMapBuilder {
	b := &KeyMapBuilder{km: KeyMap{labels: map[string]string{}}}
	return b.And(v, msg...)
}

// And appends a stage and merges the keys it declares into the known keys.
// Adding a key map also merges its label table.
func (b *KeyMapBuilder) And(v any, msg ...string) *KeyMapBuilder {
	if b.err != nil {
		return b
	}
	m, err := checkMessage(msg)
	if err != nil {
		b.err = err
		return b
	}
	if v == nil {
		return b
	}
	e, err := resolve(v, m, true)
	if err != nil {
		b.err = err
		return b
	}
	b.km.p.entries = append(b.km.p.entries, e)
	b.km.known.add(e.keys...)
	if inner, ok := e.ev.(*KeyMap); ok {
		maps.Copy(b.km.labels, inner.labels)
	}
	return b
}

// Labels merges a key to label table. Later calls overwrite earlier entries.
func (b *KeyMapBuilder) Labels(labels map[string]string) *KeyMapBuilder {
	if b.err != nil {
		return b
	}
	for k, l := range labels {
		if k == "" || l == "" {
			b.err = fmt.Errorf("%w: key %q", ErrInvalidLabels, k)
			return b
		}
	}
	maps.Copy(b.km.labels, labels)
	return b
}

// Require fails records missing a selected key. AllKeys selects the keys known
// at this call (or the Use allow-list, when set). NoKeys clears every require
// rule.
func (b *KeyMapBuilder) Require(sel KeySelector, msg ...string) *KeyMapBuilder {
	b.keyRule(sel, msg, &b.km.requireAll, &b.km.requireAllMsg, &b.km.requires)
	return b
}

// Forbid fails records carrying a selected key. With AllKeys every key outside
// the keys known at this call (or the Use allow-list) is forbidden. NoKeys
// clears every forbid rule.
func (b *KeyMapBuilder) Forbid(sel KeySelector, msg ...string) *KeyMapBuilder {
	b.keyRule(sel, msg, &b.km.forbidAll, &b.km.forbidAllMsg, &b.km.forbids)
	return b
}

func (b *KeyMapBuilder) keyRule(sel KeySelector, msg []string, all **keySet, allMsg *string, rules *[]keyRule) {
	if b.err != nil {
		return
	}
	m, err := checkMessage(msg)
	if err != nil {
		b.err = err
		return
	}
	if err := sel.validate(); err != nil {
		b.err = err
		return
	}
	switch sel.mode {
	case selectAll:
		known := b.km.known.clone()
		*all, *allMsg = &known, m
	case selectNone:
		*all, *allMsg, *rules = nil, "", nil
	default:
		*rules = append(*rules, keyRule{keys: append([]string(nil), sel.keys...), msg: m})
	}
}

// Use replaces the discovered known keys with an explicit allow-list for the
// unknown-key policy and the AllKeys rules.
func (b *KeyMapBuilder) Use(keys ...string) *KeyMapBuilder {
	if b.err != nil {
		return b
	}
	if err := Only(keys...).validate(); err != nil {
		b.err = err
		return b
	}
	var s keySet
	s.add(keys...)
	b.km.use = &s
	return b
}

// Convert sets the key map's convert flag; see ChainBuilder.Convert.
func (b *KeyMapBuilder) Convert(on bool) *KeyMapBuilder {
	if b.err == nil {
		b.km.p.convert = modeOf(on)
	}
	return b
}

// Unknown sets the default unknown-key policy. WithUnknown overrides it for
// top-level calls.
func (b *KeyMapBuilder) Unknown(p UnknownPolicy) *KeyMapBuilder {
	if b.err == nil {
		b.km.unknown = p
	}
	return b
}

// Build seals the key map. Later builder calls do not affect the result.
func (b *KeyMapBuilder) Build() (*KeyMap, error) {
	if b.err != nil {
		return nil, b.err
	}
	km := b.km
	km.p.entries = append([]entry(nil), b.km.p.entries...)
	km.labels = maps.Clone(b.km.labels)
	km.known = b.km.known.clone()
	if b.km.use != nil {
		u := b.km.use.clone()
		km.use = &u
	}
	km.requires = append([]keyRule(nil), b.km.requires...)
	km.forbids = append([]keyRule(nil), b.km.forbids...)
	return &km, nil
}

// MustBuild is like Build but panics on composition errors.
func (b *KeyMapBuilder) MustBuild() *KeyMap {
	km, err := b.Build()
	if err != nil {
		panic(err)
	}
	return km
}

// KeyMap is a sealed validator for keyed records (map[string]any). It is safe
// for concurrent use.
type KeyMap struct {
	p       pipeline
	labels  map[string]string
	known   keySet
	use     *keySet
	unknown UnknownPolicy

	// requireAll and forbidAll hold the known keys at the time of the
	// AllKeys call.
	requireAll    *keySet
	requireAllMsg string
	requires      []keyRule
	forbidAll     *keySet
	forbidAllMsg  string
	forbids       []keyRule
}

var _ Validator = (*KeyMap)(nil)

// KnownKeys returns the keys discovered from schemas, keyed shapes and nested
// key maps, in discovery order.
func (km *KeyMap) KnownKeys() []string { return km.known.list() }

// Keys returns the effective key set: the Use allow-list when set, the known
// keys otherwise.
func (km *KeyMap) Keys() []string { return km.effective().list() }

// Labels returns a copy of the label table.
func (km *KeyMap) Labels() map[string]string { return maps.Clone(km.labels) }

func (km *KeyMap) effective() *keySet {
	if km.use != nil {
		return km.use
	}
	return &km.known
}

func (km *KeyMap) eval(ctx context.Context, v any, f frame) result {
	rec, ok := v.(map[string]any)
	if !ok {
		return ready(Outcome{Value: v, Err: typeError("an object")})
	}
	policy := km.unknown
	if f.unknownSet {
		policy = f.unknown
	}
	eff := km.effective()
	switch policy {
	case UnknownDisallow:
		for _, k := range sortedKeys(rec) {
			if !eff.has(k) {
				return ready(Outcome{Value: rec, Err: km.keyError(CodeUnknownKey, k, "")})
			}
		}
	case UnknownStrip:
		stripped := make(map[string]any, len(rec))
		for k, val := range rec {
			if eff.has(k) {
				stripped[k] = val
			}
		}
		rec = stripped
	}
	if err := km.checkForbid(rec); err != nil {
		return ready(Outcome{Value: rec, Err: err})
	}
	if err := km.checkRequire(rec); err != nil {
		return ready(Outcome{Value: rec, Err: err})
	}
	f.labels = km.labels
	return km.p.run(ctx, rec, 0, f)
}

// allKeys is the key set an AllKeys rule applies to.
func (km *KeyMap) allKeys(snapshot *keySet) *keySet {
	if km.use != nil {
		return km.use
	}
	return snapshot
}

func (km *KeyMap) checkForbid(rec map[string]any) *ValidationError {
	if km.forbidAll != nil {
		eff := km.allKeys(km.forbidAll)
		for _, k := range sortedKeys(rec) {
			if !eff.has(k) {
				return km.keyError(CodeForbidden, k, km.forbidAllMsg)
			}
		}
	}
	for _, r := range km.forbids {
		for _, k := range r.keys {
			if _, ok := rec[k]; ok {
				return km.keyError(CodeForbidden, k, r.msg)
			}
		}
	}
	return nil
}

func (km *KeyMap) checkRequire(rec map[string]any) *ValidationError {
	if km.requireAll != nil {
		for _, k := range km.allKeys(km.requireAll).order {
			if _, ok := rec[k]; !ok {
				return km.keyError(CodeRequired, k, km.requireAllMsg)
			}
		}
	}
	for _, r := range km.requires {
		for _, k := range r.keys {
			if _, ok := rec[k]; !ok {
				return km.keyError(CodeRequired, k, r.msg)
			}
		}
	}
	return nil
}

// keyError builds a record-level failure for key, named by its label when the
// table has one.
func (km *KeyMap) keyError(code, key, msg string) *ValidationError {
	label := km.labels[key]
	name := label
	if name == "" {
		name = key
	}
	text := i18n.T(code, map[string]string{"label": name})
	e := &ValidationError{
		Message: text,
		Note:    text,
		Label:   label,
		Key:     key,
		Status:  StatusBadInput,
		Code:    code,
	}
	e.override(msg)
	return e
}

func typeError(expected string) *ValidationError {
	e := NewValidationError(i18n.T(CodeInvalidType, map[string]string{
		"label":    Placeholder,
		"expected": expected,
	}))
	e.Code = CodeInvalidType
	e.templated = true
	e.render = func(label string) string {
		return i18n.T(CodeInvalidType, map[string]string{"label": label, "expected": expected})
	}
	return e
}

// Validate evaluates the record v synchronously; see Chain.Validate.
func (km *KeyMap) Validate(ctx context.Context, v any, opts ...Option) (Outcome, error) {
	return runSync(ctx, km, v, opts)
}

// Attempt is like Validate but returns the value or the failure as an error.
func (km *KeyMap) Attempt(ctx context.Context, v any, opts ...Option) (any, error) {
	return attemptSync(ctx, km, v, opts)
}

// ValidateAsync evaluates v, allowing async stages.
func (km *KeyMap) ValidateAsync(ctx context.Context, v any, opts ...Option) *async.Future[Outcome] {
	return runAsync(ctx, km, v, opts)
}

// AttemptAsync is the async form of Attempt.
func (km *KeyMap) AttemptAsync(ctx context.Context, v any, opts ...Option) *async.Future[any] {
	return attemptAsync(ctx, km, v, opts)
}

// ---- per-key schema stages ----

type schemaField struct {
	key   string
	chain *Chain
}

// schemaStage validates record values key by key.
type schemaStage struct {
	fields []schemaField
}

func resolveSchema(fs []Field, msg string) (entry, error) {
	st := schemaStage{fields: make([]schemaField, 0, len(fs))}
	var keys keySet
	for _, fd := range fs {
		if fd.Key == "" {
			return entry{}, fmt.Errorf("%w: empty schema key", ErrInvalidKeys)
		}
		if keys.has(fd.Key) {
			return entry{}, fmt.Errorf("%w: duplicate schema key %q", ErrInvalidKeys, fd.Key)
		}
		keys.add(fd.Key)
		c, ok := fd.Validator.(*Chain)
		if !ok || fd.Message != "" {
			inner, err := resolve(fd.Validator, fd.Message, false)
			if err != nil {
				return entry{}, fmt.Errorf("key %q: %w", fd.Key, err)
			}
			c = &Chain{p: pipeline{entries: []entry{inner}}}
		}
		st.fields = append(st.fields, schemaField{key: fd.Key, chain: c})
	}
	return entry{ev: st, msg: msg, keys: keys.list()}, nil
}

func (s schemaStage) eval(ctx context.Context, v any, f frame) result {
	rec, ok := v.(map[string]any)
	if !ok {
		return ready(Outcome{Value: v, Err: typeError("an object")})
	}
	return s.run(ctx, rec, false, 0, f)
}

// run evaluates fields from index from. owned reports that rec is already a
// private copy and may be written to.
func (s schemaStage) run(ctx context.Context, rec map[string]any, owned bool, from int, f frame) result {
	for i := from; i < len(s.fields); i++ {
		fd := s.fields[i]
		val, ok := rec[fd.key]
		if !ok {
			continue
		}
		r := fd.chain.eval(ctx, val, f.nested())
		if r.pending() {
			next := i + 1
			return r.then(ctx, func(o Outcome) result {
				rec, owned := writeBack(rec, owned, fd.key, o, f.convert)
				if o.Err != nil {
					return ready(Outcome{Value: rec, Err: s.annotate(o.Err, fd.key, f)})
				}
				return s.run(ctx, rec, owned, next, f)
			})
		}
		rec, owned = writeBack(rec, owned, fd.key, r.out, f.convert)
		if r.out.Err != nil {
			return ready(Outcome{Value: rec, Err: s.annotate(r.out.Err, fd.key, f)})
		}
	}
	return ready(Outcome{Value: rec})
}

// annotate attaches the key path and the key map's label for key.
func (s schemaStage) annotate(err *ValidationError, key string, f frame) *ValidationError {
	err.prefixKey(key)
	err.backfillLabel(f.labels[key])
	err.substitute(key)
	return err
}

// writeBack stores a converted value, copying rec once before the first write.
func writeBack(rec map[string]any, owned bool, key string, o Outcome, convert bool) (map[string]any, bool) {
	if !convert || o.Value == nil {
		return rec, owned
	}
	if !owned {
		rec = maps.Clone(rec)
		owned = true
	}
	rec[key] = o.Value
	return rec, owned
}
