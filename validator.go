package flowi

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/reoring/flowi/async"
	"github.com/reoring/flowi/i18n"
)

// Func validates and optionally transforms a value. A nil returned value means
// "unchanged". The returned value is only threaded on in convert mode.
type Func func(ctx context.Context, v any) (any, error)

// Check validates a value without transforming it.
type Check func(ctx context.Context, v any) error

// AsyncFunc is a Func that runs on its own goroutine. Chains containing one
// must be evaluated with ValidateAsync or AttemptAsync.
type AsyncFunc func(ctx context.Context, v any) (any, error)

// evaluator is the closed set of validator kinds: shapes, predicates, chains,
// key maps and per-key schemas. Kinds are resolved once, at composition time.
type evaluator interface {
	eval(ctx context.Context, v any, f frame) result
}

// entry is one stage of a pipeline.
type entry struct {
	ev evaluator
	// label is the stage's own label (declared shape label or chain label).
	label string
	msg   string
	// keys are the record keys this stage declares.
	keys []string
}

// resolve maps a caller-supplied validator onto an entry. Record schemas are
// only accepted by key maps.
func resolve(v any, msg string, allowSchema bool) (entry, error) {
	switch t := v.(type) {
	case nil:
		return entry{}, fmt.Errorf("%w: got nil", ErrInvalidValidator)
	case *Chain:
		if t == nil {
			return entry{}, fmt.Errorf("%w: nil chain", ErrInvalidValidator)
		}
		return entry{ev: t, label: t.p.label, msg: msg, keys: t.knownKeys()}, nil
	case *ChainBuilder:
		c, err := t.Build()
		if err != nil {
			return entry{}, err
		}
		return resolve(c, msg, allowSchema)
	case *KeyMap:
		if t == nil {
			return entry{}, fmt.Errorf("%w: nil key map", ErrInvalidValidator)
		}
		return entry{ev: t, msg: msg, keys: t.known.list()}, nil
	case *KeyMapBuilder:
		k, err := t.Build()
		if err != nil {
			return entry{}, err
		}
		return resolve(k, msg, allowSchema)
	case Shape:
		d := t.Describe()
		return entry{ev: shapeStage{shape: t}, label: d.Label, msg: msg, keys: d.Keys}, nil
	case Func:
		return entry{ev: funcStage(t), msg: msg}, nil
	case func(context.Context, any) (any, error):
		return entry{ev: funcStage(t), msg: msg}, nil
	case Check:
		return entry{ev: checkStage(t), msg: msg}, nil
	case func(context.Context, any) error:
		return entry{ev: checkStage(t), msg: msg}, nil
	case AsyncFunc:
		return entry{ev: asyncStage(t), msg: msg}, nil
	case Schema:
		if allowSchema {
			return resolveSchema(schemaFields(t), msg)
		}
	case map[string]any:
		if allowSchema {
			return resolveSchema(schemaFields(t), msg)
		}
	case Fields:
		if allowSchema {
			return resolveSchema(t, msg)
		}
	case []Field:
		if allowSchema {
			return resolveSchema(t, msg)
		}
	}
	return entry{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidValidator, v)
}

func schemaFields(m map[string]any) Fields {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fs := make(Fields, 0, len(keys))
	for _, k := range keys {
		fs = append(fs, Field{Key: k, Validator: m[k]})
	}
	return fs
}

func checkMessage(msg []string) (string, error) {
	switch len(msg) {
	case 0:
		return "", nil
	case 1:
		return msg[0], nil
	}
	return "", fmt.Errorf("%w: expected at most one message, got %d", ErrInvalidMessage, len(msg))
}

// ---- shapes ----

type shapeStage struct{ shape Shape }

func (s shapeStage) eval(_ context.Context, v any, f frame) result {
	out, err := s.shape.Check(v, CheckOptions{Convert: f.convert, AllowUnknown: true})
	if err == nil {
		return ready(Outcome{Value: out})
	}
	return ready(Outcome{Value: out, Err: fromShapeError(err)})
}

// fromShapeError maps a shape failure onto a ValidationError rendered with the
// placeholder label.
func fromShapeError(err error) *ValidationError {
	if ve, ok := AsValidationError(err); ok {
		return ve.clone().normalize()
	}
	e := &ValidationError{Status: StatusBadInput, Code: CodeCustom, Cause: err}
	var ce CodedError
	if errors.As(err, &ce) {
		e.Code = ce.Code()
	}
	var te TemplatedError
	if errors.As(err, &te) {
		e.Message = te.Render(Placeholder)
		e.templated = true
		e.render = te.Render
	} else {
		e.Message = err.Error()
	}
	e.Note = e.Message
	return e
}

// ---- predicates ----

type funcStage Func

func (s funcStage) eval(ctx context.Context, v any, _ frame) result {
	out, err := s(ctx, v)
	return ready(predicateOutcome(out, err))
}

type checkStage Check

func (s checkStage) eval(ctx context.Context, v any, _ frame) result {
	return ready(predicateOutcome(nil, s(ctx, v)))
}

type asyncStage AsyncFunc

func (s asyncStage) eval(ctx context.Context, v any, f frame) result {
	if f.sync {
		f.log.Debug("async stage reached in synchronous evaluation")
		return result{suspended: true}
	}
	f.log.Debug("scheduling async stage")
	return deferred(async.Go(ctx, func(ctx context.Context) (Outcome, error) {
		out, err := s(ctx, v)
		return predicateOutcome(out, err), nil
	}))
}

func predicateOutcome(v any, err error) Outcome {
	if err == nil {
		return Outcome{Value: v}
	}
	if ve, ok := AsValidationError(err); ok {
		return Outcome{Value: v, Err: ve.clone().normalize()}
	}
	msg := err.Error()
	if msg == "" {
		msg = i18n.T(CodeCustom, map[string]string{"label": Placeholder})
	}
	ve := NewValidationError(msg)
	ve.Cause = err
	return Outcome{Value: v, Err: ve}
}

// ---- pipeline ----

// pipeline is the sequential AND-combinator shared by Chain and KeyMap.
type pipeline struct {
	entries []entry
	label   string
	convert convertMode
}

func (p *pipeline) knownKeys() []string {
	var ks keySet
	for _, e := range p.entries {
		ks.add(e.keys...)
	}
	return ks.list()
}

// run evaluates entries starting at index from. It loops while stages answer
// immediately and resumes through a continuation after a pending stage.
func (p *pipeline) run(ctx context.Context, v any, from int, f frame) result {
	conv := p.convert.resolve(f.convert)
	child := f.nested()
	child.convert = conv
	// schema stages read the owning key map's labels from the frame.
	child.labels = f.labels

	for i := from; i < len(p.entries); i++ {
		e := p.entries[i]
		r := e.ev.eval(ctx, v, child)
		if r.pending() {
			in, next := v, i+1
			return r.then(ctx, func(o Outcome) result {
				out, failed := p.settle(e, in, o, conv, f.log)
				if failed {
					return ready(out)
				}
				return p.run(ctx, out.Value, next, f)
			})
		}
		out, failed := p.settle(e, v, r.out, conv, f.log)
		if failed {
			return ready(out)
		}
		v = out.Value
	}
	return ready(Outcome{Value: v})
}

// settle threads a stage outcome. On failure it applies, once for this hop,
// the entry label, the pipeline label and the entry's override message.
func (p *pipeline) settle(e entry, in any, o Outcome, conv bool, log *zap.Logger) (Outcome, bool) {
	next := in
	if conv && o.Value != nil {
		next = o.Value
	}
	if o.Err == nil {
		return Outcome{Value: next}, false
	}
	err := o.Err
	err.backfillLabel(e.label)
	err.backfillLabel(p.label)
	err.override(e.msg)
	if log != nil {
		log.Debug("stage failed", zap.String("code", err.Code), zap.String("key", err.Key))
	}
	return Outcome{Value: next, Err: err}, true
}
