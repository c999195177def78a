package flowi

import (
	"context"

	"go.uber.org/zap"

	"github.com/reoring/flowi/async"
)

// Outcome is what every evaluation produces. When Err is nil, Value is the
// validated (and, in convert mode, normalized) value. When Err is set, Value is
// the input of the failing stage, or that stage's output in convert mode.
type Outcome struct {
	Value any
	Err   *ValidationError
}

// Failed reports whether the outcome carries an error.
func (o Outcome) Failed() bool { return o.Err != nil }

// result is either an immediate Outcome, a pending one, or a suspension
// requested by a synchronous evaluation that reached an async stage.
type result struct {
	out       Outcome
	fut       *async.Future[Outcome]
	suspended bool
}

func ready(o Outcome) result { return result{out: o} }

func deferred(f *async.Future[Outcome]) result { return result{fut: f} }

func (r result) pending() bool { return r.fut != nil || r.suspended }

// then applies fn to the eventual Outcome of r without the caller branching on
// whether r is already available.
func (r result) then(ctx context.Context, fn func(Outcome) result) result {
	switch {
	case r.suspended:
		return r
	case r.fut != nil:
		return deferred(async.Then(ctx, r.fut, func(o Outcome) (Outcome, error) {
			return fn(o).await(ctx)
		}))
	}
	return fn(r.out)
}

func (r result) await(ctx context.Context) (Outcome, error) {
	switch {
	case r.suspended:
		return Outcome{}, ErrAsyncStage
	case r.fut != nil:
		return r.fut.Await(ctx)
	}
	return r.out, nil
}

func (r result) future() *async.Future[Outcome] {
	switch {
	case r.suspended:
		return async.Failed[Outcome](ErrAsyncStage)
	case r.fut != nil:
		return r.fut
	}
	return async.Resolved(r.out)
}

// frame carries the per-call evaluation state down the validator graph.
type frame struct {
	convert bool
	sync    bool
	// unknown applies to the top-level key map only.
	unknown    UnknownPolicy
	unknownSet bool
	// labels is the label table of the key map whose entries are running.
	labels map[string]string
	log    *zap.Logger
}

func (o evalOptions) frame(sync bool) frame {
	return frame{
		convert:    o.convert,
		sync:       sync,
		unknown:    o.unknown,
		unknownSet: o.unknownSet,
		log:        o.logger,
	}
}

// nested returns the frame handed to an embedded validator.
func (f frame) nested() frame {
	f.unknownSet = false
	f.labels = nil
	return f
}

// Validator is implemented by *Chain and *KeyMap.
type Validator interface {
	Validate(ctx context.Context, v any, opts ...Option) (Outcome, error)
	Attempt(ctx context.Context, v any, opts ...Option) (any, error)
	ValidateAsync(ctx context.Context, v any, opts ...Option) *async.Future[Outcome]
	AttemptAsync(ctx context.Context, v any, opts ...Option) *async.Future[any]
}

func runSync(ctx context.Context, ev evaluator, v any, opts []Option) (Outcome, error) {
	o := newEvalOptions(opts)
	out, err := ev.eval(ctx, v, o.frame(true)).await(ctx)
	if err != nil {
		o.logger.Debug("validation not completed", zap.Error(err))
		return Outcome{Value: v}, err
	}
	logOutcome(o.logger, out)
	return out, nil
}

func attemptSync(ctx context.Context, ev evaluator, v any, opts []Option) (any, error) {
	out, err := runSync(ctx, ev, v, opts)
	if err != nil {
		return nil, err
	}
	if out.Err != nil {
		return nil, out.Err
	}
	return out.Value, nil
}

func runAsync(ctx context.Context, ev evaluator, v any, opts []Option) *async.Future[Outcome] {
	o := newEvalOptions(opts)
	fut := ev.eval(ctx, v, o.frame(false)).future()
	if !o.logger.Core().Enabled(zap.DebugLevel) {
		return fut
	}
	return async.Then(ctx, fut, func(out Outcome) (Outcome, error) {
		logOutcome(o.logger, out)
		return out, nil
	})
}

func attemptAsync(ctx context.Context, ev evaluator, v any, opts []Option) *async.Future[any] {
	return async.Then(ctx, runAsync(ctx, ev, v, opts), func(out Outcome) (any, error) {
		if out.Err != nil {
			return nil, out.Err
		}
		return out.Value, nil
	})
}

func logOutcome(l *zap.Logger, out Outcome) {
	if out.Err == nil {
		return
	}
	l.Debug("validation failed",
		zap.String("key", out.Err.Key),
		zap.String("label", out.Err.Label),
		zap.String("code", out.Err.Code),
		zap.Bool("explicit", out.Err.IsExplicit),
	)
}
