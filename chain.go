package flowi

import (
	"context"

	"github.com/reoring/flowi/async"
)

// ChainBuilder composes a Chain. The first composition error is kept and makes
// every later call a no-op; Build reports it.
type ChainBuilder struct {
	p   pipeline
	err error
}

// NewChain starts a chain with v as its first stage. A nil v starts an empty
// chain. msg, when given, overrides the message of failures raised by v.
func NewChain(v any, msg ...string) *ChainBuilder {
	return new(ChainBuilder).And(v, msg...)
}

// And appends a stage. Adding a chain that carries a label makes this chain
// adopt that label.
func (b *ChainBuilder) And(v any, msg ...string) *ChainBuilder {
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
	e, err := resolve(v, m, false)
	if err != nil {
		b.err = err
		return b
	}
	b.p.entries = append(b.p.entries, e)
	if c, ok := e.ev.(*Chain); ok && c.p.label != "" {
		b.p.label = c.p.label
	}
	return b
}

// Label names the value validated by this chain. It is used only for failures
// that carry no label of their own.
func (b *ChainBuilder) Label(name string) *ChainBuilder {
	if b.err == nil {
		b.p.label = name
	}
	return b
}

// Convert sets whether stage outputs replace the value for later stages. When
// never called, the chain follows its caller (WithConvert or the parent chain).
func (b *ChainBuilder) Convert(on bool) *ChainBuilder {
	if b.err == nil {
		b.p.convert = modeOf(on)
	}
	return b
}

// Build seals the chain. Later builder calls do not affect the result.
func (b *ChainBuilder) Build() (*Chain, error) {
	if b.err != nil {
		return nil, b.err
	}
	p := b.p
	p.entries = append([]entry(nil), b.p.entries...)
	return &Chain{p: p}, nil
}

// MustBuild is like Build but panics on composition errors.
func (b *ChainBuilder) MustBuild() *Chain {
	c, err := b.Build()
	if err != nil {
		panic(err)
	}
	return c
}

// Chain is a sealed sequential AND-combinator. It is safe for concurrent use.
type Chain struct {
	p pipeline
}

var _ Validator = (*Chain)(nil)

// Label returns the chain's own label.
func (c *Chain) Label() string { return c.p.label }

func (c *Chain) knownKeys() []string { return c.p.knownKeys() }

func (c *Chain) eval(ctx context.Context, v any, f frame) result {
	f.labels = nil
	return c.p.run(ctx, v, 0, f)
}

// Validate evaluates v synchronously. The returned error is ErrAsyncStage when
// an async stage was reached; validation failures are reported in Outcome.Err.
func (c *Chain) Validate(ctx context.Context, v any, opts ...Option) (Outcome, error) {
	return runSync(ctx, c, v, opts)
}

// Attempt is like Validate but returns the value or the failure as an error.
func (c *Chain) Attempt(ctx context.Context, v any, opts ...Option) (any, error) {
	return attemptSync(ctx, c, v, opts)
}

// ValidateAsync evaluates v, allowing async stages.
func (c *Chain) ValidateAsync(ctx context.Context, v any, opts ...Option) *async.Future[Outcome] {
	return runAsync(ctx, c, v, opts)
}

// AttemptAsync is the async form of Attempt.
func (c *Chain) AttemptAsync(ctx context.Context, v any, opts ...Option) *async.Future[any] {
	return attemptAsync(ctx, c, v, opts)
}
