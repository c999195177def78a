package flowi_test

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/reoring/flowi"
	"github.com/reoring/flowi/schema"
)

func TestNewKeyMap_AcceptedValidators(t *testing.T) {
	_, err := flowi.NewKeyMap(flowi.Schema{
		"a": schema.String(),
		"b": flowi.NewChain(schema.String()),
		"c": func(context.Context, any) error { return nil },
		"d": flowi.NewKeyMap(flowi.Schema{"e": schema.String()}),
	}).And(schema.Object(nil)).And(flowi.NewKeyMap(schema.Object(nil))).Build()
	assert.NoError(t, err)

	_, err = flowi.NewKeyMap(flowi.Schema{"c": map[string]any{"i": schema.String()}}).Build()
	assert.ErrorIs(t, err, flowi.ErrInvalidValidator, "schemas do not nest inside keys")

	_, err = flowi.NewKeyMap(flowi.Schema{"a": "string"}).Build()
	assert.ErrorIs(t, err, flowi.ErrInvalidValidator)

	_, err = flowi.NewKeyMap(5).Build()
	assert.ErrorIs(t, err, flowi.ErrInvalidValidator)

	_, err = flowi.NewKeyMap(flowi.Fields{{Key: "a", Validator: schema.String()}, {Key: "a", Validator: schema.Number()}}).Build()
	assert.ErrorIs(t, err, flowi.ErrInvalidKeys)

	_, err = flowi.NewKeyMap(flowi.Fields{{Key: "", Validator: schema.String()}}).Build()
	assert.ErrorIs(t, err, flowi.ErrInvalidKeys)

	_, err = flowi.NewKeyMap(nil, "a", "b").Build()
	assert.ErrorIs(t, err, flowi.ErrInvalidMessage)

	_, err = flowi.NewKeyMap(nil).Require(flowi.Only()).Build()
	assert.ErrorIs(t, err, flowi.ErrInvalidKeys)

	_, err = flowi.NewKeyMap(nil).Forbid(flowi.Only("a", "")).Build()
	assert.ErrorIs(t, err, flowi.ErrInvalidKeys)

	_, err = flowi.NewKeyMap(nil).Use().Build()
	assert.ErrorIs(t, err, flowi.ErrInvalidKeys)

	_, err = flowi.NewKeyMap(nil).Labels(map[string]string{"a": ""}).Build()
	assert.ErrorIs(t, err, flowi.ErrInvalidLabels)

	assert.Panics(t, func() { flowi.NewKeyMap("nope").MustBuild() })
}

func TestKeyMap_PassAndFail(t *testing.T) {
	val := flowi.NewKeyMap(flowi.Schema{
		"a": schema.String().Max(6),
		"b": flowi.NewChain(schema.Number().Min(4)),
		"c": func(_ context.Context, v any) error {
			if _, ok := v.(bool); !ok {
				return flowi.NewValidationError("C is not a Boolean")
			}
			return nil
		},
	}).MustBuild()

	out := validate(t, val, map[string]any{"a": "1234", "b": 6, "c": true})
	assert.Nil(t, out.Err)
	assert.Equal(t, map[string]any{"a": "1234", "b": 6, "c": true}, out.Value)

	for _, rec := range []map[string]any{{"a": "1234567"}, {"b": 2}, {"c": "true"}} {
		out := validate(t, val, rec)
		assert.NotNil(t, out.Err, "%v", rec)
		assert.Equal(t, rec, out.Value)
	}
	assert.Equal(t, "C is not a Boolean", validate(t, val, map[string]any{"c": 1}).Err.Message)

	withC := flowi.NewKeyMap(val).And(schema.Object(schema.Fields{"c": schema.Any()}).Required("c")).MustBuild()
	assert.Nil(t, validate(t, withC, map[string]any{"a": "string", "b": 6, "c": true}).Err)

	withD := flowi.NewKeyMap(val).And(schema.Object(schema.Fields{"d": schema.Any()}).Required("d")).MustBuild()
	out = validate(t, withD, map[string]any{"a": "string", "b": 6, "c": true})
	assert.NotNil(t, out.Err)
	assert.Equal(t, map[string]any{"a": "string", "b": 6, "c": true}, out.Value)
}

func TestKeyMap_Predicates(t *testing.T) {
	empty := flowi.NewKeyMap(func(context.Context, any) error { return nil }).MustBuild()
	out := validate(t, empty, map[string]any{})
	assert.Nil(t, out.Err)
	assert.Equal(t, map[string]any{}, out.Value)

	plain := flowi.NewKeyMap(func(context.Context, any) error { return errors.New("") }).MustBuild()
	_, ok := flowi.AsValidationError(validate(t, plain, map[string]any{}).Err)
	assert.True(t, ok)
}

func TestKeyMap_Concatenation(t *testing.T) {
	val := flowi.NewKeyMap(flowi.Schema{"a": schema.String().Max(6)}).
		And(flowi.Schema{"b": schema.Number().Min(2)}).
		MustBuild()

	assert.Nil(t, validate(t, val, map[string]any{"a": "123456", "b": 2}).Err)
	assert.NotNil(t, validate(t, val, map[string]any{"a": "123456", "b": 1}).Err)
}

func TestKeyMap_KnownKeys(t *testing.T) {
	nested := schema.Object(schema.Fields{"x": schema.String()})
	val := flowi.NewKeyMap(flowi.Schema{
		"a": schema.String(),
		"b": schema.Number(),
		"c": nested,
	}).And(flowi.NewKeyMap(flowi.NewKeyMap(flowi.Schema{
		"f": schema.String(),
		"g": schema.Number(),
		"h": flowi.NewKeyMap(schema.Object(schema.Fields{"i": schema.String(), "j": schema.Number()})),
	}))).And(schema.Object(schema.Fields{
		"k": schema.String(),
		"l": schema.String(),
		"m": nested,
	})).And(flowi.NewKeyMap(schema.Object(schema.Fields{
		"p": schema.String(),
		"q": schema.String(),
		"r": nested,
	}))).And(func(context.Context, any) error { return nil }).MustBuild()

	keys := val.KnownKeys()
	sort.Strings(keys)
	assert.Equal(t, []string{"a", "b", "c", "f", "g", "h", "k", "l", "m", "p", "q", "r"}, keys)
	assert.Equal(t, val.KnownKeys(), val.Keys())

	// ordered schemas keep declaration order
	ordered := flowi.NewKeyMap(flowi.Fields{
		{Key: "z", Validator: schema.String()},
		{Key: "a", Validator: schema.String()},
	}).MustBuild()
	assert.Equal(t, []string{"z", "a"}, ordered.KnownKeys())
}

func TestKeyMap_Unknown(t *testing.T) {
	val := flowi.NewKeyMap(flowi.Schema{"a": schema.Number()}).And(flowi.Schema{"b": schema.Number()}).MustBuild()
	rec := func() map[string]any { return map[string]any{"a": 1, "b": 2, "c": 3, "d": 4} }

	out := validate(t, val, rec())
	assert.Nil(t, out.Err)
	assert.Equal(t, rec(), out.Value)

	out = validate(t, val, rec(), flowi.WithStrip())
	assert.Nil(t, out.Err)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, out.Value)

	out = validate(t, val, rec(), flowi.WithUnknown(flowi.UnknownDisallow))
	require.NotNil(t, out.Err)
	assert.Equal(t, rec(), out.Value)
	assert.Equal(t, flowi.CodeUnknownKey, out.Err.Code)
	assert.Equal(t, "c", out.Err.Key, "unknown keys are reported in ascending order")

	t.Run("builder default and call override", func(t *testing.T) {
		strict := flowi.NewKeyMap(val).Unknown(flowi.UnknownDisallow).MustBuild()
		assert.NotNil(t, validate(t, strict, rec()).Err)
		assert.Nil(t, validate(t, strict, rec(), flowi.WithUnknown(flowi.UnknownAllow)).Err)
	})

	t.Run("call option applies to the top level only", func(t *testing.T) {
		outer := flowi.NewKeyMap(flowi.Schema{"inner": val}).MustBuild()
		doc := map[string]any{"inner": rec()}
		out := validate(t, outer, doc, flowi.WithUnknown(flowi.UnknownDisallow))
		assert.Nil(t, out.Err)
	})

	t.Run("use replaces the known keys", func(t *testing.T) {
		used := flowi.NewKeyMap(val).Use("a", "c").MustBuild()
		assert.Equal(t, []string{"a", "c"}, used.Keys())
		assert.Equal(t, []string{"a", "b"}, used.KnownKeys())
		out := validate(t, used, rec(), flowi.WithStrip())
		assert.Nil(t, out.Err)
		assert.Equal(t, map[string]any{"a": 1, "c": 3}, out.Value)
	})

	t.Run("unknown keys carry their key and label", func(t *testing.T) {
		labeled := flowi.NewKeyMap(val).Labels(map[string]string{"c": "Extra"}).MustBuild()
		out := validate(t, labeled, rec(), flowi.WithUnknown(flowi.UnknownDisallow))
		require.NotNil(t, out.Err)
		assert.Equal(t, "c", out.Err.Key)
		assert.Equal(t, "Extra", out.Err.Label)
		assert.Equal(t, "Unknown key Extra", out.Err.Message)

		out = validate(t, val, map[string]any{"a": 1, "d": 4}, flowi.WithUnknown(flowi.UnknownDisallow))
		require.NotNil(t, out.Err)
		assert.Equal(t, "d", out.Err.Key)
		assert.Empty(t, out.Err.Label)
		assert.Equal(t, "Unknown key d", out.Err.Message)
	})

	t.Run("caller's record is never modified", func(t *testing.T) {
		in := rec()
		validate(t, val, in, flowi.WithStrip())
		assert.Equal(t, rec(), in)
	})
}

func TestKeyMap_NonRecordInput(t *testing.T) {
	val := flowi.NewKeyMap(flowi.Schema{"a": schema.Number()}).MustBuild()
	for _, in := range []any{nil, 5, "a", []any{1}} {
		out := validate(t, val, in)
		require.NotNil(t, out.Err, "%v", in)
		assert.Equal(t, flowi.CodeInvalidType, out.Err.Code)
		assert.Equal(t, in, out.Value)
	}

	labeled := flowi.NewChain(val).Label("Profile").MustBuild()
	out := validate(t, labeled, 5)
	assert.Equal(t, "Profile", firstWord(out.Err))
}

func TestKeyMap_LabelsAndKeys(t *testing.T) {
	val := flowi.NewKeyMap(flowi.Schema{
		"a": flowi.NewChain(schema.Number().Min(10)).Label("labelA").And(schema.Number().Max(15)),
		"b": schema.Number().Max(10).Label("labelB"),
		"d": flowi.NewChain(flowi.NewChain(schema.Number().Min(5))),
	}).And(flowi.Schema{
		"a": flowi.NewChain(flowi.NewChain(schema.Number().Max(12))),
		"b": schema.Number().Min(5),
	}).And(flowi.Schema{
		"c": schema.Number().Min(10),
	}).Labels(map[string]string{"a": "labelA2", "b": "labelB2", "c": "labelC"}).MustBuild()

	cases := []struct {
		in    map[string]any
		label string
		key   string
		first string
	}{
		{map[string]any{"a": 16}, "labelA", "a", "labelA"},
		{map[string]any{"a": 13}, "labelA2", "a", "labelA2"},
		{map[string]any{"b": 11}, "labelB", "b", "labelB"},
		{map[string]any{"b": 4}, "labelB2", "b", "labelB2"},
		{map[string]any{"c": 5}, "labelC", "c", "labelC"},
		{map[string]any{"d": 4}, "", "d", "d"},
	}
	for _, tc := range cases {
		out := validate(t, val, tc.in)
		require.NotNil(t, out.Err, "%v", tc.in)
		assert.Equal(t, tc.first, firstWord(out.Err), "%v", tc.in)
		assert.Equal(t, tc.label, out.Err.Label, "%v", tc.in)
		assert.Equal(t, tc.key, out.Err.Key, "%v", tc.in)
		assert.False(t, out.Err.IsExplicit, "%v", tc.in)
	}

	t.Run("labels are inherited from embedded key maps", func(t *testing.T) {
		outer := flowi.NewKeyMap(val).And(flowi.Schema{"c": schema.Number().Max(20)}).MustBuild()
		assert.Equal(t, "labelC", outer.Labels()["c"])
		out := validate(t, outer, map[string]any{"c": 21})
		assert.Equal(t, "labelC", firstWord(out.Err))
		assert.Equal(t, "labelC", out.Err.Label)
		assert.Equal(t, "c", out.Err.Key)
	})

	t.Run("nested key paths", func(t *testing.T) {
		inner := flowi.NewKeyMap(flowi.Schema{"b": schema.Number().Max(1)}).MustBuild()
		outer := flowi.NewKeyMap(flowi.Schema{"a": inner}).MustBuild()
		out := validate(t, outer, map[string]any{"a": map[string]any{"b": 2}})
		require.NotNil(t, out.Err)
		assert.Equal(t, "a[b]", out.Err.Key)
		assert.Equal(t, "b must be less than or equal to 1", out.Err.Message)

		out = validate(t, outer, map[string]any{"a": 5})
		assert.Equal(t, "a", out.Err.Key)
		assert.Equal(t, "a", firstWord(out.Err))
	})
}

func TestKeyMap_Messages(t *testing.T) {
	val := flowi.NewKeyMap(
		flowi.NewKeyMap(flowi.Schema{
			"a": flowi.NewChain(schema.Number().Max(5), "Error A"),
			"b": schema.Number().Max(5),
		}, "Some message").And(flowi.Schema{"c": schema.Number().Max(5)}),
		"Outer message",
	).MustBuild()

	assert.Equal(t, "Error A", validate(t, val, map[string]any{"a": 6}).Err.Message)
	assert.Equal(t, "Some message", validate(t, val, map[string]any{"b": 6}).Err.Message)
	assert.Equal(t, "Outer message", validate(t, val, map[string]any{"c": 6}).Err.Message)

	fields := flowi.NewKeyMap(flowi.Fields{
		{Key: "a", Validator: schema.Number().Max(5), Message: "A is too big"},
		{Key: "b", Validator: flowi.NewChain(schema.Number().Max(5)).Label("B").MustBuild(), Message: "B is too big"},
	}).MustBuild()
	out := validate(t, fields, map[string]any{"a": 6})
	assert.Equal(t, "A is too big", out.Err.Message)
	assert.Equal(t, "a must be less than or equal to 5", out.Err.Note)
	out = validate(t, fields, map[string]any{"b": 6})
	assert.Equal(t, "B is too big", out.Err.Message)
	assert.Equal(t, "B", out.Err.Label)
}

func TestKeyMap_Convert(t *testing.T) {
	b := flowi.NewKeyMap(func(context.Context, any) (any, error) {
		return map[string]any{"a": "hello"}, nil
	}).And(flowi.Schema{"a": schema.String().Uppercase()})

	out := validate(t, b.MustBuild(), map[string]any{"a": "ABCD"})
	assert.Nil(t, out.Err)
	assert.Equal(t, "ABCD", out.Value.(map[string]any)["a"])

	out = validate(t, b.Convert(true).MustBuild(), map[string]any{"a": "ABCD"})
	assert.Nil(t, out.Err)
	assert.Equal(t, "HELLO", out.Value.(map[string]any)["a"])

	t.Run("write-back copies the record", func(t *testing.T) {
		val := flowi.NewKeyMap(flowi.Schema{"a": schema.String().Trim()}).MustBuild()
		in := map[string]any{"a": " x ", "b": 1}
		out := validate(t, val, in, flowi.WithConvert(true))
		assert.Nil(t, out.Err)
		assert.Equal(t, map[string]any{"a": "x", "b": 1}, out.Value)
		assert.Equal(t, " x ", in["a"])
	})

	t.Run("present nil values are validated", func(t *testing.T) {
		val := flowi.NewKeyMap(flowi.Schema{"a": schema.String()}).MustBuild()
		assert.NotNil(t, validate(t, val, map[string]any{"a": nil}).Err)
		assert.Nil(t, validate(t, val, map[string]any{}).Err)
	})
}

func TestKeyMap_Require(t *testing.T) {
	val := flowi.NewKeyMap(nil).Require(flowi.Only("a", "b", "c")).MustBuild()
	assert.NotNil(t, validate(t, val, map[string]any{}).Err)
	assert.Nil(t, validate(t, val, map[string]any{"a": 1, "b": 2, "c": 3}).Err)

	b := flowi.NewKeyMap(nil).Require(flowi.Only("a"))
	out := validate(t, b.MustBuild(), map[string]any{})
	assert.Equal(t, "a is required", out.Err.Message)
	assert.Equal(t, flowi.CodeRequired, out.Err.Code)
	assert.Equal(t, "a", out.Err.Key)
	out = validate(t, b.Labels(map[string]string{"a": "labelA"}).MustBuild(), map[string]any{})
	assert.Equal(t, "labelA is required", out.Err.Message)
	assert.Equal(t, "labelA", out.Err.Label)

	withMsg := flowi.NewKeyMap(nil).Require(flowi.Only("a"), "Message").MustBuild()
	out = validate(t, withMsg, map[string]any{})
	assert.Equal(t, "Message", out.Err.Message)
	assert.True(t, out.Err.IsExplicit)

	t.Run("all keys", func(t *testing.T) {
		all := flowi.NewKeyMap(flowi.Fields{
			{Key: "x", Validator: schema.Any()},
			{Key: "y", Validator: schema.Any()},
		}).Require(flowi.AllKeys).MustBuild()
		out := validate(t, all, map[string]any{"y": 1})
		assert.Equal(t, "x", out.Err.Key)
		out = validate(t, all, map[string]any{"x": 1})
		assert.Equal(t, "y", out.Err.Key)
		assert.Nil(t, validate(t, all, map[string]any{"x": 1, "y": nil}).Err)
	})

	t.Run("all keys covers the keys known at the call", func(t *testing.T) {
		val := flowi.NewKeyMap(flowi.Schema{"a": schema.Any()}).
			Require(flowi.AllKeys).
			And(flowi.Schema{"b": schema.Any()}).
			MustBuild()
		assert.Equal(t, []string{"a", "b"}, val.Keys())
		assert.Nil(t, validate(t, val, map[string]any{"a": 1}).Err)
		out := validate(t, val, map[string]any{"b": 1})
		require.NotNil(t, out.Err)
		assert.Equal(t, "a", out.Err.Key)
	})

	t.Run("use overrides the all keys snapshot", func(t *testing.T) {
		val := flowi.NewKeyMap(flowi.Schema{"a": schema.Any()}).
			Require(flowi.AllKeys).
			Use("a", "c").
			MustBuild()
		out := validate(t, val, map[string]any{"a": 1})
		require.NotNil(t, out.Err)
		assert.Equal(t, "c", out.Err.Key)
		assert.Nil(t, validate(t, val, map[string]any{"a": 1, "c": 2}).Err)
	})

	t.Run("no keys clears the rules", func(t *testing.T) {
		none := flowi.NewKeyMap(nil).Require(flowi.Only("a")).Require(flowi.AllKeys).Require(flowi.NoKeys).MustBuild()
		assert.Nil(t, validate(t, none, map[string]any{}).Err)
	})
}

func TestKeyMap_Forbid(t *testing.T) {
	b := flowi.NewKeyMap(nil).Forbid(flowi.Only("a", "b", "c"))
	val := b.MustBuild()
	assert.Nil(t, validate(t, val, map[string]any{"d": 1}).Err)
	assert.Nil(t, validate(t, val, map[string]any{}).Err)
	out := validate(t, val, map[string]any{"b": 2})
	assert.Equal(t, "b is forbidden", out.Err.Message)
	assert.Equal(t, flowi.CodeForbidden, out.Err.Code)

	labeled := b.Labels(map[string]string{"b": "labelB"}).MustBuild()
	assert.Equal(t, "labelB is forbidden", validate(t, labeled, map[string]any{"b": 2}).Err.Message)
	assert.Equal(t, "b is forbidden", validate(t, val, map[string]any{"b": 2}).Err.Message, "built key maps are snapshots")

	withMsg := flowi.NewKeyMap(flowi.Schema{"a": schema.Number().Min(10)}).Forbid(flowi.Only("a"), "Message").MustBuild()
	assert.Equal(t, "Message", validate(t, withMsg, map[string]any{"a": 1}).Err.Message)

	t.Run("all keys forbids keys outside the effective set", func(t *testing.T) {
		all := flowi.NewKeyMap(flowi.Schema{"a": schema.Any()}).Forbid(flowi.AllKeys, "no extras").MustBuild()
		assert.Nil(t, validate(t, all, map[string]any{"a": 1}).Err)
		out := validate(t, all, map[string]any{"a": 1, "z": 2})
		assert.Equal(t, "no extras", out.Err.Message)
		assert.Equal(t, "z", out.Err.Key)
	})

	t.Run("all keys covers the keys known at the call", func(t *testing.T) {
		val := flowi.NewKeyMap(flowi.Schema{"a": schema.Any()}).
			Forbid(flowi.AllKeys).
			And(flowi.Schema{"b": schema.Any()}).
			MustBuild()
		out := validate(t, val, map[string]any{"a": 1, "b": 2})
		require.NotNil(t, out.Err)
		assert.Equal(t, "b", out.Err.Key)
		assert.Equal(t, flowi.CodeForbidden, out.Err.Code)

		used := flowi.NewKeyMap(flowi.Schema{"a": schema.Any()}).
			Forbid(flowi.AllKeys).
			And(flowi.Schema{"b": schema.Any()}).
			Use("a", "b").
			MustBuild()
		assert.Nil(t, validate(t, used, map[string]any{"a": 1, "b": 2}).Err)
	})

	t.Run("no keys clears the rules", func(t *testing.T) {
		none := flowi.NewKeyMap(nil).Forbid(flowi.Only("a")).Forbid(flowi.NoKeys).MustBuild()
		assert.Nil(t, validate(t, none, map[string]any{"a": 1}).Err)
	})

	t.Run("forbid runs before require", func(t *testing.T) {
		both := flowi.NewKeyMap(nil).Require(flowi.Only("a")).Forbid(flowi.Only("b")).MustBuild()
		assert.Equal(t, flowi.CodeForbidden, validate(t, both, map[string]any{"b": 1}).Err.Code)
	})
}

func TestKeyMap_Async(t *testing.T) {
	ctx := context.Background()
	lookup := flowi.AsyncFunc(func(_ context.Context, v any) (any, error) {
		if v == "taken" {
			return nil, errors.New("Value is taken")
		}
		return nil, nil
	})
	val := flowi.NewKeyMap(flowi.Fields{
		{Key: "name", Validator: lookup},
		{Key: "age", Validator: schema.Number().Min(0)},
	}).Labels(map[string]string{"name": "Name"}).MustBuild()

	_, err := val.Validate(ctx, map[string]any{"name": "ann"})
	assert.ErrorIs(t, err, flowi.ErrAsyncStage)

	out, err := val.ValidateAsync(ctx, map[string]any{"name": "taken", "age": 1}).Await(ctx)
	require.NoError(t, err)
	require.NotNil(t, out.Err)
	assert.Equal(t, "Name is taken", out.Err.Message)
	assert.Equal(t, "name", out.Err.Key)

	out, err = val.ValidateAsync(ctx, map[string]any{"name": "ann", "age": -1}).Await(ctx)
	require.NoError(t, err)
	require.NotNil(t, out.Err)
	assert.Equal(t, "age", out.Err.Key)

	v, err := val.AttemptAsync(ctx, map[string]any{"name": "ann", "age": 1}).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "ann", "age": 1}, v)
}

// errNameTaken is handed out unchanged by every call that fails.
var errNameTaken = &flowi.ValidationError{Message: "Value is taken"}

func TestKeyMap_ReusedErrorValue(t *testing.T) {
	taken := func(context.Context, any) error { return errNameTaken }
	val := flowi.NewKeyMap(flowi.Schema{
		"user": flowi.NewKeyMap(flowi.Schema{"name": taken}).MustBuild(),
	}).Labels(map[string]string{"user": "User"}).MustBuild()

	in := map[string]any{"user": map[string]any{"name": "ann"}}
	first := validate(t, val, in)
	require.NotNil(t, first.Err)
	assert.Equal(t, "user[name]", first.Err.Key)
	for range 3 {
		out := validate(t, val, in)
		require.NotNil(t, out.Err)
		assert.NotSame(t, errNameTaken, out.Err)
		assert.Equal(t, first.Err.Key, out.Err.Key)
		assert.Equal(t, first.Err.Label, out.Err.Label)
		assert.Equal(t, first.Err.Message, out.Err.Message)
	}

	overridden := flowi.NewChain(taken, "Name is reserved").MustBuild()
	assert.Equal(t, "Name is reserved", validate(t, overridden, "ann").Err.Message)
	labeled := flowi.NewChain(taken).Label("Nick").MustBuild()
	assert.Equal(t, "Nick is taken", validate(t, labeled, "ann").Err.Message)

	assert.Equal(t, "Value is taken", errNameTaken.Message)
	assert.Empty(t, errNameTaken.Key)
	assert.Empty(t, errNameTaken.Label)
	assert.Empty(t, errNameTaken.Note)
	assert.False(t, errNameTaken.IsExplicit)
}

func TestKeyMap_ConcurrentUse(t *testing.T) {
	ctx := context.Background()
	lookup := flowi.AsyncFunc(func(_ context.Context, v any) (any, error) {
		if v == "bad" {
			return nil, errNameTaken
		}
		return nil, nil
	})
	val := flowi.NewKeyMap(flowi.Fields{
		{Key: "name", Validator: flowi.NewChain(schema.String().Trim()).And(lookup)},
		{Key: "age", Validator: schema.Number().Min(0)},
	}).
		Require(flowi.AllKeys).
		Labels(map[string]string{"name": "Name"}).
		Unknown(flowi.UnknownStrip).
		MustBuild()

	var g errgroup.Group
	for i := range 32 {
		g.Go(func() error {
			in := map[string]any{"name": " ann ", "age": i, "extra": true}
			if i%2 == 1 {
				in["name"] = "bad"
			}
			out, err := val.ValidateAsync(ctx, in, flowi.WithConvert(true)).Await(ctx)
			if err != nil {
				return err
			}
			if i%2 == 1 {
				if assert.NotNil(t, out.Err) {
					assert.Equal(t, "name", out.Err.Key)
					assert.Equal(t, "Name is taken", out.Err.Message)
				}
				return nil
			}
			assert.Nil(t, out.Err)
			assert.Equal(t, map[string]any{"name": "ann", "age": i}, out.Value)
			assert.Equal(t, " ann ", in["name"], "the input record is not written to")
			return nil
		})
	}
	require.NoError(t, g.Wait())
}
