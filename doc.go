// Package flowi composes validators into pipelines.
//
// - Chain threads one value through an ordered list of stages (shapes,
//   predicates, nested chains and key maps) and stops at the first failure.
// - KeyMap validates keyed records: per-key schemas, required/forbidden keys,
//   unknown-key handling and key-path error attribution.
// - Every failure is a single *ValidationError carrying the message, the label
//   of the offending value and its key path (for example "a[b]").
//
// Design policy:
// - Builders (ChainBuilder, KeyMapBuilder) are drafts; Build seals them into
//   immutable validators that are safe for concurrent use.
// - The root package only consumes the Shape contract. Concrete shapes live
//   under schema/, input decoding under source/, declarative rule files under
//   ruleset/, the HTTP adapter under middleware/ and the CLI under cmd/flowi.
// - Async stages (AsyncFunc) require ValidateAsync/AttemptAsync; the sync entry
//   points return ErrAsyncStage instead of blocking.
//
// Typical usage:
//
//	user := flowi.NewKeyMap(flowi.Fields{
//		{Key: "name", Validator: schema.String().Trim().Max(32)},
//		{Key: "age", Validator: schema.Number().Integer().Min(0)},
//	}).Require(flowi.Only("name")).Labels(map[string]string{"name": "Name"}).MustBuild()
//
//	out, err := user.Validate(ctx, record, flowi.WithConvert(true))
//	if err != nil {
//		return err // ErrAsyncStage
//	}
//	if out.Failed() {
//		log.Println(out.Err.Key, out.Err.Message)
//	}
package flowi
