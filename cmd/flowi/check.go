package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/reoring/flowi"
	"github.com/reoring/flowi/ruleset"
	"github.com/reoring/flowi/source"
)

// report is the outcome for one document.
type report struct {
	path string
	err  *flowi.ValidationError
	// fault is a read or decode failure.
	fault error
}

func (r report) String() string {
	switch {
	case r.fault != nil:
		return fmt.Sprintf("%s: error: %v", r.path, r.fault)
	case r.err != nil && r.err.Key != "":
		return fmt.Sprintf("%s: invalid: %s: %s", r.path, r.err.Key, r.err.Message)
	case r.err != nil:
		return fmt.Sprintf("%s: invalid: %s", r.path, r.err.Message)
	}
	return r.path + ": ok"
}

func newCheckCmd(cfg *config, log func() *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check FILE...",
		Short: "Validate JSON/YAML documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Rules == "" {
				return errors.New("--rules is required")
			}
			policy, ok := flowi.ParseUnknownPolicy(cfg.Unknown)
			if !ok {
				return fmt.Errorf("invalid --unknown %q (want allow, strip or disallow)", cfg.Unknown)
			}
			km, err := ruleset.Load(cfg.Rules)
			if err != nil {
				return err
			}
			opts := []flowi.Option{flowi.WithLogger(log()), flowi.WithConvert(cfg.Convert)}
			if cmd.Flags().Changed("unknown") || cfg.Unknown != "allow" {
				opts = append(opts, flowi.WithUnknown(policy))
			}
			reports, err := checkFiles(cmd.Context(), km, args, cfg.Jobs, opts)
			if err != nil {
				return err
			}
			failed := false
			for _, r := range reports {
				fmt.Fprintln(cmd.OutOrStdout(), r)
				if r.err != nil || r.fault != nil {
					failed = true
				}
			}
			if failed {
				return errInvalid
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.Unknown, "unknown", cfg.Unknown, "unknown key policy: allow, strip or disallow")
	cmd.Flags().BoolVar(&cfg.Convert, "convert", cfg.Convert, "normalize values while validating")
	cmd.Flags().IntVarP(&cfg.Jobs, "jobs", "j", cfg.Jobs, "documents validated concurrently")
	return cmd
}

// checkFiles validates every path with at most jobs documents in flight. The
// reports keep the order of paths.
func checkFiles(ctx context.Context, v flowi.Validator, paths []string, jobs int, opts []flowi.Option) ([]report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	reports := make([]report, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	if jobs < 1 {
		jobs = 1
	}
	g.SetLimit(jobs)
	for i, p := range paths {
		g.Go(func() error {
			reports[i] = checkFile(ctx, v, p, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func checkFile(ctx context.Context, v flowi.Validator, path string, opts []flowi.Option) report {
	f, err := os.Open(path)
	if err != nil {
		return report{path: path, fault: err}
	}
	defer f.Close()
	doc, err := source.Decode(source.FormatOf(path), f)
	if err != nil {
		return report{path: path, fault: err}
	}
	out, err := v.ValidateAsync(ctx, doc, opts...).Await(ctx)
	if err != nil {
		return report{path: path, fault: err}
	}
	return report{path: path, err: out.Err}
}

func newKeysCmd(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "Print the effective and known keys of a rule file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.Rules == "" {
				return errors.New("--rules is required")
			}
			km, err := ruleset.Load(cfg.Rules)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "effective: %s\n", strings.Join(km.Keys(), ", "))
			fmt.Fprintf(w, "known: %s\n", strings.Join(km.KnownKeys(), ", "))
			return nil
		},
	}
}
