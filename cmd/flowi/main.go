// Command flowi validates JSON and YAML documents against declarative rule
// files.
//
// Usage:
//
//	flowi check --rules user.yaml [--unknown strip] [--convert] [--jobs 8] docs/*.json
//	flowi keys --rules user.yaml
//
// Every flag can also be set through the environment (FLOWI_RULES,
// FLOWI_UNKNOWN, FLOWI_CONVERT, FLOWI_JOBS, FLOWI_VERBOSE, FLOWI_LANG), and a
// .env file in the working directory is loaded first.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reoring/flowi/i18n"
)

// config is read from the environment; flags override it.
type config struct {
	Rules   string `env:"FLOWI_RULES"`
	Unknown string `env:"FLOWI_UNKNOWN" envDefault:"allow"`
	Convert bool   `env:"FLOWI_CONVERT"`
	Jobs    int    `env:"FLOWI_JOBS" envDefault:"4"`
	Verbose bool   `env:"FLOWI_VERBOSE"`
	Lang    string `env:"FLOWI_LANG" envDefault:"en"`
}

func loadConfig() (config, error) {
	// the .env file is optional
	_ = godotenv.Load()
	var c config
	if err := env.Parse(&c); err != nil {
		return c, fmt.Errorf("parse environment: %w", err)
	}
	return c, nil
}

// errInvalid signals that at least one document failed validation.
var errInvalid = errors.New("one or more documents are invalid")

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := newRootCmd(&cfg).Execute(); err != nil {
		if !errors.Is(err, errInvalid) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCmd(cfg *config) *cobra.Command {
	var logger *zap.Logger
	root := &cobra.Command{
		Use:           "flowi",
		Short:         "Validate documents against flowi rule files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			l, err := newLogger(cfg.Verbose)
			if err != nil {
				return err
			}
			logger = l
			i18n.SetLanguage(cfg.Lang)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&cfg.Rules, "rules", cfg.Rules, "rule file (YAML or JSON)")
	root.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "debug logging to stderr")
	root.PersistentFlags().StringVar(&cfg.Lang, "lang", cfg.Lang, "message language (en, ja)")

	log := func() *zap.Logger {
		if logger == nil {
			return zap.NewNop()
		}
		return logger
	}
	root.AddCommand(newCheckCmd(cfg, log), newKeysCmd(cfg))
	return root
}

func newLogger(verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	zc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zc.Build()
}
