// Package cli provides the propertyd command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/config"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/logger"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/normalize"
)

// Version is set at build time.
var Version = "0.1.0"

// NewRootCmd builds the command tree. Each call returns fresh commands so
// tests can run them in isolation.
func NewRootCmd() *cobra.Command {
	var cfg config.Config
	root := &cobra.Command{
		Use:           "propertyd",
		Short:         "Commercial property ingestion service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			logger.Init("propertyd", cfg.Env, cfg.LogLevel)
			return nil
		},
	}
	root.AddCommand(newServeCmd(&cfg), newNormalizeCmd(&cfg))
	return root
}

// Execute runs the root command and reports any error on stderr.
func Execute() error {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}

// newNormalizer applies the trust file and threshold from config.
func newNormalizer(cfg config.Config) (*normalize.Normalizer, error) {
	opts := normalize.Options{Threshold: cfg.DuplicateThreshold}
	if cfg.SourceTrustFile != "" {
		trust, err := normalize.LoadSourceTrust(cfg.SourceTrustFile)
		if err != nil {
			return nil, err
		}
		opts.Trust = &trust
	}
	return normalize.New(opts), nil
}
