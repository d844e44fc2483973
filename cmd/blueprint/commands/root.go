package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/blueprint/pkg/config"
	"github.com/openfroyo/blueprint/pkg/mgmt"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "blueprint",
		Short: "Blueprint - catalog resolution and deferred configuration",
		Long: `Blueprint manages a catalog of versioned component blueprints and
resolves the deferred expressions inside them.

Features:
  - YAML catalog documents with $dsl: expressions
  - External config providers (inplace, env, file) declared in the config
  - Persisted catalog additions and task history (SQLite)
  - Admission policies (OPA/rego)`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newCatalogCommand())
	rootCmd.AddCommand(newResolveCommand())
	rootCmd.AddCommand(newProvidersCommand())
	rootCmd.AddCommand(newTasksCommand())

	return rootCmd
}

// openContext loads the configuration and builds a management context with
// the catalog loaded. The caller closes it.
func openContext(ctx context.Context) (*mgmt.Context, error) {
	boot, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		boot.Settings.Telemetry.LogLevel = "debug"
	}

	mc, err := mgmt.New(ctx, mgmt.Options{Bootstrap: boot})
	if err != nil {
		return nil, err
	}
	if err := mc.LoadCatalog(ctx); err != nil {
		_ = mc.Close(ctx)
		return nil, err
	}
	return mc, nil
}

// withContext runs fn against a freshly opened management context.
func withContext(cmd *cobra.Command, fn func(*mgmt.Context) error) error {
	ctx := cmd.Context()
	mc, err := openContext(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = mc.Close(context.WithoutCancel(ctx))
	}()
	return fn(mc)
}
