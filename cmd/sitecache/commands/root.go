// Package commands implements the sitecache CLI.
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/sitecache/config"
	"github.com/jonwraymond/sitecache/internal/build"
)

// CLI represents the command line interface for sitecache.
type CLI struct {
	rootCmd    *cobra.Command
	configPath string
}

// New creates a new CLI instance.
func New() *CLI {
	rootCmd := &cobra.Command{
		Use:           "sitecache",
		Short:         "Offline cache proxy and static site configuration",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"{{.Name}} version {{.Version}} (commit: %s, date: %s)\n",
		build.Commit,
		build.Date,
	))

	c := &CLI{rootCmd: rootCmd}
	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "",
		"Process config file (YAML); "+config.EnvPrefix+"* variables override it")

	rootCmd.AddCommand(c.newProxyCmd())
	rootCmd.AddCommand(c.newServeCmd())
	rootCmd.AddCommand(c.newConfigCmd())
	rootCmd.AddCommand(c.newVerifyCmd())
	rootCmd.AddCommand(c.newTokenCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}

// loadConfig loads the process config and applies changed flags through
// apply.
func (c *CLI) loadConfig(apply func(*config.Config)) (config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if apply != nil {
		apply(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
