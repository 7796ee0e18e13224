package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const redacted = "[redacted]"

func (c *CLI) newConfigCmd() *cobra.Command {
	var (
		bf      buildFlags
		format  string
		process bool
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved build configuration",
		Long: `Print the build configuration after defaults, the build config file and
BASE_PATH are applied. With --process, print the proxy process configuration
instead; the admin signing key is redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var v any
			if process {
				cfg, err := c.loadConfig(nil)
				if err != nil {
					return err
				}
				if cfg.Admin.SigningKey != "" {
					cfg.Admin.SigningKey = redacted
				}
				v = cfg
			} else {
				cfg, err := bf.load()
				if err != nil {
					return err
				}
				if err := cfg.Validate(); err != nil {
					return err
				}
				v = cfg
			}
			return encode(cmd.OutOrStdout(), format, v)
		},
	}

	bf.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format (json|yaml)")
	cmd.Flags().BoolVar(&process, "process", false, "Print the process configuration")
	return cmd
}

func encode(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
