package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func (c *CLI) newVerifyCmd() *cobra.Command {
	var bf buildFlags

	cmd := &cobra.Command{
		Use:   "verify [route...]",
		Short: "Check that routes resolve to built pages",
		Long: `Resolve each route against the pages directory. Routes default to "/".
In strict mode without a fallback, any unresolved route fails the command.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			site, err := bf.load()
			if err != nil {
				return err
			}
			if err := site.Validate(); err != nil {
				return err
			}
			routes := args
			if len(routes) == 0 {
				routes = []string{"/"}
			}

			report, err := site.CheckRoutes(os.DirFS(bf.dir), routes)
			out := cmd.OutOrStdout()
			for _, route := range routes {
				if file, ok := report.Resolved[route]; ok {
					_, _ = fmt.Fprintf(out, "ok       %s -> %s\n", site.Path(route), file)
				}
			}
			for _, route := range report.Unresolved {
				_, _ = fmt.Fprintf(out, "missing  %s\n", site.Path(route))
			}
			return err
		},
	}

	bf.register(cmd)
	return cmd
}
