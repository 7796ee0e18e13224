package commands

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/sitecache/config"
	"github.com/jonwraymond/sitecache/observe"
)

func (c *CLI) newServeCmd() *cobra.Command {
	var (
		bf     buildFlags
		listen string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the built site under its base path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := cmd.Context()

			cfg, err := c.loadConfig(func(cfg *config.Config) {
				if cmd.Flags().Changed("listen") {
					cfg.Listen = listen
				}
				cfg.Storage.Driver = config.DriverMemory
			})
			if err != nil {
				return err
			}
			site, err := bf.load()
			if err != nil {
				return err
			}
			handler, err := site.Handler(os.DirFS(bf.dir))
			if err != nil {
				return err
			}

			rt, err := newRuntime(ctx, cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() {
				if cerr := rt.Close(context.WithoutCancel(ctx)); err == nil {
					err = cerr
				}
			}()

			mux := rt.mux()
			mux.Handle("/", handler)

			ln, err := net.Listen("tcp", cfg.Listen)
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			rt.logger().Info(ctx, "serving site",
				observe.Field{Key: "pages", Value: site.Pages},
				observe.Field{Key: "base", Value: site.Base},
			)
			return serveHTTP(ctx, ln, mux, rt.logger())
		},
	}

	bf.register(cmd)
	cmd.Flags().StringVar(&listen, "listen", "", "Address to listen on")
	return cmd
}
