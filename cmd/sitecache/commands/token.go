package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/sitecache/auth"
	"github.com/jonwraymond/sitecache/config"
)

func (c *CLI) newTokenCmd() *cobra.Command {
	var (
		subject string
		roles   []string
		ttl     time.Duration
		key     string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig(func(cfg *config.Config) {
				if cmd.Flags().Changed("key") {
					cfg.Admin.SigningKey = key
				}
			})
			if err != nil {
				return err
			}
			if cfg.Admin.SigningKey == "" {
				return fmt.Errorf("%w: pass --key or set %sADMIN_SIGNING_KEY", auth.ErrMissingKey, config.EnvPrefix)
			}

			signer, err := auth.NewSigner([]byte(cfg.Admin.SigningKey), cfg.Admin.Issuer, cfg.Admin.Audience)
			if err != nil {
				return err
			}
			token, err := signer.Issue(subject, roles, ttl)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&subject, "subject", "", "Token subject")
	f.StringSliceVar(&roles, "role", []string{auth.AdminRole}, "Roles granted by the token")
	f.DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	f.StringVar(&key, "key", "", "HMAC signing key")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
