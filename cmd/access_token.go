package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/httpclient"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/probe"
)

var accessTokenCmd = &cobra.Command{
	Use:   "access-token <scope>",
	Short: "Exchange the refresh token for a scoped access token",
	Long: `Exchange ANDROID_REFRESH_TOKEN for a short-lived access token carrying the
given scope and print it as an Authorization header value.

Example:
  aasprobe access-token https://www.googleapis.com/auth/cloud-platform`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}

		handler, ctx, cancel := runContext()
		defer handler.Shutdown()
		defer cancel()

		clientCfg := httpclient.DefaultConfig(1)
		clientCfg.Timeout = cfg.Probe.Timeout
		httpClient, err := httpclient.NewProbeClient(clientCfg)
		if err != nil {
			return fmt.Errorf("failed to create http client: %w", err)
		}

		client, err := probe.NewClient(httpClient,
			probe.ConfigFrom(cfg.Probe, cfg.Credential, nil),
			probe.WithLogger(log),
		)
		if err != nil {
			return err
		}

		header, err := client.AccessToken(ctx, args[0])
		if err != nil {
			return fmt.Errorf("token exchange failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), header)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(accessTokenCmd)
}
