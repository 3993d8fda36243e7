package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/aggregate"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/probe"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/results"
)

var scopesCmd = &cobra.Command{
	Use:   "scopes [scope...]",
	Short: "Find which scopes each discovered client may request",
	Long: `Probe every scope for every signature of every previously discovered client.

Scopes come from the arguments, from --scopes-file, or both. The output maps
package names to the sorted list of scopes approved for any of that
package's signatures.

Examples:
  aasprobe scopes https://www.googleapis.com/auth/calendar
  aasprobe scopes --clients data/android_clients.json --scopes-file scopes.txt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		clientsPath, _ := cmd.Flags().GetString("clients")
		scopesPath, _ := cmd.Flags().GetString("scopes-file")
		outputPath, _ := cmd.Flags().GetString("output")
		showProgress, _ := cmd.Flags().GetBool("progress")

		handler, ctx, cancel := runContext()
		defer handler.Shutdown()
		defer cancel()

		rt, err := newProbeRuntime(ctx, handler, probe.ScopeMarkers(), showProgress)
		if err != nil {
			return err
		}

		rt.tracker.StartPhase("load")
		scopes := results.Unique(args)
		if scopesPath != "" {
			fromFile, err := results.ReadLines(scopesPath)
			if err != nil {
				rt.tracker.FailPhase("load", err)
				return err
			}
			scopes = results.Unique(append(scopes, fromFile...))
		}
		if len(scopes) == 0 {
			err := fmt.Errorf("%w: pass scopes as arguments or with --scopes-file", results.ErrNoCandidates)
			rt.tracker.FailPhase("load", err)
			return err
		}

		clients, err := results.LoadClients(clientsPath, log)
		if err != nil {
			rt.tracker.FailPhase("load", err)
			return err
		}
		rt.tracker.CompletePhase("load")

		log.Infow("Starting scope validation",
			"packages", len(clients),
			"scopes", len(scopes),
			"workers", cfg.Worker.Count,
		)

		rt.tracker.StartPhase("probe")
		report, err := rt.engine.ValidateScopes(ctx, clients.Signatures(), scopes)
		if err != nil {
			rt.tracker.FailPhase("probe", err)
			return fmt.Errorf("scope validation failed: %w", err)
		}
		rt.tracker.CompletePhase("probe")

		rt.tracker.StartPhase("write")
		if err := results.WriteScopes(outputPath, cfg.Output.Format, report.Records); err != nil {
			rt.tracker.FailPhase("write", err)
			return err
		}
		rt.tracker.CompletePhase("write")
		rt.tracker.Complete()

		byPackage := aggregate.ScopesByPackage(report.Records)
		printSummary(report, len(byPackage), outputPath)
		if len(byPackage) == 0 {
			color.Yellow("No scopes approved for any client\n")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scopesCmd)

	scopesCmd.Flags().String("clients", "data/android_clients.json", "Discovery output to read clients from (json or yaml)")
	scopesCmd.Flags().String("scopes-file", "", "Newline-delimited scopes to probe")
	scopesCmd.Flags().StringP("output", "o", "output/clients.json", "Where to write approved scopes")
	scopesCmd.Flags().Bool("progress", false, "Show a progress bar on stderr")
}
