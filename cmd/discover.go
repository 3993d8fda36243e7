package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/aggregate"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/probe"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/results"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find registered package/signature pairs and mint their tokens",
	Long: `Probe every candidate package against every candidate signature and record
the pairs the authorization service recognises as registered clients.

Each discovered identity gets an attestation token. The output maps package
names to lists of {sig, token} records and is the input of 'aasprobe scopes'.

Examples:
  aasprobe discover
  aasprobe discover --packages pkgs.txt --signatures sigs.txt -o clients.json
  WORKER_COUNT=100 aasprobe discover --format yaml -o clients.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		packagesPath, _ := cmd.Flags().GetString("packages")
		signaturesPath, _ := cmd.Flags().GetString("signatures")
		outputPath, _ := cmd.Flags().GetString("output")
		showProgress, _ := cmd.Flags().GetBool("progress")

		handler, ctx, cancel := runContext()
		defer handler.Shutdown()
		defer cancel()

		rt, err := newProbeRuntime(ctx, handler, probe.DiscoveryMarkers(), showProgress)
		if err != nil {
			return err
		}

		rt.tracker.StartPhase("load")
		packages, err := results.ReadLines(packagesPath)
		if err != nil {
			rt.tracker.FailPhase("load", err)
			return err
		}
		signatures, err := results.ReadLines(signaturesPath)
		if err != nil {
			rt.tracker.FailPhase("load", err)
			return err
		}
		rt.tracker.CompletePhase("load")

		log.Infow("Starting discovery",
			"packages", len(packages),
			"signatures", len(signatures),
			"workers", cfg.Worker.Count,
		)

		rt.tracker.StartPhase("probe")
		report, err := rt.engine.Discover(ctx, packages, signatures)
		if err != nil {
			rt.tracker.FailPhase("probe", err)
			return fmt.Errorf("discovery failed: %w", err)
		}
		rt.tracker.CompletePhase("probe")

		rt.tracker.StartPhase("write")
		if err := results.WriteDiscovery(outputPath, cfg.Output.Format, report.Records); err != nil {
			rt.tracker.FailPhase("write", err)
			return err
		}
		rt.tracker.CompletePhase("write")
		rt.tracker.Complete()

		clients := aggregate.ClientsByPackage(report.Records)
		for pkg, list := range clients {
			log.Debugw("Discovered client", "package", pkg, "signatures", len(list))
		}
		printSummary(report, len(report.Records), outputPath)
		if len(report.Records) == 0 {
			color.Yellow("No registered clients found\n")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	discoverCmd.Flags().String("packages", "input/packages.txt", "Newline-delimited candidate package names")
	discoverCmd.Flags().String("signatures", "input/sig.txt", "Newline-delimited candidate signatures (hex)")
	discoverCmd.Flags().StringP("output", "o", "data/android_clients.json", "Where to write discovered clients")
	discoverCmd.Flags().Bool("progress", false, "Show a progress bar on stderr")
}
