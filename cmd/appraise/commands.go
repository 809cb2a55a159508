package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	modelPath string
	clipFlag  bool
	jsonOut   bool
	reference float64
	curveFrom float64
	curveTo   float64
	curveStep float64
	sampleAll bool

	rootCmd = &cobra.Command{
		Use:   "appraise",
		Short: "Estimate land prices with the fuzzy pricing model",
		Long: `appraise evaluates the land pricing model locally, without a server.
It uses the built-in model unless --model points to a YAML or JSON model file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Prompt for plots interactively until an empty answer",
		Args:  cobra.NoArgs,
		RunE:  runInteractive,
	}

	onceCmd = &cobra.Command{
		Use:     "once name=value...",
		Short:   "Estimate one plot, e.g. appraise once area=455 dist_ave=0.78 dist_bch=0.30",
		Args:    cobra.MinimumNArgs(1),
		Example: "  appraise once area=300 dist_ave=2 dist_bch=1.5 --reference 150000",
		RunE:    runOnce,
	}

	curveCmd = &cobra.Command{
		Use:   "curve",
		Short: "Tabulate price against area at the average distances",
		Args:  cobra.NoArgs,
		RunE:  runCurve,
	}

	sampleCmd = &cobra.Command{
		Use:   "sample variable category",
		Short: "Print the sampled membership curve of one category",
		Args:  cobra.ExactArgs(2),
		RunE:  runSample,
	}

	modelCmd = &cobra.Command{
		Use:   "model",
		Short: "Inspect the model",
	}
	modelExportCmd = &cobra.Command{
		Use:   "export",
		Short: "Write the model definition as YAML",
		Args:  cobra.NoArgs,
		RunE:  runModelExport,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&modelPath, "model", "", "model file (YAML or JSON); built-in land pricing model when empty")
	rootCmd.PersistentFlags().BoolVar(&clipFlag, "clip", false, "clamp inputs into their universes before evaluation")

	onceCmd.Flags().Float64Var(&reference, "reference", 0, "real price to compare the estimate with (0 skips)")
	onceCmd.Flags().BoolVar(&jsonOut, "json", false, "print the estimate as JSON")

	curveCmd.Flags().Float64Var(&curveFrom, "from", 0, "first area (default: smallest area breakpoint)")
	curveCmd.Flags().Float64Var(&curveTo, "to", 0, "last area (default: largest area breakpoint)")
	curveCmd.Flags().Float64Var(&curveStep, "step", 1, "area step")
	curveCmd.Flags().BoolVar(&jsonOut, "json", false, "print the curve as JSON")

	sampleCmd.Flags().BoolVar(&sampleAll, "all", false, "print every grid point instead of every tenth")

	modelCmd.AddCommand(modelExportCmd)
	rootCmd.AddCommand(runCmd, onceCmd, curveCmd, sampleCmd, modelCmd)
}

// loadAppraiser builds the appraiser from the global flags.
func loadAppraiser(cmd *cobra.Command) (*appraiser, error) {
	var clip *bool
	if cmd.Flags().Changed("clip") {
		clip = &clipFlag
	}
	return newAppraiser(modelPath, clip)
}
