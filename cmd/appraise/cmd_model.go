package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/fuzzyprice/internal/landpricing"
	"github.com/opensource-finance/fuzzyprice/internal/modelfile"
)

func runCurve(cmd *cobra.Command, args []string) error {
	a, err := loadAppraiser(cmd)
	if err != nil {
		return err
	}

	from, to := curveFrom, curveTo
	if !cmd.Flags().Changed("from") {
		from = landpricing.AreaBreakpoints[0]
	}
	if !cmd.Flags().Changed("to") {
		to = landpricing.AreaBreakpoints[len(landpricing.AreaBreakpoints)-1]
	}

	points, err := landpricing.AreaCurve(a.model.Model, from, to, curveStep)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(points)
	}

	fmt.Fprintln(out, styles.Title.Render(fmt.Sprintf("Price by area (avenue %.2f km, beach %.2f km)",
		landpricing.DistAveAverage, landpricing.DistBchAverage)))
	fmt.Fprintln(out, styles.Header.Render(fmt.Sprintf("%10s  %18s", "area (m2)", "price")))
	unit := a.outputUnit()
	for _, p := range points {
		price := styles.Muted.Render("no rule applies")
		if p.OK {
			price = formatAmount(p.Price, unit)
		}
		fmt.Fprintf(out, "%10s  %18s\n", strconv.FormatFloat(p.Area, 'f', -1, 64), price)
	}
	return nil
}

func runSample(cmd *cobra.Command, args []string) error {
	a, err := loadAppraiser(cmd)
	if err != nil {
		return err
	}

	points, err := a.engine.Sample(args[0], args[1])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, styles.Header.Render(fmt.Sprintf("%12s  %-8s", args[0], args[1])))
	for i, p := range points {
		if !sampleAll && i%10 != 0 {
			continue
		}
		bar := strings.Repeat("#", int(p.Degree*40+0.5))
		fmt.Fprintf(out, "%12g  %.4f %s\n", p.X, p.Degree, styles.Price.Render(bar))
	}
	return nil
}

func runModelExport(cmd *cobra.Command, args []string) error {
	a, err := loadAppraiser(cmd)
	if err != nil {
		return err
	}
	return modelfile.Encode(cmd.OutOrStdout(), a.model.Spec)
}
