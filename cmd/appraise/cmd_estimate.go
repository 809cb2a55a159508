package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/fuzzyprice/internal/domain"
)

var errQuit = errors.New("quit")

func runInteractive(cmd *cobra.Command, args []string) error {
	a, err := loadAppraiser(cmd)
	if err != nil {
		return err
	}
	return interact(cmd.Context(), a, cmd.InOrStdin(), cmd.OutOrStdout())
}

// interact asks for every model input and an optional real price, prints the
// estimate and repeats. An empty answer or end of input ends the session.
func interact(ctx context.Context, a *appraiser, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	unit := a.outputUnit()

	fmt.Fprintln(out, styles.Title.Render(a.model.Spec.Name+" ("+a.model.Key()+")"))
	fmt.Fprintln(out, styles.Muted.Render("Press Enter on an empty line to quit."))

	for {
		fmt.Fprintln(out)
		inputs := make(map[string]float64)
		for _, v := range a.inputSpecs() {
			x, err := ask(scanner, out, label(v), false)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				return err
			}
			inputs[v.Name] = x
		}

		ref, err := ask(scanner, out, "Real price (0 to skip)", true)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			return err
		}

		est := a.estimate(ctx, inputs, ref)
		printEstimate(out, est, unit)
	}
}

func label(v domain.VariableSpec) string {
	name := strings.ReplaceAll(v.Name, "_", " ")
	if v.Unit != "" {
		return fmt.Sprintf("%s (%s)", name, v.Unit)
	}
	return name
}

// ask prompts until it reads a number. Decimal commas are accepted. When
// optional is set an empty answer yields 0 instead of ending the session.
func ask(scanner *bufio.Scanner, out io.Writer, prompt string, optional bool) (float64, error) {
	for {
		fmt.Fprint(out, styles.Prompt.Render(prompt+": "))
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return 0, err
			}
			return 0, errQuit
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			if optional {
				return 0, nil
			}
			return 0, errQuit
		}

		x, err := parseNumber(text)
		if err != nil {
			fmt.Fprintln(out, styles.Error.Render("not a number: "+text))
			continue
		}
		return x, nil
	}
}

func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64)
}

func runOnce(cmd *cobra.Command, args []string) error {
	a, err := loadAppraiser(cmd)
	if err != nil {
		return err
	}

	inputs, err := parseAssignments(args)
	if err != nil {
		return err
	}

	est := a.estimate(cmd.Context(), inputs, reference)
	out := cmd.OutOrStdout()
	if jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(est)
	}

	printEstimate(out, est, a.outputUnit())
	if !est.OK() {
		return fmt.Errorf("%s: %s", est.Status, est.Error)
	}
	return nil
}

// parseAssignments parses name=value arguments.
func parseAssignments(args []string) (map[string]float64, error) {
	inputs := make(map[string]float64, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("expected name=value, got %q", arg)
		}
		x, err := parseNumber(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %q", name, value)
		}
		inputs[name] = x
	}
	return inputs, nil
}
