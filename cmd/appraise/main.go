// FuzzyPrice - Land price estimation with fuzzy inference.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

// Command appraise estimates land prices from the terminal without a server.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, styles.Error.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}
