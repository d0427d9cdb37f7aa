package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "idgate",
	Short: "National ID validation API gateway",
	Long:  `An API gateway fronting the Egyptian national ID validation service with API key authentication, multi-window rate limiting and usage accounting.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
