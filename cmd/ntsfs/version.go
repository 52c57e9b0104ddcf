package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is overridden at build time via -ldflags.
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ntsfs version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("ntsfs " + version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
