package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var projectRoot string
var debugAddr string

var rootCmd = &cobra.Command{
	Use:           "ntsfs [command] [flags]",
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(projectRoot, debugAddr)
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&projectRoot, "root", ".", "project root to sandbox all operations under")
	rootCmd.Flags().StringVar(&debugAddr, "debug-addr", "", "if set, serve a debug/health HTTP surface on this address alongside stdio")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ntsfs: %v\n", err)
		os.Exit(1)
	}
}
