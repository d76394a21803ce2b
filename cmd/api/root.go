package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	serveCmd := newServeCommand()

	rootCmd := &cobra.Command{
		Use:           "rash-triage",
		Short:         "Rash photo triage relay",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFlag != "" {
				return os.Setenv("CONFIG_FILE", configFlag)
			}
			return nil
		},
		RunE: serveCmd.RunE,
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "YAML configuration file (overrides CONFIG_FILE)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newAnalyzeCommand())

	return rootCmd
}
