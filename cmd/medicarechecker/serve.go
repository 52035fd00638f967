package main

import (
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the lookup tools over stdio (default)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	application, logger, err := buildApplication(cmd)
	if err != nil {
		return err
	}
	if err := application.Run(cmd.Context(), version); err != nil {
		logger.Error("tool server stopped", "error", err)
		return err
	}
	return nil
}
