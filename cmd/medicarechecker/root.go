package main

import (
	"encoding/json"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"MedicareCoverageChecker/internal/app"
	"MedicareCoverageChecker/internal/config"
	"MedicareCoverageChecker/internal/logging"
)

var version = "dev"

var flags struct {
	configPath string
	logLevel   string
	logFormat  string
}

var rootCmd = &cobra.Command{
	Use:   "medicarechecker",
	Short: "Medicare HCPCS/CPT reimbursement lookup over MCP",
	Long: "Looks up Medicare physician fee schedule reimbursement for HCPCS/CPT codes from CMS data " +
		"services. Without a subcommand it serves the lookup tools over stdio.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", os.Getenv("MEDICARE_CHECKER_CONFIG"), "Path to YAML config file (or set MEDICARE_CHECKER_CONFIG)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format: text or json")
}

// loadConfig applies command-line flags on top of file and environment settings.
func loadConfig(cmd *cobra.Command) config.Config {
	cfg := config.LoadPath(flags.configPath)
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = flags.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Logging.Format = flags.logFormat
	}
	return cfg
}

func buildApplication(cmd *cobra.Command) (*app.Application, *slog.Logger, error) {
	cfg := loadConfig(cmd)
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	application, err := app.New(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return application, logger, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
