package main

import (
	"github.com/spf13/cobra"

	"MedicareCoverageChecker/internal/domain"
)

var lookupLocality string

var lookupCmd = &cobra.Command{
	Use:   "lookup CODE",
	Short: "Look up one HCPCS/CPT code and print the tool response",
	Args:  cobra.ExactArgs(1),
	RunE:  runLookup,
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check that the CMS endpoints are reachable",
	Args:  cobra.NoArgs,
	RunE:  runProbe,
}

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Print how Medicare payments are calculated",
	Args:  cobra.NoArgs,
	RunE:  runExplain,
}

func init() {
	lookupCmd.Flags().StringVar(&lookupLocality, "locality", domain.NationalLocality, "Geographic locality for pricing")
	rootCmd.AddCommand(lookupCmd, probeCmd, explainCmd)
}

func runLookup(cmd *cobra.Command, args []string) error {
	application, _, err := buildApplication(cmd)
	if err != nil {
		return err
	}
	resp, err := application.LookupReimbursement(cmd.Context(), args[0], lookupLocality)
	if err != nil {
		return err
	}
	return printJSON(cmd, resp)
}

func runProbe(cmd *cobra.Command, args []string) error {
	application, _, err := buildApplication(cmd)
	if err != nil {
		return err
	}
	return printJSON(cmd, application.TestConnection(cmd.Context()))
}

func runExplain(cmd *cobra.Command, args []string) error {
	application, _, err := buildApplication(cmd)
	if err != nil {
		return err
	}
	return printJSON(cmd, application.ExplainPayments())
}
