package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/licitalens/licitalens/internal/config"
	"github.com/licitalens/licitalens/internal/output"
)

var policyListFormat string

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect gateway policies",
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List effective rate-limit policies",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(policyListFormat)
		if err != nil {
			return err
		}

		cfg := config.GetConfig()
		if cfg == nil {
			return fmt.Errorf("configuration not loaded")
		}

		rendered, err := output.FormatPolicies(format, output.PolicyRows(cfg.RateLimit))
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), rendered)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyListCmd)

	policyListCmd.Flags().StringVar(&policyListFormat, "output-format", string(output.FormatTable), "Output format: table|json")
}
