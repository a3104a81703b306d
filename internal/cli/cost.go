package cli

import (
	"github.com/spf13/cobra"

	"github.com/picklr-io/vpnpilot/internal/dispatch"
)

var costCmd = &cobra.Command{
	Use:   "cost",
	Short: "Report savings from idle closes",
}

var costSavingsCmd = &cobra.Command{
	Use:   "savings [environment]",
	Short: "Show today's and cumulative savings",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, dispatch.ActionCostSavings, args, "")
	},
}

var costAnalysisCmd = &cobra.Command{
	Use:   "analysis [environment]",
	Short: "Show the last 7 days of savings",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, dispatch.ActionCostAnalysis, args, "")
	},
}

func init() {
	costCmd.AddCommand(costSavingsCmd)
	costCmd.AddCommand(costAnalysisCmd)
}
