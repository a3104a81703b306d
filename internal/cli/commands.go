package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/picklr-io/vpnpilot/internal/dispatch"
)

var statusCmd = &cobra.Command{
	Use:     "status [environment]",
	Aliases: []string{"check"},
	Short:   "Show endpoint status",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, dispatch.ActionCheck, args, "")
	},
}

var openCmd = &cobra.Command{
	Use:   "open [environment]",
	Short: "Associate the VPN subnets",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, dispatch.ActionOpen, args, "")
	},
}

var closeCmd = &cobra.Command{
	Use:   "close [environment]",
	Short: "Disassociate the VPN subnets",
	Long: `Disassociates every subnet of the endpoint. Unlike the idle monitor this
skips the safety gates; it records manual activity so the monitor leaves the
endpoint alone for the grace period.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, dispatch.ActionClose, args, "")
	},
}

var dispatchDuration string

var dispatchCmd = &cobra.Command{
	Use:   "dispatch <action> [environment]",
	Short: "Send any command through the dispatcher",
	Long: `Sends a raw command through the dispatcher. Actions:
  open, close, check, admin-override, admin-clear-override, admin-cooldown,
  admin-force-close, cost-savings, cost-analysis, auto-open, auto-close`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		action := dispatch.ParseAction(args[0])
		if !action.Valid() {
			return fmt.Errorf("unknown action %q", args[0])
		}
		return runAction(cmd, action, args[1:], dispatchDuration)
	},
}

func init() {
	dispatchCmd.Flags().StringVar(&dispatchDuration, "duration", "", "override duration for admin-override")
}

// runAction builds and dispatches one command. The target defaults to the
// home environment.
func runAction(cmd *cobra.Command, action dispatch.Action, args []string, duration string) error {
	if err := validateOutput(); err != nil {
		return err
	}
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}

	target := a.Config.Environment
	if len(args) > 0 {
		target = args[0]
	}
	c := dispatch.Command{
		Action:      action,
		Environment: target,
		User:        flagUser,
		RequestID:   dispatch.NewRequestID(),
		Duration:    duration,
	}
	res := a.Dispatcher.Dispatch(cmd.Context(), c)
	if err := printResult(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%s failed", action)
	}
	return nil
}
