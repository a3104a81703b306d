package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/picklr-io/vpnpilot/internal/dispatch"
)

var (
	overrideDuration string
	forceCloseYes    bool
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administrative controls for the idle monitor",
}

var adminOverrideCmd = &cobra.Command{
	Use:   "override [environment]",
	Short: "Disable auto-close for a while",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, dispatch.ActionAdminOverride, args, overrideDuration)
	},
}

var adminClearOverrideCmd = &cobra.Command{
	Use:   "clear-override [environment]",
	Short: "Re-enable auto-close",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, dispatch.ActionAdminClearOverride, args, "")
	},
}

var adminCooldownCmd = &cobra.Command{
	Use:   "cooldown [environment]",
	Short: "Show the remaining cooldown",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, dispatch.ActionAdminCooldown, args, "")
	},
}

var adminForceCloseCmd = &cobra.Command{
	Use:   "force-close [environment]",
	Short: "Close the endpoint and clear the cooldown",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !forceCloseYes {
			target := "the home environment"
			if len(args) > 0 {
				target = args[0]
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Force-close VPN in %s? Connected users will be dropped. (y/n): ", target)
			if !confirmed(cmd) {
				fmt.Fprintln(cmd.OutOrStdout(), "Force-close cancelled.")
				return nil
			}
		}
		return runAction(cmd, dispatch.ActionAdminForceClose, args, "")
	},
}

func init() {
	adminOverrideCmd.Flags().StringVarP(&overrideDuration, "duration", "d", "", "override duration, e.g. 4h (default 24h)")
	adminForceCloseCmd.Flags().BoolVarP(&forceCloseYes, "yes", "y", false, "skip the confirmation prompt")

	adminCmd.AddCommand(adminOverrideCmd)
	adminCmd.AddCommand(adminClearOverrideCmd)
	adminCmd.AddCommand(adminCooldownCmd)
	adminCmd.AddCommand(adminForceCloseCmd)
}

func confirmed(cmd *cobra.Command) bool {
	line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	response := strings.ToLower(strings.TrimSpace(line))
	return response == "y" || response == "yes"
}
