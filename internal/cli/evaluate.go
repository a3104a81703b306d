package cli

import (
	"github.com/spf13/cobra"

	"github.com/picklr-io/vpnpilot/internal/dispatch"
	"github.com/picklr-io/vpnpilot/internal/monitor"
)

var evaluateAutoOpen bool

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run one idle-monitor cycle now",
	Long: `Runs the scheduled idle check against the home environment, exactly as
the monitor function does. With --auto-open it runs the weekday morning open
instead. The cycle can close or open the endpoint.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateOutput(); err != nil {
			return err
		}
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}

		var d monitor.Decision
		if evaluateAutoOpen {
			d = a.Engine.AutoOpen(cmd.Context())
		} else {
			d = a.Engine.Evaluate(cmd.Context())
		}

		msg := string(d.Outcome)
		if d.Reason != "" {
			msg += ": " + string(d.Reason)
		}
		res := dispatch.Succeeded(msg, d)
		if d.Outcome == monitor.OutcomeError && d.Err != nil {
			res = dispatch.Result{Message: msg, Data: d, Error: d.Err.Error()}
		}
		return printResult(cmd.OutOrStdout(), res)
	},
}

func init() {
	evaluateCmd.Flags().BoolVar(&evaluateAutoOpen, "auto-open", false, "run the morning auto-open instead of the idle check")
}
