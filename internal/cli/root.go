package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/picklr-io/vpnpilot/internal/app"
	"github.com/picklr-io/vpnpilot/internal/config"
	"github.com/picklr-io/vpnpilot/internal/logging"
)

var (
	flagProfile  string
	flagRegion   string
	flagEnv      string
	flagUser     string
	flagOutput   string
	flagLogLevel string
	noColor      bool
)

var rootCmd = &cobra.Command{
	Use:   "vpnctl",
	Short: "Operate Client VPN lifecycle automation",
	Long: `vpnctl runs the same commands as the Slack /vpn integration from a terminal.

It talks to AWS directly for the home environment and forwards commands for
the other environment through its control API:
  • open, close and check the endpoint
  • run or preview the idle monitor
  • manage admin overrides and the cooldown
  • report cost savings`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(flagLogLevel)
	},
}

// loadApp builds the application; tests replace it.
var loadApp = func(ctx context.Context) (*app.App, error) {
	return app.Load(ctx, app.LoadOptions{
		Lookup:  lookupWithFlags,
		Profile: flagProfile,
		Logger:  logging.Logger(),
	})
}

// lookupWithFlags overlays command-line flags on the process environment.
func lookupWithFlags(key string) (string, bool) {
	switch {
	case key == config.EnvEnvironment && flagEnv != "":
		return flagEnv, true
	case key == config.EnvRegion && flagRegion != "":
		return flagRegion, true
	case key == config.EnvLogLevel && flagLogLevel != "":
		return flagLogLevel, true
	}
	return os.LookupEnv(key)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagProfile, "profile", "", "AWS shared config profile")
	pf.StringVar(&flagRegion, "region", "", "AWS region (defaults to AWS_REGION)")
	pf.StringVarP(&flagEnv, "env", "e", "", "home environment (defaults to ENVIRONMENT)")
	pf.StringVarP(&flagUser, "user", "u", os.Getenv("USER"), "user recorded on commands")
	pf.StringVarP(&flagOutput, "output", "o", "text", "output format: text or json")
	pf.StringVar(&flagLogLevel, "log-level", "warn", "log level: debug, info, warn or error")
	pf.BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(adminCmd)
	rootCmd.AddCommand(costCmd)
	rootCmd.AddCommand(dispatchCmd)
	rootCmd.AddCommand(versionCmd)
}

func validateOutput() error {
	if flagOutput != "text" && flagOutput != "json" {
		return fmt.Errorf("unknown output format %q, must be text or json", flagOutput)
	}
	return nil
}
