package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/sipeed/ordersync/pkg/config"
)

var (
	version   = "dev"
	buildTime string
	goVersion string
)

func versionString() string {
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	s := version + " (" + goVer
	if buildTime != "" {
		s += ", built " + buildTime
	}
	return s + ")"
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "ordersync",
		Short:   "Copy Shopify order details into a Google Sheet",
		Version: versionString(),
		Long: `ordersync reads order numbers (C#1234) from a sheet column, looks each order up
in Shopify and writes packing notes, contact owner, fulfillment type and payment
status back next to it. Runs are triggered from Slack, Discord, Telegram, a cron
schedule or the command line.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(gatewayCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ordersync %s\n", versionString())
		},
	}
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		printError(err)
		os.Exit(1)
	}
}

func printError(err error) {
	var missing *config.MissingError
	if errors.As(err, &missing) {
		fmt.Fprintln(os.Stderr, "Missing required configuration:")
		for _, key := range missing.Keys {
			fmt.Fprintf(os.Stderr, "  %s\n", key)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}
