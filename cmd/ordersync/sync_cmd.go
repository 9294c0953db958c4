package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sipeed/ordersync/pkg/commerce"
	"github.com/sipeed/ordersync/pkg/config"
	"github.com/sipeed/ordersync/pkg/sheets"
)

type syncFlags struct {
	xlsxPath string
	tab      string
	dryRun   bool
}

func syncCmd() *cobra.Command {
	var flags syncFlags

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync from the terminal",
		Long: `Runs a single sync against the configured Google Sheet and prints the summary.
With --xlsx the sync reads and writes a local workbook instead, which needs no
Google credentials. --dry-run resolves every order but writes nothing to the
sheet or the run log.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), cmd.OutOrStdout(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.xlsxPath, "xlsx", "", "Path to a local .xlsx workbook to sync instead of Google Sheets")
	cmd.Flags().StringVar(&flags.tab, "tab", "", "Sheet tab to read (defaults to GOOGLE_SHEET_TAB, or the first tab of the workbook)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Resolve orders without writing to the sheet or the run log")
	return cmd
}

func runSync(ctx context.Context, out io.Writer, flags syncFlags) error {
	shopifyCfg, shopifyErr := config.LoadShopify()
	syncCfg, syncErr := config.LoadSync()
	logCfg, logErr := config.LoadLog()

	var sheetsCfg config.SheetsConfig
	var sheetsErr error
	if flags.xlsxPath == "" {
		sheetsCfg, sheetsErr = config.LoadSheets()
	}
	if err := mergeMissing(shopifyErr, sheetsErr, syncErr, logErr); err != nil {
		return err
	}
	if err := setupLogging(logCfg); err != nil {
		return err
	}

	mapping, err := config.LoadFieldMapping(syncCfg.FieldsFile)
	if err != nil {
		return err
	}

	client, err := newCommerceClient(shopifyCfg, commerce.NewGate(shopifyCfg.MinGap))
	if err != nil {
		return err
	}

	var store sheets.Store
	tab := flags.tab
	if flags.xlsxPath != "" {
		book, err := sheets.OpenXLSX(flags.xlsxPath)
		if err != nil {
			return err
		}
		defer book.Close()
		store = book
		if tab == "" {
			tab = book.DefaultTab()
		}
	} else {
		google, err := newGoogleStore(ctx, sheetsCfg)
		if err != nil {
			return err
		}
		store = google
		if tab == "" {
			tab = sheetsCfg.TabName
		}
	}

	runner, err := newSyncer(syncerParams{
		store:      store,
		tab:        tab,
		mapping:    mapping,
		resolver:   client,
		runLogPath: syncCfg.LogPath,
		dryRun:     flags.dryRun,
	})
	if err != nil {
		return err
	}

	result, err := runner.Run(ctx, "cli")
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	fmt.Fprintln(out, result.Summary())
	return nil
}
