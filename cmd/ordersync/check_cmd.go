package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sipeed/ordersync/pkg/commerce"
	"github.com/sipeed/ordersync/pkg/config"
	"github.com/sipeed/ordersync/pkg/health"
)

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check that Shopify and the sheet are reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func runCheck(ctx context.Context, out io.Writer) error {
	shopifyCfg, shopifyErr := config.LoadShopify()
	sheetsCfg, sheetsErr := config.LoadSheets()
	if err := mergeMissing(shopifyErr, sheetsErr); err != nil {
		return err
	}

	client, err := newCommerceClient(shopifyCfg, commerce.NewGate(shopifyCfg.MinGap))
	if err != nil {
		return err
	}
	store, err := newGoogleStore(ctx, sheetsCfg)
	if err != nil {
		return err
	}

	results := health.Run(ctx, health.ShopifyProbe(client), health.SheetsProbe(store))
	fmt.Fprint(out, renderCheck(results))
	if !health.AllOK(results) {
		return fmt.Errorf("one or more checks failed")
	}
	return nil
}

func renderCheck(results []health.Result) string {
	var b strings.Builder
	b.WriteString(styleHeader.Render("ordersync check"))
	b.WriteString("\n\n")
	for _, r := range results {
		mark := styleOK.Render("✓")
		status := styleOK.Render(string(r.Status))
		detail := r.Detail
		if r.Status != health.StatusOK {
			mark = styleErr.Render("✗")
			status = styleErr.Render(string(r.Status))
			detail = r.Error
		}
		elapsed := styleDim.Render(fmt.Sprintf("(%s)", r.Elapsed.Round(time.Millisecond)))
		fmt.Fprintf(&b, "%s %s %s  %s %s\n", mark, styleLabel.Render(r.Name), status, detail, elapsed)
	}
	return b.String()
}
