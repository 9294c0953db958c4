package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/oauth2"

	"github.com/sipeed/ordersync/pkg/commerce"
	"github.com/sipeed/ordersync/pkg/config"
	"github.com/sipeed/ordersync/pkg/logger"
	"github.com/sipeed/ordersync/pkg/runlog"
	"github.com/sipeed/ordersync/pkg/sheets"
	"github.com/sipeed/ordersync/pkg/syncer"
	"github.com/sipeed/ordersync/pkg/transform"
	"github.com/sipeed/ordersync/pkg/transport"
)

func setupLogging(cfg config.LogConfig) error {
	logger.SetLevel(logger.ParseLevel(cfg.Level))
	if strings.TrimSpace(cfg.File) == "" {
		return nil
	}
	return logger.EnableFileLogging(logger.FileOptions{
		Path:       cfg.File,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	})
}

// mergeMissing folds several section errors into one MissingError so the
// operator sees every absent key at once.
func mergeMissing(errs ...error) error {
	var keys []string
	var rest []error
	for _, err := range errs {
		if err == nil {
			continue
		}
		var missing *config.MissingError
		if errors.As(err, &missing) {
			keys = append(keys, missing.Keys...)
			continue
		}
		rest = append(rest, err)
	}
	if len(keys) > 0 {
		sort.Strings(keys)
		return &config.MissingError{Keys: keys}
	}
	return errors.Join(rest...)
}

func newCommerceClient(cfg config.ShopifyConfig, gate *commerce.Gate) (*commerce.Client, error) {
	return commerce.NewClient(commerce.ClientOptions{
		StoreDomain: cfg.StoreDomain,
		AccessToken: cfg.AccessToken,
		APIVersion:  cfg.APIVersion,
		HTTPClient:  transport.NewClient(cfg.Timeout, userAgent()),
		Gate:        gate,
	})
}

func userAgent() string {
	return transport.DefaultUserAgent + "/" + version
}

// newGoogleStore authenticates with the service account. The oauth2 token
// fetches and the API calls share the transport's base client.
func newGoogleStore(ctx context.Context, cfg config.SheetsConfig) (*sheets.GoogleStore, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, transport.NewClient(0, userAgent()))
	return sheets.NewGoogleStore(ctx, sheets.GoogleOptions{
		ServiceAccountEmail: cfg.ServiceAccountEmail,
		PrivateKey:          cfg.PrivateKeyPEM(),
		SpreadsheetID:       cfg.SpreadsheetID,
	})
}

func outputColumns(mapping config.FieldMapping) (sheets.Columns, error) {
	first, last, ok := strings.Cut(mapping.OutputColumns, ":")
	if !ok || first == "" || last == "" {
		return sheets.Columns{}, fmt.Errorf("invalid output columns %q", mapping.OutputColumns)
	}
	return sheets.Columns{First: strings.ToUpper(first), Last: strings.ToUpper(last)}, nil
}

type syncerParams struct {
	store      sheets.Store
	tab        string
	mapping    config.FieldMapping
	resolver   syncer.OrderResolver
	runLogPath string
	dryRun     bool
}

func newSyncer(p syncerParams) (*syncer.Syncer, error) {
	cols, err := outputColumns(p.mapping)
	if err != nil {
		return nil, err
	}
	opts := syncer.Options{
		Store:         p.store,
		Tab:           p.tab,
		InputColumn:   strings.ToUpper(p.mapping.InputColumn),
		OutputColumns: cols,
		Resolver:      p.resolver,
		Transformer:   transform.New(p.mapping),
		DryRun:        p.dryRun,
	}
	if p.runLogPath != "" {
		opts.RunLog = runlog.New(p.runLogPath)
	}
	return syncer.New(opts), nil
}
