package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sipeed/ordersync/pkg/bus"
	"github.com/sipeed/ordersync/pkg/channels"
	"github.com/sipeed/ordersync/pkg/commerce"
	"github.com/sipeed/ordersync/pkg/config"
	"github.com/sipeed/ordersync/pkg/cron"
	"github.com/sipeed/ordersync/pkg/gateway"
	"github.com/sipeed/ordersync/pkg/health"
	"github.com/sipeed/ordersync/pkg/logger"
	"github.com/sipeed/ordersync/pkg/state"
)

const shutdownTimeout = 10 * time.Second

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Serve chat triggers and the sync schedule",
		Long: `Connects to Slack over Socket Mode (plus Discord and Telegram when their tokens
are set), runs a sync whenever the trigger command is used, and runs scheduled
syncs when ORDERSYNC_SCHEDULE is set. Stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runGateway(ctx)
		},
	}
}

func runGateway(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := setupLogging(cfg.Log); err != nil {
		return err
	}
	defer logger.DisableFileLogging()

	gate := commerce.NewGate(cfg.Shopify.MinGap)
	client, err := newCommerceClient(cfg.Shopify, gate)
	if err != nil {
		return err
	}
	store, err := newGoogleStore(ctx, cfg.Sheets)
	if err != nil {
		return err
	}

	// Probes only report; the gateway starts either way.
	health.Run(ctx, health.ShopifyProbe(client), health.SheetsProbe(store))

	runner, err := newSyncer(syncerParams{
		store:      store,
		tab:        cfg.Sheets.TabName,
		mapping:    cfg.Fields,
		resolver:   client,
		runLogPath: cfg.Sync.LogPath,
	})
	if err != nil {
		return err
	}

	msgBus := bus.NewMessageBus()
	manager, err := channels.NewManagerFromConfig(cfg, msgBus)
	if err != nil {
		return err
	}
	gw := gateway.New(msgBus, manager, runner)

	st := state.NewManager(cfg.Sync.StatePath)
	gw.SetTargetRecorder(st)

	var scheduler *cron.Scheduler
	if cfg.Sync.Schedule != "" {
		scheduler, err = cron.New(cfg.Sync.Schedule, cfg.Sync.ScheduleTarget, gw.Trigger)
		if err != nil {
			return err
		}
		scheduler.SetFallback(st.LastTarget)
	}

	if err := manager.StartAll(ctx); err != nil {
		return err
	}
	if scheduler != nil {
		go func() {
			if err := scheduler.Run(ctx); err != nil {
				logger.ErrorCF("cron", "Schedule stopped", map[string]any{"error": err.Error()})
			}
		}()
	}

	go func() {
		<-ctx.Done()
		msgBus.Close()
	}()

	fmt.Printf("✓ Gateway started (channels: %v)\n", manager.Names())
	fmt.Println("Press Ctrl+C to stop")
	logger.InfoCF("gateway", "Gateway started", map[string]any{
		"channels": manager.Names(),
		"tab":      cfg.Sheets.TabName,
		"schedule": cfg.Sync.Schedule,
	})

	runErr := gw.Run(ctx)

	fmt.Println("\nShutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	manager.StopAll(shutdownCtx)
	fmt.Println("✓ Gateway stopped")
	return runErr
}
