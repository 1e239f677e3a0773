package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomo-delivery/dispatchd/config"
	"github.com/tomo-delivery/dispatchd/core/dispatch"
	"github.com/tomo-delivery/dispatchd/core/realtime"
	"github.com/tomo-delivery/dispatchd/infra/logger"
	"github.com/tomo-delivery/dispatchd/infra/mqtt"
	"github.com/tomo-delivery/dispatchd/infra/postgres"
	"github.com/tomo-delivery/dispatchd/infra/redisdir"
)

var dispatchOrderID string

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Dispatch a single READY order and stream its events",
	RunE:  dispatchOrder,
}

func init() {
	dispatchCmd.Flags().StringVar(&dispatchOrderID, "order", "", "order id to dispatch")
	_ = dispatchCmd.MarkFlagRequired("order")
	rootCmd.AddCommand(dispatchCmd)
}

// dispatchOrder drives one order through dispatch from the command
// line, mainly for smoke testing a deployment.
func dispatchOrder(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New("dispatch-command")

	store, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("order store: %w", err)
	}
	defer store.Close()
	directory, err := redisdir.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("rider directory: %w", err)
	}
	defer func() {
		if err := directory.Close(); err != nil {
			logg.Errorf("directory close: %v", err)
		}
	}()

	var transports []realtime.Transport
	if cfg.MQTT.Enabled {
		pub, err := mqtt.NewPublisher(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("mqtt publisher: %w", err)
		}
		defer pub.Disconnect()
		transports = append(transports, pub)
	}
	hub := realtime.NewHub(logg, transports...)
	defer hub.Close()

	orch, err := dispatch.New(store, directory, dispatch.StaticConfig(cfg.Dispatch), hub, nil, nil, logg)
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	defer func() {
		if err := orch.Close(); err != nil {
			logg.Errorf("orchestrator close: %v", err)
		}
	}()

	events := hub.Subscribe(realtime.OrderTopic(dispatchOrderID))
	defer hub.Unsubscribe(realtime.OrderTopic(dispatchOrderID), events)

	if err := orch.Dispatch(ctx, dispatchOrderID); err != nil {
		return fmt.Errorf("dispatch order %s: %w", dispatchOrderID, err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			logg.Infof("order %s: %s status=%s rider=%s", ev.OrderID, ev.Type, ev.Status, ev.RiderID)
			if ev.Type == realtime.EventOrderUpdated || ev.Type == realtime.EventFallback {
				return nil
			}
		}
	}
}
