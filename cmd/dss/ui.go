package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/compass/internal/clients/polygon"
	"github.com/aristath/compass/internal/events"
	"github.com/aristath/compass/internal/monitor"
	"github.com/aristath/compass/internal/server"
)

func newUICmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "ui",
		Short: "Serve the read-only dashboard API",
		Long:  "Starts an HTTP server exposing signals, positions, trades and the latest plan, plus a websocket event stream. When a Polygon key is configured, the position monitor runs alongside it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if port > 0 {
				a.cfg.Port = port
			}

			bus := events.NewBus(a.log)

			if a.cfg.PolygonAPIKey != "" {
				client := polygon.NewClient(a.cfg.PolygonAPIKey, a.cfg.PolygonPlan, a.log)
				mon := monitor.New(a.journal, client, bus, a.log)
				if err := mon.Start(); err != nil {
					a.log.Warn().Err(err).Msg("Monitor not started")
				} else {
					defer mon.Stop()
				}
			}

			srv := server.New(server.Config{
				Port:    a.cfg.Port,
				Journal: a.journal,
				UserDB:  a.userDB,
				Bus:     bus,
				DevMode: a.cfg.DevMode,
				Log:     a.log,
			})

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return fmt.Errorf("server failed: %w", err)
			case <-sig:
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides DSS_PORT)")
	return cmd
}
