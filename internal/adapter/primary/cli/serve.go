package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"iphone-alarms-sync/internal/adapter/primary/web"
	"iphone-alarms-sync/internal/adapter/secondary/scheduler"
	"iphone-alarms-sync/internal/logging"
	"iphone-alarms-sync/internal/usecase"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the occurrence timers",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				cfg.HTTP.Addr = addr
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			hub := web.NewHub()
			a, err := openApp(ctx, hub)
			if err != nil {
				return err
			}
			defer a.Close()

			clock := scheduler.SystemClock{}
			sched := scheduler.NewTimerScheduler(clock)
			defer sched.Stop()
			tracker := usecase.NewOccurrenceTracker(a.coord, clock, sched, cfg.SettleDelay())
			tracker.Start()
			defer tracker.Stop()

			if a.mqtt != nil {
				unsubscribe := a.coord.Subscribe(func() { publishState(ctx, a) })
				defer unsubscribe()
				publishState(ctx, a)
			}

			srv := web.NewServer(a.coord, hub, web.Options{
				Addr:      cfg.HTTP.Addr,
				PublicURL: cfg.HTTP.PublicURL,
				Tracker:   tracker,
			})
			fmt.Fprintf(cmd.OutOrStdout(), "iphone-alarms-sync listening on http://%s (entry %s)\n", cfg.HTTP.Addr, cfg.EntryID)
			logging.Infof("serving entry %s on %s", cfg.EntryID, cfg.HTTP.Addr)

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "shutting down...")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address, overrides http.addr")
	return cmd
}

// publishState pushes the retained phone summary to MQTT.
func publishState(ctx context.Context, a *app) {
	p := a.coord.Phone()
	if p == nil {
		return
	}
	view := web.NewPhoneView(p, a.coord.Now(), a.coord.Location())
	if err := a.mqtt.PublishState(ctx, p.ID, view); err != nil {
		logging.Warnf("publish state: %v", err)
	}
}
