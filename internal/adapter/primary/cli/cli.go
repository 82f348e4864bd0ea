package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"iphone-alarms-sync/internal/adapter/secondary/notify"
	"iphone-alarms-sync/internal/adapter/secondary/repository"
	"iphone-alarms-sync/internal/adapter/secondary/scheduler"
	"iphone-alarms-sync/internal/config"
	"iphone-alarms-sync/internal/domain"
	"iphone-alarms-sync/internal/logging"
	"iphone-alarms-sync/internal/usecase"
)

var (
	cfgPath   string
	verbosity int
	cfg       config.Config
)

// NewRootCmd creates the root CLI command.
// This is the primary adapter that translates CLI inputs to use case calls.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "iphone-alarms-sync",
		Short:         "Mirror iPhone alarms into Home Assistant",
		Long:          "Keeps the alarms pushed by an iPhone shortcut, tracks their next occurrences and forwards alarm events to automations.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "path to the YAML config file")
	cmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase logging (-v, -vv, ... up to 4)")
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("config %s: %w", cfgPath, err)
		}
		cfg = loaded
		return setupLogging(cfg.Logging)
	}

	cmd.AddCommand(
		newServeCmd(),
		newConfigCmd(),
		newSetupCmd(),
		newPhoneCmd(),
		newAlarmsCmd(),
		newSyncCmd(),
		newReportCmd(),
		newNextCmd(),
		newQRCmd(),
		newShellCmd(),
	)
	return cmd
}

// setupLogging applies the configured level unless -v was given.
func setupLogging(lc config.LoggingConfig) error {
	if err := logging.SetFormat(lc.Format); err != nil {
		return err
	}
	if verbosity > 0 {
		logging.SetVerbosity(verbosity)
		return nil
	}
	count, err := logging.ParseLevel(lc.Level)
	if err != nil {
		return err
	}
	logging.SetVerbosity(count)
	return nil
}

// app is the wiring shared by every command that touches stored state.
type app struct {
	coord   usecase.Coordinator
	mqtt    *notify.MQTT
	closers []func() error
}

// openApp opens the configured store and builds a coordinator publishing to
// the configured integrations plus extra.
func openApp(ctx context.Context, extra ...domain.EventPublisher) (*app, error) {
	a := &app{}
	store, closeStore, err := repository.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeStore)

	pubs := append([]domain.EventPublisher(nil), extra...)
	if cfg.HomeAssistant.Enabled {
		pubs = append(pubs, notify.NewHomeAssistant(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, cfg.HomeAssistantTimeout()))
	}
	if cfg.MQTT.Enabled {
		mq, err := notify.ConnectMQTT(notify.MQTTOptions{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.mqtt = mq
		a.closers = append(a.closers, func() error { mq.Close(); return nil })
		pubs = append(pubs, mq)
	}

	loc, err := cfg.Location()
	if err != nil {
		a.Close()
		return nil, err
	}
	coord, err := usecase.NewCoordinator(ctx, cfg.EntryID, store,
		usecase.WithClock(scheduler.SystemClock{}),
		usecase.WithLocation(loc),
		usecase.WithMaxEvents(cfg.Events.MaxRetained),
		usecase.WithPublisher(notify.Combine(pubs...)),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.coord = coord
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logging.Warnf("close: %v", err)
		}
	}
	a.closers = nil
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or initialise the service configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration as JSON",
			RunE: func(cmd *cobra.Command, args []string) error {
				shown := cfg
				if shown.HomeAssistant.Token != "" {
					shown.HomeAssistant.Token = "********"
				}
				return printJSON(cmd.OutOrStdout(), shown)
			},
		},
		&cobra.Command{
			Use:   "init",
			Short: "Write the effective configuration to --config",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := config.Save(cfgPath, cfg); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", cfgPath)
				return nil
			},
		},
	)
	return cmd
}
