package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"
	"washmon-backend/lib/configutil"
	"washmon-backend/lib/platforms/pay2wash"
	"washmon-backend/lib/statusstore"
	"washmon-backend/lib/telemetry"
	"washmon-backend/lib/util/serviceutil"
	"washmon-backend/services/monitor"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

const defaultMetricsPort = 9091

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "washmond",
	Short: "Monitors shared laundry machines through the pay2wash portal.",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll machine statuses continuously and serve prometheus metrics.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := serviceutil.SignalContext()

		cfg, tel, err := setup(ctx)
		if err != nil {
			return err
		}
		defer tel.Shutdown(context.Background())

		var store *statusstore.Store
		if cfg.Store.File != "" {
			s, err := statusstore.Open(cfg.Store.File)
			if err != nil {
				return fmt.Errorf("open status store: %w", err)
			}
			store = &s
			defer store.Close()
		}

		metrics := monitor.NewMetrics()
		port := cfg.Metrics.Port
		if port == 0 {
			port = defaultMetricsPort
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go serviceutil.StartHttpServer(port, mux)

		interval := cfg.Monitor.PollInterval()
		if interval <= 0 {
			interval = time.Minute
		}

		var wg sync.WaitGroup
		for _, portal := range cfg.Portals {
			svc := monitor.NewService(monitor.Options{
				Portal:          portal.ClientOptions(),
				PollInterval:    interval,
				MaxPollFailures: cfg.Monitor.MaxPollFailures,
				Store:           store,
				Metrics:         metrics,
			})

			wg.Add(1)
			go func(portal string) {
				defer wg.Done()
				for {
					err := svc.Run(ctx)
					if ctx.Err() != nil {
						return
					}
					if err != nil {
						slog.Error("monitor run ended", "portal", portal, "err", err.Error())
					}
					// each run is a full login/logout bracket; pause
					// before opening the next session
					select {
					case <-time.After(interval):
					case <-ctx.Done():
						return
					}
				}
			}(portal.BaseUrl)
		}
		wg.Wait()
		return nil
	},
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Perform a single login, poll and logout, then print the statuses.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := serviceutil.SignalContext()

		cfg, tel, err := setup(ctx)
		if err != nil {
			return err
		}
		defer tel.Shutdown(context.Background())

		for _, portal := range cfg.Portals {
			svc := monitor.NewService(monitor.Options{
				Portal: portal.ClientOptions(),
			})
			statuses, err := svc.RunOnce(ctx)
			if err != nil {
				return fmt.Errorf("%s: %w", portal.BaseUrl, err)
			}
			printStatuses(portal.BaseUrl, statuses)
		}
		return nil
	},
}

func setup(ctx context.Context) (Config, telemetry.Telemetry, error) {
	if verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	tel, err := telemetry.SetupFromEnv(ctx, "washmond")
	if err != nil {
		return Config{}, telemetry.Telemetry{}, fmt.Errorf("setup telemetry: %w", err)
	}

	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		return Config{}, tel, fmt.Errorf("read config: %w", err)
	}
	if len(cfg.Portals) == 0 {
		return Config{}, tel, fmt.Errorf("config declares no portals")
	}
	return cfg, tel, nil
}

func printStatuses(portal string, statuses []pay2wash.MachineStatus) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(portal)
	t.AppendHeader(table.Row{"Machine", "Name", "Type", "State", "Remaining"})
	for _, status := range statuses {
		remaining := ""
		if status.Raw.RemainingTime != nil {
			remaining = status.Raw.RemainingTime.String()
		}
		t.AppendRow(table.Row{status.ID, status.Name, status.Type, status.State, remaining})
	}
	t.Render()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging.")
	rootCmd.AddCommand(runCmd, onceCmd)
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
