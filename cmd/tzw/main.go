package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"
	_ "time/tzdata"

	"github.com/dustin/go-humanize"
	"github.com/golang-sql/civil"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/rowjay/tzwindow/internal/config"
	"github.com/rowjay/tzwindow/internal/cryptoutil"
	"github.com/rowjay/tzwindow/internal/lock"
	"github.com/rowjay/tzwindow/internal/logging"
	"github.com/rowjay/tzwindow/internal/monitor"
	"github.com/rowjay/tzwindow/internal/notify"
	"github.com/rowjay/tzwindow/internal/server"
	"github.com/rowjay/tzwindow/internal/state"
	"github.com/rowjay/tzwindow/internal/version"
	"github.com/rowjay/tzwindow/internal/window"
)

type rootFlags struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
	Latitude   float64
	Longitude  float64
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:           "tzw",
		Short:         "Timezone-aware daily time windows",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&root.ConfigPath, "config", "", "Path to config file (yaml/toml/json or .enc)")
	rootCmd.PersistentFlags().StringVar(&root.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&root.LogFormat, "log-format", "", "Log format (json, console)")
	rootCmd.PersistentFlags().Float64Var(&root.Latitude, "latitude", 0, "Latitude for sunrise/sunset, overrides location.latitude")
	rootCmd.PersistentFlags().Float64Var(&root.Longitude, "longitude", 0, "Longitude for sunrise/sunset, overrides location.longitude")

	rootCmd.AddCommand(newStatusCmd(root))
	rootCmd.AddCommand(newResolveCmd(root))
	rootCmd.AddCommand(newWatchCmd(root))
	rootCmd.AddCommand(newValidateCmd(root))
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// session bundles what every window command needs.
type session struct {
	cfg    *config.Config
	table  window.Table
	sun    window.SunEvents
	logger zerolog.Logger
}

func load(cmd *cobra.Command, root *rootFlags) (*session, error) {
	cfg, err := config.Load(root.ConfigPath)
	if err != nil {
		return nil, err
	}
	applyOverrides(cmd, cfg, root)
	logger := logging.Configure(cfg.Global.LogLevel, cfg.Global.LogFormat)

	table, err := cfg.WindowTable()
	if err != nil {
		return nil, err
	}
	sun, err := cfg.SunEvents()
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, table: table, sun: sun, logger: logger}, nil
}

func applyOverrides(cmd *cobra.Command, cfg *config.Config, root *rootFlags) {
	if root.LogLevel != "" {
		cfg.Global.LogLevel = root.LogLevel
	}
	if root.LogFormat != "" {
		cfg.Global.LogFormat = root.LogFormat
	}
	if cmd.Flags().Changed("latitude") {
		lat := root.Latitude
		cfg.Location.Latitude = &lat
	}
	if cmd.Flags().Changed("longitude") {
		long := root.Longitude
		cfg.Location.Longitude = &long
	}
	cfg.State.Backend = strings.ToLower(cfg.State.Backend)
	cfg.State.Compression = strings.ToLower(cfg.State.Compression)
}

func newStatusCmd(root *rootFlags) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of every window",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load(cmd, root)
			if err != nil {
				return err
			}
			now := time.Now()
			if at != "" {
				if now, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("--at: %w", err)
				}
			}
			return printStatus(cmd.OutOrStdout(), rt, now)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Evaluate at this RFC3339 instant instead of now")
	return cmd
}

func printStatus(out io.Writer, rt *session, now time.Time) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WINDOW\tSTATE\tSTART\tEND\tNEXT CHANGE")
	for _, id := range rt.table.IDs() {
		res, occ, err := rt.table.Evaluate(now, id, rt.sun)
		if err != nil {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t%s\n", id, state.StateUnknown, err)
			continue
		}
		st := state.StateOff
		if res.Active {
			st = state.StateOn
		}
		next := occ.Window.NextChange(now)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", id, st,
			res.StartLocal.Format("2006-01-02 15:04:05 MST"),
			res.EndLocal.Format("2006-01-02 15:04:05 MST"),
			humanize.RelTime(next, now, "ago", "from now"))
	}
	return tw.Flush()
}

type resolvedOutput struct {
	Window     string    `json:"window" yaml:"window"`
	Date       string    `json:"date" yaml:"date"`
	Timezone   string    `json:"timezone" yaml:"timezone"`
	StartUTC   time.Time `json:"start_utc" yaml:"start_utc"`
	EndUTC     time.Time `json:"end_utc" yaml:"end_utc"`
	StartLocal string    `json:"start_local" yaml:"start_local"`
	EndLocal   string    `json:"end_local" yaml:"end_local"`
	Duration   string    `json:"duration" yaml:"duration"`
}

func newResolveCmd(root *rootFlags) *cobra.Command {
	var id, date, output string
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a window for one reference day",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--window is required")
			}
			rt, err := load(cmd, root)
			if err != nil {
				return err
			}
			loc, err := rt.table.Location(id)
			if err != nil {
				return err
			}
			day := civil.DateOf(time.Now().In(loc))
			if date != "" {
				if day, err = civil.ParseDate(date); err != nil {
					return fmt.Errorf("--date: %w", err)
				}
			}
			w, err := rt.table.Resolve(day, id, rt.sun)
			if err != nil {
				return err
			}
			res := resolvedOutput{
				Window:     id,
				Date:       day.String(),
				Timezone:   loc.String(),
				StartUTC:   w.Start.UTC(),
				EndUTC:     w.End.UTC(),
				StartLocal: w.Start.In(loc).Format(time.RFC3339),
				EndLocal:   w.End.In(loc).Format(time.RFC3339),
				Duration:   w.Duration().String(),
			}
			return writeOutput(cmd.OutOrStdout(), output, res)
		},
	}
	cmd.Flags().StringVar(&id, "window", "", "Window id")
	cmd.Flags().StringVar(&date, "date", "", "Reference day (YYYY-MM-DD), defaults to today in the window's timezone")
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "Output format (yaml, json)")
	return cmd
}

func writeOutput(out io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func newWatchCmd(root *rootFlags) *cobra.Command {
	var interval time.Duration
	var listen string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Evaluate windows continuously and announce transitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load(cmd, root)
			if err != nil {
				return err
			}
			if interval > 0 {
				rt.cfg.Watch.Interval = interval
			}
			if listen != "" {
				rt.cfg.Server.Listen = listen
			}

			guard, err := lock.Acquire(rt.cfg.Global.LockFile)
			if err != nil {
				return err
			}
			defer guard.Release()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watch(ctx, rt)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "Maximum time between checks")
	cmd.Flags().StringVar(&listen, "listen", "", "Serve the status API on this address (e.g. :8080)")
	return cmd
}

func watch(ctx context.Context, rt *session) error {
	mon := monitor.New(rt.table, rt.sun, rt.cfg.Watch, rt.logger)

	notifier := notify.FromConfig(rt.cfg.Notifications)
	defer notifier.Close()
	if len(notifier.Targets) > 0 {
		mon.Notifier = notifier
	}

	if rt.cfg.State.Enabled {
		store, err := state.Open(rt.cfg.State)
		if err != nil {
			return err
		}
		mon.Store = store
		if err := mon.Seed(ctx); err != nil {
			rt.logger.Warn().Err(err).Msg("could not read last snapshot")
		}
	}

	rt.logger.Info().Int("windows", rt.table.Len()).Dur("interval", rt.cfg.Watch.Interval).Msg("watching windows")
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error { return mon.Run(egCtx) })
	if rt.cfg.Server.Listen != "" {
		eg.Go(func() error {
			return server.Serve(egCtx, rt.cfg.Server.Listen, server.NewRouter(mon, rt.logger), rt.logger)
		})
	}
	return eg.Wait()
}

func newValidateCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and window definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load(cmd, root)
			if err != nil {
				return err
			}
			if rt.cfg.State.Enabled {
				if _, err := state.Open(rt.cfg.State); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration OK: %d windows\n", rt.table.Len())
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	var input string
	var output string
	var key string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Config utilities",
	}

	encrypt := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" || output == "" || key == "" {
				return fmt.Errorf("--input, --output, and --key are required")
			}
			return config.EncryptConfigFile(input, output, key)
		},
	}
	encrypt.Flags().StringVar(&input, "input", "", "Input config file")
	encrypt.Flags().StringVar(&output, "output", "", "Output encrypted config file")
	encrypt.Flags().StringVar(&key, "key", "", "Encryption key (base64 or hex)")

	keygen := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a key for config or snapshot encryption",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := cryptoutil.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}

	cmd.AddCommand(encrypt, keygen)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tzw %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
