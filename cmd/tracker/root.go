package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Alias1177/AccuracyTracker/internal/api/server"
	"github.com/Alias1177/AccuracyTracker/internal/api/upstream"
	"github.com/Alias1177/AccuracyTracker/internal/config"
	"github.com/Alias1177/AccuracyTracker/internal/poller"
	"github.com/Alias1177/AccuracyTracker/internal/report"
	"github.com/Alias1177/AccuracyTracker/internal/snapshot"
)

const shutdownTimeout = 10 * time.Second

func newRootCmd() *cobra.Command {
	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:           "tracker",
		Short:         "Track the accuracy of multi-timeframe index forecasts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			setupLogging(cfg.LogLevel, cfg.LogFormat)
			return nil
		},
	}

	rootCmd.AddCommand(
		newServeCmd(&cfg),
		newStatsCmd(&cfg),
		newIngestCmd(&cfg),
	)
	return rootCmd
}

func newServeCmd(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Poll the analysis service and serve accuracy over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	client := upstream.NewClient(upstream.ClientOptions{
		BaseURL:        cfg.UpstreamURL,
		RequestTimeout: time.Duration(cfg.RequestTimeout) * time.Second,
		RequestsPerSec: cfg.RequestsPerSec,
		MaxRetries:     cfg.MaxRetries,
		Metrics:        a.metrics,
	})
	p := poller.New(client, a.tracker, cfg.Instrument, cfg.PollInterval)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.New(a.tracker, p, a.registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newStatsCmd(cfg **config.Config) *cobra.Command {
	var instrument string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the accuracy report of an instrument",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *cfg
			if instrument == "" {
				instrument = c.Instrument
			}

			a, err := newApp(cmd.Context(), c, false)
			if err != nil {
				return err
			}
			defer a.Close()

			history, err := a.tracker.History(cmd.Context(), instrument)
			if err != nil {
				return err
			}
			rep := report.Build(config.NormalizeInstrument(instrument), history, a.tracker.Timeframes())
			_, err = fmt.Fprint(cmd.OutOrStdout(), rep.Text())
			return err
		},
	}
	cmd.Flags().StringVarP(&instrument, "instrument", "i", "", "instrument to report on (default: INSTRUMENT)")
	return cmd
}

func newIngestCmd(cfg **config.Config) *cobra.Command {
	var instrument string

	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Ingest one snapshot JSON from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *cfg
			if instrument == "" {
				instrument = c.Instrument
			}

			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			payload, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("reading snapshot: %w", err)
			}

			snap, err := snapshot.Parse(payload, instrument)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), c, false)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.tracker.Ingest(cmd.Context(), snap)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVarP(&instrument, "instrument", "i", "", "instrument when the payload names none (default: INSTRUMENT)")
	return cmd
}
