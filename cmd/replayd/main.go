package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cartridge/prioreplay/internal/config"
	"github.com/cartridge/prioreplay/internal/httpapi"
	"github.com/cartridge/prioreplay/internal/metrics"
	"github.com/cartridge/prioreplay/internal/replay"
	"github.com/cartridge/prioreplay/internal/sample"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "replayd",
	Short: "Prioritized experience replay buffer",
	Long: `replayd hosts a prioritized experience replay buffer in-process and
exposes a read-only stats/debug surface over HTTP.

Producers and consumers are expected to be wired in-process against the
internal/replay package; this binary is a minimal host for local
development and smoke testing.`,
	RunE: runReplayd,
}

func init() {
	cfg = config.Default()

	rootCmd.Flags().IntVar(&cfg.Capacity, "capacity", cfg.Capacity, "Nominal population target")
	rootCmd.Flags().Int64Var(&cfg.Seed, "seed", cfg.Seed, "PRNG seed")
	rootCmd.Flags().Float32Var(&cfg.Alpha, "alpha", cfg.Alpha, "Priority exponent")
	rootCmd.Flags().Float32Var(&cfg.Beta, "beta", cfg.Beta, "Importance-sampling correction exponent")
	rootCmd.Flags().IntVar(&cfg.Prefetch, "prefetch", cfg.Prefetch, "Prefetch pipeline depth (0 disables)")
	rootCmd.Flags().StringVar(&cfg.ListenAddr, "listen-addr", cfg.ListenAddr, "Stats/debug HTTP bind address")
	rootCmd.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")

	viper.BindPFlags(rootCmd.Flags())
	viper.SetEnvPrefix("REPLAYD")
	viper.AutomaticEnv()
}

func runReplayd(cmd *cobra.Command, args []string) error {
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	logger := zerolog.New(zerolog.NewConsoleWriter()).Level(level).With().Timestamp().Logger()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	collector := metrics.NewCollector(logger)
	buf, err := replay.New[sample.Transition, sample.Batch](replay.Config{
		Capacity: cfg.Capacity,
		Seed:     cfg.Seed,
		Alpha:    cfg.Alpha,
		Beta:     cfg.Beta,
		Prefetch: cfg.Prefetch,
	}, sample.Packer{}, collector, nil)
	if err != nil {
		return fmt.Errorf("failed to construct replay buffer: %w", err)
	}

	srv := httpapi.NewServer(buf, &logger)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Routes(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("shutdown signal received")
		cancel()
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("stats surface listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info().Msg("replayd stopped gracefully")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
