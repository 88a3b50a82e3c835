package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/helmquant/helm/internal/analyzer"
	"github.com/helmquant/helm/internal/backtest"
	"github.com/helmquant/helm/internal/config"
	"github.com/helmquant/helm/internal/execlog"
	"github.com/helmquant/helm/internal/feed"
	"github.com/helmquant/helm/internal/logger"
	"github.com/helmquant/helm/internal/metrics"
	"github.com/helmquant/helm/internal/report"
	"github.com/helmquant/helm/internal/strategy"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay historical data through the crossover strategy",
	Long:  "Load per-instrument CSV bars, run the crossover replay, and archive the performance report",
	RunE:  runReplay,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	// Initialize logger
	log := logger.Must(debug)
	defer log.Sync()

	// Load config
	var cfg *config.Config
	var err error

	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	} else {
		cfg = config.Defaults()
		log.Warn("no config file specified, using defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	log.Info("starting replay",
		zap.Strings("instruments", cfg.Data.Instruments),
		zap.String("data_dir", cfg.Data.Dir),
	)

	// Metrics endpoint stays up for the duration of the run when enabled.
	reg := metrics.NewRegistry()
	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", reg.Handler())
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				log.Error("metrics server error", zap.Error(err))
			}
		}()
		log.Info("metrics server listening", zap.String("addr", cfg.Metrics.Addr))
	}

	// Load bar histories
	loader := feed.NewLoader(cfg.Data.Dir)
	histories, err := loader.LoadAll(cfg.Data.Instruments)
	if err != nil {
		return fmt.Errorf("loading data: %w", err)
	}

	series := make([]backtest.Series, 0, len(cfg.Data.Instruments))
	for _, inst := range cfg.Data.Instruments {
		series = append(series, backtest.Series{Instrument: inst, Bars: histories[inst]})
	}

	journal := execlog.New()
	engine := backtest.New(backtest.Config{
		Params: strategy.Params{
			FastPeriod:         cfg.Strategy.FastPeriod,
			SlowPeriod:         cfg.Strategy.SlowPeriod,
			AllocationFraction: cfg.Strategy.AllocationFraction,
			MinSize:            cfg.Strategy.MinSize,
		},
		Analyzer: analyzer.Config{
			RiskFreeRate:        cfg.Analyzer.RiskFreeRate,
			PeriodsPerYear:      cfg.Analyzer.PeriodsPerYear,
			MinAcceptableReturn: cfg.Analyzer.MinAcceptableReturn,
		},
		StartCash:  cfg.Engine.StartCash,
		Commission: cfg.Engine.Commission,
	}, journal, reg, log)

	// Cancel the replay on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := engine.Run(ctx, series)
	if err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}

	fmt.Println("=== HELM Replay ===")
	fmt.Print(report.Render(res))

	sink, err := buildSink(cfg)
	if err != nil {
		return fmt.Errorf("creating report sink: %w", err)
	}

	key, err := report.NewPublisher(sink, log).Publish(ctx, res)
	if err != nil {
		return fmt.Errorf("publishing report: %w", err)
	}
	fmt.Fprintf(os.Stdout, "\nReport archived at %s\n", key)

	return nil
}

func buildSink(cfg *config.Config) (report.Sink, error) {
	if cfg.Report.Type == "s3" {
		return report.NewS3(report.S3Config{
			Bucket:    cfg.Report.S3.Bucket,
			Endpoint:  cfg.Report.S3.Endpoint,
			Region:    cfg.Report.S3.Region,
			AccessKey: cfg.Report.S3.AccessKey,
			SecretKey: cfg.Report.S3.SecretKey,
			Prefix:    cfg.Report.S3.Prefix,
		})
	}
	return report.NewLocalDir(cfg.Report.Path)
}
