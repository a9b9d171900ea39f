package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ofiflow/batch"
	"ofiflow/config"
	"ofiflow/logger"
	"ofiflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	stage := flag.String("stage", "all", "Pipeline stage to run: build, bars, eval, qc or all")
	symbol := flag.String("symbol", "", "Run for a single symbol instead of the configured universe")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolveConfigPath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.Ofiflow.Name,
		"version":     cfg.Ofiflow.Version,
		"environment": config.AppEnvironment(),
		"stage":       *stage,
	}).Info("starting ofiflow")
	log.WithEnv("APP_ENV", "LOG_LEVEL").Debug("environment overrides")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
		cancel()
	}()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}
	if cfg.Storage.S3.Enabled {
		logger.InitCloudWatch(cfg.Storage.S3.Region, cfg.Ofiflow.Name, cfg.Logging.DashboardName)
	}

	var symbols []string
	if *symbol != "" {
		symbols = []string{*symbol}
	} else {
		symbols, err = config.LoadUniverse(cfg.Data.UniverseFile)
		if err != nil {
			log.WithError(err).Error("Failed to load universe")
			os.Exit(1)
		}
	}
	log.WithFields(logger.Fields{"symbols": len(symbols)}).Info("universe loaded")

	var mirror *writer.Mirror
	if cfg.Storage.S3.Enabled {
		mirror, err = writer.NewMirror(ctx, cfg.Storage.S3)
		if err != nil {
			log.WithError(err).Error("Failed to create S3 mirror")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("S3 storage disabled; outputs stay local")
	}

	runner := batch.NewRunner(cfg, mirror)

	var failed int64
	runStage := func(name string, fn func() (batch.Outcome, error)) {
		if ctx.Err() != nil {
			return
		}
		out, err := fn()
		if err != nil {
			log.WithComponent("main").WithFields(logger.Fields{"stage": name}).WithError(err).Error("stage failed")
			failed++
		}
		failed += out.Failed
	}

	switch strings.ToLower(*stage) {
	case "build":
		runStage("build", func() (batch.Outcome, error) { return runner.Build(ctx, symbols), nil })
	case "bars":
		runStage("bars", func() (batch.Outcome, error) { return runner.Bars(ctx, symbols), nil })
	case "eval":
		runStage("eval", func() (batch.Outcome, error) { return runner.Eval(ctx, symbols) })
	case "qc":
		runStage("qc", func() (batch.Outcome, error) { return runner.QC(ctx, symbols) })
	case "all":
		runStage("build", func() (batch.Outcome, error) { return runner.Build(ctx, symbols), nil })
		runStage("bars", func() (batch.Outcome, error) { return runner.Bars(ctx, symbols), nil })
		runStage("eval", func() (batch.Outcome, error) { return runner.Eval(ctx, symbols) })
		runStage("qc", func() (batch.Outcome, error) { return runner.QC(ctx, symbols) })
	default:
		log.WithFields(logger.Fields{"stage": *stage}).Error("unknown stage")
		os.Exit(2)
	}

	c := logger.SnapshotCounters()
	log.WithFields(logger.Fields{
		"units_done":    c.UnitsDone,
		"units_skipped": c.UnitsSkipped,
		"units_failed":  c.UnitsFailed,
		"rows_dropped":  c.RowsDropped,
		"cache_writes":  c.CacheWrites,
		"s3_uploads":    c.S3Uploads,
	}).Info("ofiflow finished")

	if failed > 0 {
		os.Exit(1)
	}
}
