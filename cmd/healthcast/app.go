package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"healthcast/internal/cfg"
	"healthcast/internal/common"
	"healthcast/internal/logging"
	"healthcast/internal/metrics"
	"healthcast/internal/ml"
	"healthcast/internal/storage"
)

var _ ml.MetricsInterface = (*metrics.MetricsWrapper)(nil)

// app holds what every stage needs: settings, the run ledger and metrics.
type app struct {
	settings cfg.Settings
	store    *storage.Store
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	logSink  io.Closer
}

func newApp(opts rootOptions) (*app, error) {
	if opts.configPath != "" {
		os.Setenv(common.EnvConfigFile, opts.configPath)
	}
	settings, err := cfg.Load()
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	if opts.logLevel != "" {
		settings.LogLevel = opts.logLevel
	}

	a := &app{settings: settings}
	a.logSink = logging.Setup(logging.Options{
		Level:      settings.LogLevel,
		File:       settings.LogFile,
		MaxSizeMB:  settings.LogRotation.MaxSizeMB,
		MaxBackups: settings.LogRotation.MaxBackups,
		MaxAgeDays: settings.LogRotation.MaxAgeDays,
	})

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.NewWithRegistry(a.registry)
	a.store = initializeStorage(settings)
	return a, nil
}

func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath == "" {
		return nil
	}
	if err := os.MkdirAll(c.DataPath, 0o755); err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without run ledger")
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without run ledger")
		return nil
	}
	return store
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close run ledger")
		}
	}
	if a.logSink != nil {
		a.logSink.Close()
	}
}

// stage runs fn as one recorded pipeline stage. fn fills in the run
// details; timing, status, metrics and the ledger entry are handled here.
func (a *app) stage(kind string, fn func(run *storage.Run) error) error {
	start := time.Now()
	run := storage.Run{Kind: kind, StartedAt: start.UTC()}
	log.Info().Str("stage", kind).Msg("Stage started")

	err := fn(&run)

	run.FinishedAt = time.Now().UTC()
	run.Status = storage.StatusSucceeded
	if err != nil {
		run.Status = storage.StatusFailed
		run.Error = err.Error()
	}
	a.metrics.ObserveStage(kind, run.Status, time.Since(start))

	if a.store != nil {
		if _, recErr := a.store.RecordRun(run); recErr != nil {
			log.Warn().Err(recErr).Str("stage", kind).Msg("Failed to record run")
		}
	}
	if a.settings.MetricsTextfile != "" {
		if mErr := metrics.WriteTextfile(a.settings.MetricsTextfile, a.registry); mErr != nil {
			log.Warn().Err(mErr).Msg("Failed to write metrics textfile")
		}
	}

	if err != nil {
		return fmt.Errorf("%s stage: %w", kind, err)
	}
	log.Info().Str("stage", kind).Dur("took", time.Since(start)).Int("rows", run.Rows).Msg("Stage finished")
	return nil
}

func (a *app) trainParams() ml.Params {
	t := a.settings.Training
	p := ml.DefaultParams()
	p.Rounds = t.Rounds
	p.MaxDepth = t.MaxDepth
	p.LearningRate = t.LearningRate
	p.Subsample = t.Subsample
	p.ColsampleByTree = t.Colsample
	p.Seed = t.Seed
	p.EarlyStoppingRounds = t.EarlyStoppingRounds
	return p
}
