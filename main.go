package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
)

// App bundles everything the handlers and background tasks share.
type App struct {
	cfg     *Config
	log     *slog.Logger
	db      *Database
	ctl     *Controller
	eve     *EveTailer
	stats   *StatsTailer
	ring    *EventRing
	sync    *Syncer
	token   string
	started time.Time
}

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel)

	db, err := OpenDatabase(cfg, logger)
	if err != nil {
		logger.Error("database init failed", "err", err)
		os.Exit(1)
	}

	app := &App{
		cfg:     cfg,
		log:     logger,
		db:      db,
		ctl:     NewController(cfg, logger),
		ring:    NewEventRing(cfg.RingSize),
		eve:     NewEveTailer(cfg.EveLog, logger),
		stats:   NewStatsTailer(cfg.StatsLog, logger),
		token:   cfg.APIToken,
		started: time.Now(),
	}
	app.sync = NewSyncer(cfg, db, app.eve, app.stats, app.ring, logger)

	sched := NewScheduler(logger)
	sched.Add("alert-sync", cfg.AlertSyncInterval, app.sync.SyncAlerts)
	sched.Add("stats-sync", cfg.StatsSyncInterval, app.sync.SyncStats)
	sched.Add("traffic-metrics", cfg.MetricsInterval, app.sync.UpdateTrafficMetrics)
	if cfg.RetentionDays > 0 {
		sched.Add("db-cleanup", cfg.RetentionInterval, app.sync.ApplyRetention)
	} else {
		logger.Info("retention cleanup disabled")
	}
	policy := NewRestartPolicy(cfg.MaxRestartRetries, cfg.RestartsPerHour)
	sched.Add("process-monitor", cfg.CrashCheckInterval, app.processMonitorTask(policy))
	sched.Start(context.Background())

	r := gin.Default()
	app.InitHandlers(r)

	logger.Info("suridash listening", "addr", cfg.ListenAddr(), "db", db.Info(context.Background()).Type)
	if err := r.Run(cfg.ListenAddr()); err != nil {
		logger.Error("http server failed", "err", err)
		os.Exit(1)
	}
}
