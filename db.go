package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const fallbackSQLitePath = "suricata_fallback.db"

// Database wraps the gorm connection plus the metadata the dashboard shows
// about it.
type Database struct {
	conn         *gorm.DB
	typ          string
	originalType string
	fallback     bool
	url          string // credentials stripped
}

// OpenDatabase connects to the configured backend. When a server backend is
// unreachable the dashboard keeps working against a local sqlite file.
func OpenDatabase(cfg *Config, log *slog.Logger) (*Database, error) {
	d := &Database{typ: cfg.DBType, originalType: cfg.DBType}

	dial, url := buildDialector(cfg)
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	}

	conn, err := gorm.Open(dial, gormCfg)
	if err == nil {
		err = ping(conn)
	}
	if err != nil {
		if cfg.DBType == "sqlite" {
			return nil, fmt.Errorf("opening sqlite database: %w", err)
		}
		log.Warn("database unreachable, falling back to local sqlite",
			"type", cfg.DBType, "err", err)
		d.fallback = true
		d.typ = "sqlite"
		url = "sqlite:///" + fallbackSQLitePath
		conn, err = gorm.Open(sqlite.Open(fallbackSQLitePath), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("opening fallback sqlite database: %w", err)
		}
		metricDBFallback.Set(1)
	}

	d.conn = conn
	d.url = url

	if err := conn.AutoMigrate(&Alert{}, &Statistic{}, &TrafficStat{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	log.Info("database connected", "type", d.typ, "fallback", d.fallback)
	return d, nil
}

func buildDialector(cfg *Config) (gorm.Dialector, string) {
	switch cfg.DBType {
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)
		url := fmt.Sprintf("postgres://%s@%s:%d/%s", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName)
		return postgres.Open(dsn), url
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
		url := fmt.Sprintf("mysql://%s@%s:%d/%s", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName)
		return mysql.Open(dsn), url
	default:
		return sqlite.Open(cfg.SQLitePath), "sqlite:///" + cfg.SQLitePath
	}
}

func ping(conn *gorm.DB) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// InsertAlerts writes alert rows, silently skipping any whose dedupe key is
// already present. Returns the number actually inserted.
func (d *Database) InsertAlerts(ctx context.Context, rows []Alert) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	res := d.conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dedupe_key"}},
			DoNothing: true,
		}).
		CreateInBatches(rows, 100)
	return res.RowsAffected, res.Error
}

// InsertStatistics writes counter samples keyed by (timestamp, metric_name);
// replaying a block after a cursor rewind inserts nothing new.
func (d *Database) InsertStatistics(ctx context.Context, rows []Statistic) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	res := d.conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "timestamp"}, {Name: "metric_name"}},
			DoNothing: true,
		}).
		CreateInBatches(rows, 200)
	return res.RowsAffected, res.Error
}

// UpsertTraffic writes one row per (interval timestamp, protocol), replacing
// the counters when the same interval is aggregated again.
func (d *Database) UpsertTraffic(ctx context.Context, rows []TrafficStat) error {
	if len(rows) == 0 {
		return nil
	}
	return d.conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "timestamp"}, {Name: "protocol"}},
			DoUpdates: clause.AssignmentColumns([]string{"packet_count", "byte_count", "flow_count", "alert_count"}),
		}).
		Create(rows).Error
}

func (d *Database) RecentAlerts(ctx context.Context, limit, offset int, category string, start, end time.Time) ([]Alert, error) {
	q := d.conn.WithContext(ctx).Model(&Alert{})
	if category != "" {
		q = q.Where("category = ?", category)
	}
	if !start.IsZero() {
		q = q.Where("timestamp >= ?", start)
	}
	if !end.IsZero() {
		q = q.Where("timestamp <= ?", end)
	}
	var alerts []Alert
	err := q.Order("timestamp desc").Limit(limit).Offset(offset).Find(&alerts).Error
	return alerts, err
}

var defaultStatCategories = []string{"capture", "decoder", "tcp", "flow", "detect"}

// LatestStats returns the most recent sample value per category.
func (d *Database) LatestStats(ctx context.Context, categories []string) (map[string]float64, error) {
	if len(categories) == 0 {
		categories = defaultStatCategories
	}
	result := make(map[string]float64, len(categories))
	for _, category := range categories {
		var stat Statistic
		err := d.conn.WithContext(ctx).
			Where("category = ?", category).
			Order("timestamp desc").
			First(&stat).Error
		switch {
		case err == nil:
			result[category] = stat.MetricValue
		case errors.Is(err, gorm.ErrRecordNotFound):
			result[category] = 0
		default:
			return nil, err
		}
	}
	return result, nil
}

// LatestTraffic returns the newest aggregation interval, one row per
// protocol.
func (d *Database) LatestTraffic(ctx context.Context) ([]TrafficStat, error) {
	var newest TrafficStat
	err := d.conn.WithContext(ctx).Order("timestamp desc").First(&newest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []TrafficStat{}, nil
	}
	if err != nil {
		return nil, err
	}
	var rows []TrafficStat
	err = d.conn.WithContext(ctx).
		Where("timestamp = ?", newest.Timestamp).
		Order("protocol").
		Find(&rows).Error
	return rows, err
}

// RecentTraffic returns traffic rows since the given time, newest first.
// limit <= 0 means no limit.
func (d *Database) RecentTraffic(ctx context.Context, protocol string, since time.Time, limit int) ([]TrafficStat, error) {
	q := d.conn.WithContext(ctx).Model(&TrafficStat{})
	if protocol != "" {
		q = q.Where("protocol = ?", protocol)
	}
	if !since.IsZero() {
		q = q.Where("timestamp >= ?", since)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []TrafficStat
	err := q.Order("timestamp desc").Find(&rows).Error
	return rows, err
}

// ResetTraffic deletes all traffic counters and reports how many rows went.
func (d *Database) ResetTraffic(ctx context.Context) (int64, error) {
	res := d.conn.WithContext(ctx).Where("1 = 1").Delete(&TrafficStat{})
	return res.RowsAffected, res.Error
}

// Cleanup removes rows older than the retention window from every table.
func (d *Database) Cleanup(ctx context.Context, days int) (CleanupResult, error) {
	var result CleanupResult
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	res := d.conn.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&Alert{})
	if res.Error != nil {
		return result, fmt.Errorf("deleting old alerts: %w", res.Error)
	}
	result.AlertsDeleted = res.RowsAffected

	res = d.conn.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&Statistic{})
	if res.Error != nil {
		return result, fmt.Errorf("deleting old statistics: %w", res.Error)
	}
	result.StatisticsDeleted = res.RowsAffected

	res = d.conn.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&TrafficStat{})
	if res.Error != nil {
		return result, fmt.Errorf("deleting old traffic stats: %w", res.Error)
	}
	result.TrafficDeleted = res.RowsAffected

	return result, nil
}

func (d *Database) Check(ctx context.Context) error {
	return d.conn.WithContext(ctx).Exec("SELECT 1").Error
}

func (d *Database) Info(ctx context.Context) DBInfo {
	return DBInfo{
		Type:           d.typ,
		OriginalType:   d.originalType,
		FallbackActive: d.fallback,
		URL:            d.url,
		Connected:      d.Check(ctx) == nil,
	}
}
