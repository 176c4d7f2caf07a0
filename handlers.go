package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// InitHandlers wires every route. Reads and /metrics stay open; mutating
// routes require the X-Api-Token header.
func (a *App) InitHandlers(r *gin.Engine) {
	if a.token == "" {
		a.token = uuid.New().String()
		a.log.Info("generated api token", "token", a.token)
	}
	r.Use(a.requireToken())

	api := r.Group("/api")
	{
		api.GET("/status", a.handleStatus)
		api.POST("/start", a.handleStart)
		api.POST("/stop", a.handleStop)
		api.POST("/restart", a.handleRestart)
		api.POST("/reload-rules", a.handleReloadRules)
		api.POST("/validate-config", a.handleValidateConfig)
		api.GET("/logs", a.handleLogs)
		api.GET("/rules", a.handleRules)

		api.GET("/monitor/data", a.handleMonitorData)
		api.GET("/monitor/graph/:metric/:timespan", a.handleGraph)

		api.GET("/database/info", a.handleDBInfo)
		api.GET("/database/check", a.handleDBCheck)
		api.GET("/database/stats", a.handleDBStats)
		api.GET("/database/alerts", a.handleLiveAlerts)
		api.GET("/database/alerts/history", a.handleAlertHistory)
		api.GET("/database/traffic/latest", a.handleTrafficLatest)
		api.GET("/database/traffic/recent", a.handleTrafficRecent)
		api.POST("/database/reset-counter", a.handleResetCounter)

		api.GET("/debug/eve", a.handleDebugEve)
		api.GET("/system", a.handleSystem)
		api.GET("/system/interfaces", a.handleInterfaces)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (a *App) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet {
			c.Next()
			return
		}
		if c.GetHeader("X-Api-Token") != a.token {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid or missing API token"})
			return
		}
		c.Next()
	}
}

func (a *App) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"suricata":      a.ctl.Status(),
		"database":      a.db.Info(c.Request.Context()),
		"server_uptime": formatUptime(time.Since(a.started)),
	})
}

func (a *App) handleStart(c *gin.Context) {
	if err := a.ctl.Start(); err != nil {
		a.writeLaunchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "suricata started",
		"pid":     a.ctl.Status().PID,
	})
}

func (a *App) handleRestart(c *gin.Context) {
	if err := a.ctl.Restart(); err != nil {
		a.writeLaunchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "suricata restarted",
		"pid":     a.ctl.Status().PID,
	})
}

func (a *App) writeLaunchError(c *gin.Context, err error) {
	if errors.Is(err, ErrAlreadyRunning) {
		c.JSON(http.StatusConflict, gin.H{"success": false, "message": err.Error()})
		return
	}
	var le *LaunchError
	if errors.As(err, &le) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": le.Error(),
			"output":  le.Output,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
}

func (a *App) handleStop(c *gin.Context) {
	graceful := c.DefaultQuery("graceful", "true") != "false"
	err := a.ctl.Stop(graceful)
	if errors.Is(err, ErrNoProcess) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "suricata stopped"})
}

func (a *App) handleReloadRules(c *gin.Context) {
	err := a.ctl.ReloadRules()
	if errors.Is(err, ErrNotRunning) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "rule reload signalled"})
}

func (a *App) handleValidateConfig(c *gin.Context) {
	c.JSON(http.StatusOK, a.ctl.ValidateConfig(c.Request.Context()))
}

func (a *App) handleLogs(c *gin.Context) {
	limit := intQuery(c, "limit", a.cfg.LogLinesLimit)
	events := a.ring.Snapshot()
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	lines := make([]string, 0, len(events))
	for i := range events {
		lines = append(lines, FormatLogLine(&events[i]))
	}
	c.JSON(http.StatusOK, gin.H{"logs": lines, "count": len(lines)})
}

func (a *App) handleRules(c *gin.Context) {
	rules, err := ListRuleFiles(a.cfg.RulesDir)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules, "count": len(rules)})
}

func (a *App) handleMonitorData(c *gin.Context) {
	timespan := c.DefaultQuery("timespan", "1h")
	span, err := ParseTimespan(timespan)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	snap := SnapshotCounts(a.ring.Snapshot(), timespan, span, time.Now().UTC())
	c.JSON(http.StatusOK, gin.H{"success": true, "data": snap})
}

// handleGraph serves bucketed series. Short windows come straight from the
// in-memory ring; anything past an hour reads the durable traffic rollups.
func (a *App) handleGraph(c *gin.Context) {
	metric := c.Param("metric")
	timespan := c.Param("timespan")

	span, err := ParseTimespan(timespan)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	now := time.Now().UTC()
	var points []GraphPoint
	if span <= time.Hour {
		points, err = AggregateEvents(a.ring.Snapshot(), metric, span, now)
	} else {
		var rows []TrafficStat
		rows, err = a.db.RecentTraffic(c.Request.Context(), "", now.Add(-span), 0)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		points, err = AggregateTraffic(rows, metric, span, now)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"metric":   metric,
		"timespan": timespan,
		"data":     points,
	})
}

func (a *App) handleDBInfo(c *gin.Context) {
	c.JSON(http.StatusOK, a.db.Info(c.Request.Context()))
}

func (a *App) handleDBCheck(c *gin.Context) {
	if err := a.db.Check(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"connected": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": true})
}

func (a *App) handleDBStats(c *gin.Context) {
	var categories []string
	if raw := c.Query("categories"); raw != "" {
		for _, cat := range strings.Split(raw, ",") {
			if cat = strings.TrimSpace(cat); cat != "" {
				categories = append(categories, cat)
			}
		}
	}
	stats, err := a.db.LatestStats(c.Request.Context(), categories)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// handleLiveAlerts serves the dashboard's alert table from the event ring,
// newest first.
func (a *App) handleLiveAlerts(c *gin.Context) {
	limit := intQuery(c, "limit", 100)
	category := c.Query("category")
	protocol := c.Query("protocol")

	events := a.ring.Snapshot()
	views := make([]EventView, 0, limit)
	for i := len(events) - 1; i >= 0 && len(views) < limit; i-- {
		ev := &events[i]
		if protocol != "" && !strings.EqualFold(ev.Proto, protocol) {
			continue
		}
		if category != "" {
			_, cat, _ := ev.Details()
			if !strings.EqualFold(cat, category) {
				continue
			}
		}
		views = append(views, NewEventView(ev, len(views)+1))
	}
	c.JSON(http.StatusOK, gin.H{"alerts": views, "count": len(views)})
}

// handleAlertHistory pages through persisted alert rows, which outlive the
// ring buffer.
func (a *App) handleAlertHistory(c *gin.Context) {
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	category := c.Query("category")

	var start time.Time
	if hours := intQuery(c, "hours", 0); hours > 0 {
		start = time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	}

	alerts, err := a.db.RecentAlerts(c.Request.Context(), limit, offset, category, start, time.Time{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

func (a *App) handleTrafficLatest(c *gin.Context) {
	rows, err := a.db.LatestTraffic(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"traffic": rows})
}

func (a *App) handleTrafficRecent(c *gin.Context) {
	protocol := c.Query("protocol")
	hours := intQuery(c, "hours", 24)
	limit := intQuery(c, "limit", 20)

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	rows, err := a.db.RecentTraffic(c.Request.Context(), strings.ToUpper(protocol), since, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"traffic": rows, "count": len(rows)})
}

func (a *App) handleResetCounter(c *gin.Context) {
	deleted, err := a.db.ResetTraffic(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("traffic counters reset, %d rows deleted", deleted),
	})
}

func (a *App) handleDebugEve(c *gin.Context) {
	events := a.ring.Snapshot()
	types := make(map[string]int)
	protos := make(map[string]int)
	for i := range events {
		types[events[i].EventType]++
		if p := events[i].Proto; p != "" {
			protos[strings.ToUpper(p)]++
		}
	}

	sample := events
	if len(sample) > 10 {
		sample = sample[len(sample)-10:]
	}
	views := make([]EventView, 0, len(sample))
	for i := range sample {
		views = append(views, NewEventView(&sample[i], i+1))
	}

	c.JSON(http.StatusOK, gin.H{
		"eve_path":       a.eve.Path(),
		"offset":         a.eve.Offset(),
		"rotations":      a.eve.Rotations(),
		"parse_failures": a.eve.ParseFailures(),
		"ring_events":    a.ring.Len(),
		"event_types":    types,
		"protocols":      protos,
		"sample_events":  views,
	})
}

func (a *App) handleSystem(c *gin.Context) {
	c.JSON(http.StatusOK, a.ctl.SystemInfo())
}

func (a *App) handleInterfaces(c *gin.Context) {
	ifaces, err := a.ctl.Interfaces()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"interfaces": ifaces, "count": len(ifaces)})
}

func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
