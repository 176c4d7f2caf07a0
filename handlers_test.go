package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	cfg := &Config{
		SuricataBinary:  "/bin/sh",
		SuricataConfig:  "echo no dice >&2; exit 1",
		RulesDir:        filepath.Join(dir, "rules"),
		Interface:       "lo",
		DBType:          "sqlite",
		SQLitePath:      filepath.Join(dir, "test.db"),
		MetricsInterval: time.Minute,
		StartupConfirm:  100 * time.Millisecond,
		StopTimeout:     time.Second,
		LogLinesLimit:   100,
		RingSize:        100,
	}
	db, err := OpenDatabase(cfg, testLogger())
	require.NoError(t, err)

	app := &App{
		cfg:     cfg,
		log:     testLogger(),
		db:      db,
		ctl:     NewController(cfg, testLogger()),
		ring:    NewEventRing(cfg.RingSize),
		eve:     NewEveTailer(filepath.Join(dir, "eve.json"), testLogger()),
		stats:   NewStatsTailer(filepath.Join(dir, "stats.log"), testLogger()),
		token:   "test-token",
		started: time.Now(),
	}
	app.sync = NewSyncer(cfg, db, app.eve, app.stats, app.ring, testLogger())
	return app
}

func newTestRouter(t *testing.T) (*App, *gin.Engine) {
	t.Helper()
	app := newTestApp(t)
	r := gin.New()
	app.InitHandlers(r)
	return app, r
}

func doRequest(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("X-Api-Token", token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestStatusEndpoint(t *testing.T) {
	_, r := newTestRouter(t)
	w := doRequest(r, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	require.Contains(t, body, "suricata")
	require.Contains(t, body, "database")
	dbInfo := body["database"].(map[string]any)
	assert.Equal(t, "sqlite", dbInfo["type"])
	assert.Equal(t, true, dbInfo["connected"])
}

func TestMutatingRouteRequiresToken(t *testing.T) {
	_, r := newTestRouter(t)

	w := doRequest(r, http.MethodPost, "/api/database/reset-counter", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(r, http.MethodPost, "/api/database/reset-counter", "wrong-token")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(r, http.MethodPost, "/api/database/reset-counter", "test-token")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["success"])
}

func TestStartEndpointReportsLaunchFailure(t *testing.T) {
	_, r := newTestRouter(t)
	w := doRequest(r, http.MethodPost, "/api/start", "test-token")
	require.Equal(t, http.StatusInternalServerError, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["output"], "no dice")
}

func TestStopWithoutProcess(t *testing.T) {
	_, r := newTestRouter(t)
	w := doRequest(r, http.MethodPost, "/api/stop", "test-token")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, decodeBody(t, w)["success"])
}

func TestReloadRulesWithoutProcess(t *testing.T) {
	_, r := newTestRouter(t)
	w := doRequest(r, http.MethodPost, "/api/reload-rules", "test-token")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidateConfigEndpoint(t *testing.T) {
	// sh rejects the controller's -T flag, which reads as an invalid config.
	_, r := newTestRouter(t)
	w := doRequest(r, http.MethodPost, "/api/validate-config", "test-token")
	require.Equal(t, http.StatusOK, w.Code)

	var res ValidationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.False(t, res.Valid)
}

func TestMonitorDataEndpoint(t *testing.T) {
	app, r := newTestRouter(t)
	now := time.Now().UTC()
	app.ring.Add(
		eveAt(now.Add(-time.Minute), "flow", "tcp"),
		eveAt(now.Add(-time.Minute), "alert", "tcp"),
	)

	w := doRequest(r, http.MethodGet, "/api/monitor/data?timespan=5m", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	data := body["data"].(map[string]any)
	assert.EqualValues(t, 1, data["tcp_traffic"])
	assert.EqualValues(t, 1, data["total_alerts"])
	assert.Equal(t, "5m", data["timespan"])

	w = doRequest(r, http.MethodGet, "/api/monitor/data?timespan=2h", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGraphEndpoint(t *testing.T) {
	app, r := newTestRouter(t)
	now := time.Now().UTC()
	app.ring.Add(eveAt(now.Add(-30*time.Second), "flow", "tcp"))

	w := doRequest(r, http.MethodGet, "/api/monitor/graph/tcp/5m", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool         `json:"success"`
		Metric  string       `json:"metric"`
		Data    []GraphPoint `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "tcp", body.Metric)
	require.Len(t, body.Data, 60)
	var total int64
	for _, p := range body.Data {
		total += p.Value
	}
	assert.EqualValues(t, 1, total)

	assert.Equal(t, http.StatusBadRequest, doRequest(r, http.MethodGet, "/api/monitor/graph/bogus/5m", "").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(r, http.MethodGet, "/api/monitor/graph/tcp/2h", "").Code)
}

func TestGraphEndpointLongSpanReadsDB(t *testing.T) {
	app, r := newTestRouter(t)
	now := time.Now().UTC()
	require.NoError(t, app.db.UpsertTraffic(t.Context(), []TrafficStat{
		{Timestamp: now.Add(-2 * time.Hour), Protocol: "TCP", FlowCount: 4},
	}))

	w := doRequest(r, http.MethodGet, "/api/monitor/graph/tcp/24h", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data []GraphPoint `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	var total int64
	for _, p := range body.Data {
		total += p.Value
	}
	assert.EqualValues(t, 4, total)
}

func TestLiveAlertsFilter(t *testing.T) {
	app, r := newTestRouter(t)
	now := time.Now().UTC()
	tcpAlert := eveAt(now.Add(-3*time.Minute), "alert", "TCP")
	tcpAlert.Alert = &AlertInfo{Signature: "ET SCAN Nmap", Category: "Attempted Recon", Severity: 2}
	app.ring.Add(
		tcpAlert,
		eveAt(now.Add(-2*time.Minute), "flow", "UDP"),
		eveAt(now.Add(-time.Minute), "dns", "UDP"),
	)

	w := doRequest(r, http.MethodGet, "/api/database/alerts?limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.EqualValues(t, 3, body["count"])
	alerts := body["alerts"].([]any)
	first := alerts[0].(map[string]any)
	assert.Equal(t, "DNS Query: ", first["signature"]) // newest first

	w = doRequest(r, http.MethodGet, "/api/database/alerts?protocol=udp", "")
	assert.EqualValues(t, 2, decodeBody(t, w)["count"])

	w = doRequest(r, http.MethodGet, "/api/database/alerts?category=dns", "")
	assert.EqualValues(t, 1, decodeBody(t, w)["count"])
}

func TestAlertHistoryEndpoint(t *testing.T) {
	app, r := newTestRouter(t)
	_, err := app.db.InsertAlerts(t.Context(), []Alert{
		{DedupeKey: "k1", Timestamp: time.Now().UTC(), Signature: "stored"},
	})
	require.NoError(t, err)

	w := doRequest(r, http.MethodGet, "/api/database/alerts/history?limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decodeBody(t, w)["count"])
}

func TestLogsEndpoint(t *testing.T) {
	app, r := newTestRouter(t)
	alert := eveAt(time.Now().UTC(), "alert", "TCP")
	alert.Alert = &AlertInfo{Signature: "ET SCAN Nmap", Severity: 2}
	app.ring.Add(alert)

	w := doRequest(r, http.MethodGet, "/api/logs", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	logs := body["logs"].([]any)
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0], "[ALERT]")
	assert.Contains(t, logs[0], "ET SCAN Nmap")
}

func TestRulesEndpoint(t *testing.T) {
	app, r := newTestRouter(t)
	require.NoError(t, os.MkdirAll(app.cfg.RulesDir, 0o755))
	writeFile(t, filepath.Join(app.cfg.RulesDir, "local.rules"),
		"alert tcp any any -> any any (msg:\"x\"; sid:1;)\n"+
			"# plain comment, not a rule\n"+
			"# drop udp any any -> any any (msg:\"y\"; sid:2;)\n")

	w := doRequest(r, http.MethodGet, "/api/rules", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.EqualValues(t, 1, body["count"])
	rule := body["rules"].([]any)[0].(map[string]any)
	assert.Equal(t, "local.rules", rule["filename"])
	assert.EqualValues(t, 1, rule["enabled_rules"])
	assert.EqualValues(t, 1, rule["disabled_rules"])
}

func TestRulesEndpointMissingDir(t *testing.T) {
	_, r := newTestRouter(t)
	w := doRequest(r, http.MethodGet, "/api/rules", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decodeBody(t, w)["count"])
}

func TestTrafficEndpoints(t *testing.T) {
	app, r := newTestRouter(t)
	now := time.Now().UTC()
	require.NoError(t, app.db.UpsertTraffic(t.Context(), []TrafficStat{
		{Timestamp: now, Protocol: "TCP", FlowCount: 2},
		{Timestamp: now, Protocol: "UDP", FlowCount: 1},
	}))

	w := doRequest(r, http.MethodGet, "/api/database/traffic/latest", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["traffic"], 2)

	w = doRequest(r, http.MethodGet, "/api/database/traffic/recent?protocol=tcp", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decodeBody(t, w)["count"])

	w = doRequest(r, http.MethodPost, "/api/database/reset-counter", "test-token")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, http.MethodGet, "/api/database/traffic/latest", "")
	assert.Len(t, decodeBody(t, w)["traffic"], 0)
}

func TestDebugEveEndpoint(t *testing.T) {
	app, r := newTestRouter(t)
	app.ring.Add(eveAt(time.Now().UTC(), "flow", "tcp"))

	w := doRequest(r, http.MethodGet, "/api/debug/eve", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Contains(t, body, "eve_path")
	assert.EqualValues(t, 1, body["ring_events"])
	types := body["event_types"].(map[string]any)
	assert.EqualValues(t, 1, types["flow"])
}

func TestMetricsEndpoint(t *testing.T) {
	_, r := newTestRouter(t)
	w := doRequest(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "suridash_")
}

func TestDatabaseInfoEndpoints(t *testing.T) {
	_, r := newTestRouter(t)

	w := doRequest(r, http.MethodGet, "/api/database/info", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sqlite", decodeBody(t, w)["type"])

	w = doRequest(r, http.MethodGet, "/api/database/check", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["connected"])

	w = doRequest(r, http.MethodGet, "/api/database/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	stats := decodeBody(t, w)["stats"].(map[string]any)
	assert.Contains(t, stats, "capture")
}

func TestSystemEndpoints(t *testing.T) {
	_, r := newTestRouter(t)

	w := doRequest(r, http.MethodGet, "/api/system", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Greater(t, body["cpu_count"].(float64), 0.0)

	w = doRequest(r, http.MethodGet, "/api/system/interfaces", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decodeBody(t, w)["interfaces"])
}
