package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveTimeFormats(t *testing.T) {
	cases := map[string]string{
		"numeric zone": `"2024-02-27T16:05:32.891829+0000"`,
		"rfc3339":      `"2024-02-27T16:05:32Z"`,
		"naive":        `"2024-02-27 16:05:32"`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var ts EveTime
			require.NoError(t, json.Unmarshal([]byte(raw), &ts))
			assert.Equal(t, 2024, ts.Year())
			assert.Equal(t, time.February, ts.Month())
			assert.Equal(t, 16, ts.Hour())
		})
	}

	var empty EveTime
	require.NoError(t, json.Unmarshal([]byte(`""`), &empty))
	assert.True(t, empty.IsZero())

	var bad EveTime
	assert.Error(t, json.Unmarshal([]byte(`"not a time"`), &bad))
}

func TestDetailsPerEventType(t *testing.T) {
	tests := []struct {
		name     string
		event    EveEvent
		sig      string
		category string
		severity int
	}{
		{
			name: "alert with payload",
			event: EveEvent{EventType: "alert", Alert: &AlertInfo{
				Signature: "ET SCAN Nmap", Category: "Attempted Recon", Severity: 2,
			}},
			sig: "ET SCAN Nmap", category: "Attempted Recon", severity: 2,
		},
		{
			name:  "alert without payload",
			event: EveEvent{EventType: "alert"},
			sig:   "Unknown Alert", category: "Unknown", severity: 1,
		},
		{
			name: "http",
			event: EveEvent{EventType: "http", HTTP: &HTTPInfo{
				HTTPMethod: "POST", Hostname: "example.com", URL: "/login",
			}},
			sig: "HTTP: POST example.com/login", category: "HTTP", severity: 3,
		},
		{
			name:  "dns",
			event: EveEvent{EventType: "dns", DNS: &DNSInfo{RRName: "example.com"}},
			sig:   "DNS Query: example.com", category: "DNS", severity: 3,
		},
		{
			name:  "tls without sni",
			event: EveEvent{EventType: "tls", TLS: &TLSInfo{}},
			sig:   "TLS: N/A", category: "TLS", severity: 3,
		},
		{
			name:  "flow",
			event: EveEvent{EventType: "flow", Proto: "TCP"},
			sig:   "Flow: TCP", category: "FLOW", severity: 3,
		},
		{
			name:  "fileinfo",
			event: EveEvent{EventType: "fileinfo", Fileinfo: &FileinfoInfo{Filename: "a.txt"}},
			sig:   "File: a.txt", category: "FILE", severity: 3,
		},
		{
			name:  "unknown type",
			event: EveEvent{EventType: "netflow"},
			sig:   "NETFLOW", category: "NETFLOW", severity: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, cat, sev := tt.event.Details()
			assert.Equal(t, tt.sig, sig)
			assert.Equal(t, tt.category, cat)
			assert.Equal(t, tt.severity, sev)
		})
	}
}

func TestFormatLogLine(t *testing.T) {
	ts := EveTime{time.Date(2024, 2, 27, 16, 5, 32, 0, time.UTC)}

	alert := EveEvent{
		Timestamp: ts, EventType: "alert",
		SrcIP: "10.0.0.1", DestIP: "10.0.0.2", Proto: "TCP",
		Alert: &AlertInfo{Signature: "ET SCAN Nmap", Severity: 2},
	}
	assert.Equal(t,
		"[ALERT] 2024-02-27 16:05:32 - ET SCAN Nmap | 10.0.0.1 -> 10.0.0.2 [TCP] (Severity: 2)",
		FormatLogLine(&alert))

	flow := EveEvent{
		Timestamp: ts, EventType: "flow",
		SrcIP: "10.0.0.1", SrcPort: 50000, DestIP: "1.2.3.4", DestPort: 443, Proto: "TCP",
	}
	assert.Equal(t,
		"[FLOW] 2024-02-27 16:05:32 - 10.0.0.1:50000 -> 1.2.3.4:443 [TCP] (HTTPS)",
		FormatLogLine(&flow))

	dns := EveEvent{Timestamp: ts, EventType: "dns", DNS: &DNSInfo{RRName: "example.com"}}
	assert.Equal(t, "[DNS] 2024-02-27 16:05:32 - Query: example.com", FormatLogLine(&dns))
}

func TestNewEventView(t *testing.T) {
	ev := EveEvent{
		Timestamp: EveTime{time.Date(2024, 2, 27, 16, 5, 32, 0, time.UTC)},
		EventType: "alert",
		Proto:     "TCP",
		SrcIP:     "10.0.0.1", SrcPort: 4455,
		DestIP: "10.0.0.2", DestPort: 80,
		Alert: &AlertInfo{Signature: "ET SCAN Nmap", Category: "Attempted Recon", Severity: 2, SignatureID: 2009582},
	}
	view := NewEventView(&ev, 7)
	assert.Equal(t, 7, view.ID)
	assert.Equal(t, "ET SCAN Nmap", view.Signature)
	assert.Equal(t, 2009582, view.SignatureID)
	assert.Equal(t, "TCP", view.Protocol)
	assert.NotEmpty(t, view.Timestamp)

	// Missing addresses render as N/A, not empty strings.
	bare := EveEvent{EventType: "dns"}
	view = NewEventView(&bare, 1)
	assert.Equal(t, "N/A", view.Protocol)
	assert.Equal(t, "N/A", view.SrcIP)
	assert.Equal(t, "N/A", view.DestIP)
	assert.Empty(t, view.Timestamp)
}
