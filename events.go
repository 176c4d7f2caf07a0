package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EveTime unmarshals the timestamp formats suricata actually emits:
// "2024-02-27T16:05:32.891829+0000" (numeric zone without colon), RFC3339,
// and naive local timestamps from older builds.
type EveTime struct {
	time.Time
}

var eveTimeLayouts = []string{
	"2006-01-02T15:04:05.999999-0700",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
}

func (t *EveTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		t.Time = time.Time{}
		return nil
	}
	var err error
	for _, layout := range eveTimeLayouts {
		var parsed time.Time
		parsed, err = time.Parse(layout, s)
		if err == nil {
			t.Time = parsed
			return nil
		}
	}
	return err
}

func (t EveTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + t.Format("2006-01-02T15:04:05.999999-0700") + `"`), nil
}

// EveEvent is one line of eve.json. The per-type payloads are pointers so
// absent sections stay nil instead of zero-valued.
type EveEvent struct {
	Timestamp EveTime `json:"timestamp"`
	FlowID    int64   `json:"flow_id,omitempty"`
	EventType string  `json:"event_type"`
	SrcIP     string  `json:"src_ip,omitempty"`
	SrcPort   int     `json:"src_port,omitempty"`
	DestIP    string  `json:"dest_ip,omitempty"`
	DestPort  int     `json:"dest_port,omitempty"`
	Proto     string  `json:"proto,omitempty"`
	Payload   string  `json:"payload,omitempty"`

	Alert    *AlertInfo    `json:"alert,omitempty"`
	HTTP     *HTTPInfo     `json:"http,omitempty"`
	DNS      *DNSInfo      `json:"dns,omitempty"`
	TLS      *TLSInfo      `json:"tls,omitempty"`
	SSH      *SSHInfo      `json:"ssh,omitempty"`
	Flow     *FlowInfo     `json:"flow,omitempty"`
	Fileinfo *FileinfoInfo `json:"fileinfo,omitempty"`

	Raw json.RawMessage `json:"-"`
}

type AlertInfo struct {
	Action      string `json:"action,omitempty"`
	GID         int    `json:"gid,omitempty"`
	SignatureID int    `json:"signature_id"`
	Rev         int    `json:"rev,omitempty"`
	Signature   string `json:"signature"`
	Category    string `json:"category"`
	Severity    int    `json:"severity"`
}

type HTTPInfo struct {
	Hostname   string `json:"hostname,omitempty"`
	URL        string `json:"url,omitempty"`
	HTTPMethod string `json:"http_method,omitempty"`
	Protocol   string `json:"protocol,omitempty"`
	Status     int    `json:"status,omitempty"`
	Length     int64  `json:"length,omitempty"`
}

type DNSInfo struct {
	Type   string `json:"type,omitempty"`
	RRName string `json:"rrname,omitempty"`
	RRType string `json:"rrtype,omitempty"`
	RCode  string `json:"rcode,omitempty"`
}

type TLSInfo struct {
	SNI      string `json:"sni,omitempty"`
	Subject  string `json:"subject,omitempty"`
	IssuerDN string `json:"issuerdn,omitempty"`
	Version  string `json:"version,omitempty"`
}

type SSHInfo struct {
	Client SSHEndpoint `json:"client,omitempty"`
	Server SSHEndpoint `json:"server,omitempty"`
}

type SSHEndpoint struct {
	ProtoVersion    string `json:"proto_version,omitempty"`
	SoftwareVersion string `json:"software_version,omitempty"`
}

type FlowInfo struct {
	PktsToserver  int64  `json:"pkts_toserver,omitempty"`
	PktsToclient  int64  `json:"pkts_toclient,omitempty"`
	BytesToserver int64  `json:"bytes_toserver,omitempty"`
	BytesToclient int64  `json:"bytes_toclient,omitempty"`
	State         string `json:"state,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

type FileinfoInfo struct {
	Filename string `json:"filename,omitempty"`
	Size     int64  `json:"size,omitempty"`
	State    string `json:"state,omitempty"`
	Stored   bool   `json:"stored,omitempty"`
}

// Details derives a display signature, category and severity for any event
// type. Alerts carry their own; everything else gets a synthesized one.
func (e *EveEvent) Details() (signature, category string, severity int) {
	severity = 3 // info level for non-alert events

	switch e.EventType {
	case "alert":
		if e.Alert == nil {
			return "Unknown Alert", "Unknown", 1
		}
		sig := e.Alert.Signature
		if sig == "" {
			sig = "Unknown Alert"
		}
		cat := e.Alert.Category
		if cat == "" {
			cat = "Unknown"
		}
		sev := e.Alert.Severity
		if sev == 0 {
			sev = 1
		}
		return sig, cat, sev

	case "http":
		method, host, url := "GET", "", ""
		if e.HTTP != nil {
			if e.HTTP.HTTPMethod != "" {
				method = e.HTTP.HTTPMethod
			}
			host = e.HTTP.Hostname
			url = e.HTTP.URL
		}
		return fmt.Sprintf("HTTP: %s %s%s", method, host, url), "HTTP", severity

	case "dns":
		name := ""
		if e.DNS != nil {
			name = e.DNS.RRName
		}
		return "DNS Query: " + name, "DNS", severity

	case "tls":
		sni := "N/A"
		if e.TLS != nil && e.TLS.SNI != "" {
			sni = e.TLS.SNI
		}
		return "TLS: " + sni, "TLS", severity

	case "ssh":
		return "SSH Connection", "SSH", severity

	case "flow":
		proto := e.Proto
		if proto == "" {
			proto = "N/A"
		}
		return "Flow: " + proto, "FLOW", severity

	case "stats":
		return "Statistics Update", "STATS", severity

	case "fileinfo":
		name := "N/A"
		if e.Fileinfo != nil && e.Fileinfo.Filename != "" {
			name = e.Fileinfo.Filename
		}
		return "File: " + name, "FILE", severity

	default:
		upper := strings.ToUpper(e.EventType)
		return upper, upper, severity
	}
}

// EventView is the flattened row shape the alerts table in the UI consumes.
type EventView struct {
	ID          int    `json:"id"`
	Timestamp   string `json:"timestamp"`
	Signature   string `json:"signature"`
	SignatureID int    `json:"signature_id,omitempty"`
	Category    string `json:"category"`
	Severity    int    `json:"severity"`
	Protocol    string `json:"protocol"`
	SrcIP       string `json:"src_ip"`
	SrcPort     int    `json:"src_port"`
	DestIP      string `json:"dest_ip"`
	DestPort    int    `json:"dest_port"`
}

func NewEventView(e *EveEvent, id int) EventView {
	sig, cat, sev := e.Details()
	view := EventView{
		ID:        id,
		Signature: sig,
		Category:  cat,
		Severity:  sev,
		Protocol:  orNA(e.Proto),
		SrcIP:     orNA(e.SrcIP),
		SrcPort:   e.SrcPort,
		DestIP:    orNA(e.DestIP),
		DestPort:  e.DestPort,
	}
	if !e.Timestamp.IsZero() {
		view.Timestamp = e.Timestamp.Format("2006-01-02T15:04:05.999999-0700")
	}
	if e.EventType == "alert" && e.Alert != nil {
		view.SignatureID = e.Alert.SignatureID
	}
	return view
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// FormatLogLine renders an event the way the dashboard log view shows it.
func FormatLogLine(e *EveEvent) string {
	ts := ""
	if !e.Timestamp.IsZero() {
		ts = e.Timestamp.Format("2006-01-02 15:04:05")
	}

	switch e.EventType {
	case "alert":
		sig, _, sev := e.Details()
		return fmt.Sprintf("[ALERT] %s - %s | %s -> %s [%s] (Severity: %d)",
			ts, sig, e.SrcIP, e.DestIP, e.Proto, sev)
	case "stats":
		return fmt.Sprintf("[STATS] %s - Statistics Update", ts)
	case "flow":
		src := fmt.Sprintf("%s:%d", e.SrcIP, e.SrcPort)
		dest := fmt.Sprintf("%s:%d", e.DestIP, e.DestPort)
		return fmt.Sprintf("[FLOW] %s - %s -> %s [%s]%s", ts, src, dest, e.Proto, serviceHint(e.SrcPort, e.DestPort))
	case "http":
		host, url := "", ""
		if e.HTTP != nil {
			host, url = e.HTTP.Hostname, e.HTTP.URL
		}
		return fmt.Sprintf("[HTTP] %s - %s%s", ts, host, url)
	case "dns":
		name := ""
		if e.DNS != nil {
			name = e.DNS.RRName
		}
		return fmt.Sprintf("[DNS] %s - Query: %s", ts, name)
	case "ssh":
		return fmt.Sprintf("[SSH] %s - %s -> %s", ts, e.SrcIP, e.DestIP)
	case "tls":
		sni := ""
		if e.TLS != nil {
			sni = e.TLS.SNI
		}
		return fmt.Sprintf("[TLS] %s - SNI: %s", ts, sni)
	default:
		return fmt.Sprintf("[%s] %s", strings.ToUpper(e.EventType), ts)
	}
}

var wellKnownPorts = map[int]string{
	21: "FTP", 22: "SSH", 25: "SMTP", 53: "DNS",
	67: "DHCP", 68: "DHCP", 80: "HTTP", 443: "HTTPS",
}

func serviceHint(srcPort, destPort int) string {
	for _, port := range []int{srcPort, destPort} {
		if name, ok := wellKnownPorts[port]; ok {
			return " (" + name + ")"
		}
	}
	return ""
}
