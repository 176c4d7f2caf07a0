package main

import (
	"time"
)

type ProcessState string

const (
	StateStopped  ProcessState = "stopped"
	StateStarting ProcessState = "starting"
	StateRunning  ProcessState = "running"
	StateStopping ProcessState = "stopping"
	StateCrashed  ProcessState = "crashed"
)

// Alert: one row per detection event from eve.json. DedupeKey is derived
// from the event content so replaying the file after a cursor rewind never
// duplicates rows.
type Alert struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	DedupeKey   string    `gorm:"uniqueIndex;size:40" json:"-"`
	Timestamp   time.Time `gorm:"index" json:"timestamp"`
	Signature   string    `gorm:"size:255;index" json:"signature"`
	SignatureID int       `json:"signature_id"`
	Category    string    `gorm:"size:100;index" json:"category"`
	Severity    int       `json:"severity"`
	Protocol    string    `gorm:"size:20;index" json:"protocol"`
	SrcIP       string    `gorm:"size:45;index" json:"src_ip"`
	SrcPort     int       `json:"src_port"`
	DestIP      string    `gorm:"size:45;index" json:"dest_ip"`
	DestPort    int       `json:"dest_port"`
	Payload     string    `json:"payload,omitempty"`
	ExtraData   string    `json:"extra_data,omitempty"` // full eve event as JSON
	CreatedAt   time.Time `json:"created_at"`
}

func (Alert) TableName() string {
	return "alerts"
}

// Statistic: one counter sample from stats.log. Keyed by (timestamp,
// metric_name) so re-reading a block is idempotent.
type Statistic struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Timestamp   time.Time `gorm:"index;uniqueIndex:idx_stat_sample,priority:1" json:"timestamp"`
	MetricName  string    `gorm:"size:100;uniqueIndex:idx_stat_sample,priority:2" json:"metric_name"`
	MetricValue float64   `json:"metric_value"`
	MetricType  string    `gorm:"size:50" json:"metric_type"` // thread/module scope column
	Category    string    `gorm:"size:50;index" json:"category"`
	ExtraData   string    `json:"extra_data,omitempty"`
}

func (Statistic) TableName() string {
	return "statistics"
}

// TrafficStat: per-protocol counters aggregated over a fixed interval.
// This is the durable store the graph endpoint reads for long timespans.
type TrafficStat struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Timestamp       time.Time `gorm:"index;uniqueIndex:idx_traffic_sample,priority:1" json:"timestamp"`
	Protocol        string    `gorm:"size:20;uniqueIndex:idx_traffic_sample,priority:2" json:"protocol"` // TCP, UDP, ICMP, ...
	PacketCount     int64     `gorm:"default:0" json:"packet_count"`
	ByteCount       int64     `gorm:"default:0" json:"byte_count"`
	FlowCount       int64     `gorm:"default:0" json:"flow_count"`
	AlertCount      int64     `gorm:"default:0" json:"alert_count"`
	IntervalSeconds int       `gorm:"default:60" json:"interval_seconds"`
}

func (TrafficStat) TableName() string {
	return "traffic_stats"
}

// DTOs for API responses

type StatusInfo struct {
	Running   bool   `json:"running"`
	Status    string `json:"status"`
	PID       int32  `json:"pid,omitempty"`
	Uptime    string `json:"uptime,omitempty"` // HH:MM:SS
	Cmdline   string `json:"cmdline,omitempty"`
	Interface string `json:"interface,omitempty"`
}

type ValidationResult struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
	Output  string `json:"output,omitempty"`
}

type DBInfo struct {
	Type           string `json:"type"`
	OriginalType   string `json:"original_type"`
	FallbackActive bool   `json:"fallback_active"`
	URL            string `json:"url"` // credentials stripped
	Connected      bool   `json:"connected"`
}

type CleanupResult struct {
	AlertsDeleted     int64 `json:"alerts_deleted"`
	StatisticsDeleted int64 `json:"statistics_deleted"`
	TrafficDeleted    int64 `json:"traffic_deleted"`
}

type MonitorSnapshot struct {
	TCPTraffic  int64  `json:"tcp_traffic"`
	UDPTraffic  int64  `json:"udp_traffic"`
	ICMPTraffic int64  `json:"icmp_traffic"`
	TotalAlerts int64  `json:"total_alerts"`
	TotalFlows  int64  `json:"total_flows"`
	TotalEvents int64  `json:"total_events"`
	Timespan    string `json:"timespan"`
}

type SystemInfo struct {
	Platform        string  `json:"platform"`
	CPUCount        int     `json:"cpu_count"`
	MemoryTotal     uint64  `json:"memory_total"`
	MemoryAvailable uint64  `json:"memory_available"`
	MemoryPercent   float64 `json:"memory_percent"`
	DiskPercent     float64 `json:"disk_usage"`
}

type NetInterface struct {
	Name string `json:"name"`
	IPv4 string `json:"ipv4,omitempty"`
	IPv6 string `json:"ipv6,omitempty"`
	MAC  string `json:"mac,omitempty"`
	MTU  int    `json:"mtu"`
	IsUp bool   `json:"is_up"`
}
