package main

import (
	"fmt"
	"strings"
	"time"
)

// Graph timespans and their bucket widths. Widths are chosen so no span
// produces more than ~100 buckets.
var timespanWidths = map[string]struct {
	span  time.Duration
	width time.Duration
}{
	"5m":  {5 * time.Minute, 5 * time.Second},
	"15m": {15 * time.Minute, 15 * time.Second},
	"30m": {30 * time.Minute, 30 * time.Second},
	"1h":  {time.Hour, time.Minute},
	"6h":  {6 * time.Hour, 5 * time.Minute},
	"24h": {24 * time.Hour, 15 * time.Minute},
	"7d":  {7 * 24 * time.Hour, 2 * time.Hour},
	"30d": {30 * 24 * time.Hour, 8 * time.Hour},
}

var graphMetrics = map[string]bool{
	"tcp":    true,
	"udp":    true,
	"icmp":   true,
	"alerts": true,
}

// ParseTimespan resolves a timespan token ("5m" ... "30d") to its duration.
func ParseTimespan(s string) (time.Duration, error) {
	entry, ok := timespanWidths[strings.ToLower(s)]
	if !ok {
		return 0, fmt.Errorf("unknown timespan %q", s)
	}
	return entry.span, nil
}

func bucketWidth(span time.Duration) time.Duration {
	for _, entry := range timespanWidths {
		if entry.span == span {
			return entry.width
		}
	}
	// Spans not in the table (tests, callers with raw durations): target
	// about 100 buckets, minimum one second.
	width := span / 100
	if width < time.Second {
		width = time.Second
	}
	return width
}

// GraphPoint timestamps are unix seconds, matching what graphing frontends
// expect.
type GraphPoint struct {
	Timestamp int64 `json:"timestamp"`
	Value     int64 `json:"value"`
}

func emptyBuckets(span time.Duration, now time.Time) []GraphPoint {
	width := bucketWidth(span)
	n := int(span / width)
	if n < 1 {
		n = 1
	}
	start := now.Add(-span)
	points := make([]GraphPoint, n)
	for i := range points {
		points[i].Timestamp = start.Add(time.Duration(i) * width).Unix()
	}
	return points
}

// AggregateEvents buckets events over the window (now-span, now] by event
// timestamp. Events outside the window are dropped; out-of-order arrival
// does not matter. Empty input yields all-zero buckets.
func AggregateEvents(events []EveEvent, metric string, span time.Duration, now time.Time) ([]GraphPoint, error) {
	if !graphMetrics[metric] {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}
	points := emptyBuckets(span, now)
	width := bucketWidth(span)
	start := now.Add(-span)

	for i := range events {
		ev := &events[i]
		if !eventMatches(ev, metric) {
			continue
		}
		ts := ev.Timestamp.Time
		if ts.Before(start) || ts.After(now) {
			continue
		}
		idx := int(ts.Sub(start) / width)
		if idx >= len(points) {
			idx = len(points) - 1
		}
		points[idx].Value++
	}
	return points, nil
}

// AggregateTraffic buckets stored per-protocol counters the same way, so the
// graph keeps its shape when it switches from the in-memory window to the
// database.
func AggregateTraffic(rows []TrafficStat, metric string, span time.Duration, now time.Time) ([]GraphPoint, error) {
	if !graphMetrics[metric] {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}
	points := emptyBuckets(span, now)
	width := bucketWidth(span)
	start := now.Add(-span)

	for i := range rows {
		row := &rows[i]
		ts := row.Timestamp
		if ts.Before(start) || ts.After(now) {
			continue
		}
		var value int64
		if metric == "alerts" {
			value = row.AlertCount
		} else if protoMatches(row.Protocol, metric) {
			value = row.FlowCount
		}
		if value == 0 {
			continue
		}
		idx := int(ts.Sub(start) / width)
		if idx >= len(points) {
			idx = len(points) - 1
		}
		points[idx].Value += value
	}
	return points, nil
}

func eventMatches(ev *EveEvent, metric string) bool {
	if metric == "alerts" {
		return ev.EventType == "alert"
	}
	return ev.EventType == "flow" && protoMatches(ev.Proto, metric)
}

func protoMatches(proto, metric string) bool {
	p := strings.ToLower(proto)
	if metric == "icmp" {
		return p == "icmp" || p == "icmpv6" || p == "ipv6-icmp"
	}
	return p == metric
}

// SnapshotCounts totals the window for the monitor panel.
func SnapshotCounts(events []EveEvent, timespan string, span time.Duration, now time.Time) MonitorSnapshot {
	snap := MonitorSnapshot{Timespan: timespan}
	cutoff := now.Add(-span)

	for i := range events {
		ev := &events[i]
		ts := ev.Timestamp.Time
		if !ts.IsZero() && ts.Before(cutoff) {
			continue
		}
		snap.TotalEvents++

		switch ev.EventType {
		case "flow":
			snap.TotalFlows++
			switch strings.ToUpper(ev.Proto) {
			case "TCP":
				snap.TCPTraffic++
			case "UDP":
				snap.UDPTraffic++
			case "ICMP", "ICMPV6", "IPV6-ICMP":
				snap.ICMPTraffic++
			}
		case "alert":
			snap.TotalAlerts++
		}
	}
	return snap
}
