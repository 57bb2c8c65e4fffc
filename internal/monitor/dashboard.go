package monitor

import (
	"sort"
	"time"
)

const (
	recentEventLimit = 50
	dashboardHours   = 24
	topLimit         = 10
)

// CountEntry is one row of a top-N breakdown.
type CountEntry struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// DashboardData is the admin dashboard payload.
type DashboardData struct {
	Metrics      Metrics      `json:"metrics"`
	RecentEvents []Event      `json:"recentEvents"`
	EventsByHour []int        `json:"eventsByHour"` // oldest hour first, 24 buckets
	TopSources   []CountEntry `json:"topSources"`
	TopTypes     []CountEntry `json:"topTypes"`
	ThreatTrend  []float64    `json:"threatTrend"` // mean severity score per hour
}

// DashboardData assembles the dashboard from the event log.
func (m *Monitor) DashboardData() DashboardData {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	data := DashboardData{
		Metrics:      m.metrics,
		EventsByHour: make([]int, dashboardHours),
		ThreatTrend:  make([]float64, dashboardHours),
	}

	sources := make(map[string]int)
	types := make(map[string]int)
	trendCounts := make([]int, dashboardHours)

	for i := range m.events {
		evt := &m.events[i]
		sources[evt.Source]++
		types[string(evt.Type)]++

		age := now.Sub(evt.Timestamp)
		if age >= 0 && age < dashboardHours*time.Hour {
			// Bucket 23 is the current hour, bucket 0 the oldest.
			bucket := dashboardHours - 1 - int(age/time.Hour)
			data.EventsByHour[bucket]++
			data.ThreatTrend[bucket] += severityScore(evt.Severity)
			trendCounts[bucket]++
		}
	}

	for i, n := range trendCounts {
		if n > 0 {
			data.ThreatTrend[i] /= float64(n)
		}
	}

	data.TopSources = topEntries(sources, topLimit)
	data.TopTypes = topEntries(types, topLimit)

	// Newest first, capped.
	start := len(m.events) - recentEventLimit
	if start < 0 {
		start = 0
	}
	recent := m.events[start:]
	data.RecentEvents = make([]Event, len(recent))
	for i, evt := range recent {
		data.RecentEvents[len(recent)-1-i] = evt
	}

	return data
}

func topEntries(counts map[string]int, limit int) []CountEntry {
	out := make([]CountEntry, 0, len(counts))
	for k, v := range counts {
		out = append(out, CountEntry{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
