package firewall

import (
	"time"
)

const (
	// recentWindow bounds the per-source history the heuristic scorer sees.
	recentWindow = 32

	burstWindow = time.Second
)

// SourceStats aggregates what the firewall has seen from one source address.
// Created lazily on the first request and swept once stale.
type SourceStats struct {
	Address      string    `json:"address"`
	RequestCount int64     `json:"requestCount"`
	LastSeen     time.Time `json:"lastSeen"`
	LastScore    float64   `json:"lastScore"`
	Blocked      bool      `json:"blocked"`

	recentTimes []time.Time
	recentPaths []string
}

// observe folds one request into the aggregate.
func (st *SourceStats) observe(path string, now time.Time) {
	st.RequestCount++
	st.LastSeen = now

	st.recentTimes = append(st.recentTimes, now)
	if len(st.recentTimes) > recentWindow {
		st.recentTimes = st.recentTimes[1:]
	}
	st.recentPaths = append(st.recentPaths, path)
	if len(st.recentPaths) > recentWindow {
		st.recentPaths = st.recentPaths[1:]
	}
}

// burstCount reports how many recent requests landed within burstWindow of
// now, the scorer's burstiness signal.
func (st *SourceStats) burstCount(now time.Time) int {
	n := 0
	for _, ts := range st.recentTimes {
		if now.Sub(ts) < burstWindow {
			n++
		}
	}
	return n
}

// pathDiversity is the ratio of unique paths over the recent window, in
// (0,1]. A scanner hammering one endpoint scores low.
func (st *SourceStats) pathDiversity() float64 {
	if len(st.recentPaths) == 0 {
		return 1
	}
	unique := make(map[string]struct{}, len(st.recentPaths))
	for _, p := range st.recentPaths {
		unique[p] = struct{}{}
	}
	return float64(len(unique)) / float64(len(st.recentPaths))
}
