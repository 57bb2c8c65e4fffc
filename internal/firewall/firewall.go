// Package firewall evaluates inbound requests against an ordered, mutable
// rule chain (allow/deny lists, pattern, behavioral-rate and heuristic-score
// rules) and keeps per-source statistics. Every request passes through here
// before authentication runs.
package firewall

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lp24213/agroisync-sub001/internal/monitor"
)

// Request is the firewall's view of an inbound request. Handlers build it
// from the transport layer; the firewall never touches *http.Request.
type Request struct {
	Method    string
	Path      string
	Query     string
	Body      string
	UserAgent string
	Headers   map[string]string
}

// flatten serializes the request into one string for pattern testing.
func (r Request) flatten() string {
	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteByte(' ')
	b.WriteString(r.Path)
	if r.Query != "" {
		b.WriteByte('?')
		b.WriteString(r.Query)
	}
	b.WriteByte('\n')
	for k, v := range r.Headers {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteByte('\n')
	}
	b.WriteString(r.Body)
	return b.String()
}

// Verdict is the outcome of CheckRequest.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Action  Action `json:"action,omitempty"`
}

// EventSink receives security events the firewall emits. The monitor
// satisfies it; emission never blocks or fails the request path.
type EventSink interface {
	RecordEvent(evt monitor.Event)
}

// injectionPatterns feed the heuristic scorer's injection signal. They are
// independent of the rule chain so disabling a pattern rule does not blind
// the scorer.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\bunion\s+select\b|\bselect\s+.+\bfrom\b|\bdrop\s+(table|database)\b|'\s*or\s+\d+\s*=\s*\d+|--)`),
	regexp.MustCompile(`(?i)<script[^>]*>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)\bon\w+\s*=`),
	regexp.MustCompile(`\.\./|\.\.\\`),
}

// Config tunes the firewall's background maintenance.
type Config struct {
	SweepInterval time.Duration // how often stale stats are discarded
	StaleAfter    time.Duration // how long a silent source's stats survive
}

// Firewall holds the lists, the rule chain and per-source stats behind one
// lock. Reads vastly outnumber writes, so the lock is an RWMutex.
type Firewall struct {
	logger *zap.Logger
	scorer Scorer
	events EventSink
	config Config

	mu        sync.RWMutex
	whitelist map[string]struct{}
	blacklist map[string]struct{}
	rules     []*Rule
	stats     map[string]*SourceStats

	done chan struct{}
}

// New builds a firewall seeded with the default rule chain and starts the
// stats sweep goroutine. Call Close to stop it.
func New(logger *zap.Logger, scorer Scorer, events EventSink, config Config) *Firewall {
	if config.SweepInterval <= 0 {
		config.SweepInterval = 5 * time.Minute
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = 5 * time.Minute
	}
	if scorer == nil {
		scorer = NewWeightedScorer()
	}

	f := &Firewall{
		logger:    logger,
		scorer:    scorer,
		events:    events,
		config:    config,
		whitelist: make(map[string]struct{}),
		blacklist: make(map[string]struct{}),
		rules:     defaultRules(),
		stats:     make(map[string]*SourceStats),
		done:      make(chan struct{}),
	}

	go f.sweepRoutine()

	return f
}

// Close stops background maintenance.
func (f *Firewall) Close() {
	close(f.done)
}

// CheckRequest runs the evaluation chain for one request from source:
// whitelist, blacklist, stats update, then the enabled rules in insertion
// order. The first rule that disallows short-circuits the chain.
func (f *Firewall) CheckRequest(source string, req Request) Verdict {
	verdict := f.evaluate(source, req)
	observeVerdict(verdict.Action)
	if !verdict.Allowed {
		f.logger.Info("request disallowed",
			zap.String("source", source),
			zap.String("path", req.Path),
			zap.String("reason", verdict.Reason),
			zap.String("action", string(verdict.Action)),
		)
	}
	return verdict
}

func (f *Firewall) evaluate(source string, req Request) Verdict {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.whitelist[source]; ok {
		return Verdict{Allowed: true, Action: ActionAllow}
	}
	if _, ok := f.blacklist[source]; ok {
		return Verdict{Allowed: false, Reason: "source is blacklisted", Action: ActionBlock}
	}

	now := time.Now()
	st, ok := f.stats[source]
	if !ok {
		st = &SourceStats{Address: source}
		f.stats[source] = st
	}
	st.observe(req.Path, now)

	flat := req.flatten()
	hits := injectionHits(flat)

	for _, rule := range f.rules {
		if !rule.Enabled {
			continue
		}
		switch rule.Kind {
		case KindAddressMatch:
			if rule.Address == source {
				if rule.Action == ActionAllow {
					return Verdict{Allowed: true, Action: ActionAllow}
				}
				st.Blocked = rule.Action == ActionBlock
				return Verdict{Allowed: false, Reason: fmt.Sprintf("address rule %q", rule.Name), Action: rule.Action}
			}
		case KindPatternMatch:
			if rule.re.MatchString(flat) {
				st.Blocked = true
				return Verdict{Allowed: false, Reason: fmt.Sprintf("pattern rule %q", rule.Name), Action: rule.Action}
			}
		case KindBehaviorRate:
			if float64(st.RequestCount) > rule.Threshold {
				return Verdict{Allowed: false, Reason: fmt.Sprintf("rate rule %q", rule.Name), Action: rule.Action}
			}
		case KindHeuristicScore:
			score := f.scorer.Score(st, req, hits)
			st.LastScore = score
			if score > rule.Threshold {
				st.Blocked = true
				return Verdict{Allowed: false, Reason: fmt.Sprintf("threat score %.2f exceeds %.2f", score, rule.Threshold), Action: rule.Action}
			}
		}
	}

	return Verdict{Allowed: true, Action: ActionAllow}
}

func injectionHits(flat string) int {
	hits := 0
	for _, re := range injectionPatterns {
		if re.MatchString(flat) {
			hits++
		}
	}
	return hits
}

// AddRule validates, compiles and appends a rule to the chain.
func (f *Firewall) AddRule(rule *Rule) error {
	if err := rule.compile(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule)
	f.logger.Info("firewall rule added", zap.String("id", rule.ID), zap.String("name", rule.Name), zap.String("kind", string(rule.Kind)))
	return nil
}

// RemoveRule deletes a rule by id, reporting whether it existed.
func (f *Firewall) RemoveRule(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, rule := range f.rules {
		if rule.ID == id {
			f.rules = append(f.rules[:i], f.rules[i+1:]...)
			f.logger.Info("firewall rule removed", zap.String("id", id))
			return true
		}
	}
	return false
}

// SetRuleEnabled toggles a rule in place, reporting whether it exists.
func (f *Firewall) SetRuleEnabled(id string, enabled bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, rule := range f.rules {
		if rule.ID == id {
			rule.Enabled = enabled
			return true
		}
	}
	return false
}

// Rules returns a snapshot of the chain in evaluation order.
func (f *Firewall) Rules() []Rule {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Rule, 0, len(f.rules))
	for _, r := range f.rules {
		out = append(out, *r)
	}
	return out
}

// AddToBlacklist blocks a source and synchronously emits a block event.
func (f *Firewall) AddToBlacklist(address, reason string) {
	f.mu.Lock()
	f.blacklist[address] = struct{}{}
	f.mu.Unlock()

	f.logger.Warn("address blacklisted", zap.String("address", address), zap.String("reason", reason))
	if f.events != nil {
		f.events.RecordEvent(monitor.NewEvent(
			monitor.EventBlock,
			monitor.SeverityHigh,
			address,
			"firewall",
			"address added to blacklist",
			map[string]any{"reason": reason},
		))
	}
}

// RemoveFromBlacklist lifts a block, reporting whether it was present.
func (f *Firewall) RemoveFromBlacklist(address string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.blacklist[address]; !ok {
		return false
	}
	delete(f.blacklist, address)
	return true
}

// AddToWhitelist exempts a source from all further checks.
func (f *Firewall) AddToWhitelist(address string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.whitelist[address] = struct{}{}
}

// RemoveFromWhitelist reports whether the address was present.
func (f *Firewall) RemoveFromWhitelist(address string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.whitelist[address]; !ok {
		return false
	}
	delete(f.whitelist, address)
	return true
}

// BlacklistSize is consumed by the monitor's periodic health check.
func (f *Firewall) BlacklistSize() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.blacklist)
}

// Blacklist returns the blocked addresses, sorted for stable output.
func (f *Firewall) Blacklist() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return sortedKeys(f.blacklist)
}

// Whitelist returns the exempt addresses, sorted for stable output.
func (f *Firewall) Whitelist() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return sortedKeys(f.whitelist)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// TopSources returns up to n sources ordered by request count, for the
// admin stats endpoint.
func (f *Firewall) TopSources(n int) []SourceStats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]SourceStats, 0, len(f.stats))
	for _, st := range f.stats {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestCount > out[j].RequestCount })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func (f *Firewall) sweepRoutine() {
	ticker := time.NewTicker(f.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.sweepStats(time.Now())
		case <-f.done:
			return
		}
	}
}

// sweepStats drops stats for sources not seen within StaleAfter.
func (f *Firewall) sweepStats(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	swept := 0
	for addr, st := range f.stats {
		if now.Sub(st.LastSeen) > f.config.StaleAfter {
			delete(f.stats, addr)
			swept++
		}
	}
	if swept > 0 {
		f.logger.Debug("stale source stats swept", zap.Int("count", swept))
	}
}
