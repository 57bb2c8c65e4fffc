package firewall

import "time"

// Scorer estimates how likely a request from a source is malicious, on a
// [0,1] scale. The firewall treats the scorer as a strategy so a learned
// model can replace the weighted heuristic without touching the rule chain.
type Scorer interface {
	Score(stats *SourceStats, req Request, injectionHits int) float64
}

// WeightedScorer is the default deterministic heuristic. It combines request
// burstiness, user-agent quality, injection-pattern hits and path diversity
// into a clamped weighted sum.
type WeightedScorer struct {
	BurstWeight     float64
	UserAgentWeight float64
	InjectionWeight float64
	DiversityWeight float64

	// BurstLimit is the per-second request count treated as fully bursty.
	BurstLimit int

	now func() time.Time
}

// NewWeightedScorer returns the default scorer configuration.
func NewWeightedScorer() *WeightedScorer {
	return &WeightedScorer{
		BurstWeight:     0.35,
		UserAgentWeight: 0.20,
		InjectionWeight: 0.30,
		DiversityWeight: 0.15,
		BurstLimit:      10,
		now:             time.Now,
	}
}

// Score implements Scorer.
func (w *WeightedScorer) Score(stats *SourceStats, req Request, injectionHits int) float64 {
	score := 0.0

	if stats != nil && w.BurstLimit > 0 {
		burst := float64(stats.burstCount(w.now())) / float64(w.BurstLimit)
		if burst > 1 {
			burst = 1
		}
		score += w.BurstWeight * burst
	}

	switch {
	case req.UserAgent == "":
		score += w.UserAgentWeight
	case len(req.UserAgent) < 10:
		score += w.UserAgentWeight / 2
	}

	if injectionHits > 0 {
		hits := float64(injectionHits) / 3
		if hits > 1 {
			hits = 1
		}
		score += w.InjectionWeight * hits
	}

	if stats != nil && len(stats.recentPaths) >= 8 {
		score += w.DiversityWeight * (1 - stats.pathDiversity())
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}
