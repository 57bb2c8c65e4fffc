package firewall

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWeightedScorer_BenignRequestScoresLow(t *testing.T) {
	s := NewWeightedScorer()
	st := &SourceStats{Address: "10.0.0.1"}
	st.observe("/products", time.Now().Add(-time.Minute))

	score := s.Score(st, benignRequest("/products"), 0)
	assert.Less(t, score, 0.2)
}

func TestWeightedScorer_SignalsAccumulate(t *testing.T) {
	s := NewWeightedScorer()
	now := time.Now()
	s.now = func() time.Time { return now }

	st := &SourceStats{Address: "10.0.0.2"}
	for i := 0; i < 20; i++ {
		st.observe("/login", now)
	}

	req := Request{Method: "POST", Path: "/login"} // no user agent
	score := s.Score(st, req, 3)

	// Burst saturated, UA missing, injection saturated, single path.
	assert.InDelta(t, 1.0, score, 0.001)
}

func TestWeightedScorer_ShortUserAgent(t *testing.T) {
	s := NewWeightedScorer()

	withUA := s.Score(&SourceStats{}, Request{UserAgent: "Mozilla/5.0 (X11; Linux)"}, 0)
	shortUA := s.Score(&SourceStats{}, Request{UserAgent: "curl/8"}, 0)
	noUA := s.Score(&SourceStats{}, Request{}, 0)

	assert.Less(t, withUA, shortUA)
	assert.Less(t, shortUA, noUA)
}

func TestWeightedScorer_ClampedToUnitInterval(t *testing.T) {
	s := NewWeightedScorer()
	now := time.Now()
	s.now = func() time.Time { return now }

	st := &SourceStats{Address: "10.0.0.3"}
	for i := 0; i < recentWindow; i++ {
		st.observe("/x", now)
	}

	score := s.Score(st, Request{}, 100)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestSourceStats_PathDiversity(t *testing.T) {
	st := &SourceStats{}
	assert.Equal(t, 1.0, st.pathDiversity())

	now := time.Now()
	for i := 0; i < 10; i++ {
		st.observe("/same", now)
	}
	assert.InDelta(t, 0.1, st.pathDiversity(), 0.001)
}
