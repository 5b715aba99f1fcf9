package tape

import (
	"math"
	"strings"
)

// Score ranks the tape within its date; higher plays first. Track-dependent
// terms contribute when the manifest is already cached on disk; scoring
// never forces a fetch. A removed tape scores -1.
func (t *Tape) Score() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.removed {
		return -1
	}
	t.loadCachedLocked()
	if t.removed {
		return -1
	}

	score := 3.0
	if t.Descriptor.StreamOnly() {
		score += 10
	}
	if t.favoredTaper() {
		score += 3
	}
	if t.metaLoaded {
		score += 3 * (t.titleFraction() - 1)
		score += math.Min(20, float64(len(t.tracks))) / 4
	}
	score += math.Log(1 + float64(t.Descriptor.Downloads))
	if t.Descriptor.NumReviews > 0 {
		rating := float64(t.Descriptor.AvgRating)
		score += 0.5 * (rating - 2/math.Sqrt(float64(t.Descriptor.NumReviews)))
	}
	return score
}

func (t *Tape) favoredTaper() bool {
	identifier := strings.ToLower(t.Descriptor.Identifier)
	for _, taper := range t.policy.FavoredTapers {
		if taper != "" && strings.Contains(identifier, strings.ToLower(taper)) {
			return true
		}
	}
	return false
}

// titleFraction is (1 + known titles) / (1 + total tracks). Callers hold
// the tape mutex.
func (t *Tape) titleFraction() float64 {
	known := 0
	for _, track := range t.tracks {
		if knownTitle(track.Title) {
			known++
		}
	}
	return float64(1+known) / float64(1+len(t.tracks))
}
