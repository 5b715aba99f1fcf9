package textutil

// CosineSimilarity computes the cosine of the angle between two fingerprints.
func CosineSimilarity(a, b *Fingerprint) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	var dot float64
	for token, count := range a.tokens {
		if other, ok := b.tokens[token]; ok {
			dot += count * other
		}
	}
	if dot == 0 {
		return 0
	}
	return dot / (a.norm * b.norm)
}

// BestMatch returns the index of the candidate closest to target, together
// with its similarity. Candidates below threshold are ignored; when nothing
// clears the threshold the index is -1. Ties resolve to the last candidate,
// which keeps repeated titles ("sandwich" sets) pointing at their final
// occurrence.
func BestMatch(target string, candidates []string, threshold float64) (int, float64) {
	targetFP := NewFingerprint(target)
	if targetFP == nil {
		return -1, 0
	}
	best := -1
	bestScore := 0.0
	for i, candidate := range candidates {
		score := CosineSimilarity(targetFP, NewFingerprint(candidate))
		if score < threshold {
			continue
		}
		if score >= bestScore {
			best = i
			bestScore = score
		}
	}
	return best, bestScore
}

// Matches reports whether two strings clear the similarity threshold.
func Matches(a, b string, threshold float64) bool {
	score := CosineSimilarity(NewFingerprint(a), NewFingerprint(b))
	return score >= threshold
}
