package quality

import "github.com/kozaktomas/photo-quality/internal/fingerprint"

// ScoreBatch computes a uniqueness score in [0,1] for every image in
// newHashes: 1 minus the highest similarity against the union of the
// existing corpus hashes (excluding the image itself) and the other hashes
// in the same batch. Two near-identical images uploaded together therefore
// both score near zero even before either is persisted.
//
// Images absent from newHashes (hashing failed upstream) are the caller's
// responsibility; they default to 1.0 rather than being penalized.
//
// The scan is exact and pairwise over 64-bit hashes. Popcount on a uint64
// keeps the O(batch x corpus) comparison cheap enough that no approximate
// index is needed at current corpus sizes.
func ScoreBatch(newHashes, existingHashes map[string]fingerprint.Hash) map[string]float64 {
	scores := make(map[string]float64, len(newHashes))

	for id, hash := range newHashes {
		maxSim := 0.0

		for otherID, other := range existingHashes {
			if otherID == id {
				continue
			}
			if sim := fingerprint.Similarity(hash, other); sim > maxSim {
				maxSim = sim
			}
		}

		for otherID, other := range newHashes {
			if otherID == id {
				continue
			}
			if sim := fingerprint.Similarity(hash, other); sim > maxSim {
				maxSim = sim
			}
		}

		scores[id] = clamp01(1 - maxSim)
	}

	return scores
}
