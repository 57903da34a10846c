package search

import (
	"sort"

	"torrentstream/resolverservice/internal/domain"
)

const defaultRankLimit = 20

// RankedCandidate pairs a candidate with its parsed size so the size string
// is only parsed once.
type RankedCandidate struct {
	domain.CandidateRecord
	SizeBytes int64
	InfoHash  string
}

// Rank orders candidates by declared size, largest first. Equal sizes keep
// their input order. The result is truncated to limit (20 when limit <= 0).
func Rank(candidates []UniqueCandidate, limit int) []RankedCandidate {
	if limit <= 0 {
		limit = defaultRankLimit
	}
	ranked := make([]RankedCandidate, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, RankedCandidate{
			CandidateRecord: c.CandidateRecord,
			SizeBytes:       ParseSize(c.DeclaredSize),
			InfoHash:        c.InfoHash,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].SizeBytes > ranked[j].SizeBytes
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
