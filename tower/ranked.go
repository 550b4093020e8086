package tower

import "sort"

// DefaultCandidates is the default capacity of a RankedCandidateList
const DefaultCandidates = 10

// RankedCandidateList keeps at most K candidates sorted by descending score.
//
// While the list is filling, each candidate is appended and the list is
// re-sorted (stable, so equal scores keep arrival order). Once full, a new
// candidate replaces the FIRST entry, scanning from the top, whose score it
// strictly exceeds. That is the largest entry it beats, not the weakest one, so
// the result is not a global top-K. The list stays sorted either way: every
// entry before the replaced slot scores at least as high as the newcomer and
// every entry after it scores no higher than the entry it displaced.
//
// TODO: evaluate replacing the weakest entry instead once reference datasets
// exist to compare both policies against surveyed tower positions.
type RankedCandidateList struct {
	capacity int
	entries  []Candidate
}

// NewRankedCandidateList returns an empty list holding up to capacity entries
func NewRankedCandidateList(capacity int) *RankedCandidateList {
	if capacity < 1 {
		capacity = 1
	}
	return &RankedCandidateList{
		capacity: capacity,
		entries:  make([]Candidate, 0, capacity),
	}
}

// Offer considers a candidate and reports whether it was retained
func (l *RankedCandidateList) Offer(c Candidate) bool {
	if len(l.entries) < l.capacity {
		l.entries = append(l.entries, c)
		sort.SliceStable(l.entries, func(i, j int) bool {
			return l.entries[i].Score > l.entries[j].Score
		})
		return true
	}
	for i := range l.entries {
		if c.Score > l.entries[i].Score {
			l.entries[i] = c
			return true
		}
	}
	return false
}

// Len returns the number of retained candidates
func (l *RankedCandidateList) Len() int { return len(l.entries) }

// Cap returns the list capacity K
func (l *RankedCandidateList) Cap() int { return l.capacity }

// Entries returns a copy of the retained candidates, highest score first
func (l *RankedCandidateList) Entries() []Candidate {
	out := make([]Candidate, len(l.entries))
	copy(out, l.entries)
	return out
}
