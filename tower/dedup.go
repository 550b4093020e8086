package tower

// Dedup removes exact duplicate fixes, keeping the first occurrence of each and
// preserving input order. Equality is exact float comparison on both
// components, so 0 and -0 are the same fix and NaN never matches anything.
// Round the input first if near-duplicates should collapse.
func Dedup(raw []Point) PointSet {
	seen := make(map[Point]struct{}, len(raw))
	unique := make(PointSet, 0, len(raw))
	for _, p := range raw {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		unique = append(unique, p)
	}
	return unique
}
