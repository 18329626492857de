package subgraph

type pair struct {
	from, to string
}

// Dedup resolves the raw directed records of an extraction into one edge
// per relationship with positive strength.
//
// A relationship with both endpoints expanded shows up twice: once as the
// canonical record (positive strength) and once as its mirror (negative
// strength, opposing kind). The first pass keeps every canonical record and
// indexes its (from, to) pair. The second pass turns a mirror back into
// its canonical form only when that pair was not indexed, which keeps
// references whose canonical source was never expanded.
func Dedup(raw []Edge) []Edge {
	seen := make(map[pair]struct{}, len(raw))
	out := make([]Edge, 0, len(raw))

	for _, e := range raw {
		if e.Strength > 0 {
			out = append(out, e)
			seen[pair{e.Source, e.Target}] = struct{}{}
		}
	}

	for _, e := range raw {
		if e.Strength >= 0 {
			continue
		}
		if _, ok := seen[pair{e.Target, e.Source}]; ok {
			continue
		}
		out = append(out, Edge{
			Source:   e.Target,
			Target:   e.Source,
			Strength: -e.Strength,
			Kind:     e.Kind.Opposing(),
		})
	}

	return out
}
