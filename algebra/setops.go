package algebra

// Union returns a new Tree whose flags are the bitwise OR of t's and
// other's. t and other must have been built over the same Analyzer.
func (t *Tree) Union(other *Tree) *Tree {
	ensureSameAnalyzer(t, other)
	out := t.clone()
	for i := 0; i < out.Len(); i++ {
		if other.Get(i) == Enabled {
			out.set(i, Enabled)
		}
	}
	return out
}

// Intersection returns a new Tree whose flags are the bitwise AND of t's
// and other's. t and other must have been built over the same Analyzer.
func (t *Tree) Intersection(other *Tree) *Tree {
	ensureSameAnalyzer(t, other)
	out := t.clone()
	for i := 0; i < out.Len(); i++ {
		if other.Get(i) == Disabled {
			out.set(i, Disabled)
		}
	}
	return out
}
