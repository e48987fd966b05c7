package algebra

import "github.com/TimZoet/logandload-module/analyze"

// Expand sets Enabled on any node that currently has at least one Enabled
// sibling within [i-left, i+right] (clamped to the valid sibling range,
// inclusive), for every child list under every Stream or Region node.
// Already-enabled nodes are unaffected.
func (t *Tree) Expand(left, right int) *Tree {
	return t.convolution(func(src *Tree, siblings []int, i int) Flag {
		if src.Get(siblings[i]) == Enabled {
			return Enabled
		}
		lo, hi := window(siblings, i, left, right)
		for j := lo; j <= hi; j++ {
			if j != i && src.Get(siblings[j]) == Enabled {
				return Enabled
			}
		}
		return Disabled
	})
}

// Reduce clears to Disabled any node that currently has at least one
// Disabled sibling within [i-left, i+right] (clamped, inclusive), for every
// child list under every Stream or Region node. Already-disabled nodes are
// unaffected.
func (t *Tree) Reduce(left, right int) *Tree {
	return t.convolution(func(src *Tree, siblings []int, i int) Flag {
		if src.Get(siblings[i]) == Disabled {
			return Disabled
		}
		lo, hi := window(siblings, i, left, right)
		for j := lo; j <= hi; j++ {
			if j != i && src.Get(siblings[j]) == Disabled {
				return Disabled
			}
		}
		return Enabled
	})
}

func window(siblings []int, i, left, right int) (lo, hi int) {
	lo = i - left
	if lo < 0 {
		lo = 0
	}
	hi = i + right
	if hi > len(siblings)-1 {
		hi = len(siblings) - 1
	}
	return lo, hi
}

// convolution visits every Stream or Region node's child list and replaces
// each child's flag with f's result, always evaluated against src (the
// pre-convolution tree), so a sibling lookup inside f never observes a
// value this same convolution pass has already rewritten. A parent already
// Disabled, or with a Disabled ancestor below the root, is skipped entirely
// — per §4.6, pruning a disabled parent's subtree is unconditional here, not
// merely a default, matching the original's convolution() checking
// Flags::Enabled on the parent before ever touching its children.
func (t *Tree) convolution(f func(src *Tree, siblings []int, i int) Flag) *Tree {
	out := t.clone()
	nodes := t.analyzer.Nodes()
	for idx := range nodes {
		n := &nodes[idx]
		if (n.Kind != analyze.KindStream && n.Kind != analyze.KindRegion) || n.ChildCount == 0 {
			continue
		}
		pruned := false
		for p := idx; p > 0; p = nodes[p].Parent {
			if t.Get(p) == Disabled {
				pruned = true
				break
			}
		}
		if pruned {
			continue
		}
		siblings := make([]int, n.ChildCount)
		for i := range siblings {
			siblings[i] = n.FirstChild + i
		}
		for i := range siblings {
			out.set(siblings[i], f(t, siblings, i))
		}
	}
	return out
}
