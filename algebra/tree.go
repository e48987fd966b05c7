// Package algebra implements the tree-algebra operations (filter,
// morphological expand/reduce, boolean union/intersection) described in
// §4.6, operating on a flag array parallel to an analyze.Analyzer's node
// array.
package algebra

import (
	lal "github.com/TimZoet/logandload-module"
	"github.com/TimZoet/logandload-module/analyze"
	"github.com/m3db/bitset"
)

// Flag is the Enabled/Disabled state of a single node.
type Flag uint8

const (
	Disabled Flag = 0
	Enabled  Flag = 1
)

// Tree wraps a bitset.BitSet flag vector, one bit per node in analyzer's
// node array, all initialized Enabled. The same bitset library the
// teacher's commit log writer uses for its "seen" series bitset is
// repurposed here as the Enabled/Disabled flag vector itself.
type Tree struct {
	analyzer *analyze.Analyzer
	flags    *bitset.BitSet
}

// New returns a Tree over analyzer's node array with every node Enabled.
func New(analyzer *analyze.Analyzer) *Tree {
	n := uint(len(analyzer.Nodes()))
	flags := bitset.NewBitSet(n)
	for i := uint(0); i < n; i++ {
		flags.Set(i)
	}
	return &Tree{analyzer: analyzer, flags: flags}
}

// Analyzer returns the Analyzer this Tree's node array belongs to. Two
// Trees must share the same Analyzer for Union/Intersection to apply.
func (t *Tree) Analyzer() *analyze.Analyzer { return t.analyzer }

// Len returns the number of nodes (and flags) in the tree.
func (t *Tree) Len() int { return len(t.analyzer.Nodes()) }

// Get returns the flag of the node at index i.
func (t *Tree) Get(i int) Flag {
	if t.flags.Test(uint(i)) {
		return Enabled
	}
	return Disabled
}

func (t *Tree) set(i int, f Flag) {
	if f == Enabled {
		t.flags.Set(uint(i))
	} else {
		t.flags.Clear(uint(i))
	}
}

// Flags returns a copy of every node's flag, indexed the same as
// Analyzer.Nodes.
func (t *Tree) Flags() []Flag {
	out := make([]Flag, t.Len())
	for i := range out {
		out[i] = t.Get(i)
	}
	return out
}

// node is a shorthand accessor used throughout the package.
func (t *Tree) node(i int) *analyze.Node {
	nodes := t.analyzer.Nodes()
	return &nodes[i]
}

// clone returns a Tree sharing the same Analyzer with an independent copy
// of the flag vector, the same value as t.
func (t *Tree) clone() *Tree {
	c := New(t.analyzer)
	for i := 0; i < t.Len(); i++ {
		c.set(i, t.Get(i))
	}
	return c
}

func ensureSameAnalyzer(a, b *Tree) {
	if a.analyzer != b.analyzer {
		panic(lal.NewError(lal.ErrContractViolation, "trees must share the same analyzer"))
	}
}
