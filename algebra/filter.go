package algebra

import (
	lal "github.com/TimZoet/logandload-module"
	"github.com/TimZoet/logandload-module/analyze"
)

// Action controls what a Predicate's callback does to a node's flag and to
// traversal into that node's subtree. The original implementation's
// traverse() always pruned a subtree once a node's flag lost its Enabled
// bit; Action generalizes that single baked-in rule into three independent
// bits a predicate can combine, this package's one deliberate addition
// beyond the original tree.cpp.
type Action uint8

const (
	// Skip leaves the node's current flag untouched.
	Skip Action = 1 << iota
	// Apply overwrites the node's flag with the predicate's returned
	// enabled value.
	Apply
	// Terminate stops the traversal from descending into this node's
	// subtree, regardless of its resulting flag.
	Terminate
)

// Predicate is called once per node a filter operation applies to. Its
// first return value is the node's desired enabled state, used only when
// the returned Action includes Apply.
type Predicate func(node *analyze.Node, index int) (enabled bool, action Action)

// traverse walks every non-root node in preorder, calling pred wherever
// applies(node.Kind) is true and honoring the Action it returns. A node
// that is already Disabled when traverseNode reaches it is pruned
// unconditionally before pred is even consulted — the default action of
// §4.6: a disabled ancestor excludes its whole subtree from the walk, the
// same baked-in rule the original's traverse() applies by checking
// Flags::Enabled before descending. This is a recursive re-expression of
// that iterative parent-back-edge walk; recursion depth grows with region
// nesting depth, and the pipeline places no limit on nesting depth.
func (t *Tree) traverse(applies func(analyze.NodeKind) bool, pred Predicate) {
	nodes := t.analyzer.Nodes()
	if len(nodes) == 0 {
		return
	}
	root := &nodes[0]
	for i := 0; i < root.ChildCount; i++ {
		t.traverseNode(root.FirstChild+i, applies, pred)
	}
}

func (t *Tree) traverseNode(idx int, applies func(analyze.NodeKind) bool, pred Predicate) {
	if t.Get(idx) == Disabled {
		return
	}

	n := t.node(idx)
	descend := true

	if applies(n.Kind) {
		enabled, action := pred(n, idx)
		if action&Apply != 0 {
			if enabled {
				t.set(idx, Enabled)
			} else {
				t.set(idx, Disabled)
			}
		}
		if action&Terminate != 0 {
			descend = false
		}
	}

	if descend {
		for i := 0; i < n.ChildCount; i++ {
			t.traverseNode(n.FirstChild+i, applies, pred)
		}
	}
}

// FilterStream applies pred to each of the analyzer's top-level stream
// nodes, indexed 0..StreamCount-1, skipping any stream already Disabled
// (the same default-pruning rule traverse applies, per §4.6). Returns a new
// Tree; t is left unmodified.
func (t *Tree) FilterStream(pred Predicate) *Tree {
	out := t.clone()
	nodes := out.analyzer.Nodes()
	root := &nodes[0]
	for i := 0; i < root.ChildCount; i++ {
		idx := root.FirstChild + i
		if out.Get(idx) == Disabled {
			continue
		}
		enabled, action := pred(&nodes[idx], i)
		if action&Apply != 0 {
			if enabled {
				out.set(idx, Enabled)
			} else {
				out.set(idx, Disabled)
			}
		}
	}
	return out
}

// FilterCategory applies pred to every message node in the tree, regardless
// of depth, except nodes that are Disabled or lie under a Disabled node.
func (t *Tree) FilterCategory(pred Predicate) *Tree {
	out := t.clone()
	out.traverse(func(k analyze.NodeKind) bool { return k == analyze.KindMessage }, pred)
	return out
}

// FilterRegion applies pred to every region node in the tree, regardless of
// depth, except nodes that are Disabled or lie under a Disabled node.
func (t *Tree) FilterRegion(pred Predicate) *Tree {
	out := t.clone()
	out.traverse(func(k analyze.NodeKind) bool { return k == analyze.KindRegion }, pred)
	return out
}

// FilterMessage applies pred to every message node whose descriptor matches
// tmpl's message text and category, and whose parameter-type signature
// matches paramTypes (each element a zero value of the desired Go type,
// e.g. int32(0), float32(0) — the same values Stream.Message's caller would
// have passed, used here purely to derive ParameterKeys, not as data).
func (t *Tree) FilterMessage(tmpl lal.Template, paramTypes []any, pred Predicate) *Tree {
	keys := make([]lal.ParameterKey, len(paramTypes))
	for i, v := range paramTypes {
		k, _, ok := lal.ParamKeyFor(v)
		if !ok {
			panic(lal.NewError(lal.ErrContractViolation, "unsupported parameter type %T", v))
		}
		keys[i] = k
	}
	return t.FilterMessageKeys(lal.HashMessageText(tmpl.Message()), tmpl.Category(), keys, pred)
}

// FilterMessageKeys is the positional-wildcard-capable form of
// FilterMessage: an element of paramKeys equal to lal.WildcardParameter
// matches any parameter type at that position.
func (t *Tree) FilterMessageKeys(contentHash, category uint32, paramKeys []lal.ParameterKey, pred Predicate) *Tree {
	out := t.clone()
	out.traverse(
		func(k analyze.NodeKind) bool { return k == analyze.KindMessage },
		func(n *analyze.Node, i int) (bool, Action) {
			if !messageMatches(n.Descriptor, contentHash, category, paramKeys) {
				return false, Skip
			}
			return pred(n, i)
		},
	)
	return out
}

func messageMatches(d *lal.FormatDescriptor, contentHash, category uint32, paramKeys []lal.ParameterKey) bool {
	if d == nil || d.ContentHash != contentHash || d.Category != category {
		return false
	}
	if len(d.ParamKeys) != len(paramKeys) {
		return false
	}
	for i, pk := range paramKeys {
		if pk == lal.WildcardParameter {
			continue
		}
		if d.ParamKeys[i] != pk {
			return false
		}
	}
	return true
}
