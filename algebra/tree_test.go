package algebra_test

import (
	"path/filepath"
	"testing"

	lal "github.com/TimZoet/logandload-module"
	"github.com/TimZoet/logandload-module/algebra"
	"github.com/TimZoet/logandload-module/analyze"
	"github.com/stretchr/testify/require"
)

type infoMessage struct{}

func (infoMessage) Message() string  { return "info {}" }
func (infoMessage) Category() uint32 { return 1 }

type errorMessage struct{}

func (errorMessage) Message() string  { return "error {}" }
func (errorMessage) Category() uint32 { return 10 }

func buildAnalyzer(t *testing.T) *analyze.Analyzer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test")
	l, err := lal.NewLog(path, nil)
	require.NoError(t, err)

	s := l.CreateStream(256)
	s.Message(infoMessage{}, int32(1))
	s.Message(errorMessage{}, int32(2))
	s.Message(infoMessage{}, int32(3))

	require.NoError(t, l.Close())

	a := analyze.New()
	require.NoError(t, a.Read(path))
	return a
}

// buildAnalyzerWithRegion writes one stream holding an anonymous region
// (containing an info and an error message) followed by a trailing info
// message outside the region, for tests that need a disabled ancestor to
// actually have descendants to prune.
func buildAnalyzerWithRegion(t *testing.T) *analyze.Analyzer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test")
	l, err := lal.NewLog(path, nil)
	require.NoError(t, err)

	s := l.CreateStream(256)
	region := s.Region()
	s.Message(infoMessage{}, int32(1))
	s.Message(errorMessage{}, int32(2))
	region.Close()
	s.Message(infoMessage{}, int32(3))

	require.NoError(t, l.Close())

	a := analyze.New()
	require.NoError(t, a.Read(path))
	return a
}

func TestNewTreeStartsFullyEnabled(t *testing.T) {
	a := buildAnalyzer(t)
	tr := algebra.New(a)
	for i := 0; i < tr.Len(); i++ {
		require.Equal(t, algebra.Enabled, tr.Get(i))
	}
}

func TestFilterCategoryDisablesLowSeverityMessages(t *testing.T) {
	a := buildAnalyzer(t)
	tr := algebra.New(a)

	out := tr.FilterCategory(func(n *analyze.Node, _ int) (bool, algebra.Action) {
		return n.Descriptor.Category >= 10, algebra.Apply
	})

	nodes := a.Nodes()
	for i, n := range nodes {
		if n.Kind != analyze.KindMessage {
			continue
		}
		if n.Descriptor.Category >= 10 {
			require.Equal(t, algebra.Enabled, out.Get(i))
		} else {
			require.Equal(t, algebra.Disabled, out.Get(i))
		}
	}
}

func TestReduceClearsNeighborsOfDisabledSibling(t *testing.T) {
	a := buildAnalyzer(t)
	tr := algebra.New(a)

	filtered := tr.FilterCategory(func(n *analyze.Node, _ int) (bool, algebra.Action) {
		return n.Descriptor.Category >= 10, algebra.Apply
	})
	reduced := filtered.Reduce(1, 1)

	nodes := a.Nodes()
	stream := nodes[1]
	for i := 0; i < stream.ChildCount; i++ {
		idx := stream.FirstChild + i
		require.Equal(t, algebra.Disabled, reduced.Get(idx),
			"the two low-severity messages start disabled, and the high-severity one sits between them, so Reduce(1,1) clears it too")
	}
}

func TestExpandEnablesNeighborsOfEnabledSibling(t *testing.T) {
	a := buildAnalyzer(t)
	tr := algebra.New(a)

	filtered := tr.FilterCategory(func(n *analyze.Node, _ int) (bool, algebra.Action) {
		return n.Descriptor.Category >= 10, algebra.Apply
	})
	expanded := filtered.Expand(1, 1)
	nodes := a.Nodes()
	stream := nodes[1]
	for i := 0; i < stream.ChildCount; i++ {
		idx := stream.FirstChild + i
		require.Equal(t, algebra.Enabled, expanded.Get(idx),
			"every message is within one position of the enabled error message, so Expand(1,1) enables all three")
	}
}

// TestFilterCategorySkipsDescendantsOfDisabledRegion pins down the §4.6
// default-pruning invariant: a disabled ancestor excludes its whole subtree
// from later traversal-based filters, so a message under an already
// disabled region cannot be re-enabled by a later FilterCategory call.
func TestFilterCategorySkipsDescendantsOfDisabledRegion(t *testing.T) {
	a := buildAnalyzerWithRegion(t)
	tr := algebra.New(a)

	disabledRegion := tr.FilterRegion(func(*analyze.Node, int) (bool, algebra.Action) {
		return false, algebra.Apply
	})

	nodes := a.Nodes()
	stream := nodes[1]
	require.Equal(t, 2, stream.ChildCount) // the region, then the trailing message
	regionIdx := stream.FirstChild
	require.Equal(t, algebra.Disabled, disabledRegion.Get(regionIdx))

	region := nodes[regionIdx]
	reenabled := disabledRegion.FilterCategory(func(*analyze.Node, int) (bool, algebra.Action) {
		return true, algebra.Apply
	})

	for i := 0; i < region.ChildCount; i++ {
		idx := region.FirstChild + i
		require.Equal(t, algebra.Disabled, reenabled.Get(idx),
			"messages under an already-disabled region stay disabled: the region's subtree is pruned before the predicate ever runs")
	}

	trailingIdx := stream.FirstChild + 1
	require.Equal(t, analyze.KindMessage, nodes[trailingIdx].Kind)
	require.Equal(t, algebra.Enabled, reenabled.Get(trailingIdx),
		"the trailing message outside the disabled region is unaffected and can still be (re)enabled")
}

// TestExpandSkipsChildrenOfDisabledRegion pins down the same §4.6 pruning
// rule for convolution: a disabled parent's children are never convolved,
// even when one of them has an enabled neighbor that would otherwise cause
// Expand to flip it back on.
func TestExpandSkipsChildrenOfDisabledRegion(t *testing.T) {
	a := buildAnalyzerWithRegion(t)
	tr := algebra.New(a)

	disabledError := tr.FilterCategory(func(n *analyze.Node, _ int) (bool, algebra.Action) {
		return n.Descriptor.Category < 10, algebra.Apply
	})

	nodes := a.Nodes()
	stream := nodes[1]
	regionIdx := stream.FirstChild
	region := nodes[regionIdx]

	disabledRegionAndError := disabledError.FilterRegion(func(*analyze.Node, int) (bool, algebra.Action) {
		return false, algebra.Apply
	})
	require.Equal(t, algebra.Disabled, disabledRegionAndError.Get(regionIdx))

	expanded := disabledRegionAndError.Expand(1, 1)
	for i := 0; i < region.ChildCount; i++ {
		idx := region.FirstChild + i
		require.Equal(t, disabledRegionAndError.Get(idx), expanded.Get(idx),
			"Expand must not touch any child of an already-disabled region, so its flags are unchanged from before the call")
	}
}

func TestFilterMessageMatchesByTemplateAndParamTypes(t *testing.T) {
	a := buildAnalyzer(t)
	tr := algebra.New(a)

	out := tr.FilterMessage(infoMessage{}, []any{int32(0)}, func(*analyze.Node, int) (bool, algebra.Action) {
		return false, algebra.Apply
	})

	nodes := a.Nodes()
	stream := nodes[1]
	for i := 0; i < stream.ChildCount; i++ {
		idx := stream.FirstChild + i
		n := nodes[idx]
		if n.Descriptor.Message == "info {}" {
			require.Equal(t, algebra.Disabled, out.Get(idx))
		} else {
			require.Equal(t, algebra.Enabled, out.Get(idx))
		}
	}
}

func TestFilterMessageWildcardMatchesAnyParamType(t *testing.T) {
	a := buildAnalyzer(t)
	tr := algebra.New(a)

	out := tr.FilterMessageKeys(lal.HashMessageText("info {}"), 1, []lal.ParameterKey{lal.WildcardParameter}, func(*analyze.Node, int) (bool, algebra.Action) {
		return false, algebra.Apply
	})

	nodes := a.Nodes()
	stream := nodes[1]
	for i := 0; i < stream.ChildCount; i++ {
		idx := stream.FirstChild + i
		n := nodes[idx]
		if n.Descriptor.Message == "info {}" {
			require.Equal(t, algebra.Disabled, out.Get(idx))
		}
	}
}

func TestUnionAndIntersectionRequireSameAnalyzer(t *testing.T) {
	a := buildAnalyzer(t)
	b := buildAnalyzer(t)

	trA := algebra.New(a)
	trB := algebra.New(b)

	require.Panics(t, func() {
		trA.Union(trB)
	})
}

func TestUnionCombinesDisjointDisabledSets(t *testing.T) {
	a := buildAnalyzer(t)
	base := algebra.New(a)

	left := base.FilterCategory(func(n *analyze.Node, _ int) (bool, algebra.Action) {
		return n.Descriptor.Message != "info {}", algebra.Apply
	})
	right := base.FilterCategory(func(n *analyze.Node, _ int) (bool, algebra.Action) {
		return n.Descriptor.Message != "error {}", algebra.Apply
	})

	union := left.Union(right)
	nodes := a.Nodes()
	stream := nodes[1]
	for i := 0; i < stream.ChildCount; i++ {
		idx := stream.FirstChild + i
		require.Equal(t, algebra.Enabled, union.Get(idx),
			"every message is enabled in at least one of left/right, so their union re-enables everything")
	}
}

func TestIntersectionKeepsOnlyCommonlyEnabled(t *testing.T) {
	a := buildAnalyzer(t)
	base := algebra.New(a)

	left := base.FilterCategory(func(n *analyze.Node, _ int) (bool, algebra.Action) {
		return n.Descriptor.Message != "info {}", algebra.Apply
	})
	right := base.FilterCategory(func(n *analyze.Node, _ int) (bool, algebra.Action) {
		return n.Descriptor.Message != "error {}", algebra.Apply
	})

	intersection := left.Intersection(right)
	nodes := a.Nodes()
	stream := nodes[1]
	for i := 0; i < stream.ChildCount; i++ {
		idx := stream.FirstChild + i
		require.Equal(t, algebra.Disabled, intersection.Get(idx),
			"every message is disabled in at least one of left/right, so their intersection clears everything")
	}
}
