// Package graph declares the interface a graph-emission side effect would
// implement. Per spec scope this is an out-of-scope external collaborator
// (it corresponds to writeGraph/dot::Graph in the original implementation):
// only the interface is declared here, with no implementation.
package graph

import "github.com/TimZoet/logandload-module/analyze"

// Emitter renders an analyzed tree as a graph description (e.g. Graphviz
// dot) for external visualization.
type Emitter interface {
	Emit(a *analyze.Analyzer) ([]byte, error)
}
