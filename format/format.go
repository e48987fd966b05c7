// Package format declares the interface a human-readable text formatter
// would implement, consuming a .log/.fmt pair. Per spec scope, the
// formatter itself is an out-of-scope external collaborator: only the
// interface its caller would depend on is declared here.
package format

import "github.com/TimZoet/logandload-module/analyze"

// FilenameFunc derives the .log/.fmt base path a Formatter should read,
// given some caller-defined identifier (e.g. a run ID or date).
type FilenameFunc func(id string) string

// Formatter renders an analyzed tree as human-readable text.
type Formatter interface {
	// Format returns a textual rendering of every node reachable from the
	// given analyzer.
	Format(a *analyze.Analyzer) (string, error)
}
