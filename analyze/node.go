// Package analyze reconstructs a tree of Log/Stream/Region/Message nodes
// from a .log/.fmt file pair produced by the root lal package, via the
// two-pass algorithm described in the original's analyzer.cpp.
package analyze

import lal "github.com/TimZoet/logandload-module"

// NodeKind identifies which of the four node shapes a Node represents.
type NodeKind int

const (
	KindLog NodeKind = iota
	KindStream
	KindRegion
	KindMessage
)

func (k NodeKind) String() string {
	switch k {
	case KindLog:
		return "log"
	case KindStream:
		return "stream"
	case KindRegion:
		return "region"
	case KindMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Node is one entry of an Analyzer's flat node array. Parent and FirstChild
// are indices into that same array rather than pointers, and Node itself
// carries no field identifying its own index — a node's position in the
// array *is* its identity, matching the "tree with parent back-edges and
// raw child pointers in one contiguous array" design (no node is ever
// relocated once pass 2 completes).
type Node struct {
	Kind NodeKind

	// Descriptor is nil for KindLog, KindStream, and anonymous
	// KindRegion nodes; it is set for KindMessage nodes and for named
	// KindRegion nodes.
	Descriptor *lal.FormatDescriptor

	// Index is the message's global ordering index, valid only for
	// KindMessage nodes when the producing Log had ordering enabled.
	Index uint64

	// Parent is the index of this node's parent in the owning Analyzer's
	// node array, or -1 for the root.
	Parent int
	// FirstChild is the index of this node's first child, or -1 if it
	// has none.
	FirstChild int
	// ChildCount is the number of direct children this node has.
	ChildCount int

	// Data is a non-owning view into the Analyzer's raw log bytes holding
	// this message's parameter payload. It is nil for non-message nodes
	// and for messages with no parameters.
	Data []byte
}
