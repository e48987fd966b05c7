package analyze

import (
	"encoding/binary"
	"os"
	"strings"

	lal "github.com/TimZoet/logandload-module"
)

// Analyzer reads a .log/.fmt file pair and reconstructs the node tree they
// describe. Analyzer is not safe for concurrent use; build one per file
// pair.
type Analyzer struct {
	streamCount int
	ordering    bool

	descriptors map[lal.MessageKey]*lal.FormatDescriptor
	params      map[lal.ParameterKey]uint32

	nodes []Node
	raw   []byte
}

// New returns an Analyzer pre-loaded with the standard parameter-type
// catalog (§6.3).
func New() *Analyzer {
	return &Analyzer{
		descriptors: map[lal.MessageKey]*lal.FormatDescriptor{},
		params:      standardCatalog(),
	}
}

// RegisterParameter extends the analyzer's parameter catalog with a
// non-standard type, keyed the same way the producing Log's ParamKeyFor
// computed it. It must be called before Read.
func (a *Analyzer) RegisterParameter(key lal.ParameterKey, size uint32) {
	a.params[key] = size
}

// Nodes returns the reconstructed node array. Index 0 is always the root
// Log node.
func (a *Analyzer) Nodes() []Node { return a.nodes }

// StreamCount returns the number of streams declared in the .fmt file.
func (a *Analyzer) StreamCount() int { return a.streamCount }

// OrderingEnabled reports whether messages in this log carry a global
// ordering index.
func (a *Analyzer) OrderingEnabled() bool { return a.ordering }

// Descriptor looks up a registered format by key.
func (a *Analyzer) Descriptor(key lal.MessageKey) (*lal.FormatDescriptor, bool) {
	d, ok := a.descriptors[key]
	return d, ok
}

// Read loads path+".fmt" and path (the .log file), in that order, and
// reconstructs the node tree.
func (a *Analyzer) Read(path string) error {
	if err := a.readFormatFile(path + ".fmt"); err != nil {
		return err
	}
	return a.readLogFile(path)
}

func (a *Analyzer) readFormatFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return lal.WrapError(lal.ErrOpenFailure, err, "failed to open format file %q", path)
	}
	if len(data) < 9 {
		return lal.NewError(lal.ErrCodec, "truncated format file header in %q", path)
	}
	pos := 0
	a.streamCount = int(binary.LittleEndian.Uint64(data[pos:]))
	pos += 8
	a.ordering = data[pos] != 0
	pos++

	for pos < len(data) {
		if pos+4 > len(data) {
			return lal.NewError(lal.ErrCodec, "truncated descriptor key in %q", path)
		}
		key := lal.MessageKey(binary.LittleEndian.Uint32(data[pos:]))
		pos += 4

		if pos+8 > len(data) {
			return lal.NewError(lal.ErrCodec, "truncated descriptor message length in %q", path)
		}
		msgLen := int(binary.LittleEndian.Uint64(data[pos:]))
		pos += 8

		if pos+msgLen > len(data) {
			return lal.NewError(lal.ErrCodec, "truncated descriptor message bytes in %q", path)
		}
		message := strings.TrimRight(string(data[pos:pos+msgLen]), "\x00")
		pos += msgLen

		if pos+4 > len(data) {
			return lal.NewError(lal.ErrCodec, "truncated descriptor category in %q", path)
		}
		category := binary.LittleEndian.Uint32(data[pos:])
		pos += 4

		paramCount := strings.Count(message, "{}")
		paramKeys := make([]lal.ParameterKey, paramCount)
		paramSizes := make([]uint32, paramCount)
		var payloadSize uint32
		for i := 0; i < paramCount; i++ {
			if pos+4 > len(data) {
				return lal.NewError(lal.ErrCodec, "truncated descriptor parameter key in %q", path)
			}
			pk := lal.ParameterKey(binary.LittleEndian.Uint32(data[pos:]))
			pos += 4
			size, ok := a.params[pk]
			if !ok {
				return lal.NewError(lal.ErrCodec, "unknown parameter key %d in %q", pk, path)
			}
			paramKeys[i] = pk
			paramSizes[i] = size
			payloadSize += size
		}

		desc := &lal.FormatDescriptor{
			Key:         key,
			ContentHash: lal.HashMessageText(message),
			Message:     message,
			Category:    category,
			ParamKeys:   paramKeys,
			ParamSizes:  paramSizes,
			PayloadSize: payloadSize,
		}

		if existing, ok := a.descriptors[key]; ok {
			if existing.Message != desc.Message || existing.Category != desc.Category {
				return lal.NewError(lal.ErrCodec, "duplicate message key %d with mismatched descriptor in %q", key, path)
			}
			continue
		}
		a.descriptors[key] = desc
	}

	return nil
}

// groupNode is pass 1's lightweight stand-in for a Node: it tracks only
// what is needed to size the final node array, not its final position.
type groupNode struct {
	parent            int
	groupChildCount   int
	messageChildCount int
}

func (a *Analyzer) readLogFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return lal.WrapError(lal.ErrOpenFailure, err, "failed to open log file %q", path)
	}
	a.raw = data

	groups := make([]groupNode, a.streamCount, a.streamCount*2)
	activeParent := make([]int, a.streamCount)
	for i := range activeParent {
		activeParent[i] = i
	}

	messageCount := 0
	regionCount := 0

	pos := 0
	for pos < len(data) {
		streamIndex, blockEnd, err := a.readBlockHeader(data, &pos, path)
		if err != nil {
			return err
		}

		parent := activeParent[streamIndex]

		for pos < blockEnd {
			key, err := readKey(data, &pos, blockEnd, path)
			if err != nil {
				return err
			}

			switch key {
			case lal.AnonymousRegionStart:
				groups[parent].groupChildCount++
				groups = append(groups, groupNode{parent: parent})
				parent = len(groups) - 1
				activeParent[streamIndex] = parent
				regionCount++
			case lal.NamedRegionStart:
				key2, err := readKey(data, &pos, blockEnd, path)
				if err != nil {
					return err
				}
				if _, ok := a.descriptors[key2]; !ok {
					return lal.NewError(lal.ErrCodec, "region references unregistered descriptor %d in %q", key2, path)
				}
				groups[parent].groupChildCount++
				groups = append(groups, groupNode{parent: parent})
				parent = len(groups) - 1
				activeParent[streamIndex] = parent
				regionCount++
			case lal.RegionEnd:
				if parent < a.streamCount {
					return lal.NewError(lal.ErrCodec, "region end without a matching region start in %q", path)
				}
				parent = groups[parent].parent
				activeParent[streamIndex] = parent
			default:
				desc, ok := a.descriptors[key]
				if !ok {
					return lal.NewError(lal.ErrCodec, "unknown message key %d in %q", key, path)
				}
				skip := int(desc.PayloadSize)
				if a.ordering {
					skip += 8
				}
				if pos+skip > blockEnd {
					return lal.NewError(lal.ErrCodec, "truncated message payload for key %d in %q", key, path)
				}
				pos += skip
				groups[parent].messageChildCount++
				messageCount++
			}
		}
		if pos != blockEnd {
			return lal.NewError(lal.ErrCodec, "block boundary mismatch in %q", path)
		}
	}

	for i := 0; i < a.streamCount; i++ {
		if activeParent[i] != i {
			return lal.NewError(lal.ErrCodec, "unterminated region on stream %d in %q", i, path)
		}
	}

	a.allocateNodes(groups, regionCount, messageCount)
	return a.populateNodes(data, groups)
}

func (a *Analyzer) readBlockHeader(data []byte, pos *int, path string) (streamIndex uint64, blockEnd int, err error) {
	if *pos+16 > len(data) {
		return 0, 0, lal.NewError(lal.ErrCodec, "truncated block header in %q", path)
	}
	streamIndex = binary.LittleEndian.Uint64(data[*pos:])
	*pos += 8
	blockSize := binary.LittleEndian.Uint64(data[*pos:])
	*pos += 8
	if streamIndex >= uint64(a.streamCount) {
		return 0, 0, lal.NewError(lal.ErrCodec, "block references unknown stream %d in %q", streamIndex, path)
	}
	blockEnd = *pos + int(blockSize)
	if blockEnd > len(data) {
		return 0, 0, lal.NewError(lal.ErrCodec, "truncated block payload in %q", path)
	}
	return streamIndex, blockEnd, nil
}

func readKey(data []byte, pos *int, blockEnd int, path string) (lal.MessageKey, error) {
	if *pos+4 > blockEnd {
		return 0, lal.NewError(lal.ErrCodec, "truncated event key in %q", path)
	}
	key := lal.MessageKey(binary.LittleEndian.Uint32(data[*pos:]))
	*pos += 4
	return key, nil
}

func (a *Analyzer) allocateNodes(groups []groupNode, regionCount, messageCount int) {
	total := 1 + a.streamCount + regionCount + messageCount
	a.nodes = make([]Node, total)

	a.nodes[0] = Node{Kind: KindLog, Parent: -1, FirstChild: 1, ChildCount: a.streamCount}

	nextIndex := 1 + a.streamCount
	for i := 0; i < a.streamCount; i++ {
		n := &a.nodes[i+1]
		n.Kind = KindStream
		n.Parent = 0
		n.FirstChild = -1
		if c := groups[i].groupChildCount + groups[i].messageChildCount; c > 0 {
			n.FirstChild = nextIndex
			nextIndex += c
		}
	}
}

// populateNodes re-walks the same byte stream read during sizing, this
// time allocating each region/message into its pre-reserved slot in
// a.nodes without any further reallocation, mirroring the original's pass
// 2 in analyzer.cpp::readLogFile.
func (a *Analyzer) populateNodes(data []byte, groups []groupNode) error {
	activeParentNode := make([]int, a.streamCount)
	for i := 0; i < a.streamCount; i++ {
		activeParentNode[i] = i + 1
	}

	nextGroupIndex := a.streamCount
	nextIndex := 1 + a.streamCount
	for i := 0; i < a.streamCount; i++ {
		if c := groups[i].groupChildCount + groups[i].messageChildCount; c > 0 {
			nextIndex += c
		}
	}

	pos := 0
	for pos < len(data) {
		streamIndex := binary.LittleEndian.Uint64(data[pos:])
		pos += 8
		blockSize := binary.LittleEndian.Uint64(data[pos:])
		pos += 8
		blockEnd := pos + int(blockSize)

		parentIdx := activeParentNode[streamIndex]

		for pos < blockEnd {
			key := lal.MessageKey(binary.LittleEndian.Uint32(data[pos:]))
			pos += 4

			switch key {
			case lal.AnonymousRegionStart:
				childIdx := a.reserveChild(parentIdx)
				node := &a.nodes[childIdx]
				node.Kind = KindRegion
				node.Parent = parentIdx
				node.FirstChild = -1
				g := groups[nextGroupIndex]
				nextGroupIndex++
				if c := g.groupChildCount + g.messageChildCount; c > 0 {
					node.FirstChild = nextIndex
					nextIndex += c
				}
				parentIdx = childIdx
				activeParentNode[streamIndex] = childIdx
			case lal.NamedRegionStart:
				key2 := lal.MessageKey(binary.LittleEndian.Uint32(data[pos:]))
				pos += 4
				desc := a.descriptors[key2]

				childIdx := a.reserveChild(parentIdx)
				node := &a.nodes[childIdx]
				node.Kind = KindRegion
				node.Descriptor = desc
				node.Parent = parentIdx
				node.FirstChild = -1
				g := groups[nextGroupIndex]
				nextGroupIndex++
				if c := g.groupChildCount + g.messageChildCount; c > 0 {
					node.FirstChild = nextIndex
					nextIndex += c
				}
				parentIdx = childIdx
				activeParentNode[streamIndex] = childIdx
			case lal.RegionEnd:
				parentIdx = a.nodes[parentIdx].Parent
				activeParentNode[streamIndex] = parentIdx
			default:
				desc := a.descriptors[key]
				childIdx := a.reserveChild(parentIdx)
				node := &a.nodes[childIdx]
				node.Kind = KindMessage
				node.Descriptor = desc
				node.Parent = parentIdx
				node.FirstChild = -1
				if a.ordering {
					node.Index = binary.LittleEndian.Uint64(data[pos:])
					pos += 8
				}
				if desc.PayloadSize > 0 {
					node.Data = data[pos : pos+int(desc.PayloadSize)]
					pos += int(desc.PayloadSize)
				}
			}
		}
	}

	return nil
}

// reserveChild claims the next unused slot under parentIdx's pre-reserved
// child range and returns its index.
func (a *Analyzer) reserveChild(parentIdx int) int {
	parent := &a.nodes[parentIdx]
	idx := parent.FirstChild + parent.ChildCount
	parent.ChildCount++
	return idx
}
