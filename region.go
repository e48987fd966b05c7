package lal

// RegionHandle is a scoped guard returned by Stream.Region and
// Stream.NamedRegion. Calling Close emits the matching region-end event
// exactly once; calling Close again, or on a nil handle, is a no-op. The
// typical use is:
//
//	r := stream.Region()
//	defer r.Close()
type RegionHandle struct {
	stream   *Stream
	released bool
}

// Close emits the region's matching region-end event, unless the handle has
// already been released (by a prior Close, or by Move on a
// MovableRegionHandle derived from it).
func (r *RegionHandle) Close() {
	if r == nil || r.released {
		return
	}
	r.released = true
	r.stream.checkFlush(4)
	r.stream.writeUint32(uint32(RegionEnd))
}

// MovableRegionHandle behaves like RegionHandle, but its ownership of the
// "must emit region-end" obligation can be transferred to another handle
// via Move, analogous to the original's MovableRegion move constructor: the
// source handle becomes inert and Close on it no longer emits anything.
type MovableRegionHandle struct {
	RegionHandle
}

// MovableRegion opens an anonymous, movable region. MovableRegion returns
// nil if the Log's category filter rejects regions entirely.
func (s *Stream) MovableRegion() *MovableRegionHandle {
	if !s.log.categoryFilter().Region() {
		return nil
	}
	s.checkFlush(4)
	s.writeUint32(uint32(AnonymousRegionStart))
	return &MovableRegionHandle{RegionHandle{stream: s}}
}

// Move transfers the region-end obligation to a newly returned handle and
// marks m released, so that m.Close becomes a no-op. This is the Go analog
// of the original's move constructor, which left the moved-from Region
// unable to emit a region-end on destruction.
func (m *MovableRegionHandle) Move() *MovableRegionHandle {
	if m == nil || m.released {
		return nil
	}
	moved := &MovableRegionHandle{RegionHandle{stream: m.stream}}
	m.released = true
	return moved
}
