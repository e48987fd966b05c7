package lal

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"golang.org/x/sync/semaphore"
)

// Stream is a single producer's double-buffered encoder. A Stream is safe
// for use by exactly one goroutine at a time; concurrent producers each get
// their own Stream from Log.CreateStream.
type Stream struct {
	log   *Log
	index int
	size  int

	front  []byte
	back   []byte
	offset int
	used   int

	// flushed starts with one permit available, mirroring a
	// std::binary_semaphore(1): the first flush proceeds immediately, and
	// every subsequent flush must wait for the processor goroutine to
	// finish copying the previous back buffer out before swapping again.
	flushed *semaphore.Weighted
}

func newStream(log *Log, index int, size int) *Stream {
	if size <= 0 {
		panic(NewError(ErrContractViolation, "stream buffer size must be > 0, got %d", size))
	}
	return &Stream{
		log:     log,
		index:   index,
		size:    size,
		front:   make([]byte, size),
		back:    make([]byte, size),
		flushed: semaphore.NewWeighted(1),
	}
}

// Index returns the stream's position in its Log's stream list, the same
// value written as the stream_index field of every block this stream
// produces.
func (s *Stream) Index() int { return s.index }

// Message encodes a single message event: the format's MessageKey, an
// optional global ordering index, and the parameter values in declaration
// order. It is a no-op if the Log's category filter rejects tmpl's
// category. It panics with a *lal.Error (ErrContractViolation) if values
// contains a type outside the standard parameter catalog, or if the encoded
// message cannot possibly fit in this stream's buffer regardless of
// flushing — both are programming errors, not
// runtime conditions a caller is expected to recover from.
func (s *Stream) Message(tmpl Template, values ...any) {
	if !s.log.categoryFilter().Message(tmpl.Category()) {
		return
	}

	key, paramKeys, paramSizes, payloadSize, err := describeTemplate(tmpl, values)
	if err != nil {
		panic(err)
	}
	if countParameters(tmpl.Message()) != len(values) {
		panic(NewError(ErrContractViolation,
			"template %q declares %d parameter(s), got %d argument(s)",
			tmpl.Message(), countParameters(tmpl.Message()), len(values)))
	}

	s.log.registry.registerOnce(reflect.TypeOf(tmpl), func() (MessageKey, FormatDescriptor) {
		return key, FormatDescriptor{
			ContentHash: hash32(tmpl.Message()),
			Message:     tmpl.Message(),
			Category:    tmpl.Category(),
			ParamKeys:   paramKeys,
			ParamSizes:  paramSizes,
			PayloadSize: payloadSize,
		}
	})

	msgSize := 4 + int(payloadSize)
	ordering := s.log.orderingEnabled()
	if ordering {
		msgSize += 8
	}
	if msgSize > s.size {
		panic(NewError(ErrContractViolation,
			"message of %d bytes can never fit in a %d-byte stream buffer", msgSize, s.size))
	}

	s.checkFlush(msgSize)

	s.writeUint32(uint32(key))
	if ordering {
		s.writeUint64(s.log.nextOrderingIndex())
	}
	for _, v := range values {
		s.writeParam(v)
	}
}

// Region opens an anonymous region and returns a handle whose Close must be
// called to emit the matching region-end event. Region returns nil if the
// Log's category filter rejects regions entirely, in which case Close is
// safe to call on the nil handle and does nothing.
func (s *Stream) Region() *RegionHandle {
	if !s.log.categoryFilter().Region() {
		return nil
	}
	s.checkFlush(4)
	s.writeUint32(uint32(AnonymousRegionStart))
	return &RegionHandle{stream: s}
}

// NamedRegion opens a region tagged with tmpl's registered format and
// returns a handle whose Close must be called to emit the matching
// region-end event. NamedRegion returns nil if the Log's category filter
// rejects regions entirely.
func (s *Stream) NamedRegion(tmpl Template) *RegionHandle {
	if !s.log.categoryFilter().Region() {
		return nil
	}

	key := MessageKey(hash32(tmpl.Message()) ^ hashUint32(tmpl.Category()))
	s.log.registry.registerOnce(reflect.TypeOf(tmpl), func() (MessageKey, FormatDescriptor) {
		return key, FormatDescriptor{
			ContentHash: hash32(tmpl.Message()),
			Message:     tmpl.Message(),
			Category:    tmpl.Category(),
		}
	})

	s.checkFlush(8)
	s.writeUint32(uint32(NamedRegionStart))
	s.writeUint32(uint32(key))
	return &RegionHandle{stream: s}
}

// Location identifies a single call site for SourceInfo.
type Location struct {
	File   string
	Line   int
	Column int
}

// SourceInfo registers a synthetic descriptor encoding loc under key and
// writes a single event referencing it. It is a no-op if the Log's category
// filter rejects source-location events.
func (s *Stream) SourceInfo(key MessageKey, loc Location) {
	if !s.log.categoryFilter().Source() {
		return
	}
	text := fmt.Sprintf("%s(%d,%d)", loc.File, loc.Line, loc.Column)
	s.log.registry.registerDescriptor(key, FormatDescriptor{
		ContentHash: hash32(text),
		Message:     text,
	})

	s.checkFlush(4)
	s.writeUint32(uint32(key))
}

// checkFlush flushes the stream if appending a message of the given size
// would overrun the buffer.
func (s *Stream) checkFlush(messageSize int) {
	if s.offset+messageSize > s.size {
		s.flush()
	}
}

// flush swaps the front and back buffers, hands the back buffer (now
// holding everything written since the previous flush) to the pipeline, and
// resets the front buffer for further writes. It blocks until the
// processor goroutine has finished with whatever was previously in the back
// buffer.
func (s *Stream) flush() {
	if err := s.flushed.Acquire(context.Background(), 1); err != nil {
		panic(WrapError(ErrContractViolation, err, "stream %d: failed to acquire flush permit", s.index))
	}
	s.front, s.back = s.back, s.front
	s.used = s.offset
	s.offset = 0
	s.log.enqueueFlush(s)
}

func (s *Stream) writeUint32(v uint32) {
	binary.LittleEndian.PutUint32(s.front[s.offset:], v)
	s.offset += 4
}

func (s *Stream) writeUint64(v uint64) {
	binary.LittleEndian.PutUint64(s.front[s.offset:], v)
	s.offset += 8
}

func (s *Stream) writeParam(v any) {
	switch x := v.(type) {
	case int8:
		s.front[s.offset] = byte(x)
		s.offset++
	case uint8:
		s.front[s.offset] = x
		s.offset++
	case int16:
		binary.LittleEndian.PutUint16(s.front[s.offset:], uint16(x))
		s.offset += 2
	case uint16:
		binary.LittleEndian.PutUint16(s.front[s.offset:], x)
		s.offset += 2
	case int32:
		binary.LittleEndian.PutUint32(s.front[s.offset:], uint32(x))
		s.offset += 4
	case uint32:
		binary.LittleEndian.PutUint32(s.front[s.offset:], x)
		s.offset += 4
	case int64:
		binary.LittleEndian.PutUint64(s.front[s.offset:], uint64(x))
		s.offset += 8
	case uint64:
		binary.LittleEndian.PutUint64(s.front[s.offset:], x)
		s.offset += 8
	case float32:
		binary.LittleEndian.PutUint32(s.front[s.offset:], math.Float32bits(x))
		s.offset += 4
	case float64:
		binary.LittleEndian.PutUint64(s.front[s.offset:], math.Float64bits(x))
		s.offset += 8
	default:
		panic(NewError(ErrContractViolation, "unsupported parameter type %T", v))
	}
}
