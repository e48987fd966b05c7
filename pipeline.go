package lal

import (
	"context"

	"github.com/uber-go/tally"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// pipelineMetrics mirrors the shape of the teacher's commitLogMetrics in
// commit_log.go: a handful of tally counters and gauges describing pipeline
// health.
type pipelineMetrics struct {
	flushes       tally.Counter
	blocksWritten tally.Counter
	bytesWritten  tally.Counter
	writeErrors   tally.Counter
	queueDepth    tally.Gauge
}

func newPipelineMetrics(scope tally.Scope) pipelineMetrics {
	if scope == nil {
		scope = tally.NoopScope
	}
	return pipelineMetrics{
		flushes:       scope.Counter("flushes"),
		blocksWritten: scope.Counter("blocks-written"),
		bytesWritten:  scope.Counter("bytes-written"),
		writeErrors:   scope.Counter("write-errors"),
		queueDepth:    scope.Gauge("queue-depth"),
	}
}

// globalBuffer is the pipeline's global double buffer: the processor
// goroutine writes into front, and hands back (now holding everything
// written since the previous swap) to the writer goroutine.
type globalBuffer struct {
	size   int
	front  []byte
	back   []byte
	offset int
	used   int

	// backReady starts with zero permits available (forced by an
	// immediate Acquire right after construction): the writer goroutine
	// blocks until the processor performs its first swap. backConsumed
	// starts with one permit available, so that first swap does not
	// itself block. This mirrors the original's
	// writer(binary_semaphore(0), binary_semaphore(1)) initialization.
	backReady    *semaphore.Weighted
	backConsumed *semaphore.Weighted
}

func newGlobalBuffer(size int) *globalBuffer {
	g := &globalBuffer{
		size:         size,
		front:        make([]byte, size),
		back:         make([]byte, size),
		backReady:    semaphore.NewWeighted(1),
		backConsumed: semaphore.NewWeighted(1),
	}
	_ = g.backReady.Acquire(context.Background(), 1)
	return g
}

// enqueueFlush registers a stream's freshly-swapped back buffer with the
// pipeline and wakes the processor goroutine.
func (l *Log) enqueueFlush(s *Stream) {
	l.mu.Lock()
	l.queue = append(l.queue, s)
	depth := len(l.queue)
	l.mu.Unlock()

	l.metrics.queueDepth.Update(float64(depth))
	l.metrics.flushes.Inc(1)

	select {
	case l.doorbell <- struct{}{}:
	default:
	}
}

func (l *Log) snapshotQueue() []*Stream {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	q := l.queue
	l.queue = nil
	return q
}

// process is the single processor goroutine: it waits for a flush
// notification or a stop request, copies every queued stream's back buffer
// into the global buffer (swapping the global buffer whenever it fills),
// and releases each stream's flush permit once its data has been copied.
// Mirrors Log::process in the original's log.h.
//
// lastPassSwapped records whether this iteration's draining performed at
// least one real globalSwap, so that Close can tell whether the writer
// already has an unconsumed backReady permit waiting for it (in which case
// forcing another Release would over-release the semaphore) or is blocked
// with none pending (in which case Close must force one to wake it).
func (l *Log) process() {
	defer close(l.procDone)
	for {
		select {
		case <-l.doorbell:
		case <-l.stopCh:
		}

		l.lastPassSwapped = false
		for _, s := range l.snapshotQueue() {
			l.copyStreamBlock(s)
			s.flushed.Release(1)
		}

		select {
		case <-l.stopCh:
			return
		default:
		}
	}
}

func (l *Log) copyStreamBlock(s *Stream) {
	l.writeGlobalHeader(uint64(s.index), uint64(s.used))

	first := 0
	for first < s.used {
		avail := l.global.size - l.global.offset
		n := s.used - first
		if n > avail {
			n = avail
		}
		copy(l.global.front[l.global.offset:], s.back[first:first+n])
		l.global.offset += n
		first += n
		if l.global.offset == l.global.size {
			l.globalSwap()
		}
	}
}

func (l *Log) writeGlobalHeader(streamIndex, payloadSize uint64) {
	if l.global.offset+blockHeaderSize > l.global.size {
		l.globalSwap()
	}
	l.global.offset = encodeBlockHeader(l.global.front, l.global.offset, streamIndex, payloadSize)
	if l.global.offset == l.global.size {
		l.globalSwap()
	}
}

func (l *Log) globalSwap() {
	if err := l.global.backConsumed.Acquire(context.Background(), 1); err != nil {
		l.log.Error("failed to acquire back-buffer-consumed permit", zap.Error(err))
		return
	}
	l.global.front, l.global.back = l.global.back, l.global.front
	l.global.used = l.global.offset
	l.global.offset = 0
	l.global.backReady.Release(1)
	l.lastPassSwapped = true
}

// write is the single writer goroutine: it waits for the global buffer's
// back half to be ready, writes it to disk, and releases the permit that
// lets the processor swap again. Mirrors Log::write in the original's
// log.h.
func (l *Log) write() {
	defer close(l.writerDone)
	for {
		if err := l.global.backReady.Acquire(context.Background(), 1); err != nil {
			l.log.Error("failed to acquire back-buffer-ready permit", zap.Error(err))
			return
		}

		// Every globalSwap hands over a non-empty back buffer, so an empty
		// one means this wake-up is Close's forced Release. No swap holds a
		// backConsumed permit for it, so there is nothing to release.
		if l.global.used == 0 {
			return
		}

		if l.global.used > 0 {
			if _, err := l.file.Write(l.global.back[:l.global.used]); err != nil {
				l.metrics.writeErrors.Inc(1)
				l.recordWriteErr(err)
				l.log.Error("commit log write failed", zap.Error(err))
			} else {
				l.metrics.bytesWritten.Inc(int64(l.global.used))
			}
		}
		l.global.used = 0
		l.global.backConsumed.Release(1)

		select {
		case <-l.stopCh:
			return
		default:
		}
	}
}

func (l *Log) recordWriteErr(err error) {
	l.writeErrMu.Lock()
	defer l.writeErrMu.Unlock()
	if l.writeErr == nil {
		l.writeErr = err
	}
}

// Err returns the first disk write error the pipeline encountered, if any.
// Per §7, a write error is reported through this state rather than
// interrupting producers.
func (l *Log) Err() error {
	l.writeErrMu.Lock()
	defer l.writeErrMu.Unlock()
	return l.writeErr
}

func (l *Log) nextOrderingIndex() uint64 {
	return l.orderingCounter.Add(1) - 1
}

func (l *Log) categoryFilter() CategoryFilter { return l.opts.CategoryFilter() }
func (l *Log) orderingEnabled() bool          { return l.opts.OrderingEnabled() }
