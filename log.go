package lal

import (
	"os"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Log owns a .log/.fmt file pair and the background pipeline that
// consolidates every Stream created from it into that pair. A Log must be
// closed, after every Stream it owns has stopped being used by
// its producer, per the "no cross-process sharing of a single log
// instance" non-goal: a Log is a single-process, single-lifetime object.
type Log struct {
	opts Options
	path string
	log  *zap.Logger

	registry *formatRegistry
	global   *globalBuffer

	mu      sync.Mutex
	streams []*Stream
	queue   []*Stream

	doorbell   chan struct{}
	stopCh     chan struct{}
	procDone   chan struct{}
	writerDone chan struct{}

	// lastPassSwapped is written only by process() and read only by Close
	// after <-l.procDone, so the channel close gives it a happens-before
	// edge without needing its own lock.
	lastPassSwapped bool

	closeMu sync.Mutex
	closed  bool

	orderingCounter atomic.Uint64

	file *os.File

	writeErrMu sync.Mutex
	writeErr   error

	metrics pipelineMetrics
}

// NewLog creates (truncating if necessary) the file at path and starts its
// background pipeline. If opts is nil, NewOptions() defaults are used.
func NewLog(path string, opts Options) (*Log, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, WrapError(ErrOpenFailure, err, "failed to open log file %q", path)
	}

	l := &Log{
		opts:       opts,
		path:       path,
		log:        opts.Logger(),
		registry:   newFormatRegistry(),
		global:     newGlobalBuffer(opts.GlobalBufferSize()),
		doorbell:   make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
		procDone:   make(chan struct{}),
		writerDone: make(chan struct{}),
		file:       f,
		metrics:    newPipelineMetrics(opts.MetricsScope()),
	}

	go l.process()
	go l.write()

	return l, nil
}

// CreateStream allocates a new Stream with the given double buffer size (in
// bytes, per buffer) and registers it with this Log.
func (l *Log) CreateStream(size int) *Stream {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := newStream(l, len(l.streams), size)
	l.streams = append(l.streams, s)
	return s
}

// Close requests the processor and writer goroutines to stop, waits for
// both to terminate, then writes the following in order directly to the
// file (mirroring the original Log destructor in log.h):
//
//  1. any residual bytes sitting in the global buffer's front half;
//  2. any stream still holding a queued-but-unprocessed back buffer;
//  3. any stream still holding unflushed bytes in its front buffer.
//
// It then closes the .log file and writes the .fmt sidecar, and is safe to
// call more than once.
func (l *Log) Close() error {
	l.closeMu.Lock()
	if l.closed {
		l.closeMu.Unlock()
		return nil
	}
	l.closed = true
	close(l.stopCh)
	l.closeMu.Unlock()

	<-l.procDone

	// The original destructor unconditionally releases the writer's
	// semaphore before joining the writer thread (log.h's ~Log), which is
	// safe for a std::binary_semaphore but would over-release
	// golang.org/x/sync/semaphore.Weighted if the processor's final pass
	// already performed a real globalSwap: that swap's own Release has a
	// permit sitting unconsumed, and releasing a second one panics with
	// "released more than held". Only force a release when the final pass
	// did *not* swap, i.e. when the writer is genuinely blocked with no
	// pending permit to wake it.
	if !l.lastPassSwapped {
		l.global.backReady.Release(1)
	}
	<-l.writerDone

	if err := l.drainResidual(); err != nil {
		return err
	}

	if err := l.file.Close(); err != nil {
		return WrapError(ErrOpenFailure, err, "failed to close log file %q", l.path)
	}

	return l.writeFormatFile()
}

func (l *Log) drainResidual() error {
	if l.global.offset > 0 {
		if _, err := l.file.Write(l.global.front[:l.global.offset]); err != nil {
			return WrapError(ErrOpenFailure, err, "failed to write residual global buffer")
		}
	}

	for _, s := range l.queue {
		if s.used > 0 {
			if err := writeBlockDirect(l.file, s.index, s.back[:s.used]); err != nil {
				return WrapError(ErrOpenFailure, err, "failed to write queued stream %d", s.index)
			}
		}
	}
	l.queue = nil

	for _, s := range l.streams {
		if s.offset > 0 {
			if err := writeBlockDirect(l.file, s.index, s.front[:s.offset]); err != nil {
				return WrapError(ErrOpenFailure, err, "failed to write unflushed stream %d", s.index)
			}
		}
	}

	return nil
}

func (l *Log) writeFormatFile() error {
	f, err := os.OpenFile(l.path+".fmt", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return WrapError(ErrOpenFailure, err, "failed to open format file %q", l.path+".fmt")
	}
	defer f.Close()

	l.mu.Lock()
	streamCount := len(l.streams)
	l.mu.Unlock()

	if err := encodeFormatFile(f, streamCount, l.opts.OrderingEnabled(), l.registry.descriptors()); err != nil {
		return WrapError(ErrOpenFailure, err, "failed to write format file %q", l.path+".fmt")
	}
	return nil
}
