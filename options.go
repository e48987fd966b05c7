package lal

import (
	"github.com/TimZoet/logandload-module/internal/clock"
	"github.com/uber-go/tally"
	"go.uber.org/zap"
)

const (
	defaultGlobalBufferSize = 1 << 20 // 1 MiB
	defaultBacklogQueueSize = 1024
)

// Options configures a Log. It follows the fluent SetXXX(...)
// Options / XXX() T shape of the teacher's commitlog.Options, validated via
// a single Validate() call in NewLog.
type Options interface {
	// Validate reports whether the option set is internally consistent.
	Validate() error

	// SetLogger sets the zap.Logger used for internal diagnostics.
	SetLogger(value *zap.Logger) Options
	Logger() *zap.Logger

	// SetMetricsScope sets the tally.Scope pipeline metrics are emitted
	// under.
	SetMetricsScope(value tally.Scope) Options
	MetricsScope() tally.Scope

	// SetGlobalBufferSize sets the size, in bytes, of each of the
	// pipeline's two global buffers.
	SetGlobalBufferSize(value int) Options
	GlobalBufferSize() int

	// SetOrderingEnabled toggles whether every message carries an
	// additional global ordering index.
	SetOrderingEnabled(value bool) Options
	OrderingEnabled() bool

	// SetCategoryFilter sets the CategoryFilter consulted by every
	// Stream created from this Log.
	SetCategoryFilter(value CategoryFilter) Options
	CategoryFilter() CategoryFilter

	// SetBacklogQueueSize sets a capacity hint for the processor's
	// pending-flush queue. The value is only stored and returned by
	// BacklogQueueSize; the pipeline does not read it.
	SetBacklogQueueSize(value int) Options
	BacklogQueueSize() int

	// SetNowFn overrides the clock function. The value is only stored and
	// returned by NowFn; the pipeline does not read it.
	SetNowFn(value clock.NowFn) Options
	NowFn() clock.NowFn
}

type options struct {
	logger           *zap.Logger
	scope            tally.Scope
	globalBufferSize int
	ordering         bool
	categoryFilter   CategoryFilter
	backlogQueueSize int
	nowFn            clock.NowFn
}

// NewOptions returns a default Options: a no-op logger and metrics scope, a
// 1 MiB global buffer, ordering disabled, and a FilterNone category filter.
func NewOptions() Options {
	return &options{
		logger:           zap.NewNop(),
		scope:            tally.NoopScope,
		globalBufferSize: defaultGlobalBufferSize,
		categoryFilter:   FilterNone{},
		backlogQueueSize: defaultBacklogQueueSize,
		nowFn:            clock.NewNowFn(),
	}
}

func (o *options) Validate() error {
	if o.globalBufferSize <= 0 {
		return NewError(ErrContractViolation, "global buffer size must be > 0, got %d", o.globalBufferSize)
	}
	if o.categoryFilter == nil {
		return NewError(ErrContractViolation, "category filter must not be nil")
	}
	return nil
}

func (o *options) SetLogger(value *zap.Logger) Options {
	opts := *o
	opts.logger = value
	return &opts
}
func (o *options) Logger() *zap.Logger { return o.logger }

func (o *options) SetMetricsScope(value tally.Scope) Options {
	opts := *o
	opts.scope = value
	return &opts
}
func (o *options) MetricsScope() tally.Scope { return o.scope }

func (o *options) SetGlobalBufferSize(value int) Options {
	opts := *o
	opts.globalBufferSize = value
	return &opts
}
func (o *options) GlobalBufferSize() int { return o.globalBufferSize }

func (o *options) SetOrderingEnabled(value bool) Options {
	opts := *o
	opts.ordering = value
	return &opts
}
func (o *options) OrderingEnabled() bool { return o.ordering }

func (o *options) SetCategoryFilter(value CategoryFilter) Options {
	opts := *o
	opts.categoryFilter = value
	return &opts
}
func (o *options) CategoryFilter() CategoryFilter { return o.categoryFilter }

func (o *options) SetBacklogQueueSize(value int) Options {
	opts := *o
	opts.backlogQueueSize = value
	return &opts
}
func (o *options) BacklogQueueSize() int { return o.backlogQueueSize }

func (o *options) SetNowFn(value clock.NowFn) Options {
	opts := *o
	opts.nowFn = value
	return &opts
}
func (o *options) NowFn() clock.NowFn { return o.nowFn }
