package objbridge

import (
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Gaurav-Gosain/objbridge/internal/config"
	"github.com/Gaurav-Gosain/objbridge/internal/dispatch"
	"github.com/Gaurav-Gosain/objbridge/internal/guest"
)

// Bridge is one host/guest object bridge instance. The goroutine that calls
// New becomes the owner of all host-anchored state; every other goroutine
// must reach host values through the cross-thread dispatcher. Guest objects
// may be created and released from any goroutine.
type Bridge struct {
	rt       *guest.Runtime
	queue    *dispatch.Queue
	cfg      config.Config
	log      *zap.Logger
	precious *preciousRegistry

	interrupted atomic.Bool

	lastMu  sync.Mutex
	lastExc *guest.Object

	hintOnce sync.Once
	hint     string

	numericAvailable bool
}

// Option configures a Bridge.
type Option func(*options)

type options struct {
	cfg       *config.Config
	log       *zap.Logger
	stdout    io.Writer
	stderr    io.Writer
	noNumeric bool
}

// WithConfig overrides the environment-derived configuration.
func WithConfig(cfg config.Config) Option {
	return func(o *options) { o.cfg = &cfg }
}

// WithLogger supplies the diagnostics logger. Defaults to a production zap
// logger, or a development one when debug is configured.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithOutput directs the guest runtime's buffered stdout and stderr.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(o *options) { o.stdout, o.stderr = stdout, stderr }
}

// WithoutNumericArrays disables the numeric-array subsystem: array values
// reach host code as reference wrappers instead of converted vectors. The
// flag is read-only after New.
func WithoutNumericArrays() Option {
	return func(o *options) { o.noNumeric = true }
}

// New creates a bridge and records the calling goroutine as the owner of
// host-anchored state.
func New(opts ...Option) (*Bridge, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := config.Default()
	if o.cfg != nil {
		cfg = *o.cfg
	} else {
		loaded, err := config.Load()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	log := o.log
	if log == nil {
		var err error
		if cfg.Debug {
			log, err = zap.NewDevelopment()
		} else {
			log, err = zap.NewProduction()
		}
		if err != nil {
			return nil, err
		}
	}

	b := &Bridge{
		rt: guest.New(o.stdout, o.stderr),
		queue: dispatch.NewQueue(dispatch.Options{
			RetryInterval: cfg.RetryInterval,
			WarnAfter:     cfg.WarnAfter,
			AbandonAfter:  cfg.AbandonAfter,
			Capacity:      cfg.QueueCapacity,
		}, log.Named("dispatch")),
		cfg:              cfg,
		log:              log,
		precious:         newPreciousRegistry(),
		numericAvailable: !o.noNumeric,
	}
	b.queue.BindOwner()
	b.registerHostcallModule()
	return b, nil
}

// Runtime exposes the embedded guest runtime for direct object construction.
func (b *Bridge) Runtime() *guest.Runtime { return b.rt }

// Import wraps a registered guest module, or returns nil.
func (b *Bridge) Import(name string, convert bool) *ObjectRef {
	mod := b.rt.Import(name)
	if mod == nil {
		return nil
	}
	return b.NewRef(mod, convert)
}

// NumericAvailable reports whether the numeric-array subsystem is enabled.
func (b *Bridge) NumericAvailable() bool { return b.numericAvailable }

// RunPending drains cross-thread callbacks queued by other goroutines. Must
// be called from the owning goroutine, typically between units of its own
// work; returns the number of callbacks run.
func (b *Bridge) RunPending() int { return b.queue.RunPending() }

// Interrupt records a host-level cancellation. The next error crossing
// observes it and surfaces ErrInterrupted instead of a guest exception.
func (b *Bridge) Interrupt() { b.interrupted.Store(true) }

// Interrupted reports whether an interrupt is pending.
func (b *Bridge) Interrupted() bool { return b.interrupted.Load() }

// ClearInterrupt discards a pending interrupt.
func (b *Bridge) ClearInterrupt() { b.interrupted.Store(false) }

// PreservedCount reports the number of host values currently anchored by
// guest-side references.
func (b *Bridge) PreservedCount() int { return b.precious.live() }

// Close releases the last-exception slot and flushes the logger. Guest
// objects still referenced by wrappers stay alive until their wrappers are
// closed.
func (b *Bridge) Close() error {
	b.lastMu.Lock()
	old := b.lastExc
	b.lastExc = nil
	b.lastMu.Unlock()
	if old != nil {
		old.DecRef()
	}
	b.RunPending()
	return b.log.Sync()
}
