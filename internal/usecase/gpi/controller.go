package gpi

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"

	"gpimon/internal/domain"
	"gpimon/internal/infra/tracer"
)

// ControllerConfig holds controller settings.
type ControllerConfig struct {
	// PublishTimeout bounds RequestOutput when the caller's ctx has no
	// deadline. Zero means wait for as long as ctx allows.
	PublishTimeout time.Duration
}

// Status is a point-in-time view of the controller.
type Status struct {
	Initialized bool   `json:"initialized"`
	WorkerID    string `json:"worker_id"`
	OutputValue uint64 `json:"output_value"`
}

// worker is one running engine plus the write-handler subscription bound to
// the same Config.
type worker struct {
	id     string
	cfg    *Config
	cancel context.CancelFunc
	done   chan struct{}

	mu          sync.Mutex
	unsubscribe func()
	released    bool
}

// bind stores the write-handler unsubscribe function. If the worker was
// already released the subscription is dropped immediately.
func (w *worker) bind(unsubscribe func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.released {
		unsubscribe()
		return
	}
	w.unsubscribe = unsubscribe
}

// release cancels the engine and drops the write handler. Idempotent.
func (w *worker) release() {
	w.cancel()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.released = true
	if w.unsubscribe != nil {
		w.unsubscribe()
		w.unsubscribe = nil
	}
}

// Controller owns at most one monitoring worker at a time.
type Controller struct {
	reg    *Register
	pins   domain.PinConfigurator
	bus    domain.EventBus
	logger *slog.Logger
	cfg    ControllerConfig

	mu      sync.Mutex // serializes Initialize
	current atomic.Pointer[worker]
	last    atomic.Pointer[Config]
}

// NewController creates a controller over bank, configuring pins through pins
// and exchanging events over bus.
func NewController(bank domain.RegisterBank, pins domain.PinConfigurator, bus domain.EventBus, logger *slog.Logger, cfg ControllerConfig) *Controller {
	return &Controller{
		reg:    NewRegister(bank),
		pins:   pins,
		bus:    bus,
		logger: logger,
		cfg:    cfg,
	}
}

// Initialize configures the pins described by cfg, applies cfg's current
// output value and starts a sampling worker. cfg is borrowed until the worker
// exits.
//
// Pins that were configured before a later configuration step failed are left
// as they are.
func (c *Controller) Initialize(ctx context.Context, cfg *Config) (err error) {
	if cfg == nil {
		return domain.NewSubSystemError("gpi", "Controller.Initialize", domain.ErrInvalidInput, "nil config")
	}
	ctx, span := tracer.StartSpan(ctx, "gpi.Initialize",
		tracer.MaskAttr("gpi.input_mask", cfg.Input.Mask),
		tracer.MaskAttr("gpi.output_mask", cfg.Output.Mask),
		attribute.Int("gpi.sample_count", cfg.SampleCount),
	)
	defer func() { tracer.Finish(span, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if w := c.current.Load(); w != nil {
		return domain.NewSubSystemError("gpi", "Controller.Initialize", domain.ErrAlreadyActive, "worker "+w.id)
	}
	if cfg.SampleCount < 1 {
		return domain.NewSubSystemError("gpi", "Controller.Initialize", domain.ErrInvalidInput, "sample count must be at least 1")
	}

	if cfg.Input.Mask != 0 {
		in := cfg.Input
		in.Direction = domain.DirectionInput
		if err := c.pins.Configure(ctx, in); err != nil {
			return domain.NewSubSystemError("gpi", "Controller.Initialize", domain.ErrPinConfig, "input "+in.Mask.String()).WithCause(err)
		}
	}
	if cfg.Output.Mask != 0 {
		out := cfg.Output
		out.Direction = domain.DirectionOutput
		out.Interrupt = domain.InterruptDisabled
		if err := c.pins.Configure(ctx, out); err != nil {
			return domain.NewSubSystemError("gpi", "Controller.Initialize", domain.ErrPinConfig, "output "+out.Mask.String()).WithCause(err)
		}
	}

	c.reg.Write(cfg.Output.Mask, cfg.OutputValue())
	c.last.Store(cfg)

	now := time.Now()
	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w := &worker{
		id:     ulid.MustNew(ulid.Timestamp(now), ulid.Monotonic(rand.New(rand.NewSource(now.UnixNano())), 0)).String(),
		cfg:    cfg,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.current.Store(w)

	e := &engine{reg: c.reg, cfg: cfg, bus: c.bus, logger: c.logger.With("worker", w.id), now: time.Now}
	go func() {
		defer func() {
			c.current.CompareAndSwap(w, nil)
			w.release()
			close(w.done)
			c.logger.Info("gpi monitor stopped", "worker", w.id)
		}()
		e.run(wctx)
	}()

	unsubscribe, err := c.bus.Subscribe(domain.EventGPIWrite, writeHandler(c.reg, cfg, c.logger))
	if err != nil {
		w.release()
		<-w.done
		return domain.WrapOp("Controller.Initialize", err)
	}
	w.bind(unsubscribe)

	span.SetAttributes(tracer.WorkerAttr(w.id))
	c.logger.Info("gpi monitor started",
		"worker", w.id,
		"input", cfg.Input.Mask.String(),
		"output", cfg.Output.Mask.String(),
		"interval", cfg.interval().String(),
		"samples", cfg.SampleCount,
		"filter", cfg.Filter.String(),
	)
	return nil
}

// IsInitialized reports whether a worker identity is recorded. It stays true
// after Terminate until the worker has actually exited.
func (c *Controller) IsInitialized() bool {
	return c.current.Load() != nil
}

// WorkerID returns the identity of the current worker, or "".
func (c *Controller) WorkerID() string {
	if w := c.current.Load(); w != nil {
		return w.id
	}
	return ""
}

// Status returns the controller state. OutputValue is the last requested
// output value of the most recently initialized Config.
func (c *Controller) Status() Status {
	s := Status{WorkerID: c.WorkerID()}
	s.Initialized = s.WorkerID != ""
	if cfg := c.last.Load(); cfg != nil {
		s.OutputValue = cfg.OutputValue()
	}
	return s
}

// RequestOutput asks the write handler to drive the output pins to value.
// It returns once the request is queued, not when it has been applied.
// Requests published while no worker is active are not applied.
func (c *Controller) RequestOutput(ctx context.Context, value uint64) (err error) {
	ctx, span := tracer.StartSpan(ctx, "gpi.RequestOutput", tracer.MaskAttr("gpi.value", domain.Mask(value)))
	defer func() { tracer.Finish(span, err) }()

	if _, ok := ctx.Deadline(); !ok && c.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.PublishTimeout)
		defer cancel()
	}

	return domain.WrapOp("Controller.RequestOutput", publishWrite(ctx, c.bus, value))
}

// Terminate signals the current worker to stop and unsubscribes its write
// handler. It does not wait for the worker to exit; use Wait for that.
func (c *Controller) Terminate() (err error) {
	_, span := tracer.StartSpan(context.Background(), "gpi.Terminate")
	defer func() { tracer.Finish(span, err) }()

	w := c.current.Load()
	if w == nil {
		return domain.NewSubSystemError("gpi", "Controller.Terminate", domain.ErrNotActive, "")
	}
	w.release()
	span.SetAttributes(tracer.WorkerAttr(w.id))
	return nil
}

// Wait blocks until the current worker, if any, has exited or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	w := c.current.Load()
	if w == nil {
		return nil
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return domain.NewSubSystemError("gpi", "Controller.Wait", domain.ErrTimeout, "worker "+w.id).WithCause(ctx.Err())
	}
}
