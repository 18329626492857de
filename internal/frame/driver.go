// Package frame drives layout simulations from a fixed-rate clock.
//
// The simulation itself never schedules anything: a Driver owns one
// goroutine per started generation and calls Step on every frame until the
// simulation stops, the generation is superseded, or the context ends.
package frame

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Benny93/notemap/internal/layout"
)

// DefaultInterval is one frame at 60 Hz.
const DefaultInterval = time.Second / 60

// Stepper is the part of a simulation a driver needs.
type Stepper interface {
	Run(onTick layout.TickFunc, onRunning layout.RunningFunc) layout.Generation
	Step(gen layout.Generation) bool
}

// Ticker delivers frame ticks.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a Ticker firing every d.
type TickerFunc func(d time.Duration) Ticker

type timeTicker struct {
	*time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.Ticker.C
}

// NewTimeTicker wraps time.NewTicker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{time.NewTicker(d)}
}

// Option configures a Driver.
type Option func(*Driver)

// WithInterval sets the frame interval.
func WithInterval(d time.Duration) Option {
	return func(dr *Driver) {
		if d > 0 {
			dr.interval = d
		}
	}
}

// WithTicker replaces the clock, mainly for tests.
func WithTicker(f TickerFunc) Option {
	return func(dr *Driver) {
		dr.newTicker = f
	}
}

// WithLogger sets the logger for frame-loop events.
func WithLogger(l *slog.Logger) Option {
	return func(dr *Driver) {
		dr.logger = l
	}
}

// Driver runs the frame loops of one simulation.
type Driver struct {
	sim       Stepper
	interval  time.Duration
	newTicker TickerFunc
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewDriver creates a driver for sim.
func NewDriver(sim Stepper, opts ...Option) *Driver {
	d := &Driver{
		sim:       sim,
		interval:  DefaultInterval,
		newTicker: NewTimeTicker,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start issues a new generation and schedules its frames. Loops of older
// generations end at their next frame because their Step is a no-op.
func (d *Driver) Start(ctx context.Context, onTick layout.TickFunc, onRunning layout.RunningFunc) layout.Generation {
	gen := d.sim.Run(onTick, onRunning)
	ticker := d.newTicker(d.interval)

	d.wg.Add(1)
	go d.loop(ctx, gen, ticker)
	return gen
}

// Wait blocks until every frame loop started so far has returned.
func (d *Driver) Wait() {
	d.wg.Wait()
}

func (d *Driver) loop(ctx context.Context, gen layout.Generation, ticker Ticker) {
	defer d.wg.Done()
	defer ticker.Stop()

	frames := 0
	for {
		select {
		case <-ctx.Done():
			d.logger.Debug("frame loop cancelled", "generation", gen, "frames", frames)
			return
		case <-ticker.C():
			frames++
			if !d.sim.Step(gen) {
				d.logger.Debug("frame loop finished", "generation", gen, "frames", frames)
				return
			}
		}
	}
}

// Settle runs sim headless, stepping without a clock until it stops or
// maxFrames frames were taken. It reports the frames used and whether the
// simulation stopped on its own.
func Settle(sim Stepper, maxFrames int, onTick layout.TickFunc) (frames int, settled bool) {
	gen := sim.Run(onTick, nil)
	for frames < maxFrames {
		frames++
		if !sim.Step(gen) {
			return frames, true
		}
	}
	return frames, false
}
