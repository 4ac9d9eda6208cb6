// Package control runs the humidity control loop: read the sensor, decide an
// intent against a fixed threshold, command the switch, sleep, repeat.
//
// Every cycle stands alone. Read and command failures are logged and never
// stop the loop; only cancellation of the context passed to Run does.
package control

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/joshp123/humidistat/internal/config"
)

// DefaultInterval is used when Options.Interval is not positive.
const DefaultInterval = config.DefaultCheckInterval

// HumiditySensor reads the current relative humidity in percent.
type HumiditySensor interface {
	ReadHumidity(ctx context.Context) (float64, error)
}

// Switch sets the power state of the actuator and returns the HTTP status
// of the request, or 0 when no response was received.
type Switch interface {
	SetPower(ctx context.Context, on bool) (int, error)
}

// Options holds optional collaborators for a Controller.
type Options struct {
	Interval  time.Duration
	Logger    *slog.Logger
	Observers []Observer
	// Sleep waits for d or until ctx is done. Tests replace it to avoid real waits.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// Controller drives the sensor and switch.
type Controller struct {
	sensor    HumiditySensor
	sw        Switch
	interval  time.Duration
	log       *slog.Logger
	observers []Observer
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
}

// New builds a Controller, filling unset Options with defaults.
func New(sensor HumiditySensor, sw Switch, opts Options) *Controller {
	c := &Controller{
		sensor:    sensor,
		sw:        sw,
		interval:  opts.Interval,
		log:       opts.Logger,
		observers: opts.Observers,
		sleep:     opts.Sleep,
		now:       opts.Now,
	}
	if c.interval <= 0 {
		c.interval = DefaultInterval
	}
	if c.log == nil {
		c.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.sleep == nil {
		c.sleep = sleepContext
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Run executes cycles until ctx is cancelled. The sleep between cycles is
// interrupted by cancellation.
func (c *Controller) Run(ctx context.Context) error {
	c.log.Info("control loop started", "interval", c.interval.String(), "threshold", Threshold)
	for ctx.Err() == nil {
		c.RunCycle(ctx)
		if err := c.sleep(ctx, c.interval); err != nil {
			break
		}
	}
	c.log.Info("Gracefully shutting down...")
	return nil
}

// RunCycle performs one read, decide and act pass without sleeping.
func (c *Controller) RunCycle(ctx context.Context) Cycle {
	cycle := Cycle{Started: c.now()}
	defer c.notify(ctx, &cycle)

	humidity, err := c.readHumidity(ctx)
	if err != nil {
		cycle.ReadErr = err
		c.log.Error("Failed to check humidity", "error", err)
		c.log.Warn("Failed to read humidity data")
		return cycle
	}
	cycle.Humidity = humidity
	cycle.HasReading = true
	c.log.Info("Current humidity", "percent", humidity)

	cycle.Intent = Decide(humidity)
	status, err := c.setPower(ctx, cycle.Intent == IntentOn)
	cycle.Commanded = true
	cycle.StatusCode = status
	cycle.CommandErr = err

	switch {
	case err != nil:
		c.log.Error("Failed to control device", "intent", cycle.Intent.String(), "status", status, "error", err)
	case status != http.StatusOK:
		c.log.Error("Failed to control device", "intent", cycle.Intent.String(), "status", status)
	case cycle.Intent == IntentOn:
		c.log.Info(fmt.Sprintf("Device turned ON (humidity > %g%%)", Threshold))
	default:
		c.log.Info(fmt.Sprintf("Device turned OFF (humidity <= %g%%)", Threshold))
	}
	return cycle
}

func (c *Controller) readHumidity(ctx context.Context) (humidity float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic reading humidity: %v", r)
		}
	}()
	return c.sensor.ReadHumidity(ctx)
}

func (c *Controller) setPower(ctx context.Context, on bool) (status int, err error) {
	defer func() {
		if r := recover(); r != nil {
			status, err = 0, fmt.Errorf("panic controlling device: %v", r)
		}
	}()
	return c.sw.SetPower(ctx, on)
}

func (c *Controller) notify(ctx context.Context, cycle *Cycle) {
	for _, o := range c.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.Error("cycle observer panicked", "panic", fmt.Sprint(r))
				}
			}()
			o.ObserveCycle(ctx, *cycle)
		}()
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
