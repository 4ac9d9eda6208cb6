package control

import (
	"context"
	"net/http"
	"time"
)

// Cycle is the outcome of one read, decide and act pass.
type Cycle struct {
	Started    time.Time
	Humidity   float64
	HasReading bool
	ReadErr    error
	Intent     Intent
	Commanded  bool
	StatusCode int
	CommandErr error
}

// Succeeded reports whether the reading was taken and the command accepted.
func (c Cycle) Succeeded() bool {
	return c.HasReading && c.Commanded && c.CommandErr == nil && c.StatusCode == http.StatusOK
}

// Outcome labels the cycle for metrics and published state.
func (c Cycle) Outcome() string {
	switch {
	case !c.HasReading:
		return "no_reading"
	case c.Succeeded():
		return "command_ok"
	default:
		return "command_failed"
	}
}

// Observer is notified after every cycle. Observers must not block for long;
// they run on the control loop goroutine.
type Observer interface {
	ObserveCycle(ctx context.Context, c Cycle)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, c Cycle)

func (f ObserverFunc) ObserveCycle(ctx context.Context, c Cycle) {
	f(ctx, c)
}
