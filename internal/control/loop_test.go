package control

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshp123/humidistat/internal/config"
)

type fakeSensor struct {
	mu       sync.Mutex
	readings []float64
	errs     []error
	panicMsg string
	calls    int
}

func (f *fakeSensor) ReadHumidity(context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return 0, f.errs[i]
	}
	if i < len(f.readings) {
		return f.readings[i], nil
	}
	return f.readings[len(f.readings)-1], nil
}

type fakeSwitch struct {
	mu     sync.Mutex
	calls  []bool
	status int
	err    error
}

func (f *fakeSwitch) SetPower(_ context.Context, on bool) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, on)
	return f.status, f.err
}

func (f *fakeSwitch) Calls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.calls...)
}

func newLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestRunCycleCommandsIntent(t *testing.T) {
	tests := []struct {
		name     string
		humidity float64
		want     bool
		logLine  string
	}{
		{"humid turns on", 60, true, "Device turned ON (humidity > 45%)"},
		{"dry turns off", 30, false, "Device turned OFF (humidity <= 45%)"},
		{"boundary turns off", 45, false, "Device turned OFF (humidity <= 45%)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			sensor := &fakeSensor{readings: []float64{tt.humidity}}
			sw := &fakeSwitch{status: http.StatusOK}
			c := New(sensor, sw, Options{Logger: newLogger(&buf)})

			cycle := c.RunCycle(context.Background())

			assert.Equal(t, 1, sensor.calls)
			assert.Equal(t, []bool{tt.want}, sw.Calls())
			assert.True(t, cycle.HasReading)
			assert.True(t, cycle.Succeeded())
			assert.Equal(t, tt.humidity, cycle.Humidity)
			assert.Contains(t, buf.String(), "Current humidity")
			assert.Contains(t, buf.String(), tt.logLine)
		})
	}
}

func TestRunCycleReadFailureSkipsCommand(t *testing.T) {
	var buf bytes.Buffer
	sensor := &fakeSensor{errs: []error{errors.New("timeout")}}
	sw := &fakeSwitch{status: http.StatusOK}
	c := New(sensor, sw, Options{Logger: newLogger(&buf)})

	cycle := c.RunCycle(context.Background())

	assert.False(t, cycle.HasReading)
	assert.False(t, cycle.Commanded)
	assert.Equal(t, "no_reading", cycle.Outcome())
	assert.Empty(t, sw.Calls())
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "Failed to read humidity data")
	assert.Contains(t, buf.String(), "timeout")
}

func TestRunCycleCommandFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	sensor := &fakeSensor{readings: []float64{70}}
	sw := &fakeSwitch{status: http.StatusInternalServerError}
	c := New(sensor, sw, Options{Logger: newLogger(&buf)})

	cycle := c.RunCycle(context.Background())

	assert.Equal(t, []bool{true}, sw.Calls())
	assert.Equal(t, http.StatusInternalServerError, cycle.StatusCode)
	assert.False(t, cycle.Succeeded())
	assert.Equal(t, "command_failed", cycle.Outcome())
	assert.Contains(t, buf.String(), "Failed to control device")
	assert.Contains(t, buf.String(), "status=500")
	assert.NotContains(t, buf.String(), "Device turned ON")
}

func TestRunCycleRecoversPanics(t *testing.T) {
	var buf bytes.Buffer
	c := New(&fakeSensor{panicMsg: "nil map"}, &fakeSwitch{}, Options{Logger: newLogger(&buf)})

	var cycle Cycle
	require.NotPanics(t, func() { cycle = c.RunCycle(context.Background()) })
	require.Error(t, cycle.ReadErr)
	assert.Contains(t, cycle.ReadErr.Error(), "nil map")

	panicking := &panicSwitch{}
	c = New(&fakeSensor{readings: []float64{50}}, panicking, Options{Logger: newLogger(&buf)})
	require.NotPanics(t, func() { cycle = c.RunCycle(context.Background()) })
	require.Error(t, cycle.CommandErr)
	assert.Equal(t, 0, cycle.StatusCode)
}

type panicSwitch struct{}

func (panicSwitch) SetPower(context.Context, bool) (int, error) {
	panic("boom")
}

func TestRunResendsEveryCycleAndSleepsInterval(t *testing.T) {
	var buf bytes.Buffer
	sensor := &fakeSensor{readings: []float64{60, 60, 45, 46, 44}}
	sw := &fakeSwitch{status: http.StatusOK}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sleeps []time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		if len(sleeps) == 5 {
			cancel()
		}
		return ctx.Err()
	}

	c := New(sensor, sw, Options{
		Interval: 15 * time.Minute,
		Logger:   newLogger(&buf),
		Sleep:    sleep,
	})
	require.NoError(t, c.Run(ctx))

	assert.Equal(t, 5, sensor.calls)
	assert.Equal(t, []bool{true, true, false, true, false}, sw.Calls())
	require.Len(t, sleeps, 5)
	for _, d := range sleeps {
		assert.Equal(t, 15*time.Minute, d)
	}
	assert.Contains(t, buf.String(), "Gracefully shutting down...")
}

func TestRunContinuesAfterFailures(t *testing.T) {
	sensor := &fakeSensor{
		readings: []float64{0, 0, 80},
		errs:     []error{errors.New("dial tcp: refused"), nil, nil},
	}
	sw := &fakeSwitch{status: http.StatusBadGateway}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cycles := 0
	sleep := func(ctx context.Context, _ time.Duration) error {
		cycles++
		if cycles == 3 {
			cancel()
		}
		return ctx.Err()
	}

	c := New(sensor, sw, Options{Sleep: sleep})
	require.NoError(t, c.Run(ctx))

	assert.Equal(t, 3, sensor.calls)
	assert.Equal(t, []bool{false, true}, sw.Calls())
}

func TestRunStopsPromptlyOnCancel(t *testing.T) {
	sensor := &fakeSensor{readings: []float64{50}}
	sw := &fakeSwitch{status: http.StatusOK}
	c := New(sensor, sw, Options{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return len(sw.Calls()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after cancellation")
	}
}

func TestRunWithCancelledContextDoesNothing(t *testing.T) {
	sensor := &fakeSensor{readings: []float64{50}}
	sw := &fakeSwitch{status: http.StatusOK}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, New(sensor, sw, Options{}).Run(ctx))
	assert.Equal(t, 0, sensor.calls)
}

func TestObserversSeeEveryCycle(t *testing.T) {
	sensor := &fakeSensor{readings: []float64{50, 0}, errs: []error{nil, errors.New("bad payload")}}
	sw := &fakeSwitch{status: http.StatusOK}

	var seen []Cycle
	record := ObserverFunc(func(_ context.Context, c Cycle) { seen = append(seen, c) })
	boom := ObserverFunc(func(context.Context, Cycle) { panic("observer bug") })
	metrics := NewMetrics()

	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	c := New(sensor, sw, Options{
		Observers: []Observer{boom, record, metrics},
		Now:       func() time.Time { return start },
	})

	c.RunCycle(context.Background())
	c.RunCycle(context.Background())

	require.Len(t, seen, 2)
	assert.Equal(t, IntentOn, seen[0].Intent)
	assert.Equal(t, start, seen[0].Started)
	assert.False(t, seen[1].HasReading)

	assert.Equal(t, 50.0, testutil.ToFloat64(metrics.humidity))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.intent))
	assert.Equal(t, 200.0, testutil.ToFloat64(metrics.lastStatus))
	assert.Equal(t, Threshold, testutil.ToFloat64(metrics.threshold))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cycles.WithLabelValues("command_ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cycles.WithLabelValues("no_reading")))
	assert.Equal(t, float64(start.Unix()), testutil.ToFloat64(metrics.lastCycle))
}

func TestRunDefaultsToCheckInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var slept time.Duration
	c := New(&fakeSensor{readings: []float64{40}}, &fakeSwitch{status: http.StatusOK}, Options{
		Sleep: func(ctx context.Context, d time.Duration) error {
			slept = d
			cancel()
			return ctx.Err()
		},
	})
	require.NoError(t, c.Run(ctx))
	assert.Equal(t, config.DefaultCheckInterval, slept)
	assert.Equal(t, 900*time.Second, slept)
}
