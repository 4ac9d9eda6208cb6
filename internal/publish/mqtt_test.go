package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshp123/humidistat/internal/config"
	"github.com/joshp123/humidistat/internal/control"
)

type message struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeTransport struct {
	sent   []message
	err    error
	closed bool
}

func (f *fakeTransport) Publish(topic string, retained bool, payload []byte) error {
	f.sent = append(f.sent, message{topic: topic, retained: retained, payload: payload})
	return f.err
}

func (f *fakeTransport) Close() { f.closed = true }

var started = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func TestStateFromCycle(t *testing.T) {
	ok := StateFromCycle(control.Cycle{
		Started:    started,
		Humidity:   58.5,
		HasReading: true,
		Intent:     control.IntentOn,
		Commanded:  true,
		StatusCode: http.StatusOK,
	})
	require.NotNil(t, ok.Humidity)
	assert.Equal(t, 58.5, *ok.Humidity)
	assert.Equal(t, "on", ok.Intent)
	assert.Equal(t, "command_ok", ok.Outcome)
	assert.Equal(t, control.Threshold, ok.Threshold)
	assert.Empty(t, ok.Error)

	failed := StateFromCycle(control.Cycle{Started: started, ReadErr: errors.New("timeout")})
	assert.Nil(t, failed.Humidity)
	assert.Empty(t, failed.Intent)
	assert.Equal(t, "no_reading", failed.Outcome)
	assert.Equal(t, "timeout", failed.Error)
}

func TestPublisherSendsRetainedJSON(t *testing.T) {
	transport := &fakeTransport{}
	p := NewPublisher(transport, "home/humidistat", nil)

	p.ObserveCycle(context.Background(), control.Cycle{
		Started:    started,
		Humidity:   40,
		HasReading: true,
		Intent:     control.IntentOff,
		Commanded:  true,
		StatusCode: http.StatusOK,
	})

	require.Len(t, transport.sent, 1)
	assert.Equal(t, "home/humidistat", transport.sent[0].topic)
	assert.True(t, transport.sent[0].retained)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(transport.sent[0].payload, &decoded))
	assert.Equal(t, "2025-01-02T03:04:05Z", decoded["timestamp"])
	assert.Equal(t, 40.0, decoded["humidity"])
	assert.Equal(t, "off", decoded["intent"])
	assert.Equal(t, 200.0, decoded["status_code"])

	p.Close()
	assert.True(t, transport.closed)
}

func TestPublisherLogsFailures(t *testing.T) {
	var logs bytes.Buffer
	transport := &fakeTransport{err: errors.New("not connected")}
	p := NewPublisher(transport, "t", slog.New(slog.NewTextHandler(&logs, nil)))

	assert.NotPanics(t, func() {
		p.ObserveCycle(context.Background(), control.Cycle{Started: started})
	})
	assert.Contains(t, logs.String(), "publish cycle state")
	assert.Contains(t, logs.String(), "not connected")
}

func TestDialRequiresBroker(t *testing.T) {
	_, err := Dial(config.MQTT{}, "")
	assert.Error(t, err)
}

func TestDialUnreachableBrokerFailsFast(t *testing.T) {
	before := runtime.NumGoroutine()

	started := time.Now()
	_, err := Dial(config.MQTT{Broker: "127.0.0.1:1"}, "")
	require.Error(t, err)
	assert.Less(t, time.Since(started), publishTimeout)

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, 2*time.Second, 20*time.Millisecond)
}

func TestBrokerURL(t *testing.T) {
	assert.Equal(t, "tcp://localhost:1883", brokerURL("localhost:1883"))
	assert.Equal(t, "ssl://broker:8883", brokerURL("ssl://broker:8883"))
}

func TestRandomClientID(t *testing.T) {
	a, b := randomClientID(), randomClientID()
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^humidistat-[0-9a-f]{12}$`, a)
}
