package govee

import (
	"context"

	"github.com/joshp123/humidistat/internal/config"
)

// Sensor reads humidity from one Govee hygrometer.
type Sensor struct {
	client *Client
	device config.Device
}

func NewSensor(client *Client, device config.Device) *Sensor {
	return &Sensor{client: client, device: device}
}

func (s *Sensor) ReadHumidity(ctx context.Context) (float64, error) {
	return s.client.Humidity(ctx, s.device)
}

// Switch drives the power capability of one Govee plug.
type Switch struct {
	client *Client
	device config.Device
}

func NewSwitch(client *Client, device config.Device) *Switch {
	return &Switch{client: client, device: device}
}

func (s *Switch) SetPower(ctx context.Context, on bool) (int, error) {
	return s.client.Control(ctx, s.device, PowerSwitch(on))
}
