package govee

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	HumidityInstance    = "sensorHumidity"
	PowerSwitchType     = "devices.capabilities.on_off"
	PowerSwitchInstance = "powerSwitch"
)

type request struct {
	RequestID string        `json:"requestId"`
	Payload   devicePayload `json:"payload"`
}

type devicePayload struct {
	SKU        string      `json:"sku"`
	Device     string      `json:"device"`
	Capability *Capability `json:"capability,omitempty"`
}

// Capability is a control instruction addressed to one device capability.
type Capability struct {
	Type     string `json:"type"`
	Instance string `json:"instance"`
	Value    any    `json:"value"`
}

// PowerSwitch builds the on_off capability carrying 1 for on and 0 for off.
func PowerSwitch(on bool) Capability {
	value := 0
	if on {
		value = 1
	}
	return Capability{Type: PowerSwitchType, Instance: PowerSwitchInstance, Value: value}
}

// DeviceState is the body of a successful state query.
type DeviceState struct {
	RequestID string       `json:"requestId"`
	Code      int          `json:"code"`
	Msg       string       `json:"msg"`
	Payload   StatePayload `json:"payload"`
}

type StatePayload struct {
	SKU          string            `json:"sku"`
	Device       string            `json:"device"`
	Capabilities []CapabilityState `json:"capabilities"`
}

type CapabilityState struct {
	Type     string `json:"type"`
	Instance string `json:"instance"`
	State    struct {
		Value json.RawMessage `json:"value"`
	} `json:"state"`
}

// Capability returns the first capability with the given instance name.
func (s DeviceState) Capability(instance string) (CapabilityState, bool) {
	for _, c := range s.Payload.Capabilities {
		if c.Instance == instance {
			return c, true
		}
	}
	return CapabilityState{}, false
}

// Float decodes the capability value as a number. Numeric strings are accepted.
func (c CapabilityState) Float() (float64, error) {
	raw := strings.TrimSpace(string(c.State.Value))
	if raw == "" || raw == "null" {
		return 0, fmt.Errorf("%s: value missing", c.Instance)
	}
	var number float64
	if err := json.Unmarshal(c.State.Value, &number); err == nil {
		return number, nil
	}
	var text string
	if err := json.Unmarshal(c.State.Value, &text); err == nil {
		if parsed, perr := strconv.ParseFloat(strings.TrimSpace(text), 64); perr == nil {
			return parsed, nil
		}
	}
	return 0, fmt.Errorf("%s: value %s is not a number", c.Instance, raw)
}
