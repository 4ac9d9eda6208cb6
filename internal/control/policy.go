package control

// Threshold is the humidity percentage above which the switch is turned on.
// A reading of exactly Threshold turns it off. There is no deadband.
const Threshold = 45.0

// Intent is the power state the controller wants the switch to adopt.
type Intent int

const (
	IntentOff Intent = 0
	IntentOn  Intent = 1
)

func (i Intent) String() string {
	if i == IntentOn {
		return "on"
	}
	return "off"
}

// Decide maps a humidity reading to an intent.
func Decide(humidity float64) Intent {
	if humidity > Threshold {
		return IntentOn
	}
	return IntentOff
}
