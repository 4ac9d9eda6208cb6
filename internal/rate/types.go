package rate

import "time"

// Window represents a provider rate-limit bucket.
type Window int

const (
	Minute Window = iota
	Day
)

func (w Window) String() string {
	switch w {
	case Minute:
		return "minute"
	case Day:
		return "day"
	default:
		return "unknown"
	}
}

func (w Window) Duration() time.Duration {
	switch w {
	case Day:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// Headers names the response headers that report a provider's budget.
type Headers struct {
	LimitMinute     string
	RemainingMinute string
	ResetMinute     string
	LimitDay        string
	RemainingDay    string
	ResetDay        string
	RetryAfter      string
}

// GoveeHeaders returns the header mapping of the Govee OpenAPI. The API-*
// family tracks the per-minute budget, the X-* family the daily one.
func GoveeHeaders() Headers {
	return Headers{
		LimitMinute:     "API-RateLimit-Limit",
		RemainingMinute: "API-RateLimit-Remaining",
		ResetMinute:     "API-RateLimit-Reset",
		LimitDay:        "X-RateLimit-Limit",
		RemainingDay:    "X-RateLimit-Remaining",
		ResetDay:        "X-RateLimit-Reset",
		RetryAfter:      "Retry-After",
	}
}

// Declaration defines a provider's rate limits and header mapping.
type Declaration struct {
	provider    string
	limits      map[Window]int
	budgetFloor map[Window]int
	headers     Headers
}

// Provider creates a new declaration for a provider.
func Provider(name string) Declaration {
	return Declaration{provider: name}
}

func (d Declaration) ProviderName() string {
	return d.provider
}

// MaxRequestsPer sets the local budget for a window. A limit <= 0 leaves the
// window unguarded.
func (d Declaration) MaxRequestsPer(window Window, limit int) Declaration {
	if limit <= 0 {
		return d
	}
	limits := make(map[Window]int, len(d.limits)+1)
	for w, l := range d.limits {
		limits[w] = l
	}
	limits[window] = limit
	d.limits = limits
	return d
}

// BudgetFloor keeps floor requests in reserve once the provider reports its
// remaining budget.
func (d Declaration) BudgetFloor(window Window, floor int) Declaration {
	floors := make(map[Window]int, len(d.budgetFloor)+1)
	for w, f := range d.budgetFloor {
		floors[w] = f
	}
	floors[window] = floor
	d.budgetFloor = floors
	return d
}

func (d Declaration) ReadHeaders(headers Headers) Declaration {
	d.headers = headers
	return d
}

func (d Declaration) Limits() map[Window]int {
	return d.limits
}

func (d Declaration) BudgetFloors() map[Window]int {
	return d.budgetFloor
}

func (d Declaration) Headers() Headers {
	return d.headers
}
