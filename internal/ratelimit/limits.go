package ratelimit

type Tier string

const (
	TierFree Tier = "free"
	TierPaid Tier = "paid"
)

// Limits holds the per-window thresholds for one (message type, tier) pair.
type Limits struct {
	Minute int
	Hour   int
	Day    int
}

func (l Limits) For(w Window) int {
	switch w {
	case WindowMinute:
		return l.Minute
	case WindowHour:
		return l.Hour
	case WindowDay:
		return l.Day
	}
	return 0
}

// Calculator is the single source of truth for thresholds. It is built once
// at startup and injected; the limiter never hardcodes numbers.
type Calculator struct {
	table map[string]map[Tier]Limits
}

// DefaultCalculator returns the stock threshold table.
func DefaultCalculator() *Calculator {
	return &Calculator{table: map[string]map[Tier]Limits{
		"sms": {
			TierFree: {Minute: 5, Hour: 100, Day: 500},
			TierPaid: {Minute: 30, Hour: 1000, Day: 10000},
		},
		"mms": {
			TierFree: {Minute: 2, Hour: 50, Day: 200},
			TierPaid: {Minute: 10, Hour: 500, Day: 5000},
		},
	}}
}

// NewCalculator builds a calculator from an explicit table, for tests and
// non-default deployments.
func NewCalculator(table map[string]map[Tier]Limits) *Calculator {
	return &Calculator{table: table}
}

// LimitsFor resolves thresholds for a message type and tier. Unknown message
// types fall back to the sms row; unknown tiers fall back to free.
func (c *Calculator) LimitsFor(messageType string, tier Tier) Limits {
	row, ok := c.table[messageType]
	if !ok {
		row = c.table["sms"]
	}
	if l, ok := row[tier]; ok {
		return l
	}
	return row[TierFree]
}
