package core

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date layout used at every boundary.
const DateLayout = "2006-01-02"

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses an ISO calendar date (YYYY-MM-DD).
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

// PriceBar is one daily bar for a symbol. Bars are immutable once ingested.
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
	Amount float64   `json:"amount"`
}

// IsValid checks the bar has a date and positive, finite prices
func (b PriceBar) IsValid() bool {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Amount} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return !b.Date.IsZero() && b.Open > 0 && b.Close > 0 && b.High >= b.Low
}

// Action is the side of a trading instruction. Only ActionBuy and ActionSell
// are valid; the zero value is deliberately invalid.
type Action int

const (
	ActionBuy Action = iota + 1
	ActionSell
)

func (a Action) String() string {
	switch a {
	case ActionBuy:
		return "buy"
	case ActionSell:
		return "sell"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Valid reports whether a is one of the defined actions.
func (a Action) Valid() bool {
	return a == ActionBuy || a == ActionSell
}

// ParseAction converts a case-insensitive action name.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return ActionBuy, nil
	case "sell":
		return ActionSell, nil
	}
	return 0, fmt.Errorf("unknown action %q", s)
}

// MarshalText implements encoding.TextMarshaler. Invalid actions are
// written as "action(N)" so rejected instructions can still be archived.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		var raw int
		if _, scanErr := fmt.Sscanf(string(text), "action(%d)", &raw); scanErr != nil {
			return err
		}
		parsed = Action(raw)
	}
	*a = parsed
	return nil
}

// TradingInstruction is an order intent emitted by a signal generator. It is
// consumed exactly once by the execution simulator.
type TradingInstruction struct {
	Symbol      string    `json:"symbol"`
	Action      Action    `json:"action"`
	Quantity    int64     `json:"quantity"`
	LimitPrice  *float64  `json:"limit_price,omitempty"` // nil means market order
	Reason      string    `json:"reason"`
	GeneratedAt time.Time `json:"generated_at"`
}
