// Package domain defines the core data structures shared by the trading service.
package domain

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Pair is a tradable market pair: a base asset quoted in a quote currency.
type Pair struct {
	// Base asset symbol, e.g. BTC.
	Base string
	// Quote currency symbol, e.g. USDT.
	Quote string
}

// ParsePair parses a pair from its underscore form, e.g. "BTC_USDT".
func ParsePair(s string) (Pair, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, errors.Errorf("invalid pair %q, expected BASE_QUOTE", s)
	}
	return Pair{Base: parts[0], Quote: parts[1]}, nil
}

// String returns the underscore representation.
func (p Pair) String() string {
	return fmt.Sprintf("%s_%s", p.Base, p.Quote)
}

// Symbol returns the exchange symbol representation, e.g. BTCUSDT.
func (p Pair) Symbol() string {
	return p.Base + p.Quote
}
