package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSnapshot is the latest observed state of one instrument on the
// streaming feed. Written only by the ingestion feed; read-only elsewhere.
type PriceSnapshot struct {
	Symbol     string
	Price      decimal.Decimal
	Turnover24 decimal.Decimal
	ObservedAt time.Time
}
