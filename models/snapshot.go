package models

import (
	"math"
	"time"
)

// BookLevels is the number of quoted levels carried on each side of the book.
const BookLevels = 5

// Snapshot is one limit-order-book observation for a single symbol at a
// single instant. Timestamps are microseconds since the Unix epoch in UTC.
type Snapshot struct {
	Ts          int64
	Symbol      string
	Date        string // trading session id, YYYY-MM-DD
	LastPrice   float64
	CumVolume   float64
	CumTurnover float64

	AskPrice  [BookLevels]float64
	AskVolume [BookLevels]float64
	BidPrice  [BookLevels]float64
	BidVolume [BookLevels]float64

	// MaybeTruncated carries the optional raw quality flag, NaN when the
	// column is absent from the source file.
	MaybeTruncated float64
}

// Mid returns the level-1 mid price.
func (s *Snapshot) Mid() float64 {
	return (s.AskPrice[0] + s.BidPrice[0]) / 2.0
}

// Spread returns the level-1 bid/ask spread.
func (s *Snapshot) Spread() float64 {
	return s.AskPrice[0] - s.BidPrice[0]
}

// Time converts the snapshot timestamp to a time.Time in UTC.
func (s *Snapshot) Time() time.Time {
	return time.UnixMicro(s.Ts).UTC()
}

// Valid reports whether all ten price levels are present and strictly
// positive. Rows failing this are dropped during normalization.
func (s *Snapshot) Valid() bool {
	for i := 0; i < BookLevels; i++ {
		if !(s.AskPrice[i] > 0) || !(s.BidPrice[i] > 0) {
			return false
		}
		if math.IsNaN(s.AskPrice[i]) || math.IsNaN(s.BidPrice[i]) {
			return false
		}
	}
	return true
}

// NormalizedTable is the time-ordered snapshot table for one (symbol, date)
// partition. It is never mutated after creation, only replaced wholesale.
type NormalizedTable struct {
	Symbol string
	Date   string
	Rows   []Snapshot
}

// Len returns the number of snapshots in the table.
func (t *NormalizedTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}
