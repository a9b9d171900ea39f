package processor

import (
	"math"

	"ofiflow/models"
)

// ComputeOFI derives the per-level order flow imbalance for every row of a
// normalized table. It is a pure function of consecutive snapshot pairs:
// the first row has no predecessor and is defined as zero.
//
// Canonical sign convention, per level i against the previous snapshot:
//
//	bid contribution: price rose -> +bid_volume, fell -> -prev_bid_volume,
//	                  unchanged -> bid_volume - prev_bid_volume
//	ask contribution: price fell -> +ask_volume, rose -> -prev_ask_volume,
//	                  unchanged -> -(ask_volume - prev_ask_volume)
//	ofi_level = bid_contribution - ask_contribution
//
// A new, better quote replaces the signal with its full size; a withdrawn
// quote removes the old size; at a stable price only the net volume change
// counts, with ask-side increases read as bearish. Non-finite results are
// replaced with zero before aggregation.
func ComputeOFI(t *models.NormalizedTable, levels int) []models.OFIRecord {
	if levels < 1 {
		levels = 1
	}
	if levels > models.BookLevels {
		levels = models.BookLevels
	}

	out := make([]models.OFIRecord, t.Len())
	for i := range t.Rows {
		rec := models.OFIRecord{
			Ts:     t.Rows[i].Ts,
			Levels: make([]float64, levels),
		}
		if i > 0 {
			cur, prev := &t.Rows[i], &t.Rows[i-1]
			for k := 0; k < levels; k++ {
				bid := bidContribution(cur.BidPrice[k], prev.BidPrice[k], cur.BidVolume[k], prev.BidVolume[k])
				ask := askContribution(cur.AskPrice[k], prev.AskPrice[k], cur.AskVolume[k], prev.AskVolume[k])
				level := sanitize(bid - ask)
				rec.Levels[k] = level
				rec.Total += level
			}
			rec.Total = sanitize(rec.Total)
		}
		out[i] = rec
	}
	return out
}

func bidContribution(price, prevPrice, vol, prevVol float64) float64 {
	switch {
	case price > prevPrice:
		return vol
	case price < prevPrice:
		return -prevVol
	default:
		return vol - prevVol
	}
}

func askContribution(price, prevPrice, vol, prevVol float64) float64 {
	switch {
	case price < prevPrice:
		return vol
	case price > prevPrice:
		return -prevVol
	default:
		return -(vol - prevVol)
	}
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
