package processor

import (
	"math"

	"ofiflow/models"
)

// QCTable summarises the data quality of one normalized table: duplicate
// timestamps, crossed books, bad price rows, spread medians and the
// maybe_truncated flag ratio.
func QCTable(t *models.NormalizedTable) models.QCRecord {
	rec := models.QCRecord{
		Symbol: t.Symbol,
		Date:   t.Date,
		NRows:  t.Len(),
	}
	if t.Len() == 0 {
		rec.SpreadMedian = math.NaN()
		rec.RelSpreadMedian = math.NaN()
		return rec
	}

	var (
		dups       int
		crossed    int
		badPrice   int
		truncated  int
		spreads    []float64
		relSpreads []float64
	)
	rec.TsMin = t.Rows[0].Ts
	rec.TsMax = t.Rows[0].Ts

	for i := range t.Rows {
		row := &t.Rows[i]
		if row.Ts < rec.TsMin {
			rec.TsMin = row.Ts
		}
		if row.Ts > rec.TsMax {
			rec.TsMax = row.Ts
		}
		if i > 0 && row.Ts == t.Rows[i-1].Ts {
			dups++
		}
		if row.AskPrice[0] <= row.BidPrice[0] {
			crossed++
		}
		if !row.Valid() {
			badPrice++
		}
		if row.MaybeTruncated > 0 {
			truncated++
		}
		mid := row.Mid()
		spread := row.Spread()
		if !math.IsNaN(spread) {
			spreads = append(spreads, spread)
			if mid != 0 {
				relSpreads = append(relSpreads, spread/mid)
			}
		}
	}

	n := float64(t.Len())
	rec.DupTsRatio = float64(dups) / n
	rec.CrossedRatio = float64(crossed) / n
	rec.BadPriceCount = badPrice
	rec.MaybeTruncatedRatio = float64(truncated) / n
	rec.SpreadMedian = median(spreads)
	rec.RelSpreadMedian = median(relSpreads)
	return rec
}
