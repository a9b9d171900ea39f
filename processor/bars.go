package processor

import (
	"math"
	"sort"
	"time"

	"ofiflow/models"
)

// Aggregation modes for tick-level OFI within a bar.
const (
	AggSum  = "sum"
	AggMean = "mean"
)

// BarSpec fixes the bar width and the OFI aggregation rule for one run.
type BarSpec struct {
	Width time.Duration
	Agg   string
}

// DefaultBarSpec is one-minute bars with summed OFI.
func DefaultBarSpec() BarSpec {
	return BarSpec{Width: time.Minute, Agg: AggSum}
}

// AggregateBars resamples tick-level OFI into fixed-width time bars keyed by
// truncation of the tick timestamp to the bar width. Per bar the OFI is
// summed or averaged, the mid price is the last tick's mid, the spread is
// the median tick spread, and the tick count is the row count. Bars with no
// ticks do not exist.
//
// The forward-return label is computed on the bar-close mid series as
// mid[t+1]/mid[t] - 1. The final bar has no label and is excluded, as is
// any bar whose label is non-finite: a spurious zero would corrupt the
// correlation statistics downstream.
func AggregateBars(t *models.NormalizedTable, ofi []models.OFIRecord, spec BarSpec) []models.Bar {
	if t.Len() == 0 || t.Len() != len(ofi) {
		return nil
	}
	widthUs := spec.Width.Microseconds()
	if widthUs <= 0 {
		widthUs = time.Minute.Microseconds()
	}

	type acc struct {
		start   int64
		ofiSum  float64
		mid     float64
		spreads []float64
		n       int32
	}

	var accs []acc
	for i := range t.Rows {
		row := &t.Rows[i]
		start := row.Ts - mod(row.Ts, widthUs)
		if len(accs) == 0 || accs[len(accs)-1].start != start {
			accs = append(accs, acc{start: start})
		}
		a := &accs[len(accs)-1]
		a.ofiSum += ofi[i].Total
		a.mid = row.Mid()
		a.spreads = append(a.spreads, row.Spread())
		a.n++
	}

	bars := make([]models.Bar, 0, len(accs))
	for _, a := range accs {
		v := a.ofiSum
		if spec.Agg == AggMean && a.n > 0 {
			v = a.ofiSum / float64(a.n)
		}
		bars = append(bars, models.Bar{
			Start:     a.start,
			OFI:       v,
			MidClose:  a.mid,
			SpreadMed: median(a.spreads),
			NTicks:    a.n,
		})
	}

	// Label with forward returns; the last bar never carries one.
	labeled := make([]models.Bar, 0, len(bars))
	for i := 0; i+1 < len(bars); i++ {
		if !(bars[i].MidClose > 0) || !(bars[i+1].MidClose > 0) {
			continue
		}
		ret := bars[i+1].MidClose/bars[i].MidClose - 1
		if math.IsNaN(ret) || math.IsInf(ret, 0) {
			continue
		}
		b := bars[i]
		b.RetFwd = ret
		labeled = append(labeled, b)
	}
	return labeled
}

// mod is the floored remainder, safe for pre-epoch timestamps.
func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}
