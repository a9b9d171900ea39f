package processor

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"ofiflow/models"
)

// MinEvalSamples is the smallest paired sample for which correlations are
// computed. Below it the IC fields stay NaN: small-sample correlation is
// treated as unreliable, not merely noisy.
const MinEvalSamples = 10

// SignificanceTStat is the fixed |t| threshold above which a symbol's IC is
// called significant.
const SignificanceTStat = 2.0

// DefaultGroups is the default quantile group count.
const DefaultGroups = 5

// Evaluate joins OFI values with forward returns for one (symbol, date) or
// a pooled sample and computes IC, RankIC, their two-sided p-values and the
// quantile-grouped return statistics. NaN pairs are dropped first; both
// correlations use the same cleaned sample.
func Evaluate(symbol, date string, ofi, ret []float64, nGroups int) models.EvaluationRecord {
	x, y := dropNaNPairs(ofi, ret)

	rec := models.EvaluationRecord{
		Symbol:       symbol,
		Date:         date,
		IC:           math.NaN(),
		ICPValue:     math.NaN(),
		RankIC:       math.NaN(),
		RankICPValue: math.NaN(),
		LongShort:    math.NaN(),
		NSamples:     len(x),
	}
	if len(x) < MinEvalSamples {
		return rec
	}

	rec.IC = stat.Correlation(x, y, nil)
	rec.ICPValue = correlationPValue(rec.IC, len(x))
	rx, ry := ranks(x), ranks(y)
	rec.RankIC = stat.Correlation(rx, ry, nil)
	rec.RankICPValue = correlationPValue(rec.RankIC, len(x))

	if nGroups < 2 {
		nGroups = DefaultGroups
	}
	if len(x) >= nGroups*2 {
		returns, counts := quantileGroups(x, y, nGroups)
		rec.GroupReturns = returns
		rec.GroupCounts = counts
		rec.LongShort = returns[len(returns)-1] - returns[0]
		rec.Monotonic = monotonic(returns)
	}
	return rec
}

// Summarize aggregates per-day records into per-symbol statistics, ordered
// by symbol. The t-statistic is mean(IC)/(std(IC)/sqrt(n_dates)) over the
// NaN-dropped daily values.
func Summarize(records []models.EvaluationRecord) []models.SymbolSummary {
	bySymbol := make(map[string][]models.EvaluationRecord)
	var order []string
	for _, r := range records {
		if _, ok := bySymbol[r.Symbol]; !ok {
			order = append(order, r.Symbol)
		}
		bySymbol[r.Symbol] = append(bySymbol[r.Symbol], r)
	}
	sort.Strings(order)

	out := make([]models.SymbolSummary, 0, len(order))
	for _, sym := range order {
		recs := bySymbol[sym]
		var ics, rankICs, longShorts []float64
		monotonicDays, groupedDays := 0, 0
		for _, r := range recs {
			if !math.IsNaN(r.IC) {
				ics = append(ics, r.IC)
			}
			if !math.IsNaN(r.RankIC) {
				rankICs = append(rankICs, r.RankIC)
			}
			if r.HasGroups() {
				groupedDays++
				if !math.IsNaN(r.LongShort) {
					longShorts = append(longShorts, r.LongShort)
				}
				if r.Monotonic {
					monotonicDays++
				}
			}
		}

		s := models.SymbolSummary{Symbol: sym, NDates: len(recs)}
		s.ICMean, s.ICStd, s.ICTStat = meanStdTStat(ics)
		s.RankICMean, s.RankICStd, s.RankICTStat = meanStdTStat(rankICs)
		if len(longShorts) > 0 {
			s.LongShortMean = stat.Mean(longShorts, nil)
		} else {
			s.LongShortMean = math.NaN()
		}
		if groupedDays > 0 {
			s.MonotonicRatio = float64(monotonicDays) / float64(groupedDays)
		} else {
			s.MonotonicRatio = math.NaN()
		}
		s.Significant = !math.IsNaN(s.ICTStat) && math.Abs(s.ICTStat) > SignificanceTStat
		out = append(out, s)
	}
	return out
}

// SummarizePooled applies the per-symbol t-statistic formula over the
// per-symbol IC means.
func SummarizePooled(summaries []models.SymbolSummary) models.SymbolSummary {
	var ics, rankICs, longShorts []float64
	for _, s := range summaries {
		if !math.IsNaN(s.ICMean) {
			ics = append(ics, s.ICMean)
		}
		if !math.IsNaN(s.RankICMean) {
			rankICs = append(rankICs, s.RankICMean)
		}
		if !math.IsNaN(s.LongShortMean) {
			longShorts = append(longShorts, s.LongShortMean)
		}
	}
	pooled := models.SymbolSummary{Symbol: "ALL", NDates: len(summaries)}
	pooled.ICMean, pooled.ICStd, pooled.ICTStat = meanStdTStat(ics)
	pooled.RankICMean, pooled.RankICStd, pooled.RankICTStat = meanStdTStat(rankICs)
	if len(longShorts) > 0 {
		pooled.LongShortMean = stat.Mean(longShorts, nil)
	} else {
		pooled.LongShortMean = math.NaN()
	}
	pooled.MonotonicRatio = math.NaN()
	pooled.Significant = !math.IsNaN(pooled.ICTStat) && math.Abs(pooled.ICTStat) > SignificanceTStat
	return pooled
}

func dropNaNPairs(x, y []float64) ([]float64, []float64) {
	n := min(len(x), len(y))
	ox := make([]float64, 0, n)
	oy := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) || math.IsInf(x[i], 0) || math.IsInf(y[i], 0) {
			continue
		}
		ox = append(ox, x[i])
		oy = append(oy, y[i])
	}
	return ox, oy
}

// correlationPValue is the two-sided p-value of a correlation coefficient
// under the null of zero correlation, via the exact t transform with n-2
// degrees of freedom.
func correlationPValue(r float64, n int) float64 {
	if math.IsNaN(r) || n < 3 {
		return math.NaN()
	}
	if r >= 1 || r <= -1 {
		return 0
	}
	df := float64(n - 2)
	t := r * math.Sqrt(df/(1-r*r))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * dist.CDF(-math.Abs(t))
}

// ranks assigns 1-based ranks with ties resolved as the average rank, the
// transform under a Spearman correlation.
func ranks(xs []float64) []float64 {
	n := len(xs)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })

	out := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && xs[idx[j+1]] == xs[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = avg
		}
		i = j + 1
	}
	return out
}

// quantileGroups bins the sample into nGroups by OFI value. Equal-frequency
// (rank-based) binning is preferred; when too few distinct values survive
// edge deduplication the binning degrades to fewer groups, and when no
// usable rank edges remain it falls back to equal-width bins over the value
// range. Every input row lands in exactly one group.
func quantileGroups(x, y []float64, nGroups int) (returns []float64, counts []int) {
	edges := quantileEdges(x, nGroups)
	if len(edges) < 3 {
		edges = equalWidthEdges(x, nGroups)
	}
	k := len(edges) - 1

	sums := make([]float64, k)
	counts = make([]int, k)
	for i, v := range x {
		g := bucketOf(v, edges)
		sums[g] += y[i]
		counts[g]++
	}

	returns = make([]float64, k)
	for g := range returns {
		if counts[g] > 0 {
			returns[g] = sums[g] / float64(counts[g])
		} else {
			returns[g] = math.NaN()
		}
	}
	return returns, counts
}

// quantileEdges computes deduplicated equal-frequency bin edges.
func quantileEdges(x []float64, nGroups int) []float64 {
	s := append([]float64(nil), x...)
	sort.Float64s(s)

	edges := make([]float64, 0, nGroups+1)
	for g := 0; g <= nGroups; g++ {
		q := stat.Quantile(float64(g)/float64(nGroups), stat.Empirical, s, nil)
		if len(edges) == 0 || q > edges[len(edges)-1] {
			edges = append(edges, q)
		}
	}
	return edges
}

func equalWidthEdges(x []float64, nGroups int) []float64 {
	lo, hi := x[0], x[0]
	for _, v := range x {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if !(hi > lo) {
		// Degenerate constant sample collapses to a single group.
		return []float64{lo, lo}
	}
	edges := make([]float64, nGroups+1)
	for g := 0; g <= nGroups; g++ {
		edges[g] = lo + (hi-lo)*float64(g)/float64(nGroups)
	}
	return edges
}

// bucketOf places v into the half-open bins defined by edges; the last bin
// is closed on the right so the maximum lands in the top group.
func bucketOf(v float64, edges []float64) int {
	k := len(edges) - 1
	for g := 0; g < k; g++ {
		if v < edges[g+1] {
			return g
		}
	}
	return k - 1
}

// monotonic reports whether the group means are entirely non-decreasing or
// entirely non-increasing, skipping empty groups.
func monotonic(xs []float64) bool {
	vals := make([]float64, 0, len(xs))
	for _, v := range xs {
		if !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	nonDec, nonInc := true, true
	for i := 1; i < len(vals); i++ {
		if vals[i] < vals[i-1] {
			nonDec = false
		}
		if vals[i] > vals[i-1] {
			nonInc = false
		}
	}
	return nonDec || nonInc
}

func meanStdTStat(xs []float64) (mean, std, tstat float64) {
	if len(xs) == 0 {
		return math.NaN(), math.NaN(), math.NaN()
	}
	mean = stat.Mean(xs, nil)
	if len(xs) < 2 {
		return mean, math.NaN(), math.NaN()
	}
	std = stat.StdDev(xs, nil)
	if std > 0 {
		tstat = mean / (std / math.Sqrt(float64(len(xs))))
	} else {
		tstat = math.NaN()
	}
	return mean, std, tstat
}
