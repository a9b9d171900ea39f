package processor

import (
	"math"
	"testing"

	"ofiflow/models"
)

func TestEvaluateSmallSampleIsNaN(t *testing.T) {
	ofi := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	ret := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	rec := Evaluate("TEST", "2021-01-04", ofi, ret, DefaultGroups)

	if rec.NSamples != 9 {
		t.Fatalf("n_samples = %d, want 9", rec.NSamples)
	}
	if !math.IsNaN(rec.IC) || !math.IsNaN(rec.RankIC) {
		t.Fatalf("IC fields must stay NaN below %d samples, got IC=%v RankIC=%v",
			MinEvalSamples, rec.IC, rec.RankIC)
	}
	if rec.HasGroups() {
		t.Fatalf("no quantile groups expected for a small sample")
	}
}

func TestEvaluatePerfectCorrelation(t *testing.T) {
	n := 50
	ofi := make([]float64, n)
	ret := make([]float64, n)
	for i := range ofi {
		ofi[i] = float64(i)
		ret[i] = 2*float64(i) + 1
	}
	rec := Evaluate("TEST", "2021-01-04", ofi, ret, DefaultGroups)

	if math.Abs(rec.IC-1) > 1e-9 {
		t.Errorf("IC = %v, want 1", rec.IC)
	}
	if math.Abs(rec.RankIC-1) > 1e-9 {
		t.Errorf("RankIC = %v, want 1", rec.RankIC)
	}
	if rec.ICPValue > 1e-9 {
		t.Errorf("p-value for perfect correlation = %v, want ~0", rec.ICPValue)
	}
	if !rec.Monotonic {
		t.Errorf("groups over a monotone relation should be monotonic")
	}
	if rec.LongShort <= 0 {
		t.Errorf("long-short spread = %v, want > 0", rec.LongShort)
	}
}

func TestEvaluateSpearmanRobustToMonotoneTransform(t *testing.T) {
	n := 40
	ofi := make([]float64, n)
	ret := make([]float64, n)
	for i := range ofi {
		ofi[i] = float64(i)
		ret[i] = math.Exp(float64(i) / 10) // nonlinear but monotone
	}
	rec := Evaluate("TEST", "2021-01-04", ofi, ret, DefaultGroups)
	if math.Abs(rec.RankIC-1) > 1e-9 {
		t.Errorf("RankIC = %v, want 1 for a monotone transform", rec.RankIC)
	}
	if rec.IC >= 1 {
		t.Errorf("Pearson IC should be below 1 for a convex relation, got %v", rec.IC)
	}
}

func TestEvaluateDropsNaNPairs(t *testing.T) {
	ofi := []float64{1, 2, math.NaN(), 4, 5, 6, 7, 8, 9, 10, 11, 12}
	ret := []float64{1, 2, 3, math.NaN(), 5, 6, 7, 8, 9, 10, 11, 12}
	rec := Evaluate("TEST", "2021-01-04", ofi, ret, DefaultGroups)
	if rec.NSamples != 10 {
		t.Fatalf("n_samples = %d, want 10 after NaN drop", rec.NSamples)
	}
	if math.IsNaN(rec.IC) {
		t.Fatalf("IC should be computed on the cleaned sample")
	}
}

func TestQuantileGroupsPartitionSample(t *testing.T) {
	n := 103
	x := make([]float64, n)
	y := make([]float64, n)
	for i := range x {
		x[i] = float64((i * 37) % n)
		y[i] = float64(i)
	}
	returns, counts := quantileGroups(x, y, 5)
	if len(returns) != 5 {
		t.Fatalf("expected 5 groups, got %d", len(returns))
	}
	total := 0
	for _, c := range counts {
		total += c
	}
	if total != n {
		t.Fatalf("groups cover %d rows, want %d", total, n)
	}
}

func TestQuantileGroupsEqualWidthFallback(t *testing.T) {
	// Two distinct values cannot support five equal-frequency groups.
	x := make([]float64, 20)
	y := make([]float64, 20)
	for i := range x {
		if i%2 == 0 {
			x[i] = 1
		} else {
			x[i] = 2
		}
		y[i] = float64(i)
	}
	returns, counts := quantileGroups(x, y, 5)
	total := 0
	for _, c := range counts {
		total += c
	}
	if total != len(x) {
		t.Fatalf("fallback groups cover %d rows, want %d", total, len(x))
	}
	if len(returns) < 1 {
		t.Fatalf("expected at least one group")
	}
}

func TestQuantileGroupsConstantSample(t *testing.T) {
	x := make([]float64, 20)
	y := make([]float64, 20)
	for i := range y {
		x[i] = 7
		y[i] = float64(i)
	}
	returns, counts := quantileGroups(x, y, 5)
	if len(returns) != 1 || counts[0] != 20 {
		t.Fatalf("constant sample should collapse to one group, got %v %v", returns, counts)
	}
}

func TestRanksAverageTies(t *testing.T) {
	got := ranks([]float64{3, 1, 1, 2})
	want := []float64{4, 1.5, 1.5, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ranks = %v, want %v", got, want)
		}
	}
}

func TestSummarizeTStatAndSignificance(t *testing.T) {
	var records []models.EvaluationRecord
	// 16 days of IC 0.05 with slight alternating noise: strongly significant.
	for i := 0; i < 16; i++ {
		ic := 0.05
		if i%2 == 0 {
			ic += 0.01
		} else {
			ic -= 0.01
		}
		records = append(records, models.EvaluationRecord{
			Symbol: "AAA", Date: "2021-01-04", IC: ic, RankIC: ic, NSamples: 100,
		})
	}
	// One symbol with too few days for a t-stat.
	records = append(records, models.EvaluationRecord{
		Symbol: "BBB", Date: "2021-01-04", IC: 0.2, RankIC: 0.2, NSamples: 100,
	})

	summaries := Summarize(records)
	if len(summaries) != 2 {
		t.Fatalf("expected 2 symbols, got %d", len(summaries))
	}

	aaa := summaries[0]
	if aaa.Symbol != "AAA" {
		t.Fatalf("summaries not sorted by symbol: %v", aaa.Symbol)
	}
	if math.Abs(aaa.ICMean-0.05) > 1e-12 {
		t.Errorf("IC mean = %v, want 0.05", aaa.ICMean)
	}
	// t = mean / (std/sqrt(16)) with std ~0.01033 -> ~19.4
	if !aaa.Significant {
		t.Errorf("|t|=%v should be significant", aaa.ICTStat)
	}

	bbb := summaries[1]
	if !math.IsNaN(bbb.ICTStat) {
		t.Errorf("single-day t-stat should be NaN, got %v", bbb.ICTStat)
	}
	if bbb.Significant {
		t.Errorf("symbol without a t-stat cannot be significant")
	}
}

func TestSummarizePooled(t *testing.T) {
	summaries := []models.SymbolSummary{
		{Symbol: "AAA", ICMean: 0.04, RankICMean: 0.03, LongShortMean: 0.001},
		{Symbol: "BBB", ICMean: 0.05, RankICMean: 0.02, LongShortMean: 0.002},
		{Symbol: "CCC", ICMean: 0.06, RankICMean: 0.04, LongShortMean: 0.003},
	}
	pooled := SummarizePooled(summaries)
	if pooled.Symbol != "ALL" {
		t.Fatalf("pooled symbol = %q", pooled.Symbol)
	}
	if math.Abs(pooled.ICMean-0.05) > 1e-12 {
		t.Errorf("pooled IC mean = %v, want 0.05", pooled.ICMean)
	}
	if pooled.NDates != 3 {
		t.Errorf("pooled n = %d, want 3", pooled.NDates)
	}
}

func TestQCTable(t *testing.T) {
	tbl := twoRowTable()
	tbl.Rows = append(tbl.Rows, tbl.Rows[1])          // duplicate timestamp
	tbl.Rows[2].BidPrice[0] = tbl.Rows[2].AskPrice[0] // crossed book

	rec := QCTable(tbl)
	if rec.NRows != 3 {
		t.Fatalf("n_rows = %d, want 3", rec.NRows)
	}
	if math.Abs(rec.DupTsRatio-1.0/3.0) > 1e-12 {
		t.Errorf("dup ratio = %v, want 1/3", rec.DupTsRatio)
	}
	if math.Abs(rec.CrossedRatio-1.0/3.0) > 1e-12 {
		t.Errorf("crossed ratio = %v, want 1/3", rec.CrossedRatio)
	}
	if rec.TsMin != tbl.Rows[0].Ts || rec.TsMax != tbl.Rows[2].Ts {
		t.Errorf("ts range [%d, %d] wrong", rec.TsMin, rec.TsMax)
	}
}
