package models

// EvaluationRecord is one row of the predictive-power evaluation, for one
// (symbol, date) or for a pooled sample. Correlation fields are NaN when the
// sample was below the minimum size.
type EvaluationRecord struct {
	Symbol string
	Date   string

	IC           float64
	ICPValue     float64
	RankIC       float64
	RankICPValue float64
	NSamples     int

	// Quantile grouping. Empty when the sample was too small to bin.
	GroupReturns []float64
	GroupCounts  []int
	LongShort    float64
	Monotonic    bool
}

// HasGroups reports whether quantile statistics were computed.
func (r *EvaluationRecord) HasGroups() bool {
	return len(r.GroupReturns) > 0
}

// SymbolSummary aggregates per-day evaluation records for one symbol, or
// pools per-symbol means when Symbol is "ALL".
type SymbolSummary struct {
	Symbol string
	NDates int

	ICMean      float64
	ICStd       float64
	ICTStat     float64
	RankICMean  float64
	RankICStd   float64
	RankICTStat float64

	LongShortMean  float64
	MonotonicRatio float64

	// Significant is fixed at |ICTStat| > 2.0.
	Significant bool
}

// QCRecord summarises the data quality of one normalized (symbol, date)
// table.
type QCRecord struct {
	Symbol              string
	Date                string
	NRows               int
	DupTsRatio          float64
	CrossedRatio        float64
	BadPriceCount       int
	SpreadMedian        float64
	RelSpreadMedian     float64
	MaybeTruncatedRatio float64
	TsMin               int64
	TsMax               int64
}
