package models

// OFIRecord holds the per-level order flow imbalance for one snapshot.
// Records align 1:1 with the rows of the table they were derived from.
type OFIRecord struct {
	Ts     int64
	Levels []float64
	Total  float64
}

// Bar is a fixed-width aggregation of tick-level OFI. Start is the
// bar-open timestamp in microseconds, truncated to the bar width. MidClose
// is the mid price of the last snapshot in the bar. RetFwd is the forward
// return to the next bar's closing mid; bars without a valid label are
// excluded from output, so every Bar carries one.
type Bar struct {
	Start     int64
	OFI       float64
	MidClose  float64
	SpreadMed float64
	NTicks    int32
	RetFwd    float64
}
