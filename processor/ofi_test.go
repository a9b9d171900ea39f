package processor

import (
	"math"
	"testing"

	"ofiflow/models"
)

func twoRowTable() *models.NormalizedTable {
	rows := make([]models.Snapshot, 2)
	for i := range rows {
		rows[i].Ts = int64(i) * 1_000_000
		for k := 0; k < models.BookLevels; k++ {
			rows[i].AskPrice[k] = 10.2
			rows[i].AskVolume[k] = 20
			rows[i].BidPrice[k] = 10.0
			rows[i].BidVolume[k] = 5
		}
	}
	return &models.NormalizedTable{Symbol: "TEST", Date: "2021-01-04", Rows: rows}
}

func TestComputeOFIPinnedScenario(t *testing.T) {
	// Level-1 bid rises 10.0 -> 10.1 with volume 5 -> 8, ask flat at 10.2
	// with volume 20 -> 18: bid contributes 8, ask contributes -(18-20)=2,
	// so ofi_level_1 = 8 - 2 = 6.
	tbl := twoRowTable()
	tbl.Rows[1].BidPrice[0] = 10.1
	tbl.Rows[1].BidVolume[0] = 8
	tbl.Rows[1].AskVolume[0] = 18

	recs := ComputeOFI(tbl, 1)
	if got := recs[1].Levels[0]; math.Abs(got-6) > 1e-12 {
		t.Fatalf("level-1 OFI = %v, want 6", got)
	}
	if got := recs[1].Total; math.Abs(got-6) > 1e-12 {
		t.Fatalf("total OFI = %v, want 6", got)
	}
}

func TestComputeOFIFirstRowZero(t *testing.T) {
	tbl := twoRowTable()
	recs := ComputeOFI(tbl, 5)
	if recs[0].Total != 0 {
		t.Fatalf("first row total = %v, want 0", recs[0].Total)
	}
	for k, v := range recs[0].Levels {
		if v != 0 {
			t.Fatalf("first row level %d = %v, want 0", k+1, v)
		}
	}
}

func TestComputeOFIDeterministic(t *testing.T) {
	tbl := twoRowTable()
	tbl.Rows[1].BidVolume[2] = 9
	tbl.Rows[1].AskPrice[1] = 10.3

	a := ComputeOFI(tbl, 5)
	b := ComputeOFI(tbl, 5)
	for i := range a {
		if a[i].Total != b[i].Total {
			t.Fatalf("row %d: %v != %v", i, a[i].Total, b[i].Total)
		}
		for k := range a[i].Levels {
			if a[i].Levels[k] != b[i].Levels[k] {
				t.Fatalf("row %d level %d differs", i, k)
			}
		}
	}
}

func TestComputeOFISideRules(t *testing.T) {
	cases := []struct {
		name                   string
		bidP, bidV, askP, askV float64 // current row, level 1
		prevBidV, prevAskV     float64
		prevBidP, prevAskP     float64
		want                   float64
	}{
		{"bid fell", 9.9, 7, 10.2, 20, 5, 20, 10.0, 10.2, -5 - 0},
		{"ask rose", 10.0, 5, 10.3, 7, 5, 20, 10.0, 10.2, 0 - (-20)},
		{"ask fell", 10.0, 5, 10.1, 7, 5, 20, 10.0, 10.2, 0 - 7},
		{"both flat vol change", 10.0, 9, 10.2, 25, 5, 20, 10.0, 10.2, 4 - (-(25 - 20))},
	}
	for _, c := range cases {
		tbl := twoRowTable()
		tbl.Rows[0].BidPrice[0] = c.prevBidP
		tbl.Rows[0].BidVolume[0] = c.prevBidV
		tbl.Rows[0].AskPrice[0] = c.prevAskP
		tbl.Rows[0].AskVolume[0] = c.prevAskV
		tbl.Rows[1].BidPrice[0] = c.bidP
		tbl.Rows[1].BidVolume[0] = c.bidV
		tbl.Rows[1].AskPrice[0] = c.askP
		tbl.Rows[1].AskVolume[0] = c.askV

		recs := ComputeOFI(tbl, 1)
		if got := recs[1].Levels[0]; math.Abs(got-c.want) > 1e-12 {
			t.Errorf("%s: ofi = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestComputeOFINonFiniteSanitized(t *testing.T) {
	tbl := twoRowTable()
	tbl.Rows[1].BidVolume[0] = math.Inf(1)

	recs := ComputeOFI(tbl, 1)
	if got := recs[1].Levels[0]; got != 0 {
		t.Fatalf("non-finite level should sanitize to 0, got %v", got)
	}
}

func TestComputeOFILevelClamp(t *testing.T) {
	tbl := twoRowTable()
	recs := ComputeOFI(tbl, 9)
	if len(recs[0].Levels) != models.BookLevels {
		t.Fatalf("levels clamped to %d, got %d", models.BookLevels, len(recs[0].Levels))
	}
}
