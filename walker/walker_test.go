package walker

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestWalkDateRangeInclusive(t *testing.T) {
	processed := t.TempDir()
	raw := t.TempDir()
	sym := "159915.XSHE"

	touch(t, filepath.Join(raw, sym, "2021-01-01.csv.gz"))
	touch(t, filepath.Join(raw, sym, "2021-01-03.csv.gz"))
	touch(t, filepath.Join(raw, sym, "2021-01-04.csv.gz"))

	var dates []string
	for f := range Walk(processed, raw, sym, "2021-01-01", "2021-01-03") {
		dates = append(dates, f.Date)
	}
	if len(dates) != 2 || dates[0] != "2021-01-01" || dates[1] != "2021-01-03" {
		t.Fatalf("range [2021-01-01, 2021-01-03] yielded %v", dates)
	}
}

func TestWalkBothLayoutsAndSources(t *testing.T) {
	processed := t.TempDir()
	raw := t.TempDir()
	sym := "510050.XSHG"

	touch(t, filepath.Join(processed, sym, "2021-01-04.parquet"))         // flat processed
	touch(t, filepath.Join(processed, sym, "2021-01-05", "part.parquet")) // nested processed
	touch(t, filepath.Join(raw, sym, "2021-01-06.csv.gz"))                // flat raw
	touch(t, filepath.Join(raw, sym, "2021-01-07", "part.csv.gz"))        // nested raw
	touch(t, filepath.Join(raw, sym, "notes.txt"))                        // ignored
	touch(t, filepath.Join(raw, sym, "2021-01-08", "unrelated.bin"))      // ignored

	got := map[string]SourceKind{}
	var order []string
	for f := range Walk(processed, raw, sym, "2021-01-01", "2021-12-31") {
		got[f.Date] = f.Source
		order = append(order, f.Date)
		if f.Symbol != sym {
			t.Errorf("symbol = %q, want %q", f.Symbol, sym)
		}
	}
	want := map[string]SourceKind{
		"2021-01-04": SourceProcessed,
		"2021-01-05": SourceProcessed,
		"2021-01-06": SourceRaw,
		"2021-01-07": SourceRaw,
	}
	if len(got) != len(want) {
		t.Fatalf("discovered %v, want %v", got, want)
	}
	for d, k := range want {
		if got[d] != k {
			t.Errorf("date %s: source %q, want %q", d, got[d], k)
		}
	}
	// Nested-layout files all share the base name part.*, so ordering must
	// come from the session date, not the file name.
	for i := 1; i < len(order); i++ {
		if order[i] < order[i-1] {
			t.Fatalf("walk not date-ordered: %v", order)
		}
	}
}

func TestWalkMissingRoots(t *testing.T) {
	n := 0
	for range Walk("/does/not/exist", "/also/missing", "X", "2021-01-01", "2021-12-31") {
		n++
	}
	if n != 0 {
		t.Fatalf("missing roots should yield nothing, got %d entries", n)
	}
}

func TestWalkEarlyStop(t *testing.T) {
	raw := t.TempDir()
	sym := "A"
	touch(t, filepath.Join(raw, sym, "2021-01-01.csv.gz"))
	touch(t, filepath.Join(raw, sym, "2021-01-02.csv.gz"))

	n := 0
	for range Walk(t.TempDir(), raw, sym, "2021-01-01", "2021-12-31") {
		n++
		break
	}
	if n != 1 {
		t.Fatalf("early break consumed %d entries", n)
	}
}

func TestDateFromPath(t *testing.T) {
	cases := []struct{ path, symbol, want string }{
		{"/data/raw/159915.XSHE/2021-01-04.csv.gz", "159915.XSHE", "2021-01-04"},
		{"/data/processed/159915.XSHE/2021-01-04/part.parquet", "159915.XSHE", "2021-01-04"},
		{"/data/processed/159915.XSHE/2021-01-04.parquet", "159915.XSHE", "2021-01-04"},
	}
	for _, c := range cases {
		if got := dateFromPath(c.path, c.symbol); got != c.want {
			t.Errorf("dateFromPath(%q) = %q, want %q", c.path, got, c.want)
		}
	}
}
