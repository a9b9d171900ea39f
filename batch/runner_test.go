package batch

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ofiflow/config"
	"ofiflow/models"
	"ofiflow/writer"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	return &config.Config{
		Data: config.DataConfig{
			ProcessedDir: filepath.Join(base, "processed"),
			RawDir:       filepath.Join(base, "raw"),
		},
		OFI: config.OFIConfig{
			Levels:     5,
			BarSeconds: 60,
			Agg:        "sum",
			OutputDir:  filepath.Join(base, "ofi"),
		},
		Eval: config.EvalConfig{
			Groups:    5,
			OutputDir: filepath.Join(base, "eval"),
		},
		QC: config.QCConfig{
			OutputDir: filepath.Join(base, "qc"),
		},
		Batch: config.BatchConfig{MaxWorkers: 2},
	}
}

// writeRawDay writes a gzipped CSV snapshot dump with n ticks spaced 10s
// apart starting at 09:30:00.
func writeRawDay(t *testing.T, rawDir, symbol, date string, n int) {
	t.Helper()
	header := []string{"code", "date", "time", "current", "volume", "money"}
	for _, side := range []string{"a", "b"} {
		for l := 1; l <= 5; l++ {
			header = append(header, fmt.Sprintf("%s%d_p", side, l))
		}
		for l := 1; l <= 5; l++ {
			header = append(header, fmt.Sprintf("%s%d_v", side, l))
		}
	}

	dir := filepath.Join(rawDir, symbol)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir raw dir: %v", err)
	}
	f, err := os.Create(filepath.Join(dir, date+".csv.gz"))
	if err != nil {
		t.Fatalf("create raw file: %v", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	w := csv.NewWriter(gz)
	if err := w.Write(header); err != nil {
		t.Fatalf("write header: %v", err)
	}

	base := time.Date(2021, 1, 4, 9, 30, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		ts := base.Add(time.Duration(i) * 10 * time.Second)
		mid := 10.0 + 0.01*float64(i)
		row := []string{
			symbol, date, ts.Format("20060102150405"),
			fmt.Sprintf("%.2f", mid),
			fmt.Sprintf("%d", 100*(i+1)),
			fmt.Sprintf("%.2f", float64(100*(i+1))*mid),
		}
		for _, sign := range []float64{1, -1} {
			for l := 1; l <= 5; l++ {
				row = append(row, fmt.Sprintf("%.2f", mid+sign*0.01*float64(l)))
			}
			for l := 1; l <= 5; l++ {
				row = append(row, fmt.Sprintf("%d", 100+10*l+i))
			}
		}
		if err := w.Write(row); err != nil {
			t.Fatalf("write row: %v", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		t.Fatalf("flush csv: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
}

func TestRunOutcomes(t *testing.T) {
	cfg := testConfig(t)
	r := NewRunner(cfg, nil)

	units := []Unit{
		{Symbol: "A", Date: "2021-01-04"},
		{Symbol: "A", Date: "2021-01-05"},
		{Symbol: "A", Date: "2021-01-06"},
		{Symbol: "A", Date: "2021-01-07"},
	}
	out := r.run(context.Background(), "test", units, func(_ context.Context, u Unit) error {
		switch u.Date {
		case "2021-01-05":
			return models.ErrCacheExists
		case "2021-01-06":
			return errors.New("corrupt input")
		default:
			return nil
		}
	})

	if out.Done != 2 || out.Skipped != 1 || out.Failed != 1 {
		t.Fatalf("outcome = %+v, want 2 done, 1 skipped, 1 failed", out)
	}
}

func TestBuildBarsEvalQC(t *testing.T) {
	cfg := testConfig(t)
	const symbol = "000001.XSHE"
	const date = "2021-01-04"
	writeRawDay(t, cfg.Data.RawDir, symbol, date, 18)

	r := NewRunner(cfg, nil)
	ctx := context.Background()

	out := r.Build(ctx, []string{symbol})
	if out.Done != 1 || out.Failed != 0 {
		t.Fatalf("build outcome = %+v", out)
	}
	tickPath := writer.TickPath(cfg.Data.ProcessedDir, symbol, date)
	if _, err := os.Stat(tickPath); err != nil {
		t.Fatalf("tick cache missing: %v", err)
	}

	// A second build run finds the cache and skips.
	out = r.Build(ctx, []string{symbol})
	if out.Skipped != 1 || out.Done != 0 {
		t.Fatalf("rebuild outcome = %+v, want skip", out)
	}

	out = r.Bars(ctx, []string{symbol})
	if out.Done != 1 || out.Failed != 0 {
		t.Fatalf("bars outcome = %+v", out)
	}
	bars, err := writer.ReadBars(writer.BarPath(cfg.OFI.OutputDir, symbol, date))
	if err != nil {
		t.Fatalf("read bars: %v", err)
	}
	// 18 ticks spaced 10s cover three minutes; the last bar has no label.
	if len(bars) != 2 {
		t.Fatalf("labeled bars = %d, want 2", len(bars))
	}

	evalOut, err := r.Eval(ctx, []string{symbol})
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if evalOut.Done != 1 {
		t.Fatalf("eval outcome = %+v", evalOut)
	}
	for _, p := range []string{
		writer.DailyEvalPath(cfg.Eval.OutputDir),
		writer.SummaryPath(cfg.Eval.OutputDir),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("eval output missing: %v", err)
		}
	}

	qcOut, err := r.QC(ctx, []string{symbol})
	if err != nil {
		t.Fatalf("qc: %v", err)
	}
	if qcOut.Done != 1 {
		t.Fatalf("qc outcome = %+v", qcOut)
	}
	if _, err := os.Stat(writer.QCPath(cfg.QC.OutputDir)); err != nil {
		t.Fatalf("qc output missing: %v", err)
	}
}

func TestBarsFailureIsolated(t *testing.T) {
	cfg := testConfig(t)
	const symbol = "000001.XSHE"
	writeRawDay(t, cfg.Data.RawDir, symbol, "2021-01-04", 18)

	// A corrupt day alongside a good one fails alone.
	dir := filepath.Join(cfg.Data.RawDir, symbol)
	if err := os.WriteFile(filepath.Join(dir, "2021-01-05.csv.gz"), []byte("not gzip"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	r := NewRunner(cfg, nil)
	out := r.Bars(context.Background(), []string{symbol})
	if out.Done != 1 || out.Failed != 1 {
		t.Fatalf("outcome = %+v, want 1 done 1 failed", out)
	}
}
