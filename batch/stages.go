package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"ofiflow/logger"
	"ofiflow/models"
	"ofiflow/processor"
	"ofiflow/reader"
	"ofiflow/walker"
	"ofiflow/writer"
)

// dateRange widens missing bounds so an unset range matches everything.
func (r *Runner) dateRange() (string, string) {
	start, end := r.cfg.Data.Start, r.cfg.Data.End
	if start == "" {
		start = "0000-00-00"
	}
	if end == "" {
		end = "9999-12-31"
	}
	return start, end
}

// tickRoot is where the normalized tick cache lives under the processed
// data root.
func (r *Runner) tickRoot() string {
	return filepath.Join(r.cfg.Data.ProcessedDir, "ticks")
}

// loadTable materialises the normalized table behind one unit, from the
// parquet cache or from the raw CSV dump.
func (r *Runner) loadTable(u Unit) (*models.NormalizedTable, error) {
	if u.Source == walker.SourceProcessed {
		return writer.ReadTicks(u.Path, u.Symbol, u.Date)
	}
	return reader.ReadRawLOB(u.Path, u.Symbol, u.Date, reader.Options{Lenient: r.cfg.Batch.Lenient})
}

// inputUnits enumerates one unit per session date for a symbol. When a date
// is present in both the tick cache and the raw root the cached file wins.
func (r *Runner) inputUnits(symbol string) []Unit {
	start, end := r.dateRange()
	byDate := make(map[string]Unit)
	for f := range walker.Walk(r.tickRoot(), r.cfg.Data.RawDir, symbol, start, end) {
		existing, ok := byDate[f.Date]
		if ok && existing.Source == walker.SourceProcessed {
			continue
		}
		if !ok || f.Source == walker.SourceProcessed {
			byDate[f.Date] = Unit{Symbol: f.Symbol, Date: f.Date, Path: f.Path, Source: f.Source}
		}
	}
	units := make([]Unit, 0, len(byDate))
	for _, u := range byDate {
		units = append(units, u)
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Date < units[j].Date })
	return units
}

// Build normalizes raw CSV dumps into the parquet tick cache.
func (r *Runner) Build(ctx context.Context, symbols []string) Outcome {
	var units []Unit
	start, end := r.dateRange()
	for _, symbol := range symbols {
		for f := range walker.Walk("", r.cfg.Data.RawDir, symbol, start, end) {
			if f.Source != walker.SourceRaw {
				continue
			}
			units = append(units, Unit{Symbol: f.Symbol, Date: f.Date, Path: f.Path, Source: f.Source})
		}
	}

	return r.run(ctx, "build", units, func(_ context.Context, u Unit) error {
		dst := writer.TickPath(r.cfg.Data.ProcessedDir, u.Symbol, u.Date)
		if !r.cfg.OFI.Overwrite {
			if _, err := os.Stat(dst); err == nil {
				return models.ErrCacheExists
			}
		}
		table, err := reader.ReadRawLOB(u.Path, u.Symbol, u.Date, reader.Options{Lenient: r.cfg.Batch.Lenient})
		if err != nil {
			return err
		}
		if table.Len() == 0 {
			return fmt.Errorf("no valid rows in %s", u.Path)
		}
		return writer.WriteTicks(dst, table, r.cfg.OFI.Overwrite)
	})
}

// Bars computes the flow imbalance series and aggregates it into labeled
// bars, one output file per (symbol, date).
func (r *Runner) Bars(ctx context.Context, symbols []string) Outcome {
	var units []Unit
	for _, symbol := range symbols {
		units = append(units, r.inputUnits(symbol)...)
	}

	spec := processor.BarSpec{
		Width: time.Duration(r.cfg.OFI.BarSeconds) * time.Second,
		Agg:   r.cfg.OFI.Agg,
	}

	return r.run(ctx, "bars", units, func(ctx context.Context, u Unit) error {
		dst := writer.BarPath(r.cfg.OFI.OutputDir, u.Symbol, u.Date)
		if !r.cfg.OFI.Overwrite {
			if _, err := os.Stat(dst); err == nil {
				return models.ErrCacheExists
			}
		}
		table, err := r.loadTable(u)
		if err != nil {
			return err
		}
		if table.Len() == 0 {
			return fmt.Errorf("no valid rows in %s", u.Path)
		}
		ofi := processor.ComputeOFI(table, r.cfg.OFI.Levels)
		bars := processor.AggregateBars(table, ofi, spec)
		if err := writer.WriteBars(dst, bars, r.cfg.OFI.Overwrite); err != nil {
			return err
		}
		return r.mirrorUpload(ctx, r.cfg.OFI.OutputDir, dst)
	})
}

// Eval correlates each day's bar imbalance with forward returns and writes
// the daily and per-symbol summary tables. Units are whole symbols; their
// daily records land in one shared result set.
func (r *Runner) Eval(ctx context.Context, symbols []string) (Outcome, error) {
	units := make([]Unit, 0, len(symbols))
	for _, symbol := range symbols {
		units = append(units, Unit{Symbol: symbol})
	}

	start, end := r.dateRange()
	var mu sync.Mutex
	var records []models.EvaluationRecord

	outcome := r.run(ctx, "eval", units, func(_ context.Context, u Unit) error {
		var symbolRecords []models.EvaluationRecord
		for f := range walker.Walk(r.cfg.OFI.OutputDir, "", u.Symbol, start, end) {
			bars, err := writer.ReadBars(f.Path)
			if err != nil {
				return err
			}
			ofi := make([]float64, len(bars))
			ret := make([]float64, len(bars))
			for i, b := range bars {
				ofi[i] = b.OFI
				ret[i] = b.RetFwd
			}
			rec := processor.Evaluate(u.Symbol, f.Date, ofi, ret, r.cfg.Eval.Groups)
			if rec.NSamples < processor.MinEvalSamples {
				r.log.WithComponent("eval").WithFields(logger.Fields{
					"symbol":    u.Symbol,
					"date":      f.Date,
					"n_samples": rec.NSamples,
				}).WithError(models.ErrInsufficientSample).Warn("correlations left NaN")
			}
			symbolRecords = append(symbolRecords, rec)
		}
		if len(symbolRecords) == 0 {
			return fmt.Errorf("no bar files for %s", u.Symbol)
		}
		mu.Lock()
		records = append(records, symbolRecords...)
		mu.Unlock()
		return nil
	})

	if len(records) == 0 {
		return outcome, fmt.Errorf("evaluation produced no records")
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Symbol != records[j].Symbol {
			return records[i].Symbol < records[j].Symbol
		}
		return records[i].Date < records[j].Date
	})

	summaries := processor.Summarize(records)
	summaries = append(summaries, processor.SummarizePooled(summaries))

	dailyPath := writer.DailyEvalPath(r.cfg.Eval.OutputDir)
	if err := writer.WriteDailyEval(dailyPath, records); err != nil {
		return outcome, err
	}
	summaryPath := writer.SummaryPath(r.cfg.Eval.OutputDir)
	if err := writer.WriteSummary(summaryPath, summaries); err != nil {
		return outcome, err
	}
	if err := r.mirrorUpload(ctx, r.cfg.Eval.OutputDir, dailyPath); err != nil {
		return outcome, err
	}
	if err := r.mirrorUpload(ctx, r.cfg.Eval.OutputDir, summaryPath); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// QC computes per-day data quality statistics over the normalized tables
// and writes the pooled summary.
func (r *Runner) QC(ctx context.Context, symbols []string) (Outcome, error) {
	var units []Unit
	for _, symbol := range symbols {
		units = append(units, r.inputUnits(symbol)...)
	}

	var mu sync.Mutex
	var records []models.QCRecord

	outcome := r.run(ctx, "qc", units, func(_ context.Context, u Unit) error {
		table, err := r.loadTable(u)
		if err != nil {
			return err
		}
		rec := processor.QCTable(table)
		mu.Lock()
		records = append(records, rec)
		mu.Unlock()
		return nil
	})

	if len(records) == 0 {
		return outcome, fmt.Errorf("qc produced no records")
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Symbol != records[j].Symbol {
			return records[i].Symbol < records[j].Symbol
		}
		return records[i].Date < records[j].Date
	})

	dst := writer.QCPath(r.cfg.QC.OutputDir)
	if err := writer.WriteQC(dst, records); err != nil {
		return outcome, err
	}
	if err := r.mirrorUpload(ctx, r.cfg.QC.OutputDir, dst); err != nil {
		return outcome, err
	}
	return outcome, nil
}

func (r *Runner) mirrorUpload(ctx context.Context, root, path string) error {
	if r.mirror == nil {
		return nil
	}
	return r.mirror.Upload(ctx, root, path)
}
