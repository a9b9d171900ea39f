package writer

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"ofiflow/models"
)

// DailyEvalPath locates the per-date evaluation table.
func DailyEvalPath(root string) string {
	return filepath.Join(root, "daily_ic.csv")
}

// SummaryPath locates the per-symbol summary table.
func SummaryPath(root string) string {
	return filepath.Join(root, "summary.csv")
}

// WriteDailyEval writes one row per evaluated (symbol, date). NaN values
// render as empty cells and grouped returns are joined with '|' so the
// column count stays fixed across group configurations.
func WriteDailyEval(path string, records []models.EvaluationRecord) error {
	header := []string{
		"symbol", "date", "ic", "ic_pvalue", "rank_ic", "rank_ic_pvalue",
		"n_samples", "long_short", "monotonic", "group_returns", "group_counts",
	}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.Symbol,
			r.Date,
			floatCell(r.IC),
			floatCell(r.ICPValue),
			floatCell(r.RankIC),
			floatCell(r.RankICPValue),
			strconv.Itoa(r.NSamples),
			floatCell(r.LongShort),
			strconv.FormatBool(r.Monotonic),
			joinFloats(r.GroupReturns),
			joinInts(r.GroupCounts),
		})
	}
	return writeCSV(path, header, rows)
}

// WriteSummary writes one row per symbol plus the pooled "ALL" row.
func WriteSummary(path string, summaries []models.SymbolSummary) error {
	header := []string{
		"symbol", "n_dates", "ic_mean", "ic_std", "ic_tstat",
		"rank_ic_mean", "rank_ic_std", "rank_ic_tstat",
		"long_short_mean", "monotonic_ratio", "significant",
	}
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{
			s.Symbol,
			strconv.Itoa(s.NDates),
			floatCell(s.ICMean),
			floatCell(s.ICStd),
			floatCell(s.ICTStat),
			floatCell(s.RankICMean),
			floatCell(s.RankICStd),
			floatCell(s.RankICTStat),
			floatCell(s.LongShortMean),
			floatCell(s.MonotonicRatio),
			strconv.FormatBool(s.Significant),
		})
	}
	return writeCSV(path, header, rows)
}

// writeCSV shares the temp-then-rename discipline of the parquet writers.
// Evaluation outputs are always regenerated, so there is no exists check.
func writeCSV(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp := fmt.Sprintf("%s.tmp-%s", path, uuid.New().String())
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp csv file: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write csv rows: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp csv file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish csv file: %w", err)
	}
	return nil
}

func floatCell(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func joinFloats(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = floatCell(v)
	}
	return strings.Join(parts, "|")
}

func joinInts(vs []int) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, "|")
}
