package writer

import (
	"path/filepath"

	pqwriter "github.com/xitongsys/parquet-go/writer"

	"ofiflow/models"
)

// QCRow is the parquet schema of one daily data-quality record.
type QCRow struct {
	Symbol              string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Date                string  `parquet:"name=date, type=BYTE_ARRAY, convertedtype=UTF8"`
	NRows               int64   `parquet:"name=n_rows, type=INT64"`
	DupTsRatio          float64 `parquet:"name=dup_ts_ratio, type=DOUBLE"`
	CrossedRatio        float64 `parquet:"name=crossed_ratio, type=DOUBLE"`
	BadPriceCount       int64   `parquet:"name=bad_price_count, type=INT64"`
	SpreadMedian        float64 `parquet:"name=spread_median, type=DOUBLE"`
	RelSpreadMedian     float64 `parquet:"name=rel_spread_median, type=DOUBLE"`
	MaybeTruncatedRatio float64 `parquet:"name=maybe_truncated_ratio, type=DOUBLE"`
	TsMin               int64   `parquet:"name=ts_min, type=INT64"`
	TsMax               int64   `parquet:"name=ts_max, type=INT64"`
}

// QCPath locates the pooled data-quality summary.
func QCPath(root string) string {
	return filepath.Join(root, "qc.parquet")
}

// WriteQC persists the full data-quality summary in one parquet file.
// The summary covers every unit of a run, so it is always regenerated.
func WriteQC(path string, records []models.QCRecord) error {
	return writeParquet(path, new(QCRow), len(records), func(pw *pqwriter.ParquetWriter) error {
		for _, r := range records {
			row := QCRow{
				Symbol:              r.Symbol,
				Date:                r.Date,
				NRows:               int64(r.NRows),
				DupTsRatio:          r.DupTsRatio,
				CrossedRatio:        r.CrossedRatio,
				BadPriceCount:       int64(r.BadPriceCount),
				SpreadMedian:        r.SpreadMedian,
				RelSpreadMedian:     r.RelSpreadMedian,
				MaybeTruncatedRatio: r.MaybeTruncatedRatio,
				TsMin:               r.TsMin,
				TsMax:               r.TsMax,
			}
			if err := pw.Write(row); err != nil {
				return err
			}
		}
		return nil
	}, true)
}
