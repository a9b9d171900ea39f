// Persists normalized tick tables and bar tables as one parquet file per
// (symbol, date). Writes go to a temp file in the destination directory and
// are renamed into place, so readers never observe a half-written entry.
package writer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	pqwriter "github.com/xitongsys/parquet-go/writer"

	"ofiflow/logger"
	"ofiflow/models"
)

// TickRow is the parquet schema of one normalized snapshot.
type TickRow struct {
	Ts         int64   `parquet:"name=ts, type=INT64"`
	Code       string  `parquet:"name=code, type=BYTE_ARRAY, convertedtype=UTF8"`
	Date       string  `parquet:"name=date, type=BYTE_ARRAY, convertedtype=UTF8"`
	Current    float64 `parquet:"name=current, type=DOUBLE"`
	Volume     float64 `parquet:"name=volume, type=DOUBLE"`
	Money      float64 `parquet:"name=money, type=DOUBLE"`
	A1P        float64 `parquet:"name=a1_p, type=DOUBLE"`
	A2P        float64 `parquet:"name=a2_p, type=DOUBLE"`
	A3P        float64 `parquet:"name=a3_p, type=DOUBLE"`
	A4P        float64 `parquet:"name=a4_p, type=DOUBLE"`
	A5P        float64 `parquet:"name=a5_p, type=DOUBLE"`
	A1V        float64 `parquet:"name=a1_v, type=DOUBLE"`
	A2V        float64 `parquet:"name=a2_v, type=DOUBLE"`
	A3V        float64 `parquet:"name=a3_v, type=DOUBLE"`
	A4V        float64 `parquet:"name=a4_v, type=DOUBLE"`
	A5V        float64 `parquet:"name=a5_v, type=DOUBLE"`
	B1P        float64 `parquet:"name=b1_p, type=DOUBLE"`
	B2P        float64 `parquet:"name=b2_p, type=DOUBLE"`
	B3P        float64 `parquet:"name=b3_p, type=DOUBLE"`
	B4P        float64 `parquet:"name=b4_p, type=DOUBLE"`
	B5P        float64 `parquet:"name=b5_p, type=DOUBLE"`
	B1V        float64 `parquet:"name=b1_v, type=DOUBLE"`
	B2V        float64 `parquet:"name=b2_v, type=DOUBLE"`
	B3V        float64 `parquet:"name=b3_v, type=DOUBLE"`
	B4V        float64 `parquet:"name=b4_v, type=DOUBLE"`
	B5V        float64 `parquet:"name=b5_v, type=DOUBLE"`
	MaybeTrunc float64 `parquet:"name=maybe_truncated, type=DOUBLE"`
}

// BarRow is the parquet schema of one labeled bar.
type BarRow struct {
	Start     int64   `parquet:"name=start, type=INT64"`
	OFI       float64 `parquet:"name=ofi, type=DOUBLE"`
	MidClose  float64 `parquet:"name=mid_close, type=DOUBLE"`
	SpreadMed float64 `parquet:"name=spread_med, type=DOUBLE"`
	NTicks    int32   `parquet:"name=n_ticks, type=INT32"`
	RetFwd    float64 `parquet:"name=ret_fwd, type=DOUBLE"`
}

// TickPath is the deterministic cache location of one normalized table.
func TickPath(root, symbol, date string) string {
	return filepath.Join(root, "ticks", symbol, date, "part.parquet")
}

// BarPath is the deterministic location of one bar table.
func BarPath(root, symbol, date string) string {
	return filepath.Join(root, symbol, date+".parquet")
}

// WriteTicks persists a normalized table. With overwrite false an existing
// entry is authoritative and the write returns models.ErrCacheExists.
func WriteTicks(path string, t *models.NormalizedTable, overwrite bool) error {
	rows := make([]TickRow, 0, t.Len())
	for i := range t.Rows {
		s := &t.Rows[i]
		rows = append(rows, TickRow{
			Ts:         s.Ts,
			Code:       s.Symbol,
			Date:       s.Date,
			Current:    s.LastPrice,
			Volume:     s.CumVolume,
			Money:      s.CumTurnover,
			A1P:        s.AskPrice[0],
			A2P:        s.AskPrice[1],
			A3P:        s.AskPrice[2],
			A4P:        s.AskPrice[3],
			A5P:        s.AskPrice[4],
			A1V:        s.AskVolume[0],
			A2V:        s.AskVolume[1],
			A3V:        s.AskVolume[2],
			A4V:        s.AskVolume[3],
			A5V:        s.AskVolume[4],
			B1P:        s.BidPrice[0],
			B2P:        s.BidPrice[1],
			B3P:        s.BidPrice[2],
			B4P:        s.BidPrice[3],
			B5P:        s.BidPrice[4],
			B1V:        s.BidVolume[0],
			B2V:        s.BidVolume[1],
			B3V:        s.BidVolume[2],
			B4V:        s.BidVolume[3],
			B5V:        s.BidVolume[4],
			MaybeTrunc: s.MaybeTruncated,
		})
	}
	return writeParquet(path, new(TickRow), len(rows), func(pw *pqwriter.ParquetWriter) error {
		for i := range rows {
			if err := pw.Write(rows[i]); err != nil {
				return err
			}
		}
		return nil
	}, overwrite)
}

// ReadTicks loads a cached normalized table. The fallback symbol and date
// identify the partition when the stored rows carry empty identifiers.
func ReadTicks(path, symbol, date string) (*models.NormalizedTable, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open tick cache %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(TickRow), parallelism)
	if err != nil {
		return nil, fmt.Errorf("parquet reader for %s: %w", path, err)
	}
	defer pr.ReadStop()

	n := int(pr.GetNumRows())
	rows := make([]TickRow, n)
	if err := pr.Read(&rows); err != nil {
		return nil, fmt.Errorf("read tick cache %s: %w", path, err)
	}

	tbl := &models.NormalizedTable{Symbol: symbol, Date: date, Rows: make([]models.Snapshot, n)}
	for i := range rows {
		r := &rows[i]
		s := &tbl.Rows[i]
		s.Ts = r.Ts
		s.Symbol = r.Code
		s.Date = r.Date
		s.LastPrice = r.Current
		s.CumVolume = r.Volume
		s.CumTurnover = r.Money
		s.AskPrice = [models.BookLevels]float64{r.A1P, r.A2P, r.A3P, r.A4P, r.A5P}
		s.AskVolume = [models.BookLevels]float64{r.A1V, r.A2V, r.A3V, r.A4V, r.A5V}
		s.BidPrice = [models.BookLevels]float64{r.B1P, r.B2P, r.B3P, r.B4P, r.B5P}
		s.BidVolume = [models.BookLevels]float64{r.B1V, r.B2V, r.B3V, r.B4V, r.B5V}
		s.MaybeTruncated = r.MaybeTrunc
	}
	if n > 0 && tbl.Rows[0].Symbol != "" {
		tbl.Symbol = tbl.Rows[0].Symbol
		tbl.Date = tbl.Rows[0].Date
	}
	return tbl, nil
}

// WriteBars persists a labeled bar table with the same atomic discipline as
// WriteTicks.
func WriteBars(path string, bars []models.Bar, overwrite bool) error {
	return writeParquet(path, new(BarRow), len(bars), func(pw *pqwriter.ParquetWriter) error {
		for _, b := range bars {
			row := BarRow{
				Start:     b.Start,
				OFI:       b.OFI,
				MidClose:  b.MidClose,
				SpreadMed: b.SpreadMed,
				NTicks:    b.NTicks,
				RetFwd:    b.RetFwd,
			}
			if err := pw.Write(row); err != nil {
				return err
			}
		}
		return nil
	}, overwrite)
}

// ReadBars loads one bar table.
func ReadBars(path string) ([]models.Bar, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open bar file %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(BarRow), parallelism)
	if err != nil {
		return nil, fmt.Errorf("parquet reader for %s: %w", path, err)
	}
	defer pr.ReadStop()

	n := int(pr.GetNumRows())
	rows := make([]BarRow, n)
	if err := pr.Read(&rows); err != nil {
		return nil, fmt.Errorf("read bar file %s: %w", path, err)
	}

	bars := make([]models.Bar, n)
	for i, r := range rows {
		bars[i] = models.Bar{
			Start:     r.Start,
			OFI:       r.OFI,
			MidClose:  r.MidClose,
			SpreadMed: r.SpreadMed,
			NTicks:    r.NTicks,
			RetFwd:    r.RetFwd,
		}
	}
	return bars, nil
}

const parallelism = 4

// writeParquet writes rows to a temp file next to the destination and
// renames it into place. A concurrent writer for the same (symbol, date)
// cannot collide because the temp name embeds a fresh UUID; the first
// rename wins and later writers defer to the existing entry.
func writeParquet(path string, schema interface{}, nRows int, emit func(*pqwriter.ParquetWriter) error, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return models.ErrCacheExists
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp := fmt.Sprintf("%s.tmp-%s", path, uuid.New().String())
	fw, err := local.NewLocalFileWriter(tmp)
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}

	pw, err := pqwriter.NewParquetWriter(fw, schema, parallelism)
	if err != nil {
		fw.Close()
		os.Remove(tmp)
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	if err := emit(pw); err != nil {
		pw.WriteStop()
		fw.Close()
		os.Remove(tmp)
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		os.Remove(tmp)
		return fmt.Errorf("finalize parquet file: %w", err)
	}
	if err := fw.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp cache file: %w", err)
	}

	if !overwrite {
		// Re-check after the expensive write: a sibling may have won the
		// race. The existing entry is authoritative.
		if _, err := os.Stat(path); err == nil {
			os.Remove(tmp)
			return models.ErrCacheExists
		}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish cache file: %w", err)
	}

	logger.AddCacheWrite()
	return nil
}
