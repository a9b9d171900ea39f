package reader

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"ofiflow/logger"
	"ofiflow/models"
)

// Required raw columns after case-insensitive header normalization. The
// code and date columns may be absent when the caller supplies fallback
// identifiers derived from the file path.
var (
	baseColumns     = []string{"code", "date", "time", "current", "volume", "money"}
	priceColumns    = levelColumns("_p")
	volumeColumns   = levelColumns("_v")
	requiredColumns = func() []string {
		cols := append([]string{}, baseColumns...)
		cols = append(cols, priceColumns...)
		cols = append(cols, volumeColumns...)
		return cols
	}()
)

func levelColumns(suffix string) []string {
	cols := make([]string, 0, 2*models.BookLevels)
	for k := 1; k <= models.BookLevels; k++ {
		cols = append(cols, fmt.Sprintf("a%d%s", k, suffix))
	}
	for k := 1; k <= models.BookLevels; k++ {
		cols = append(cols, fmt.Sprintf("b%d%s", k, suffix))
	}
	return cols
}

// Options controls how a raw file is parsed. Lenient enables the
// skip-bad-lines fallback for malformed CSV rows; it trades completeness
// for availability and is an explicit opt-in, never the default.
type Options struct {
	Lenient bool
}

// ReadRawLOB parses one gzip-compressed daily CSV of order-book snapshots
// into a validated, time-ordered table. fallbackSymbol and fallbackDate are
// used only when the file itself lacks the code/date columns.
func ReadRawLOB(path, fallbackSymbol, fallbackDate string, opts Options) (*models.NormalizedTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raw file: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("gzip reader for %s: %w", path, err)
	}
	defer gz.Close()

	return parseCSV(gz, path, fallbackSymbol, fallbackDate, opts)
}

func parseCSV(r io.Reader, path, fallbackSymbol, fallbackDate string, opts Options) (*models.NormalizedTable, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	if opts.Lenient {
		cr.FieldsPerRecord = -1
		cr.LazyQuotes = true
	}

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var missing []string
	for _, name := range requiredColumns {
		if _, ok := col[name]; ok {
			continue
		}
		// code/date can be backfilled from the path-derived identifiers.
		if name == "code" && fallbackSymbol != "" {
			continue
		}
		if name == "date" && fallbackDate != "" {
			continue
		}
		missing = append(missing, name)
	}
	if len(missing) > 0 {
		return nil, &models.SchemaError{File: path, Missing: missing}
	}

	log := logger.GetLogger().WithComponent("lob_reader").WithFields(logger.Fields{"file": path})

	var (
		rows        []models.Snapshot
		badTs       int
		badTsSample string
		dropped     int
		skippedCSV  int
	)

	width := len(header)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if opts.Lenient {
				skippedCSV++
				continue
			}
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if opts.Lenient && len(rec) != width {
			skippedCSV++
			continue
		}

		field := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		// ReuseRecord means retained strings must be cloned off the
		// reader's buffer.
		symbol := strings.Clone(field("code"))
		if symbol == "" {
			symbol = fallbackSymbol
		}
		date := strings.Clone(field("date"))
		if date == "" {
			date = fallbackDate
		}

		// The backfilled date also serves the time-of-day fallback parse
		// when the file carries no date column.
		ts, ok := ParseTimestamp(field("time"), date)
		if !ok {
			badTs++
			if badTsSample == "" {
				badTsSample = strings.Clone(field("time"))
			}
			continue
		}

		s := models.Snapshot{
			Ts:             ts,
			Symbol:         symbol,
			Date:           date,
			LastPrice:      toFloat(field("current")),
			CumVolume:      toFloat(field("volume")),
			CumTurnover:    toFloat(field("money")),
			MaybeTruncated: toFloat(field("maybe_truncated")),
		}
		for k := 0; k < models.BookLevels; k++ {
			s.AskPrice[k] = toFloat(field(fmt.Sprintf("a%d_p", k+1)))
			s.AskVolume[k] = toFloat(field(fmt.Sprintf("a%d_v", k+1)))
			s.BidPrice[k] = toFloat(field(fmt.Sprintf("b%d_p", k+1)))
			s.BidVolume[k] = toFloat(field(fmt.Sprintf("b%d_v", k+1)))
		}

		if !s.Valid() {
			dropped++
			continue
		}
		rows = append(rows, s)
	}

	// Downstream ordering assumes a fully parsed table, so any unparsable
	// timestamp fails the whole file rather than skipping the row.
	if badTs > 0 {
		return nil, &models.TimestampParseError{File: path, Rows: badTs, Sample: badTsSample}
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Ts < rows[j].Ts })

	if dropped > 0 || skippedCSV > 0 {
		logger.AddRowsDropped(int64(dropped + skippedCSV))
		log.WithFields(logger.Fields{
			"invalid_price_rows": dropped,
			"skipped_csv_rows":   skippedCSV,
			"kept_rows":          len(rows),
		}).Debug("dropped raw rows")
	}

	symbol, date := fallbackSymbol, fallbackDate
	if len(rows) > 0 {
		symbol, date = rows[0].Symbol, rows[0].Date
	}

	return &models.NormalizedTable{Symbol: symbol, Date: date, Rows: rows}, nil
}

// toFloat coerces a raw field to float64, NaN when empty or non-numeric.
func toFloat(s string) float64 {
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
