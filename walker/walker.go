package walker

import (
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SourceKind distinguishes normalized cache files from raw tick archives.
type SourceKind string

const (
	SourceProcessed SourceKind = "processed"
	SourceRaw       SourceKind = "raw"
)

// DailyFile locates one (symbol, date) data file. Downstream components
// never branch on the physical layout it was discovered in.
type DailyFile struct {
	Symbol string
	Date   string
	Path   string
	Source SourceKind
}

// Walk enumerates the daily files for one symbol across the processed and
// raw roots, restricted to the inclusive [start, end] date range. Dates
// compare lexicographically, so they must be YYYY-MM-DD.
//
// Two physical layouts are discovered per root: a flat file named by date
// (<root>/<symbol>/<date>.parquet or <date>.csv.gz) and a nested directory
// per date (<root>/<symbol>/<date>/part.parquet or part.csv.gz). Processed
// files take no implicit precedence here; skip policy belongs to the
// caller.
//
// The sequence is lazy, finite and single-pass, ordered by session date
// regardless of which layout or root a file came from.
func Walk(processedDir, rawDir, symbol, start, end string) iter.Seq[DailyFile] {
	return func(yield func(DailyFile) bool) {
		var found []DailyFile
		found = append(found, discover(filepath.Join(processedDir, symbol), symbol, ".parquet", "part.parquet", SourceProcessed)...)
		found = append(found, discover(filepath.Join(rawDir, symbol), symbol, ".csv.gz", "part.csv.gz", SourceRaw)...)

		sort.SliceStable(found, func(i, j int) bool {
			if found[i].Date != found[j].Date {
				return found[i].Date < found[j].Date
			}
			return filepath.Base(found[i].Path) < filepath.Base(found[j].Path)
		})

		for _, f := range found {
			if f.Date < start || f.Date > end {
				continue
			}
			if !yield(f) {
				return
			}
		}
	}
}

// discover lists both layouts under one symbol directory. A missing
// directory yields nothing: absent data is not an error.
func discover(symbolDir, symbol, flatExt, partName string, kind SourceKind) []DailyFile {
	entries, err := os.ReadDir(symbolDir)
	if err != nil {
		return nil
	}

	var out []DailyFile
	for _, e := range entries {
		if e.IsDir() {
			part := filepath.Join(symbolDir, e.Name(), partName)
			if _, err := os.Stat(part); err == nil {
				out = append(out, DailyFile{
					Symbol: symbol,
					Date:   dateFromPath(part, symbol),
					Path:   part,
					Source: kind,
				})
			}
			continue
		}
		if strings.HasSuffix(e.Name(), flatExt) {
			p := filepath.Join(symbolDir, e.Name())
			out = append(out, DailyFile{
				Symbol: symbol,
				Date:   dateFromPath(p, symbol),
				Path:   p,
				Source: kind,
			})
		}
	}
	return out
}

// dateFromPath extracts the session date: the immediate parent directory
// name for the nested layout, else the file base name with its extension
// chain stripped.
func dateFromPath(path, symbol string) string {
	parent := filepath.Base(filepath.Dir(path))
	if parent != symbol {
		return parent
	}
	name := filepath.Base(path)
	if i := strings.Index(name, "."); i >= 0 {
		name = name[:i]
	}
	return name
}
