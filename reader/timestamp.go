package reader

import (
	"strings"
	"time"
)

// ParseTimestamp reconstructs a microsecond-precision instant from the raw
// time field, with the raw date field as fallback. Supported encodings:
//
//   - 14 digits: YYYYMMDDHHMMSS
//   - 17 digits: YYYYMMDDHHMMSS plus a 3-digit millisecond suffix
//   - anything else: digits of the date field concatenated with the time
//     field zero-padded to 6 digits, parsed as YYYYMMDDHHMMSS
//
// The boolean result is false when none of the forms apply.
func ParseTimestamp(timeField, dateField string) (int64, bool) {
	t := cleanDigits(timeField)

	switch len(t) {
	case 14:
		if ts, ok := parseCompact(t); ok {
			return ts, true
		}
	case 17:
		if ts, ok := parseCompact(t[:14]); ok {
			ms, ok2 := atoiDigits(t[14:])
			if ok2 {
				return ts + int64(ms)*1000, true
			}
		}
	}

	// Fallback: separate date field plus a time-of-day coerced to 6 digits.
	d := cleanDigits(dateField)
	if len(t) > 0 && len(t) < 6 {
		t = strings.Repeat("0", 6-len(t)) + t
	}
	comb := d + t
	if len(comb) == 14 {
		return parseCompact(comb)
	}
	return 0, false
}

// cleanDigits strips a float artifact ".0" and any remaining non-digit
// characters. Raw time fields show up as 20210324093000.0 or with
// separators depending on the upstream dump.
func cleanDigits(s string) string {
	s = strings.ReplaceAll(s, ".0", "")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// parseCompact parses a 14-digit YYYYMMDDHHMMSS string into microseconds
// since the epoch, UTC.
func parseCompact(s string) (int64, bool) {
	if len(s) != 14 {
		return 0, false
	}
	year, ok1 := atoiDigits(s[0:4])
	month, ok2 := atoiDigits(s[4:6])
	day, ok3 := atoiDigits(s[6:8])
	hour, ok4 := atoiDigits(s[8:10])
	minute, ok5 := atoiDigits(s[10:12])
	sec, ok6 := atoiDigits(s[12:14])
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
		return 0, false
	}
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || sec > 60 {
		return 0, false
	}
	tm := time.Date(year, time.Month(month), day, hour, minute, sec, 0, time.UTC)
	// Reject normalized overflows such as day 31 in a 30-day month.
	if tm.Day() != day || int(tm.Month()) != month {
		return 0, false
	}
	return tm.UnixMicro(), true
}

func atoiDigits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}
