package anthropic

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Tickets print month abbreviations in English or French.
var months = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "FEV": time.February,
	"MAR": time.March, "APR": time.April, "AVR": time.April,
	"MAY": time.May, "JUN": time.June, "JUL": time.July,
	"AUG": time.August, "AOU": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

var compactDateRe = regexp.MustCompile(`^(\d{2})([A-Z]{3})(\d{2}|\d{4})?$`)

// NormalizeDate converts the date formats found on printed tickets to
// YYYY-MM-DD. Supported inputs: "29JUL", "29JUL24", "29JUL2024", "29/07",
// "29/07/24", "29/07/2024" and already-normalized "2024-07-29". When the year
// is omitted the current year is assumed; a printed year that is not the
// current year is left alone so the rule engine can reject it. The second
// return value reports whether normalization succeeded; on failure the raw
// string should be kept as-is.
func NormalizeDate(raw string, now time.Time) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return raw, false
	}
	if _, err := time.Parse("2006-01-02", s); err == nil {
		return s, true
	}

	if m := compactDateRe.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, ok := months[m[2]]
		if !ok {
			return raw, false
		}
		year, ok := resolveYear(m[3], now)
		if !ok {
			return raw, false
		}
		if normalized, ok := formatDate(year, month, day); ok {
			return normalized, true
		}
		return raw, false
	}

	if strings.Contains(s, "/") {
		parts := strings.Split(s, "/")
		if len(parts) < 2 || len(parts) > 3 {
			return raw, false
		}
		day, err1 := strconv.Atoi(parts[0])
		monthNum, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil || monthNum < 1 || monthNum > 12 {
			return raw, false
		}
		yearStr := ""
		if len(parts) == 3 {
			yearStr = parts[2]
		}
		year, ok := resolveYear(yearStr, now)
		if !ok {
			return raw, false
		}
		if normalized, ok := formatDate(year, time.Month(monthNum), day); ok {
			return normalized, true
		}
		return raw, false
	}

	return raw, false
}

func resolveYear(yearStr string, now time.Time) (int, bool) {
	switch len(yearStr) {
	case 0:
		return now.Year(), true
	case 2:
		y, err := strconv.Atoi(yearStr)
		if err != nil {
			return 0, false
		}
		return now.Year()/100*100 + y, true
	case 4:
		y, err := strconv.Atoi(yearStr)
		if err != nil {
			return 0, false
		}
		return y, true
	default:
		return 0, false
	}
}

func formatDate(year int, month time.Month, day int) (string, bool) {
	if day < 1 || day > 31 {
		return "", false
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (e.g. Feb 30), which means the printed
	// date was not a real calendar date.
	if d.Day() != day || d.Month() != month {
		return "", false
	}
	return d.Format("2006-01-02"), true
}
