package erp

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// dateWithOffset matches "2024-01-01+01:00", a date carrying only a UTC offset.
var dateWithOffset = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})([+-]\d{2}:\d{2})$`)

// ParsePrice reads a price with a comma decimal separator ("12,50" is 12.50).
// When a comma is present, dots are thousands separators ("1.234,50").
// Absent, unparsable and negative values are 0.
func ParsePrice(raw string) decimal.Decimal {
	s := strings.TrimSpace(raw)
	if strings.Contains(s, ",") {
		s = strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1)
	}
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// ParseVAT reads the leading integer of a tax descriptor ("22" is 22).
// Absent, unparsable and negative values are 0.
func ParseVAT(raw string) int {
	s := strings.TrimSpace(raw)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	v, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return v
}

// ParseAmount reads a stock amount, truncating fractions. Unparsable and negative values are 0.
func ParseAmount(raw string) int64 {
	d := ParsePrice(raw)
	return d.IntPart()
}

// ParseValidFrom reads a pricelist start. "YYYY-MM-DD+hh:mm" is midnight at that
// offset; RFC 3339 and bare dates (UTC) are accepted too. Anything else is the zero time.
func ParseValidFrom(raw string) time.Time {
	s := strings.TrimSpace(raw)
	if m := dateWithOffset.FindStringSubmatch(s); m != nil {
		s = m[1] + "T00:00:00" + m[2]
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t
	}
	return time.Time{}
}
