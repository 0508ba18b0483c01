package pharmacy

import (
	"fmt"
	"strconv"
	"strings"
)

// CodeDigits is the zero-padded width of the numeric part of a code.
const CodeDigits = 6

// Series is a named sequence of codes sharing a prefix.
type Series struct {
	Name   string
	Prefix string
}

var (
	SeriesTransaction = Series{Name: "transactions", Prefix: "TXN"}
	SeriesPatient     = Series{Name: "patients", Prefix: "P"}
)

// Code formats the n-th code of the series.
func (s Series) Code(n int64) string {
	return FormatCode(s.Prefix, n)
}

// FormatCode renders prefix + n zero-padded to six digits. Counters past
// 999999 keep growing in width.
func FormatCode(prefix string, n int64) string {
	return fmt.Sprintf("%s%0*d", prefix, CodeDigits, n)
}

// ParseCode extracts the counter from a code of the given prefix.
func ParseCode(prefix, code string) (int64, error) {
	if !strings.HasPrefix(code, prefix) {
		return 0, fmt.Errorf("code %q does not start with %q", code, prefix)
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(code, prefix), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("code %q has no numeric suffix", code)
	}
	return n, nil
}
