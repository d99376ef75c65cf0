package report

import (
	"fmt"
	"math"
	"strconv"
)

// formatByteSize renders size in human-readable units, matching the
// disc-size formatting the project has always used for large byte
// counts.
func formatByteSize(size float64) string {
	if size <= 0 {
		return "0 B"
	}
	units := []string{"B", "KB", "MB", "GB", "TB", "PB"}
	group := int(math.Log10(size) / math.Log10(1024))
	if group < 0 {
		group = 0
	}
	if group >= len(units) {
		group = len(units) - 1
	}
	return fmt.Sprintf("%.2f %s", size/math.Pow(1024, float64(group)), units[group])
}

// formatNumber adds thousands separators to n.
func formatNumber(n int64) string {
	if n == 0 {
		return "0"
	}
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return sign + s
	}
	out := make([]byte, 0, len(s)+len(s)/3)
	for i, c := range s {
		if i != 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, byte(c))
	}
	return sign + string(out)
}

// formatHexDec renders a value in the dual hex/decimal column style the
// original tool used for every geometry field: a fixed-width hex column
// followed by the decimal value.
func formatHexDec(label string, v uint64) string {
	return fmt.Sprintf("0x%010x %13s - %s", v, formatNumber(int64(v)), label)
}

// formatTimestamp renders a wfstime.Timestamp-shaped date/time. Taking
// the six already-decoded ints directly (rather than importing
// wfstime) keeps this package's only dependency on internal/wfs
// explicit and one-directional.
func formatTimestamp(year, month, day, hour, minute, second int, valid bool) string {
	if !valid {
		return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d (implausible)", year, month, day, hour, minute, second)
	}
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", year, month, day, hour, minute, second)
}
