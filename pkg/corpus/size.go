package corpus

import (
	"fmt"
	"strconv"
	"strings"
)

// sizeSuffixes maps single-letter size suffixes to base-1024 multipliers.
var sizeSuffixes = map[byte]int64{
	'B': 1,
	'K': 1 << 10,
	'M': 1 << 20,
	'G': 1 << 30,
	'T': 1 << 40,
}

// ParseSize parses a byte count with an optional single-letter suffix
// (B, K, M, G, T; base 1024). A bare number is taken as bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("parse size: empty string")
	}

	coeff := int64(1)
	if mul, ok := sizeSuffixes[s[len(s)-1]]; ok {
		coeff = mul
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse size: %w", err)
	}
	if n < 0 {
		return 0, fmt.Errorf("parse size: negative size %d", n)
	}
	return n * coeff, nil
}

// FormatSize renders a byte count with the largest exact-ish base-1024 unit,
// for human-facing summaries.
func FormatSize(n int64) string {
	const units = "BKMGT"
	f := float64(n)
	i := 0
	for f >= 1024 && i < len(units)-1 {
		f /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%dB", n)
	}
	return fmt.Sprintf("%.1f%c", f, units[i])
}
