package util

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// MiB is the number of bytes in a mebibyte.
const MiB = 1 << 20

var sizeUnits = map[string]int64{
	"":  1,
	"B": 1,
	"K": 1 << 10, "KB": 1 << 10, "KIB": 1 << 10,
	"M": MiB, "MB": MiB, "MIB": MiB,
	"G": 1 << 30, "GB": 1 << 30, "GIB": 1 << 30,
	"T": 1 << 40, "TB": 1 << 40, "TIB": 1 << 40,
}

// ParseSize converts a human-readable size such as "4G" or "512MiB" to
// bytes. Units are binary; a bare number is a byte count. An empty string
// or zero means no limit and yields 0. Anything else must come to at
// least one MiB, so a forgotten unit is an error rather than a tiny limit.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	i := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.'
	})
	if i == -1 {
		i = len(s)
	}
	num, unit := s[:i], strings.ToUpper(strings.TrimSpace(s[i:]))

	value, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	mult, ok := sizeUnits[unit]
	if !ok {
		return 0, fmt.Errorf("unknown size unit %q in %q", unit, s)
	}

	bytes := int64(value * float64(mult))
	if bytes == 0 && value == 0 {
		return 0, nil
	}
	if bytes < MiB {
		return 0, fmt.Errorf("size %q is below 1MiB; add a unit such as M or G", s)
	}
	return bytes, nil
}
