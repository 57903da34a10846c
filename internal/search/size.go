package search

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var sizePattern = regexp.MustCompile(`(?i)^([0-9][0-9.,' ]*)\s*([kmgtp]?)(i?b|bytes?)?$`)

var sizeMultipliers = map[string]float64{
	"":  1,
	"k": 1 << 10,
	"m": 1 << 20,
	"g": 1 << 30,
	"t": 1 << 40,
	"p": 1 << 50,
}

// ParseSize converts a declared size ("4.12 GB", "1,5 GiB", "734003200")
// into bytes using binary multiples. Unparsable input yields 0.
func ParseSize(raw string) int64 {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0
	}
	match := sizePattern.FindStringSubmatch(value)
	if match == nil {
		return 0
	}

	number, ok := parseSizeNumber(match[1])
	if !ok || number < 0 {
		return 0
	}
	multiplier := sizeMultipliers[strings.ToLower(match[2])]
	bytes := math.Round(number * multiplier)
	if bytes >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(bytes)
}

// parseSizeNumber accepts both "1,234.5" and "1.234,5": the last separator
// present is the decimal point, earlier ones are grouping.
func parseSizeNumber(raw string) (float64, bool) {
	value := strings.NewReplacer(" ", "", "'", "").Replace(strings.TrimSpace(raw))
	lastDot := strings.LastIndexByte(value, '.')
	lastComma := strings.LastIndexByte(value, ',')

	switch {
	case lastDot >= 0 && lastComma >= 0 && lastComma > lastDot:
		value = strings.ReplaceAll(value, ".", "")
		value = strings.Replace(value, ",", ".", 1)
	case lastDot >= 0 && lastComma >= 0:
		value = strings.ReplaceAll(value, ",", "")
	case lastComma >= 0:
		if strings.Count(value, ",") > 1 {
			value = strings.ReplaceAll(value, ",", "")
		} else {
			value = strings.Replace(value, ",", ".", 1)
		}
	case strings.Count(value, ".") > 1:
		value = strings.ReplaceAll(value, ".", "")
	}

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, false
	}
	return parsed, true
}

// FormatSize renders bytes with binary multiples and one decimal,
// the inverse of ParseSize for display purposes.
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return ""
	}
	const units = "KMGTP"
	if bytes < 1<<10 {
		return strconv.FormatInt(bytes, 10) + " B"
	}
	value := float64(bytes)
	unit := -1
	for value >= 1024 && unit < len(units)-1 {
		value /= 1024
		unit++
	}
	return strconv.FormatFloat(value, 'f', 1, 64) + " " + string(units[unit]) + "B"
}
