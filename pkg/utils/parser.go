package utils

import (
	"regexp"
	"strconv"
	"strings"

	"miogallery/pkg/logger"
)

// sizeRegex matches a number followed optionally by a unit string.
// It allows flexible spacing between the number and the unit.
var sizeRegex = regexp.MustCompile(`^(\d+)\s*([a-zA-Z]*)$`)

// unitMultipliers maps data size units to their byte values using binary
// prefixes. 1 KB = 1024 Bytes, 1 MB = 1024 * 1024 Bytes, etc.
var unitMultipliers = map[string]int64{
	"":   1,
	"B":  1,
	"KB": 1 << 10,
	"MB": 1 << 20,
	"GB": 1 << 30,
	"TB": 1 << 40,
}

// SizeToBytes parses a human-readable data size string ("50MB", "30 kb")
// into bytes. Returns defaultValue when the string does not parse.
func SizeToBytes(sizeStr string, defaultValue int64) int64 {
	rawStr := strings.TrimSpace(strings.ToUpper(sizeStr))
	if rawStr == "" {
		return defaultValue
	}

	matches := sizeRegex.FindStringSubmatch(rawStr)
	if len(matches) != 3 {
		logger.LogWarn("Utils: Invalid size format '%s', using default.", sizeStr)
		return defaultValue
	}

	value, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil || value <= 0 {
		logger.LogWarn("Utils: Invalid numeric value in '%s', using default.", sizeStr)
		return defaultValue
	}

	multiplier, exists := unitMultipliers[matches[2]]
	if !exists {
		logger.LogWarn("Utils: Unsupported unit in '%s', using default.", sizeStr)
		return defaultValue
	}

	return value * multiplier
}
