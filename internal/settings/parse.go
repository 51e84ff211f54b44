package settings

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Int reads a non-negative integer setting, returning fallback when absent or invalid.
func Int(key string, fallback int) int {
	if raw, ok := DBConfigValue(key); ok {
		if value, okParse := ParseNonNegativeInt(raw); okParse {
			return value
		}
	}
	return fallback
}

// Bool reads a boolean setting, returning fallback when absent or invalid.
func Bool(key string, fallback bool) bool {
	if raw, ok := DBConfigValue(key); ok {
		if value, okParse := ParseBool(raw); okParse {
			return value
		}
	}
	return fallback
}

// String reads a string setting, returning fallback when absent, invalid or blank.
func String(key string, fallback string) string {
	if raw, ok := DBConfigValue(key); ok {
		if value, okParse := ParseString(raw); okParse && value != "" {
			return value
		}
	}
	return fallback
}

// ParseBool accepts JSON booleans, 0/1 numbers and common yes/no strings.
func ParseBool(raw json.RawMessage) (bool, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false, false
	}
	var parsedBool bool
	if errUnmarshalBool := json.Unmarshal(raw, &parsedBool); errUnmarshalBool == nil {
		return parsedBool, true
	}
	var parsedString string
	if errUnmarshalString := json.Unmarshal(raw, &parsedString); errUnmarshalString == nil {
		switch strings.ToLower(strings.TrimSpace(parsedString)) {
		case "1", "true", "yes", "y", "on":
			return true, true
		case "0", "false", "no", "n", "off":
			return false, true
		default:
			return false, false
		}
	}
	var parsedFloat float64
	if errUnmarshalFloat := json.Unmarshal(raw, &parsedFloat); errUnmarshalFloat == nil {
		switch parsedFloat {
		case 1:
			return true, true
		case 0:
			return false, true
		}
	}
	return false, false
}

// ParseString accepts a JSON string and trims it.
func ParseString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	var parsedString string
	if errUnmarshal := json.Unmarshal(raw, &parsedString); errUnmarshal == nil {
		return strings.TrimSpace(parsedString), true
	}
	return "", false
}

// ParseNonNegativeInt accepts JSON integers, integral floats and numeric strings.
func ParseNonNegativeInt(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	var parsedInt int
	if errUnmarshalInt := json.Unmarshal(raw, &parsedInt); errUnmarshalInt == nil {
		return parsedInt, parsedInt >= 0
	}
	var parsedString string
	if errUnmarshalString := json.Unmarshal(raw, &parsedString); errUnmarshalString == nil {
		parsed, errParse := strconv.Atoi(strings.TrimSpace(parsedString))
		if errParse != nil {
			return 0, false
		}
		return parsed, parsed >= 0
	}
	var parsedFloat float64
	if errUnmarshalFloat := json.Unmarshal(raw, &parsedFloat); errUnmarshalFloat == nil {
		if math.IsNaN(parsedFloat) || math.IsInf(parsedFloat, 0) {
			return 0, false
		}
		if parsedFloat < 0 || parsedFloat != math.Trunc(parsedFloat) {
			return 0, false
		}
		return int(parsedFloat), true
	}
	return 0, false
}
