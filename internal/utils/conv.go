package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// QueryInt parses an optional integer query value. Empty input returns
// fallback; anything unparsable is an error.
func QueryInt(s string, fallback int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	return i, nil
}

// ParseUintID parses a positive numeric path id.
func ParseUintID(s string) (uint, bool) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
