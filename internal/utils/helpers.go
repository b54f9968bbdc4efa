package utils

import (
	"fmt"
	"strings"
	"time"
)

func ParseYMD(s string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	// strip time to midnight UTC to match DATE semantics
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// ParseDateWindow parses optional YYYY-MM-DD bounds. Blank values come back nil.
func ParseDateWindow(from, to string) (*time.Time, *time.Time, error) {
	var fromPtr, toPtr *time.Time
	if fd := strings.TrimSpace(from); fd != "" {
		t, err := ParseYMD(fd)
		if err != nil {
			return nil, nil, fmt.Errorf("from date must be YYYY-MM-DD: %w", err)
		}
		fromPtr = &t
	}
	if td := strings.TrimSpace(to); td != "" {
		t, err := ParseYMD(td)
		if err != nil {
			return nil, nil, fmt.Errorf("to date must be YYYY-MM-DD: %w", err)
		}
		toPtr = &t
	}
	if fromPtr != nil && toPtr != nil && toPtr.Before(*fromPtr) {
		return nil, nil, fmt.Errorf("to date %s is before from date %s", to, from)
	}
	return fromPtr, toPtr, nil
}

// StrOrEmpty dereferences p, treating nil as "".
func StrOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
