package utils

import (
	"strings"
	"time"
)

func BoolPtr(b bool) *bool {
	return &b
}

func Float64Ptr(f float64) *float64 {
	return &f
}

func StringPtr(s string) *string {
	return &s
}

func TimePtr(t time.Time) *time.Time {
	return &t
}

// NonEmptyPtr returns nil for blank strings so optional text columns store
// NULL instead of "".
func NonEmptyPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func PtrString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
