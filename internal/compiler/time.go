package compiler

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aretw0/mobility/pkg/domain"
)

// ParseTimeLiteral splits an optional anchor character off s and parses the
// remainder with ParseTime.
func ParseTimeLiteral(s string) (domain.Anchor, int64, error) {
	s = strings.TrimSpace(s)
	anchor := domain.AnchorAbsolute
	if s != "" {
		switch s[0] {
		case '@':
			anchor = domain.AnchorProcStart
		case '+':
			anchor = domain.AnchorNow
		case '^':
			anchor = domain.AnchorPrevious
		}
		if anchor != domain.AnchorAbsolute {
			s = s[1:]
		}
	}
	ms, err := ParseTime(s)
	if err != nil {
		return anchor, -1, err
	}
	return anchor, ms, nil
}

// ParseTime converts "[minutes:]seconds[.millis]" into milliseconds.
//
// The literal is split on the last ':' (minutes on the left), then on '.';
// the digits after '.' are a raw millisecond count, so "0.1" is 1ms, not
// 100ms. An empty literal or a negative sum yields -1 ("none"). A literal
// whose value does not fit in an int64 millisecond count is ErrBadTime.
func ParseTime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return -1, nil
	}
	orig := s
	var total int64
	outOfRange := fmt.Errorf("%w %q: out of range", ErrBadTime, orig)

	if i := strings.LastIndex(s, ":"); i >= 0 {
		mins, err := parsePart(s[:i])
		if err != nil {
			return -1, fmt.Errorf("%w %q: minutes: %v", ErrBadTime, orig, err)
		}
		ms, ok := scale(mins, 60000)
		if !ok {
			return -1, outOfRange
		}
		total = ms
		s = s[i+1:]
	}

	if i := strings.Index(s, "."); i >= 0 {
		millis, err := parsePart(s[i+1:])
		if err != nil {
			return -1, fmt.Errorf("%w %q: millis: %v", ErrBadTime, orig, err)
		}
		var ok bool
		if total, ok = sum(total, millis); !ok {
			return -1, outOfRange
		}
		s = s[:i]
	}

	secs, err := parsePart(s)
	if err != nil {
		return -1, fmt.Errorf("%w %q: seconds: %v", ErrBadTime, orig, err)
	}
	ms, ok := scale(secs, 1000)
	if !ok {
		return -1, outOfRange
	}
	if total, ok = sum(total, ms); !ok {
		return -1, outOfRange
	}

	if total < 0 {
		return -1, nil
	}
	return total, nil
}

func scale(v, unit int64) (int64, bool) {
	if v > math.MaxInt64/unit || v < math.MinInt64/unit {
		return 0, false
	}
	return v * unit, true
}

func sum(a, b int64) (int64, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}

func parsePart(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
