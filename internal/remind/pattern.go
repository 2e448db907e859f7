package remind

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind enumerates the supported recurrence cadences.
type Kind string

const (
	KindNone    Kind = "none"
	KindDaily   Kind = "daily"
	KindWeekly  Kind = "weekly"
	KindMonthly Kind = "monthly"
	KindHourly  Kind = "hourly"
	// KindEveryHours and KindEveryDays carry a count in Pattern.N.
	KindEveryHours Kind = "every_hours"
	KindEveryDays  Kind = "every_days"
)

// Pattern describes how a reminder repeats. The zero value means "no repeat".
type Pattern struct {
	Kind Kind
	N    int
}

func (p Pattern) IsZero() bool { return p.Kind == "" || p.Kind == KindNone }

// String renders the storage form: "daily", "every_3_hours", ...
func (p Pattern) String() string {
	switch p.Kind {
	case "", KindNone:
		return string(KindNone)
	case KindEveryHours:
		return fmt.Sprintf("every_%d_hours", p.N)
	case KindEveryDays:
		return fmt.Sprintf("every_%d_days", p.N)
	default:
		return string(p.Kind)
	}
}

// ParsePattern parses the storage form back into a Pattern.
// Unknown or malformed values come back as the zero (non-repeating) pattern.
func ParsePattern(s string) Pattern {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", string(KindNone):
		return Pattern{}
	case string(KindDaily):
		return Pattern{Kind: KindDaily}
	case string(KindWeekly):
		return Pattern{Kind: KindWeekly}
	case string(KindMonthly):
		return Pattern{Kind: KindMonthly}
	case string(KindHourly):
		return Pattern{Kind: KindHourly}
	}
	parts := strings.Split(s, "_")
	if len(parts) == 3 && parts[0] == "every" {
		n, err := strconv.Atoi(parts[1])
		if err != nil || n <= 0 {
			return Pattern{}
		}
		switch parts[2] {
		case "hour", "hours":
			return Pattern{Kind: KindEveryHours, N: n}
		case "day", "days":
			return Pattern{Kind: KindEveryDays, N: n}
		}
	}
	return Pattern{}
}
