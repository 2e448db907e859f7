// Package parse turns Spanish free-form text into a reminder candidate.
//
// The parser is deliberately not a grammar: recurrence, date, time and
// message extraction are independent best-effort passes over the same text,
// each with an explicit default, so Parse is total over its input domain.
// Ambiguity is resolved by fixed table order, never by scoring.
package parse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"remibot/internal/remind"
)

// Reminder is the transient parser output. It is never persisted directly;
// the bot maps it into a stored reminder.
type Reminder struct {
	Date    time.Time // calendar day at midnight in the parse location
	Hour    int
	Minute  int
	Pattern remind.Pattern
	Message string
}

// FireAt combines the parsed day and clock time into a single instant.
func (r *Reminder) FireAt() time.Time {
	return time.Date(r.Date.Year(), r.Date.Month(), r.Date.Day(), r.Hour, r.Minute, 0, 0, r.Date.Location())
}

// Parse extracts a reminder from free text. It returns nil when the text has
// no reminder intent (no trigger word). Any other input produces a complete
// Reminder: missing pieces are filled with defaults (today, now+1h, the
// original text as message). Parse never fails on malformed dates or times.
func Parse(text string, now time.Time, loc *time.Location) *Reminder {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	lower := strings.ToLower(strings.TrimSpace(text))

	if !hasTrigger(lower) {
		return nil
	}

	pattern := extractPattern(lower)
	date := extractDate(lower, now, loc)
	hour, minute, ok := extractTime(lower)
	if !ok {
		// Default: one hour from now, truncated to the minute.
		fut := now.Add(time.Hour)
		hour, minute = fut.Hour(), fut.Minute()
	}

	return &Reminder{
		Date:    date,
		Hour:    hour,
		Minute:  minute,
		Pattern: pattern,
		Message: extractMessage(text, lower),
	}
}

func hasTrigger(lower string) bool {
	for _, w := range triggerWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func extractPattern(lower string) remind.Pattern {
	for _, row := range recurrenceTable {
		m := row.re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		p := remind.Pattern{Kind: row.kind}
		if len(m) > 1 && m[1] != "" {
			n, err := strconv.Atoi(m[1])
			if err != nil || n <= 0 {
				continue
			}
			p.N = n
		}
		return p
	}
	return remind.Pattern{}
}

// extractDate resolves the target day, first match wins:
// explicit D/M[/Y], then hoy/mañana/pasado mañana, then a weekday name,
// then today as the default.
func extractDate(lower string, now time.Time, loc *time.Location) time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	if m := dateRe.FindStringSubmatch(lower); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year := now.Year()
		explicitYear := m[3] != ""
		if explicitYear {
			year, _ = strconv.Atoi(m[3])
			if year < 100 {
				year += 2000
			}
		}
		if d, valid := civilDate(year, month, day, loc); valid {
			// A past date without an explicit year means the next
			// occurrence of that day/month.
			if d.Before(today) && !explicitYear {
				if next, ok := civilDate(year+1, month, day, loc); ok {
					return next
				}
			}
			return d
		}
	}

	for _, rw := range relativeDays {
		if strings.Contains(lower, rw.word) {
			return today.AddDate(0, 0, rw.days)
		}
	}

	if m := weekdayRe.FindString(lower); m != "" {
		if wd, ok := weekdayByName(m); ok {
			// Strictly after today: the same weekday resolves to next week.
			days := (int(wd) - int(now.Weekday()) + 7) % 7
			if days == 0 {
				days = 7
			}
			return today.AddDate(0, 0, days)
		}
	}

	return today
}

// civilDate builds a date and reports whether the components were valid
// (time.Date silently normalizes overflow, which is exactly what we must not
// accept from user text: 31/2 is a miss, not March 2nd).
func civilDate(year, month, day int, loc *time.Location) (time.Time, bool) {
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if t.Year() != year || t.Month() != time.Month(month) || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func weekdayByName(name string) (time.Weekday, bool) {
	for _, row := range weekdayNames {
		if row.name == name {
			return row.day, true
		}
	}
	return 0, false
}

// extractTime tries the time table in order; the first matching row decides,
// even when its digits turn out invalid (then the caller's default applies).
func extractTime(lower string) (hour, minute int, ok bool) {
	for _, re := range timeTable {
		m := re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		hour, _ = strconv.Atoi(m[1])
		if len(m) > 2 && m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}

		// AM/PM adjustment applies when the text mentions it anywhere.
		if strings.Contains(lower, "pm") && hour < 12 {
			hour += 12
		} else if strings.Contains(lower, "am") && hour == 12 {
			hour = 0
		}

		if hour > 23 || minute > 59 {
			return 0, 0, false
		}
		return hour, minute, true
	}
	return 0, 0, false
}

// extractMessage prefers an explicit delimiter ("que diga:", "mensaje:", ...)
// taken verbatim from the original-case text. Otherwise it strips every
// matched token from the lowered text and keeps the residue; a residue
// shorter than 3 characters falls back to the whole original text (better an
// over-long message than an empty one).
func extractMessage(orig, lower string) string {
	for _, re := range messageDelimiters {
		if m := re.FindStringSubmatch(orig); m != nil {
			return strings.TrimSpace(m[1])
		}
	}

	cleaned := lower
	for _, w := range triggerWords {
		cleaned = strings.ReplaceAll(cleaned, w, " ")
	}
	for _, row := range recurrenceTable {
		cleaned = row.re.ReplaceAllString(cleaned, " ")
	}
	cleaned = dateRe.ReplaceAllString(cleaned, " ")
	for _, re := range timeTable {
		cleaned = re.ReplaceAllString(cleaned, " ")
	}
	cleaned = ampmRe.ReplaceAllString(cleaned, " ")
	for _, rw := range relativeDays {
		cleaned = strings.ReplaceAll(cleaned, rw.word, " ")
	}
	cleaned = weekdayRe.ReplaceAllString(cleaned, " ")
	cleaned = fillerRe.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(spaceRe.ReplaceAllString(cleaned, " "))

	if utf8.RuneCountInString(cleaned) < 3 {
		return strings.TrimSpace(orig)
	}
	return cleaned
}

var weekdayRe = func() *regexp.Regexp {
	names := make([]string, 0, len(weekdayNames))
	for _, row := range weekdayNames {
		names = append(names, row.name)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(names, "|") + `)\b`)
}()
