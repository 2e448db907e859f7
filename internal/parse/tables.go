package parse

import (
	"regexp"
	"time"

	"remibot/internal/remind"
)

// The parser is a fixed-precedence sequence of pattern tables. Each table is
// data: adding a new phrasing means adding a row, not touching control flow.

// triggerWords gate the whole parse. No trigger word, no reminder.
var triggerWords = []string{
	"recordatorio", "recordame", "recuerdame", "recordar",
	"avisame", "avísame", "aviso", "alarma", "alerta",
	"genera recordatorio", "crear recordatorio", "nuevo recordatorio",
}

// recurrenceTable rows are tried in order; first match wins.
var recurrenceTable = []struct {
	re   *regexp.Regexp
	kind remind.Kind
}{
	{regexp.MustCompile(`cada\s+d[ií]a`), remind.KindDaily},
	{regexp.MustCompile(`todos\s+los\s+d[ií]as`), remind.KindDaily},
	{regexp.MustCompile(`diariamente`), remind.KindDaily},
	{regexp.MustCompile(`cada\s+semana`), remind.KindWeekly},
	{regexp.MustCompile(`semanalmente`), remind.KindWeekly},
	{regexp.MustCompile(`cada\s+mes`), remind.KindMonthly},
	{regexp.MustCompile(`mensualmente`), remind.KindMonthly},
	{regexp.MustCompile(`cada\s+hora`), remind.KindHourly},
	{regexp.MustCompile(`cada\s+(\d+)\s+horas?`), remind.KindEveryHours},
	{regexp.MustCompile(`cada\s+(\d+)\s+d[ií]as?`), remind.KindEveryDays},
}

// Explicit D/M or D-M, optional 2-or-4-digit year.
var dateRe = regexp.MustCompile(`(\d{1,2})[/-](\d{1,2})(?:[/-](\d{2,4}))?`)

// relativeDays maps relative keywords to day offsets. "pasado mañana" must be
// checked before "mañana", which it contains.
var relativeDays = []struct {
	word string
	days int
}{
	{"pasado mañana", 2},
	{"pasado manana", 2},
	{"hoy", 0},
	{"mañana", 1},
	{"manana", 1},
}

// weekdayNames is ordered: full names before their abbreviations so the
// longer token is the one consumed from the text.
var weekdayNames = []struct {
	name string
	day  time.Weekday
}{
	{"lunes", time.Monday},
	{"martes", time.Tuesday},
	{"miércoles", time.Wednesday},
	{"miercoles", time.Wednesday},
	{"jueves", time.Thursday},
	{"viernes", time.Friday},
	{"sábado", time.Saturday},
	{"sabado", time.Saturday},
	{"domingo", time.Sunday},
	{"lun", time.Monday},
	{"mar", time.Tuesday},
	{"mie", time.Wednesday},
	{"jue", time.Thursday},
	{"vie", time.Friday},
	{"sab", time.Saturday},
	{"dom", time.Sunday},
}

// timeTable rows are tried in order; group 1 is the hour, optional group 2
// the minutes. "a las 12hs", "12:30", "9hs", "14 horas", "10 am".
var timeTable = []*regexp.Regexp{
	regexp.MustCompile(`a\s+las?\s+(\d{1,2})[:h]?(\d{2})?\s*(?:hs?|horas?)?`),
	regexp.MustCompile(`(\d{1,2})[:h](\d{2})\s*(?:hs?|horas?)?`),
	regexp.MustCompile(`(\d{1,2})\s*(?:hs|horas?)`),
	regexp.MustCompile(`(\d{1,2})\s*(?:am|pm)`),
}

// messageDelimiters capture an explicit payload; everything after the
// delimiter is the message, verbatim from the original-case text.
var messageDelimiters = []*regexp.Regexp{
	regexp.MustCompile(`(?i)que\s+diga[:\s]+(.+)$`),
	regexp.MustCompile(`(?i)mensaje[:\s]+(.+)$`),
	regexp.MustCompile(`(?i)texto[:\s]+(.+)$`),
	regexp.MustCompile(`(?i)para[:\s]+(.+)$`),
}

// ampmRe drops am/pm markers the time table already consumed the digits of.
var ampmRe = regexp.MustCompile(`\b(?:am|pm)\b`)

// fillerRe removes connective prepositions left behind once date/time tokens
// are stripped from the fallback message.
var fillerRe = regexp.MustCompile(`(?:para|el|la|los|las|del|de)\s+`)

var spaceRe = regexp.MustCompile(`\s+`)
