package bot

import (
	"fmt"
	"strings"
	"time"

	"remibot/internal/remind"
)

const helpHTML = `👋 <b>Hola, soy tu bot de recordatorios.</b>

Escribime en lenguaje natural y yo me acuerdo por vos:

• <i>recordame mañana a las 10 comprar entradas</i>
• <i>avisame todos los días a las 8:00 tomar vitaminas</i>
• <i>recordatorio el 15/07 a las 9 turno médico</i>

Comandos:
/mis_recordatorios — ver tus recordatorios activos
/cancelar &lt;número&gt; — cancelar uno de la lista
/ayuda — este mensaje`

const usageHTML = `No entendí eso como un recordatorio 🤔

Probá con algo como:
• <i>recordame mañana a las 10 comprar entradas</i>
• <i>avisame cada 3 horas tomar agua</i>

/ayuda para ver más ejemplos.`

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// recurrenceLabel renders a pattern for humans; empty for one-shot reminders.
func recurrenceLabel(p remind.Pattern) string {
	switch p.Kind {
	case remind.KindDaily:
		return "todos los días"
	case remind.KindWeekly:
		return "cada semana"
	case remind.KindMonthly:
		return "cada mes"
	case remind.KindHourly:
		return "cada hora"
	case remind.KindEveryHours:
		return fmt.Sprintf("cada %d horas", p.N)
	case remind.KindEveryDays:
		return fmt.Sprintf("cada %d días", p.N)
	}
	return ""
}

func formatWhen(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("02/01/2006 15:04")
}

func confirmationHTML(r remind.Reminder, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("✅ <b>Recordatorio creado</b>\n\n")
	fmt.Fprintf(&b, "📅 %s\n", formatWhen(r.FireAt, loc))
	fmt.Fprintf(&b, "📝 %s", htmlEscaper.Replace(r.Message))
	if label := recurrenceLabel(r.Pattern); label != "" {
		fmt.Fprintf(&b, "\n🔁 Se repite %s", label)
	}
	return b.String()
}

func listHTML(rs []remind.Reminder, loc *time.Location) string {
	if len(rs) == 0 {
		return "No tenés recordatorios activos. Escribime uno cuando quieras."
	}
	var b strings.Builder
	b.WriteString("📋 <b>Tus recordatorios</b>\n\n")
	for i, r := range rs {
		fmt.Fprintf(&b, "%d. %s — %s", i+1, formatWhen(r.FireAt, loc), htmlEscaper.Replace(r.Message))
		if label := recurrenceLabel(r.Pattern); label != "" {
			fmt.Fprintf(&b, " (🔁 %s)", label)
		}
		b.WriteByte('\n')
	}
	b.WriteString("\n/cancelar &lt;número&gt; para cancelar uno.")
	return b.String()
}
