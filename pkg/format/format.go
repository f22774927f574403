// Package format renders amounts, dates and user-supplied text for chat
// messages sent with HTML parse mode.
package format

import (
	"strconv"
	"strings"
	"time"
)

const Currency = "so'm"

// Amount renders v with comma thousands separators and no trailing zeros:
// 100000 -> "100,000", 1234.5 -> "1,234.5".
func Amount(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	b.WriteString(sign)
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteString(frac)
	return b.String()
}

// Sum renders an amount followed by the currency.
func Sum(v float64) string {
	return Amount(v) + " " + Currency
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// HTML escapes the characters Telegram's HTML parse mode reserves.
func HTML(s string) string {
	return htmlEscaper.Replace(s)
}

// ShortDate renders "dd.mm HH:MM", or "N/A" for the zero time.
func ShortDate(t time.Time, loc *time.Location) string {
	return date(t, loc, "02.01 15:04")
}

// LongDate renders "dd.mm.yyyy HH:MM", or "N/A" for the zero time.
func LongDate(t time.Time, loc *time.Location) string {
	return date(t, loc, "02.01.2006 15:04")
}

func date(t time.Time, loc *time.Location, layout string) string {
	if t.IsZero() {
		return "N/A"
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(layout)
}
