package fare

import (
	"time"
	_ "time/tzdata"
)

// fixedHolidays are the French public holidays with a fixed calendar date.
var fixedHolidays = [...]struct {
	month time.Month
	day   int
}{
	{time.January, 1},   // Jour de l'an
	{time.May, 1},       // Fête du travail
	{time.May, 8},       // Victoire 1945
	{time.July, 14},     // Fête nationale
	{time.August, 15},   // Assomption
	{time.November, 1},  // Toussaint
	{time.November, 11}, // Armistice
	{time.December, 25}, // Noël
}

// IsPublicHoliday reports whether the calendar date of t is a French
// national public holiday. The date is read in t's own location.
func IsPublicHoliday(t time.Time) bool {
	y, m, d := t.Date()
	for _, h := range fixedHolidays {
		if h.month == m && h.day == d {
			return true
		}
	}
	easter := easterSunday(y)
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	for _, offset := range []int{1, 39, 50} { // Easter Monday, Ascension, Whit Monday
		if day.Equal(easter.AddDate(0, 0, offset)) {
			return true
		}
	}
	return false
}

// easterSunday computes the Gregorian Easter date (anonymous algorithm).
func easterSunday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func dateKey(t time.Time) string { return t.Format("2006-01-02") }
