// Package timeutil formats times for users in the university's timezone.
// Kemerovo is UTC+7 all year round (no DST since 2014), which is the default;
// APP_TIMEZONE can point it elsewhere.
package timeutil

import (
	"fmt"
	"sync/atomic"
	"time"
)

// KemerovoTZ is the default zone (UTC+7, no DST).
var KemerovoTZ = time.FixedZone("Asia/Novokuznetsk", 7*60*60)

var location atomic.Pointer[time.Location]

func init() {
	location.Store(KemerovoTZ)
}

// Location returns the zone user-facing times are shown in.
func Location() *time.Location {
	return location.Load()
}

// SetLocation switches the user-facing zone. An empty name restores the default.
func SetLocation(name string) error {
	if name == "" {
		location.Store(KemerovoTZ)
		return nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", name, err)
	}
	location.Store(loc)
	return nil
}

// Local converts t to the user-facing zone.
func Local(t time.Time) time.Time {
	return t.In(Location())
}

// FormatRussianDateTime is DD.MM.YYYY HH:MM, the date layout of the timetable
// with the clock added.
const FormatRussianDateTime = "02.01.2006 15:04"

// FormatDateTime formats t as DD.MM.YYYY HH:MM in the user-facing zone.
func FormatDateTime(t time.Time) string {
	return Local(t).Format(FormatRussianDateTime)
}

// FormatRelative describes how long ago t was, relative to now.
func FormatRelative(t, now time.Time) string {
	d := now.Sub(t)
	if d < 0 {
		return "только что"
	}

	switch {
	case d < time.Minute:
		return "только что"
	case d < time.Hour:
		return fmt.Sprintf("%d мин назад", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d ч назад", int(d.Hours()))
	case d < 48*time.Hour:
		return "вчера"
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%d дн назад", int(d.Hours()/24))
	default:
		return "давно"
	}
}
