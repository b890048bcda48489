package core

import "time"

// isoWeekday maps time.Weekday to ISO-8601 numbering (Monday=1 .. Sunday=7).
func isoWeekday(day time.Time) int {
	wd := int(day.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// IsWorkingDay reports whether day is a working day for the given branch
// schedule, excluding organization holidays. Dates are compared by calendar
// day in the day's own location.
func IsWorkingDay(workingDays []int, holidays []time.Time, day time.Time) bool {
	scheduled := false
	for _, wd := range workingDays {
		if wd == isoWeekday(day) {
			scheduled = true
			break
		}
	}
	if !scheduled {
		return false
	}
	for _, holiday := range holidays {
		if sameDate(holiday, day) {
			return false
		}
	}
	return true
}

// WorkingDaysBetween counts working days in [from, to] inclusive.
func WorkingDaysBetween(workingDays []int, holidays []time.Time, from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	count := 0
	for day := truncateDate(from); !day.After(truncateDate(to)); day = day.AddDate(0, 0, 1) {
		if IsWorkingDay(workingDays, holidays, day) {
			count++
		}
	}
	return count
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func truncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
