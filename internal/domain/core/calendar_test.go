package core

import (
	"testing"
	"time"
)

var weekdaysOnly = []int{1, 2, 3, 4, 5}

func TestIsWorkingDay(t *testing.T) {
	// 2024-11-15 is a Friday, 2024-11-16 a Saturday.
	friday := time.Date(2024, 11, 15, 0, 0, 0, 0, time.UTC)
	saturday := time.Date(2024, 11, 16, 0, 0, 0, 0, time.UTC)

	if !IsWorkingDay(weekdaysOnly, nil, friday) {
		t.Fatal("friday must be a working day on a weekday schedule")
	}
	if IsWorkingDay(weekdaysOnly, nil, saturday) {
		t.Fatal("saturday must not be a working day on a weekday schedule")
	}

	holidays := []time.Time{friday}
	if IsWorkingDay(weekdaysOnly, holidays, friday) {
		t.Fatal("holidays must override the weekday schedule")
	}

	// A six-day schedule includes Saturday.
	if !IsWorkingDay([]int{1, 2, 3, 4, 5, 6}, nil, saturday) {
		t.Fatal("saturday must count on a six-day schedule")
	}
}

func TestWorkingDaysBetween(t *testing.T) {
	// 2024-11-11 (Monday) through 2024-11-17 (Sunday): five weekdays.
	from := time.Date(2024, 11, 11, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 11, 17, 0, 0, 0, 0, time.UTC)

	if got := WorkingDaysBetween(weekdaysOnly, nil, from, to); got != 5 {
		t.Fatalf("WorkingDaysBetween = %d, want 5", got)
	}

	holidays := []time.Time{time.Date(2024, 11, 13, 0, 0, 0, 0, time.UTC)}
	if got := WorkingDaysBetween(weekdaysOnly, holidays, from, to); got != 4 {
		t.Fatalf("WorkingDaysBetween with holiday = %d, want 4", got)
	}

	if got := WorkingDaysBetween(weekdaysOnly, nil, to, from); got != 0 {
		t.Fatalf("WorkingDaysBetween reversed = %d, want 0", got)
	}

	// Single day range.
	if got := WorkingDaysBetween(weekdaysOnly, nil, from, from); got != 1 {
		t.Fatalf("WorkingDaysBetween single day = %d, want 1", got)
	}
}
