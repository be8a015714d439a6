package schedule

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// StepMinutes is the granularity of offered start times.
const StepMinutes = 30

const minutesPerDay = 24 * 60

var (
	ErrInvalidDate     = errors.New("invalid date format")
	ErrInvalidTime     = errors.New("invalid time format")
	ErrInvalidDuration = errors.New("invalid duration")
)

type TimeRange struct {
	Start string
	End   string
}

// Interval is a half-open [Start, End) span in minutes from midnight.
type Interval struct {
	Start int
	End   int
}

func ParseDate(dateStr string, loc *time.Location) (time.Time, error) {
	date, err := time.ParseInLocation("2006-01-02", dateStr, loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return date, nil
}

func ParseDateTime(dateStr, timeStr string, loc *time.Location) (time.Time, error) {
	if _, err := ParseDate(dateStr, loc); err != nil {
		return time.Time{}, err
	}
	parsed, err := time.ParseInLocation("2006-01-02 15:04", dateStr+" "+timeStr, loc)
	if err != nil {
		return time.Time{}, ErrInvalidTime
	}
	return parsed, nil
}

func ParseClockToMinutes(timeStr string) (int, error) {
	tm, err := time.Parse("15:04", timeStr)
	if err != nil {
		return 0, ErrInvalidTime
	}
	return tm.Hour()*60 + tm.Minute(), nil
}

func MinutesToClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Window returns the interval a booking of duration minutes starting at timeStr occupies.
// Bookings may not run past midnight.
func Window(timeStr string, duration int) (Interval, error) {
	if duration <= 0 {
		return Interval{}, ErrInvalidDuration
	}
	start, err := ParseClockToMinutes(timeStr)
	if err != nil {
		return Interval{}, err
	}
	if start+duration > minutesPerDay {
		return Interval{}, ErrInvalidDuration
	}
	return Interval{Start: start, End: start + duration}, nil
}

func Overlaps(a, b Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

// OverlapsAny reports whether iv collides with any of reserved.
func OverlapsAny(iv Interval, reserved []Interval) bool {
	for _, r := range reserved {
		if Overlaps(iv, r) {
			return true
		}
	}
	return false
}

func IsDatePast(dateStr string, loc *time.Location, now time.Time) (bool, error) {
	date, err := ParseDate(dateStr, loc)
	if err != nil {
		return false, err
	}
	local := now.In(loc)
	startToday := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return date.Before(startToday), nil
}

func IsSlotPast(dateStr, timeStr string, loc *time.Location, now time.Time) (bool, error) {
	slot, err := ParseDateTime(dateStr, timeStr, loc)
	if err != nil {
		return false, err
	}
	return !slot.After(now.In(loc)), nil
}

// BusinessHours are the opening ranges for a weekday. Sunday is closed.
func BusinessHours(day time.Weekday) []TimeRange {
	switch day {
	case time.Sunday:
		return nil
	case time.Saturday:
		return []TimeRange{{Start: "09:00", End: "14:00"}}
	default:
		return []TimeRange{{Start: "09:00", End: "13:00"}, {Start: "14:00", End: "19:00"}}
	}
}

// StartTimes lists every start time on dateStr at which a booking of duration
// minutes fits inside business hours, stepping by StepMinutes.
func StartTimes(dateStr string, duration int, loc *time.Location) ([]string, error) {
	date, err := ParseDate(dateStr, loc)
	if err != nil {
		return nil, err
	}
	if duration <= 0 {
		return nil, ErrInvalidDuration
	}

	slots := make([]string, 0)
	for _, tr := range BusinessHours(date.Weekday()) {
		startMin, err := ParseClockToMinutes(tr.Start)
		if err != nil {
			return nil, err
		}
		endMin, err := ParseClockToMinutes(tr.End)
		if err != nil {
			return nil, err
		}
		for cursor := startMin; cursor+duration <= endMin; cursor += StepMinutes {
			slots = append(slots, MinutesToClock(cursor))
		}
	}
	return slots, nil
}

// IsSlotAllowed reports whether timeStr is one of the start times StartTimes offers on dateStr.
func IsSlotAllowed(dateStr, timeStr string, duration int, loc *time.Location) (bool, error) {
	slots, err := StartTimes(dateStr, duration, loc)
	if err != nil {
		return false, err
	}
	return slices.Contains(slots, timeStr), nil
}

// Available filters slots down to those that are in the future and do not
// collide with reserved.
func Available(dateStr string, slots []string, duration int, reserved []Interval, loc *time.Location, now time.Time) ([]string, error) {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		iv, err := Window(s, duration)
		if err != nil {
			return nil, err
		}
		past, err := IsSlotPast(dateStr, s, loc, now)
		if err != nil {
			return nil, err
		}
		if past || OverlapsAny(iv, reserved) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}
