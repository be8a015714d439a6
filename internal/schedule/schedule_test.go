package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoadLoc(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	return loc
}

func TestStartTimesWeekday(t *testing.T) {
	loc := mustLoadLoc(t)

	// 2026-02-02 is a Monday.
	slots, err := StartTimes("2026-02-02", 60, loc)
	require.NoError(t, err)

	assert.Equal(t, "09:00", slots[0])
	assert.Equal(t, "18:00", slots[len(slots)-1])
	assert.NotContains(t, slots, "12:30")
	assert.Contains(t, slots, "12:00")
	assert.Len(t, slots, 7+9)
}

func TestStartTimesSaturdayAndSunday(t *testing.T) {
	loc := mustLoadLoc(t)

	slots, err := StartTimes("2026-02-07", 90, loc)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30", "12:00", "12:30"}, slots)

	slots, err = StartTimes("2026-02-01", 30, loc)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestStartTimesRejectsBadInput(t *testing.T) {
	loc := mustLoadLoc(t)

	_, err := StartTimes("02/02/2026", 30, loc)
	assert.ErrorIs(t, err, ErrInvalidDate)
	_, err = StartTimes("2026-02-02", 0, loc)
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestIsSlotAllowed(t *testing.T) {
	loc := mustLoadLoc(t)

	cases := []struct {
		date, clock string
		duration    int
		want        bool
	}{
		{"2026-02-02", "10:00", 60, true},
		{"2026-02-02", "12:30", 60, false},
		{"2026-02-02", "22:30", 30, false},
		{"2026-02-02", "10:15", 30, false},
		{"2026-02-07", "13:00", 60, true},
		{"2026-02-07", "14:00", 30, false},
		{"2026-02-01", "10:00", 30, false},
	}
	for _, tc := range cases {
		got, err := IsSlotAllowed(tc.date, tc.clock, tc.duration, loc)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s %s (%d min)", tc.date, tc.clock, tc.duration)
	}

	_, err := IsSlotAllowed("2026-13-01", "10:00", 30, loc)
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestWindowAndOverlap(t *testing.T) {
	a, err := Window("10:00", 60)
	require.NoError(t, err)
	assert.Equal(t, Interval{Start: 600, End: 660}, a)

	b, _ := Window("10:30", 30)
	c, _ := Window("11:00", 30)
	assert.True(t, Overlaps(a, b))
	assert.False(t, Overlaps(a, c), "touching intervals do not overlap")
	assert.True(t, OverlapsAny(b, []Interval{c, a}))

	_, err = Window("23:30", 60)
	assert.ErrorIs(t, err, ErrInvalidDuration)
	_, err = Window("25:00", 30)
	assert.ErrorIs(t, err, ErrInvalidTime)
}

func TestIsDatePast(t *testing.T) {
	loc := mustLoadLoc(t)
	now := time.Date(2026, 2, 4, 10, 0, 0, 0, loc)

	past, err := IsDatePast("2026-02-03", loc, now)
	require.NoError(t, err)
	assert.True(t, past)

	past, err = IsDatePast("2026-02-04", loc, now)
	require.NoError(t, err)
	assert.False(t, past)
}

func TestAvailableDropsPastAndReserved(t *testing.T) {
	loc := mustLoadLoc(t)
	now := time.Date(2026, 2, 2, 9, 45, 0, 0, loc)

	slots := []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30"}
	reserved := []Interval{{Start: 10*60 + 30, End: 11 * 60}}

	free, err := Available("2026-02-02", slots, 30, reserved, loc, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00", "11:00", "11:30"}, free)
}
