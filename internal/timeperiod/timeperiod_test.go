package timeperiod

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var workdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog(
		Period{
			Name:    "workhours",
			Windows: []Window{{Days: workdays, Start: "08:00", End: "17:00"}},
			Exclude: []string{"holidays"},
		},
		Period{
			Name:    "night",
			Windows: []Window{{Days: []time.Weekday{time.Friday}, Start: "22:00", End: "06:00"}},
		},
		Period{
			Name:     "berlin_office",
			Timezone: "Europe/Berlin",
			Windows:  []Window{{Start: "09:00", End: "10:00"}},
		},
		Period{
			Name:    "holidays",
			Windows: []Window{{Days: []time.Weekday{time.Wednesday}, Start: "00:00", End: "24:00"}},
		},
	)
	require.NoError(t, err)
	return c
}

func TestCatalog_IsActive(t *testing.T) {
	c := newTestCatalog(t)

	// 2024-01-01 is a Monday.
	monday := func(hour, minute int) time.Time { return time.Date(2024, 1, 1, hour, minute, 0, 0, time.UTC) }

	tests := []struct {
		name     string
		period   string
		at       time.Time
		expected bool
	}{
		{"built-in always", AlwaysName, monday(3, 0), true},
		{"within workhours", "workhours", monday(9, 30), true},
		{"end is exclusive", "workhours", monday(17, 0), false},
		{"before workhours", "workhours", monday(7, 59), false},
		{"weekend", "workhours", time.Date(2024, 1, 6, 10, 0, 0, 0, time.UTC), false},
		{"excluded holiday", "workhours", time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC), false},
		{"overnight start day", "night", time.Date(2024, 1, 5, 23, 0, 0, 0, time.UTC), true},
		{"overnight next morning", "night", time.Date(2024, 1, 6, 5, 59, 0, 0, time.UTC), true},
		{"overnight wrong day", "night", time.Date(2024, 1, 4, 23, 0, 0, 0, time.UTC), false},
		{"timezone applied", "berlin_office", monday(8, 30), true},
		{"timezone applied outside", "berlin_office", monday(9, 30), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			active, err := c.IsActive(tc.period, tc.at)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, active)
		})
	}
}

func TestCatalog_Unknown(t *testing.T) {
	c := newTestCatalog(t)

	_, err := c.IsActive("never-defined", time.Now())
	assert.ErrorIs(t, err, ErrUnknownTimePeriod)

	isActive := c.ActiveFunc(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	assert.False(t, isActive("never-defined"))
	assert.True(t, isActive("workhours"))
	assert.True(t, c.Has("holidays"))
	assert.Equal(t, []string{AlwaysName, "berlin_office", "holidays", "night", "workhours"}, c.Names())
}

func TestNewCatalog_Errors(t *testing.T) {
	tests := []struct {
		name    string
		periods []Period
		wantErr error
	}{
		{"empty name", []Period{{Name: " "}}, ErrInvalidTimePeriod},
		{"duplicate", []Period{{Name: "a"}, {Name: "a"}}, ErrInvalidTimePeriod},
		{"redefine built-in", []Period{{Name: AlwaysName}}, ErrInvalidTimePeriod},
		{"bad start", []Period{{Name: "a", Windows: []Window{{Start: "8", End: "09:00"}}}}, ErrInvalidTimePeriod},
		{"bad end", []Period{{Name: "a", Windows: []Window{{Start: "08:00", End: "24:30"}}}}, ErrInvalidTimePeriod},
		{"bad timezone", []Period{{Name: "a", Timezone: "Mars/Olympus"}}, ErrInvalidTimePeriod},
		{"unknown exclude", []Period{{Name: "a", Exclude: []string{"b"}}}, ErrUnknownTimePeriod},
		{"exclude cycle", []Period{{Name: "a", Exclude: []string{"b"}}, {Name: "b", Exclude: []string{"a"}}}, ErrInvalidTimePeriod},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCatalog(tc.periods...)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestParseWeekday(t *testing.T) {
	d, err := ParseWeekday("Monday")
	require.NoError(t, err)
	assert.Equal(t, time.Monday, d)

	d, err = ParseWeekday("0")
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, d)

	_, err = ParseWeekday("someday")
	assert.ErrorIs(t, err, ErrInvalidTimePeriod)
}
