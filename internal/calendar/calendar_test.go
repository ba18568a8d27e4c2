package calendar

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "options-backtester/internal/errors"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCurrentWeekExpiry(t *testing.T) {
	tests := []struct {
		name string
		date time.Time
		want time.Time
	}{
		{"tuesday", day(2022, 2, 1), day(2022, 2, 3)},
		{"thursday is its own expiry", day(2022, 2, 3), day(2022, 2, 3)},
		{"friday rolls to next week", day(2022, 2, 4), day(2022, 2, 10)},
		{"sunday", day(2022, 2, 6), day(2022, 2, 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CurrentWeekExpiry(tt.date))
			assert.Equal(t, tt.want.AddDate(0, 0, 7), NextWeekExpiry(tt.date))
		})
	}
}

func TestMonthExpiry(t *testing.T) {
	assert.Equal(t, day(2022, 2, 24), MonthExpiry(day(2022, 2, 10)))
	assert.Equal(t, day(2022, 2, 24), MonthExpiry(day(2022, 2, 24)))
	assert.Equal(t, day(2022, 3, 31), MonthExpiry(day(2022, 2, 25)))
	// December rolls into the next year
	assert.Equal(t, day(2023, 1, 26), MonthExpiry(day(2022, 12, 30)))
}

func TestValidExpiry(t *testing.T) {
	cal := New(NewHolidaySet(day(2022, 2, 3)), 0)

	got, err := cal.ValidExpiry(day(2022, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, day(2022, 2, 2), got)

	got, err = cal.ValidExpiry(day(2022, 2, 10))
	require.NoError(t, err)
	assert.Equal(t, day(2022, 2, 10), got)
}

func TestExpiry(t *testing.T) {
	// 2022-02-03 is a Thursday holiday, so the weekly expiry moves to Wednesday.
	cal := New(NewHolidaySet(day(2022, 2, 3)), 0)

	got, err := cal.Expiry(day(2022, 2, 1), false)
	require.NoError(t, err)
	assert.Equal(t, day(2022, 2, 2), got)

	// A signal on the holiday itself rolls to the next cycle.
	got, err = cal.Expiry(day(2022, 2, 3), false)
	require.NoError(t, err)
	assert.Equal(t, day(2022, 2, 10), got)

	got, err = cal.Expiry(day(2022, 2, 1), true)
	require.NoError(t, err)
	assert.Equal(t, day(2022, 2, 24), got)
}

func TestValidExpiryBounded(t *testing.T) {
	everyDay := HolidaySet{}
	for d := day(2022, 1, 1); d.Before(day(2022, 3, 1)); d = d.AddDate(0, 0, 1) {
		everyDay.Add(d)
	}
	cal := New(everyDay, 10)

	_, err := cal.ValidExpiry(day(2022, 2, 3))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNoTradingDay))
	assert.True(t, apperrors.Is(err, apperrors.ErrConfigInvalid))

	_, err = cal.NextValidDate(day(2022, 2, 3))
	assert.True(t, apperrors.Is(err, apperrors.ErrNoTradingDay))
}

func TestNextValidDate(t *testing.T) {
	cal := New(nil, 0)
	got, err := cal.NextValidDate(day(2022, 2, 4))
	require.NoError(t, err)
	assert.Equal(t, day(2022, 2, 7), got)

	cal = New(NewHolidaySet(day(2022, 2, 7)), 0)
	got, err = cal.NextValidDate(day(2022, 2, 4))
	require.NoError(t, err)
	assert.Equal(t, day(2022, 2, 8), got)
}

func TestMarketHour(t *testing.T) {
	cal := New(nil, 0)

	got, err := cal.MarketHour(time.Date(2022, 2, 1, 9, 5, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2022, 2, 1, 9, 15, 0, 0, time.UTC), got)

	got, err = cal.MarketHour(time.Date(2022, 2, 4, 15, 35, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2022, 2, 7, 9, 15, 0, 0, time.UTC), got)

	inSession := time.Date(2022, 2, 1, 11, 0, 0, 0, time.UTC)
	got, err = cal.MarketHour(inSession)
	require.NoError(t, err)
	assert.Equal(t, inSession, got)
}

// Property: the weekly expiry is always a Thursday within six days on or after the date,
// and the monthly expiry is the last Thursday of its month and never before the date.
func TestProperty_ExpiryIsThursday(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	base := day(2015, 1, 1)

	properties.Property("weekly expiry is the next Thursday", prop.ForAll(
		func(offset int) bool {
			date := base.AddDate(0, 0, offset)
			expiry := CurrentWeekExpiry(date)
			diff := int(expiry.Sub(date).Hours() / 24)
			return expiry.Weekday() == time.Thursday && diff >= 0 && diff <= 6
		},
		gen.IntRange(0, 4000),
	))

	properties.Property("monthly expiry is the last Thursday", prop.ForAll(
		func(offset int) bool {
			date := base.AddDate(0, 0, offset)
			expiry := MonthExpiry(date)
			return expiry.Weekday() == time.Thursday &&
				!expiry.Before(date) &&
				expiry.AddDate(0, 0, 7).Month() != expiry.Month()
		},
		gen.IntRange(0, 4000),
	))

	properties.TestingRun(t)
}
