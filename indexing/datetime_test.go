package indexing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsLeapYear(t *testing.T) {
	require.True(t, IsLeapYear(2000))
	require.False(t, IsLeapYear(1900))
	require.True(t, IsLeapYear(2024))
	require.False(t, IsLeapYear(2023))
}

func TestToOrdinalMatchesKnownEpoch(t *testing.T) {
	// Jan 1, year 1 has ordinal 1 by definition (§3 Locator / datetime note).
	ord, err := ToOrdinal(1, 1, 1)
	require.NoError(t, err)
	require.EqualValues(t, 1, ord)

	ord2, err := ToOrdinal(1, 1, 2)
	require.NoError(t, err)
	require.EqualValues(t, 2, ord2)
}

func TestToOrdinalRejectsOutOfRange(t *testing.T) {
	_, err := ToOrdinal(2021, 2, 30)
	require.Error(t, err)
	_, err = ToOrdinal(0, 1, 1)
	require.Error(t, err)
}

func TestParseDateMathPlainDate(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	got, err := ParseDateMath("2026-01-01", now)
	require.NoError(t, err)
	require.Equal(t, 2026, got.Year())
}

func TestParseDateMathNowWithMath(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 30, 0, 0, time.UTC)
	got, err := ParseDateMath("now||+1d", now)
	require.NoError(t, err)
	require.Equal(t, 31, got.Day())
}

func TestParseDateMathRoundDown(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 30, 45, 0, time.UTC)
	got, err := ParseDateMath("now||//d", now)
	require.NoError(t, err)
	require.Equal(t, 0, got.Hour())
	require.Equal(t, 0, got.Minute())
}

func TestParseDateMathRoundUp(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 30, 45, 0, time.UTC)
	got, err := ParseDateMath("now||/d", now)
	require.NoError(t, err)
	require.Equal(t, 23, got.Hour())
	require.Equal(t, 59, got.Minute())
}

func TestNormalizeMonthsCarries(t *testing.T) {
	y, m := NormalizeMonths(2026, 13)
	require.Equal(t, 2027, y)
	require.Equal(t, 1, m)

	y2, m2 := NormalizeMonths(2026, 0)
	require.Equal(t, 2025, y2)
	require.Equal(t, 12, m2)
}

// TestParseDateMathMonthClampsDayOfMonth guards §4.3's "Month
// normalization preserves day-of-month clamping": Jan 31 + 1 month must
// land on Feb 28 (non-leap year), not overflow into March the way
// stdlib's AddDate would.
func TestParseDateMathMonthClampsDayOfMonth(t *testing.T) {
	got, err := ParseDateMath("2026-01-31||+1M", time.Time{})
	require.NoError(t, err)
	require.Equal(t, time.February, got.Month())
	require.Equal(t, 28, got.Day())

	// 2024 is a leap year: Jan 31 + 1M clamps to Feb 29, not Feb 28.
	got2, err := ParseDateMath("2024-01-31||+1M", time.Time{})
	require.NoError(t, err)
	require.Equal(t, time.February, got2.Month())
	require.Equal(t, 29, got2.Day())
}

// TestParseDateMathYearClampsFeb29 covers the +y path: Feb 29 of a leap
// year plus one year clamps to Feb 28 of the following non-leap year.
func TestParseDateMathYearClampsFeb29(t *testing.T) {
	got, err := ParseDateMath("2024-02-29||+1y", time.Time{})
	require.NoError(t, err)
	require.Equal(t, 2025, got.Year())
	require.Equal(t, time.February, got.Month())
	require.Equal(t, 28, got.Day())
}
