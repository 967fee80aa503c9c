package shipment_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-erp/internal/shipment"
)

func TestParseScheduleDateDateOnly(t *testing.T) {
	t.Parallel()

	parsed, err := shipment.ParseScheduleDate("2025-12-15")
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 12, 15, 0, 0, 0, 0, time.UTC), parsed)
}

func TestParseScheduleDateExplicitUTC(t *testing.T) {
	t.Parallel()

	parsed, err := shipment.ParseScheduleDate("2025-12-15T10:00:00Z")
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 12, 15, 10, 0, 0, 0, time.UTC), parsed)
}

func TestParseScheduleDateOffsetNormalizedToUTC(t *testing.T) {
	t.Parallel()

	parsed, err := shipment.ParseScheduleDate("2025-12-15T10:00:00+02:00")
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 12, 15, 8, 0, 0, 0, time.UTC), parsed)
}

func TestParseScheduleDateRejectsBareLocalDatetime(t *testing.T) {
	t.Parallel()

	_, err := shipment.ParseScheduleDate("2025-12-15T10:00:00")
	require.ErrorIs(t, err, shipment.ErrAmbiguousDate)
}

func TestParseScheduleDateRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := shipment.ParseScheduleDate("next tuesday")
	require.Error(t, err)
	require.NotErrorIs(t, err, shipment.ErrAmbiguousDate)
}

func TestParseRangeEndExtendsDateOnlyToEndOfDay(t *testing.T) {
	t.Parallel()

	end, err := shipment.ParseRangeEnd("2025-12-15")
	require.NoError(t, err)
	require.Equal(t, 23, end.Hour())
	require.Equal(t, time.Date(2025, 12, 16, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond), end)

	exact, err := shipment.ParseRangeEnd("2025-12-15T12:00:00Z")
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 12, 15, 12, 0, 0, 0, time.UTC), exact)
}
