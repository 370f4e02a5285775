package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in     string
		h, m   int
		wantOK bool
	}{
		{in: "16:20", h: 16, m: 20, wantOK: true},
		{in: "00:00", h: 0, m: 0, wantOK: true},
		{in: "23:59", h: 23, m: 59, wantOK: true},
		{in: " 07:05 ", h: 7, m: 5, wantOK: true},
		{in: "25:99"},
		{in: "24:00"},
		{in: "12:60"},
		{in: "7:05"},
		{in: "0705"},
		{in: ""},
	}
	for _, tt := range tests {
		h, m, err := ParseTimeOfDay(tt.in)
		if !tt.wantOK {
			require.Error(t, err, tt.in)
			require.True(t, errors.Is(err, ErrValidation), tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.h, h)
		require.Equal(t, tt.m, m)
	}
}

func TestPolicyNamesRoundTrip(t *testing.T) {
	t.Parallel()
	for _, p := range []Policy{PolicyAllShows, PolicyDailyFixedTime, PolicyKeywordMatch, PolicyDisabled} {
		got, err := ParsePolicy(p.String())
		require.NoError(t, err)
		require.Equal(t, p, got)
	}
	_, err := ParsePolicy("weekly")
	require.Error(t, err)
}

func TestSubscriptionValidate(t *testing.T) {
	t.Parallel()
	ok := []Subscription{
		{DestinationID: -100, Policy: PolicyAllShows},
		{DestinationID: -100, Policy: PolicyDisabled},
		{DestinationID: -100, Policy: PolicyDailyFixedTime, PolicyParam: "09:30"},
		{DestinationID: -100, Policy: PolicyKeywordMatch, PolicyParam: "jungle"},
	}
	for _, s := range ok {
		require.NoError(t, s.Validate(), s.Describe())
	}
	bad := []Subscription{
		{Policy: PolicyAllShows},
		{DestinationID: -100, Policy: PolicyAllShows, PolicyParam: "x"},
		{DestinationID: -100, Policy: PolicyDailyFixedTime, PolicyParam: "9:30"},
		{DestinationID: -100, Policy: PolicyKeywordMatch, PolicyParam: "  "},
		{DestinationID: -100},
	}
	for _, s := range bad {
		require.Error(t, s.Validate(), s.Describe())
	}
}

func TestTrackIsShow(t *testing.T) {
	t.Parallel()
	snap := TrackSnapshot{FilePath: "/srv/audio/radio_show/ep1.mp3"}
	require.True(t, snap.IsShow("/srv/audio/radio_show"))
	require.False(t, snap.IsShow("/srv/audio/music"))
	require.False(t, snap.IsShow(""))
}
