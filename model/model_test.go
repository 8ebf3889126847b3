package model

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackIDFormat(t *testing.T) {
	id := NewTrackID()
	assert.True(t, IsTrackID(id), id)
	assert.NotEqual(t, id, NewTrackID())

	for _, bad := range []string{"", "track_", "beat_abc", "track_a b", "list", "track_../x"} {
		assert.False(t, IsTrackID(bad), bad)
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "tracks/track_x.mp3", AudioKey("track_x"))
	assert.Equal(t, "covers/track_x.jpg", CoverKey("track_x"))
	assert.Equal(t, "metadata/track_x.json", MetadataKey("track_x"))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0:00", FormatDuration(0))
	assert.Equal(t, "3:05", FormatDuration(185))
	assert.Equal(t, "61:01", FormatDuration(3661))
}

func TestNormalizeTags(t *testing.T) {
	assert.Equal(t, []string{"trap", "dark"}, NormalizeTags([]string{" Trap", "dark", "TRAP", ""}))
}

func TestParseLicenseType(t *testing.T) {
	l, err := ParseLicenseType(" Exclusive ")
	require.NoError(t, err)
	assert.Equal(t, LicenseExclusive, l)

	_, err = ParseLicenseType("lifetime")
	assert.Error(t, err)
}

func TestLogRingNewestFirstAndBounded(t *testing.T) {
	r := NewLogRing(3)
	for i := 1; i <= 5; i++ {
		r.Push(LogEntry{Message: fmt.Sprint(i)})
	}
	require.Equal(t, 3, r.Len())
	var got []string
	for _, e := range r.Entries() {
		got = append(got, e.Message)
	}
	assert.Equal(t, []string{"5", "4", "3"}, got)
}

func TestLogRingJSONRoundTripKeepsOrder(t *testing.T) {
	st := NewSchedulerState()
	for i := 0; i < RecentLogCapacity+7; i++ {
		st.RecentLogs.Push(LogEntry{Message: fmt.Sprint(i)})
	}

	data, err := json.Marshal(st)
	require.NoError(t, err)

	var back SchedulerState
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, RecentLogCapacity, back.RecentLogs.Len())
	entries := back.RecentLogs.Entries()
	assert.Equal(t, fmt.Sprint(RecentLogCapacity+6), entries[0].Message)
	assert.Equal(t, "7", entries[len(entries)-1].Message)
}

func TestSchedulerStateNullLogs(t *testing.T) {
	var st SchedulerState
	require.NoError(t, json.Unmarshal([]byte(`{"active":false,"nextRunAt":null,"sources":[]}`), &st))
	assert.Nil(t, st.RecentLogs)

	st.Normalize()
	require.NotNil(t, st.RecentLogs)
	data, err := json.Marshal(st)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"recentLogs":[]`)
}

func TestNormalizeClearsNextRunWhenInactive(t *testing.T) {
	now := time.Now()
	st := SchedulerState{Active: false, NextRunAt: &now}
	st.Normalize()
	assert.Nil(t, st.NextRunAt)
	assert.NotNil(t, st.Sources)
}
