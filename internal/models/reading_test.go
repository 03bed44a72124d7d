package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeterReading_DecodesBackendShape(t *testing.T) {
	raw := `{
		"id": 42,
		"meterId": "m-7",
		"readingDate": "2026-10-03",
		"currentIndex": "120.5",
		"previousIndex": 100,
		"consumption": 20.5,
		"status": "RE_SUBMITTED",
		"accessReason": "Accessed"
	}`

	var r MeterReading
	require.NoError(t, json.Unmarshal([]byte(raw), &r))

	assert.Equal(t, ID("42"), r.ID)
	assert.Equal(t, ID("m-7"), r.MeterID)
	assert.Equal(t, StatusReSubmitted, r.Status)
	assert.True(t, r.Status.AwaitingReview())
	assert.Equal(t, "120.5", r.LastIndex().String())
}

func TestMeterReading_InaccessibleHasNoCurrentIndex(t *testing.T) {
	raw := `{"id":"r1","currentIndex":null,"previousIndex":80,"status":"approved","accessReason":"Door_Closed"}`

	var r MeterReading
	require.NoError(t, json.Unmarshal([]byte(raw), &r))

	assert.False(t, r.CurrentIndex.Valid)
	assert.Equal(t, "80", r.LastIndex().String())
	assert.False(t, r.Status.AwaitingReview())
}

func TestParseReadingStatus(t *testing.T) {
	assert.Equal(t, StatusReSubmitted, ParseReadingStatus(" Re-Submitted "))
	assert.Equal(t, StatusReSubmitted, ParseReadingStatus("RESUBMITTED"))
	assert.Equal(t, StatusPending, ParseReadingStatus("PENDING"))
}
