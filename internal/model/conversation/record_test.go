package conversation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordJSONRoundTrip(t *testing.T) {
	original := Record{
		ID:              "room-1",
		PartnerName:     "Alex",
		Topic:           DefaultTopic,
		DurationSeconds: 312,
		Date:            time.Date(2024, 5, 1, 20, 30, 15, 0, time.UTC),
		Rating:          4,
		HasRecording:    true,
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Record
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, original, decoded)
}

func TestRecordUsesStorageFieldNames(t *testing.T) {
	data, err := json.Marshal(Record{ID: "x", DurationSeconds: 7})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Contains(t, raw, "partnerName")
	require.Contains(t, raw, "hasRecording")
	require.EqualValues(t, 7, raw["duration"])
}

func TestValidateRating(t *testing.T) {
	for _, rating := range []int{0, 3, 5} {
		require.NoError(t, ValidateRating(rating))
	}
	require.ErrorIs(t, ValidateRating(-1), ErrInvalidRating)
	require.ErrorIs(t, ValidateRating(6), ErrInvalidRating)
}
