package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEncodeStampsTime(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	e := Event{TenantID: uuid.New(), CampaignID: uuid.New(), Type: EventStatusChanged}

	data, err := encodeEvent(e, func() time.Time { return now })
	require.NoError(t, err)

	got, err := decodeEvent(string(data))
	require.NoError(t, err)
	assert.Equal(t, e.CampaignID, got.CampaignID)
	assert.True(t, now.Equal(got.At))
}

func TestEncodeRejectsUnscopedEvent(t *testing.T) {
	_, err := encodeEvent(Event{Type: EventStatusChanged, CampaignID: uuid.New()}, time.Now)
	assert.ErrorIs(t, err, errUnscoped)
}

func TestDispatchSurvivesBadInput(t *testing.T) {
	s := &RedisSubscriber{log: zap.NewNop()}
	var got []Event

	s.dispatch("test", "{not json", func(e Event) { got = append(got, e) })
	s.dispatch("test", `{"type":"status_changed"}`, func(e Event) { got = append(got, e) })
	assert.Empty(t, got)

	data, err := encodeEvent(Event{TenantID: uuid.New(), CampaignID: uuid.New(), Type: EventReminderSent}, time.Now)
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		s.dispatch("test", string(data), func(Event) { panic("handler bug") })
	})

	s.dispatch("test", string(data), func(e Event) { got = append(got, e) })
	require.Len(t, got, 1)
	assert.Equal(t, EventReminderSent, got[0].Type)
}
