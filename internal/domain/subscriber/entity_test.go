package subscriber

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kemsu-schedule/schedule-bot/internal/domain/shared"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/timetable"
)

func TestNew(t *testing.T) {
	now := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)

	s, err := New(42, now)
	require.NoError(t, err)
	assert.True(t, s.Subscribed)
	assert.False(t, s.HasGroup())
	assert.False(t, s.AwaitingGroup)
	assert.Equal(t, now, s.CreatedAt)

	_, err = New(0, now)
	assert.True(t, errors.Is(err, shared.ErrInvalidChatID))
}

func TestSubscriber_Lifecycle(t *testing.T) {
	now := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	s, err := New(-100500, now)
	require.NoError(t, err)

	_, err = s.RequireGroup()
	assert.True(t, errors.Is(err, shared.ErrNoGroupSelected))

	later := now.Add(time.Minute)
	s.AwaitGroupInput(later)
	assert.True(t, s.AwaitingGroup)

	s.SelectGroup("ИС-951", later)
	assert.False(t, s.AwaitingGroup)
	group, err := s.RequireGroup()
	require.NoError(t, err)
	assert.Equal(t, timetable.GroupCode("ИС-951"), group)

	s.Unsubscribe(later)
	assert.False(t, s.Subscribed)
	s.Subscribe(later)
	assert.True(t, s.Subscribed)
	assert.Equal(t, later, s.UpdatedAt)
}

func TestNormalizeGroupInput(t *testing.T) {
	tests := []struct {
		in      string
		want    timetable.GroupCode
		wantErr bool
	}{
		{in: "ис-951", want: "ИС-951"},
		{in: "  Пи-101\n", want: "ПИ-101"},
		{in: "ИСТБ-1234", want: "ИСТБ-1234"},
		{in: "951", wantErr: true},
		{in: "is-951", wantErr: true},
		{in: "ис 951", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeGroupInput(tt.in)
			if tt.wantErr {
				assert.True(t, errors.Is(err, shared.ErrInvalidGroupCode))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
