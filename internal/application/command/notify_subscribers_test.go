package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kemsu-schedule/schedule-bot/internal/domain/document"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/subscriber"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/timetable"
)

func mustSnapshot(t *testing.T, version int64, text string) *document.Snapshot {
	t.Helper()
	snap, err := document.NewSnapshot(version, "fp-"+text, "u", 1, text, time.Now())
	require.NoError(t, err)
	return snap
}

func TestNotifySubscribers_UnreachableChatsAreUnsubscribed(t *testing.T) {
	subs := newMemSubscribers(
		mustSubscriber(t, 1, "ИС-951"),
		mustSubscriber(t, 2, "ИС-951"),
	)
	sender := newFakeSender(2)
	h := NewNotifySubscribersHandler(subs, sender, NotifySubscribersConfig{Workers: 4})

	res, err := h.Handle(context.Background(), NotifySubscribersCommand{
		Previous: mustSnapshot(t, 1, docV1),
		Current:  mustSnapshot(t, 2, docV2),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Recipients)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Unsubscribed)
	assert.Equal(t, []timetable.GroupCode{"ИС-951"}, res.ChangedGroups)

	assert.True(t, subs.get(1).Subscribed)
	assert.False(t, subs.get(2).Subscribed)
}

func TestNotifySubscribers_MissingGroup(t *testing.T) {
	subs := newMemSubscribers(mustSubscriber(t, 1, "АБ-101"))
	sender := newFakeSender()
	h := NewNotifySubscribersHandler(subs, sender, NotifySubscribersConfig{})

	_, err := h.Handle(context.Background(), NotifySubscribersCommand{
		Previous: mustSnapshot(t, 1, docV1),
		Current:  mustSnapshot(t, 2, docV2),
	})
	require.NoError(t, err)
	assert.Contains(t, sender.messages[subscriber.ChatID(1)], "Группа АБ-101 не найдена в новом документе.")
}

func TestNotifySubscribers_RequiresCurrentSnapshot(t *testing.T) {
	h := NewNotifySubscribersHandler(newMemSubscribers(), newFakeSender(), NotifySubscribersConfig{})
	_, err := h.Handle(context.Background(), NotifySubscribersCommand{})
	assert.Error(t, err)
}

func TestNotificationText(t *testing.T) {
	assert.Equal(t, UpdateNoticeText, NotificationText("", GroupChanged))
	assert.Equal(t, UpdateNoticeText+"\n\nРасписание группы ИС-951 изменилось.", NotificationText("ИС-951", GroupChanged))
	assert.Equal(t, UpdateNoticeText+"\n\nРасписание группы ИС-951 не изменилось.", NotificationText("ИС-951", GroupUnchanged))
}

func TestCompareGroup(t *testing.T) {
	labels := timetable.RussianLabels()
	v1, v2 := mustSnapshot(t, 1, docV1), mustSnapshot(t, 2, docV2)

	assert.Equal(t, GroupChanged, compareGroup(v1, v2, "ИС-951", 0, labels))
	assert.Equal(t, GroupUnchanged, compareGroup(v1, v2, "ПИ-101", 0, labels))
	assert.Equal(t, GroupMissing, compareGroup(v1, v2, "АБ-101", 0, labels))
	assert.Equal(t, GroupChanged, compareGroup(nil, v2, "ПИ-101", 0, labels))
}
