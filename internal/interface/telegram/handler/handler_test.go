package handler

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kemsu-schedule/schedule-bot/internal/application/command"
	"github.com/kemsu-schedule/schedule-bot/internal/application/query"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/document"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/shared"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/subscriber"
	"github.com/kemsu-schedule/schedule-bot/internal/interface/telegram/presenter"
)

const testDocument = "ИС-952\n01.09.2025\nФизика\nИС-951\n01.09.2025\n8:30-\n10:05\nАлгебра\nПИ-101\nХимия"

// ─────────────────────────────────────────────────────────────────────────────
// Fixture
// ─────────────────────────────────────────────────────────────────────────────

type memSubscribers struct {
	mu    sync.Mutex
	items map[subscriber.ChatID]*subscriber.Subscriber
}

func newMemSubscribers() *memSubscribers {
	return &memSubscribers{items: make(map[subscriber.ChatID]*subscriber.Subscriber)}
}

func (m *memSubscribers) Get(_ context.Context, id subscriber.ChatID) (*subscriber.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.items[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, shared.ErrSubscriberNotFound
}

func (m *memSubscribers) GetOrCreate(_ context.Context, id subscriber.ChatID) (*subscriber.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok {
		var err error
		s, err = subscriber.New(id, time.Now())
		if err != nil {
			return nil, err
		}
		m.items[id] = s
	}
	cp := *s
	return &cp, nil
}

func (m *memSubscribers) Save(_ context.Context, s *subscriber.Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.items[s.ChatID] = &cp
	return nil
}

func (m *memSubscribers) ListSubscribed(_ context.Context) ([]*subscriber.Subscriber, error) {
	return nil, nil
}

func (m *memSubscribers) Count(_ context.Context) (int, int, error) {
	return len(m.items), 0, nil
}

type fixture struct {
	subs     *memSubscribers
	store    *document.Store
	start    *StartHandler
	group    *GroupHandler
	schedule *ScheduleHandler
	profile  *ProfileHandler
}

func newFixture(t *testing.T, text string) *fixture {
	t.Helper()

	store := document.NewStore()
	if text != "" {
		snap, err := document.NewSnapshot(1, "fp", "file:///tmp/doc.pdf", 1, text, time.Date(2025, 9, 1, 5, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		store.Swap(snap)
	}
	subs := newMemSubscribers()

	profileQuery := query.NewGetProfileHandler(subs, store)
	return &fixture{
		subs:  subs,
		store: store,
		start: NewStartHandler(command.NewRegisterChatHandler(subs), query.NewCatalogHandler(store)),
		group: NewGroupHandler(
			command.NewSelectGroupHandler(subs, store),
			command.NewRequestManualGroupHandler(subs),
			profileQuery,
		),
		schedule: NewScheduleHandler(query.NewGetScheduleHandler(store, subs, nil, query.GetScheduleConfig{})),
		profile:  NewProfileHandler(profileQuery, command.NewSetSubscriptionHandler(subs)),
	}
}

func (f *fixture) subscriber(t *testing.T, chatID int64) *subscriber.Subscriber {
	t.Helper()
	s, err := f.subs.Get(context.Background(), subscriber.ChatID(chatID))
	require.NoError(t, err)
	return s
}

// ─────────────────────────────────────────────────────────────────────────────
// /start and institute callbacks
// ─────────────────────────────────────────────────────────────────────────────

func TestStart_ShowsUnits(t *testing.T) {
	f := newFixture(t, testDocument)

	resp, err := f.start.Start(context.Background(), Request{ChatID: 10})
	require.NoError(t, err)

	assert.Equal(t, presenter.ChooseUnitText, resp.Text)
	require.NotNil(t, resp.Keyboard)
	require.Len(t, resp.Keyboard.InlineKeyboard, 1)
	assert.Equal(t, "institute|ИС", resp.Keyboard.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "institute|ПИ", resp.Keyboard.InlineKeyboard[0][1].CallbackData)

	s := f.subscriber(t, 10)
	assert.True(t, s.Subscribed)
	assert.False(t, s.HasGroup())
}

func TestStart_NoUnits(t *testing.T) {
	resp, err := newFixture(t, "нет групп в этом документе").start.Start(context.Background(), Request{ChatID: 1})
	require.NoError(t, err)
	assert.Equal(t, presenter.NoUnitsText, resp.Text)
	assert.Nil(t, resp.Keyboard)

	resp, err = newFixture(t, "").start.Start(context.Background(), Request{ChatID: 1})
	require.NoError(t, err)
	assert.Equal(t, presenter.NotLoadedText, resp.Text)
}

func TestInstitute(t *testing.T) {
	f := newFixture(t, testDocument)
	ctx := context.Background()

	resp, err := f.start.Institute(ctx, Request{ChatID: 1, Args: "ИС"})
	require.NoError(t, err)
	assert.Equal(t, "Институт: ИС. Выберите группу:", resp.Text)
	assert.True(t, resp.Edit)
	require.Len(t, resp.Keyboard.InlineKeyboard, 2)
	assert.Equal(t, "group|ИС-951", resp.Keyboard.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "group|manual", resp.Keyboard.InlineKeyboard[1][0].CallbackData)

	resp, err = f.start.Institute(ctx, Request{ChatID: 1, Args: "#1"})
	require.NoError(t, err)
	assert.Equal(t, "Институт: ПИ. Выберите группу:", resp.Text)

	resp, err = f.start.Institute(ctx, Request{ChatID: 1, Args: "#9"})
	require.NoError(t, err)
	assert.Equal(t, presenter.UnitListChangedText, resp.Text)

	resp, err = f.start.Institute(ctx, Request{ChatID: 1, Args: "ЖЖ"})
	require.NoError(t, err)
	assert.Equal(t, presenter.UnitNotFoundText("ЖЖ"), resp.Text)
}

// ─────────────────────────────────────────────────────────────────────────────
// Group selection
// ─────────────────────────────────────────────────────────────────────────────

func TestGroupCallback_SavesGroup(t *testing.T) {
	f := newFixture(t, testDocument)

	resp, err := f.group.Callback(context.Background(), Request{ChatID: 5, Args: "ИС-951"})
	require.NoError(t, err)
	assert.Equal(t, presenter.GroupSavedText("ИС-951", true), resp.Text)
	assert.Equal(t, "ИС-951", resp.Notice)

	assert.Equal(t, "ИС-951", f.subscriber(t, 5).Group.String())
}

func TestManualInputFlow(t *testing.T) {
	f := newFixture(t, testDocument)
	ctx := context.Background()

	resp, err := f.group.Callback(ctx, Request{ChatID: 5, Args: "manual"})
	require.NoError(t, err)
	assert.Equal(t, presenter.ManualGroupText, resp.Text)
	assert.True(t, f.subscriber(t, 5).AwaitingGroup)

	resp, err = f.group.Text(ctx, Request{ChatID: 5, Args: "что-то не то", Private: true})
	require.NoError(t, err)
	assert.Equal(t, presenter.InvalidGroupText, resp.Text)
	assert.True(t, f.subscriber(t, 5).AwaitingGroup)

	resp, err = f.group.Text(ctx, Request{ChatID: 5, Args: "  пи-101 ", Private: true})
	require.NoError(t, err)
	assert.Equal(t, presenter.GroupSavedText("ПИ-101", true), resp.Text)

	s := f.subscriber(t, 5)
	assert.False(t, s.AwaitingGroup)
	assert.Equal(t, "ПИ-101", s.Group.String())
}

func TestManualInput_UnknownGroupIsSavedWithWarning(t *testing.T) {
	f := newFixture(t, testDocument)
	ctx := context.Background()

	_, err := f.group.Callback(ctx, Request{ChatID: 5, Args: "manual"})
	require.NoError(t, err)

	resp, err := f.group.Text(ctx, Request{ChatID: 5, Args: "АБ-777", Private: true})
	require.NoError(t, err)
	assert.Equal(t, presenter.GroupSavedText("АБ-777", false), resp.Text)
}

func TestText_NotAwaiting(t *testing.T) {
	f := newFixture(t, testDocument)
	ctx := context.Background()

	resp, err := f.group.Text(ctx, Request{ChatID: 5, Args: "ИС-951", Private: true})
	require.NoError(t, err)
	assert.Equal(t, presenter.FreeTextHintText, resp.Text)

	resp, err = f.group.Text(ctx, Request{ChatID: -100, Args: "привет"})
	require.NoError(t, err)
	assert.Nil(t, resp)

	_, err = f.subs.Get(ctx, 5)
	assert.ErrorIs(t, err, shared.ErrSubscriberNotFound)
}

// ─────────────────────────────────────────────────────────────────────────────
// /schedule
// ─────────────────────────────────────────────────────────────────────────────

func TestSchedule(t *testing.T) {
	f := newFixture(t, testDocument)
	ctx := context.Background()

	resp, err := f.schedule.Handle(ctx, Request{ChatID: 5})
	require.NoError(t, err)
	assert.Equal(t, presenter.NoGroupText, resp.Text)

	_, err = f.group.Callback(ctx, Request{ChatID: 5, Args: "ИС-951"})
	require.NoError(t, err)

	resp, err = f.schedule.Handle(ctx, Request{ChatID: 5})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.Text, "Расписание от 01.09.2025 12:00"), resp.Text)
	assert.True(t, strings.HasSuffix(resp.Text, "8:30-10:05  —  Алгебра"), resp.Text)

	resp, err = f.schedule.Handle(ctx, Request{ChatID: 6, Args: "пи-101"})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "Химия")

	resp, err = f.schedule.Handle(ctx, Request{ChatID: 6, Args: "???"})
	require.NoError(t, err)
	assert.Equal(t, presenter.InvalidGroupText, resp.Text)
}

func TestSchedule_NotLoaded(t *testing.T) {
	f := newFixture(t, "")

	resp, err := f.schedule.Handle(context.Background(), Request{ChatID: 5, Args: "ИС-951"})
	require.NoError(t, err)
	assert.Equal(t, presenter.NotLoadedText, resp.Text)
}

// ─────────────────────────────────────────────────────────────────────────────
// /mygroup, /subscribe, /unsubscribe, /help
// ─────────────────────────────────────────────────────────────────────────────

func TestProfileAndSubscription(t *testing.T) {
	f := newFixture(t, testDocument)
	ctx := context.Background()

	resp, err := f.profile.MyGroup(ctx, Request{ChatID: 5})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "Группа не выбрана")

	_, err = f.group.Callback(ctx, Request{ChatID: 5, Args: "ИС-951"})
	require.NoError(t, err)

	resp, err = f.profile.Unsubscribe(ctx, Request{ChatID: 5})
	require.NoError(t, err)
	assert.Equal(t, presenter.UnsubscribedText, resp.Text)
	assert.False(t, f.subscriber(t, 5).Subscribed)

	resp, err = f.profile.MyGroup(ctx, Request{ChatID: 5})
	require.NoError(t, err)
	assert.Equal(t, "Ваша группа: ИС-951\nУведомления: отключены (/subscribe чтобы включить)", resp.Text)

	resp, err = f.profile.Subscribe(ctx, Request{ChatID: 5})
	require.NoError(t, err)
	assert.Equal(t, presenter.SubscribedText, resp.Text)
	assert.True(t, f.subscriber(t, 5).Subscribed)

	resp, err = Help(ctx, Request{})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "/schedule")
}
