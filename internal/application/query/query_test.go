package query

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kemsu-schedule/schedule-bot/internal/domain/document"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/shared"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/subscriber"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/timetable"
)

const testDocument = "ИС-952\n01.09.2025\nФизика\nИС-951\n01.09.2025\n8:30-\n10:05\nАлгебра\nПИ-101\nХимия"

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type memSubscribers struct {
	items map[subscriber.ChatID]*subscriber.Subscriber
}

func (m *memSubscribers) Get(_ context.Context, id subscriber.ChatID) (*subscriber.Subscriber, error) {
	if s, ok := m.items[id]; ok {
		return s, nil
	}
	return nil, shared.ErrSubscriberNotFound
}

func (m *memSubscribers) GetOrCreate(ctx context.Context, id subscriber.ChatID) (*subscriber.Subscriber, error) {
	return m.Get(ctx, id)
}

func (m *memSubscribers) Save(_ context.Context, s *subscriber.Subscriber) error {
	m.items[s.ChatID] = s
	return nil
}

func (m *memSubscribers) ListSubscribed(_ context.Context) ([]*subscriber.Subscriber, error) {
	return nil, nil
}

func (m *memSubscribers) Count(_ context.Context) (int, int, error) {
	subscribed := 0
	for _, s := range m.items {
		if s.Subscribed {
			subscribed++
		}
	}
	return len(m.items), subscribed, nil
}

type memCache struct {
	mu    sync.Mutex
	items map[string]string
	sets  int
}

func (c *memCache) Get(_ context.Context, fp string, group timetable.GroupCode) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[fp+"|"+group.String()]
	return v, ok
}

func (c *memCache) Set(_ context.Context, fp string, group timetable.GroupCode, rendered string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[fp+"|"+group.String()] = rendered
	c.sets++
}

func loadedStore(t *testing.T) *document.Store {
	t.Helper()
	snap, err := document.NewSnapshot(3, "abc", "u", 2, testDocument, time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	store := document.NewStore()
	store.Swap(snap)
	return store
}

func subscriberWithGroup(t *testing.T, chatID int64, group string) *subscriber.Subscriber {
	t.Helper()
	s, err := subscriber.New(subscriber.ChatID(chatID), time.Now())
	require.NoError(t, err)
	if group != "" {
		s.SelectGroup(timetable.GroupCode(group), time.Now())
	}
	return s
}

// ─────────────────────────────────────────────────────────────────────────────
// Catalog
// ─────────────────────────────────────────────────────────────────────────────

func TestCatalog_ListUnitsAndGroups(t *testing.T) {
	h := NewCatalogHandler(loadedStore(t))
	ctx := context.Background()

	units, err := h.ListUnits(ctx, ListUnitsQuery{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"ИС"}, units.Units)
	assert.Equal(t, 2, units.Total)

	groups, err := h.ListGroups(ctx, ListGroupsQuery{Unit: "ИС"})
	require.NoError(t, err)
	assert.Equal(t, []timetable.GroupCode{"ИС-951", "ИС-952"}, groups.Groups)
	assert.Equal(t, 2, groups.Total)

	unknown, err := h.ListGroups(ctx, ListGroupsQuery{Unit: "ЖЖ"})
	require.NoError(t, err)
	assert.Empty(t, unknown.Groups)

	catalog, err := h.Catalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), catalog.Version)
	assert.Equal(t, []UnitDTO{
		{Name: "ИС", Groups: []string{"ИС-951", "ИС-952"}},
		{Name: "ПИ", Groups: []string{"ПИ-101"}},
	}, catalog.Units)
}

func TestCatalog_NotLoaded(t *testing.T) {
	h := NewCatalogHandler(document.NewStore())
	_, err := h.ListUnits(context.Background(), ListUnitsQuery{})
	assert.True(t, errors.Is(err, shared.ErrDocumentNotLoaded))
}

// ─────────────────────────────────────────────────────────────────────────────
// Schedule
// ─────────────────────────────────────────────────────────────────────────────

func TestGetSchedule_BySubscriberUsesCache(t *testing.T) {
	subs := &memSubscribers{items: map[subscriber.ChatID]*subscriber.Subscriber{
		1: subscriberWithGroup(t, 1, "ИС-951"),
	}}
	cache := &memCache{items: make(map[string]string)}
	h := NewGetScheduleHandler(loadedStore(t), subs, cache, GetScheduleConfig{})
	ctx := context.Background()

	first, err := h.Handle(ctx, GetScheduleQuery{ChatID: 1})
	require.NoError(t, err)
	assert.True(t, first.Found)
	assert.False(t, first.Cached)
	assert.Equal(t, "ИС-951\n\nДата не указана\n  ИС-951\n\n01.09.2025\n  8:30-10:05  —  Алгебра", first.Text)
	assert.Equal(t, int64(3), first.Version)

	second, err := h.Handle(ctx, GetScheduleQuery{ChatID: 1})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, 1, cache.sets)
}

func TestGetSchedule_ExplicitGroup(t *testing.T) {
	h := NewGetScheduleHandler(loadedStore(t), &memSubscribers{}, nil, GetScheduleConfig{})

	dto, err := h.Handle(context.Background(), GetScheduleQuery{Group: "АБ-101"})
	require.NoError(t, err)
	assert.False(t, dto.Found)
	assert.Equal(t, timetable.RussianLabels().NotFound, dto.Text)

	_, err = h.Handle(context.Background(), GetScheduleQuery{Group: "not-a-group"})
	assert.True(t, errors.Is(err, shared.ErrInvalidGroupCode))
}

func TestGetSchedule_Errors(t *testing.T) {
	subs := &memSubscribers{items: map[subscriber.ChatID]*subscriber.Subscriber{
		1: subscriberWithGroup(t, 1, ""),
		2: subscriberWithGroup(t, 2, "ИС-951"),
	}}
	ctx := context.Background()

	h := NewGetScheduleHandler(loadedStore(t), subs, nil, GetScheduleConfig{})
	_, err := h.Handle(ctx, GetScheduleQuery{ChatID: 1})
	assert.True(t, errors.Is(err, shared.ErrNoGroupSelected))

	_, err = h.Handle(ctx, GetScheduleQuery{ChatID: 99})
	assert.True(t, errors.Is(err, shared.ErrNoGroupSelected))

	empty := NewGetScheduleHandler(document.NewStore(), subs, nil, GetScheduleConfig{})
	_, err = empty.Handle(ctx, GetScheduleQuery{ChatID: 2})
	assert.True(t, errors.Is(err, shared.ErrDocumentNotLoaded))
}

// ─────────────────────────────────────────────────────────────────────────────
// Profile and status
// ─────────────────────────────────────────────────────────────────────────────

func TestGetProfile(t *testing.T) {
	off := subscriberWithGroup(t, 2, "АБ-101")
	off.Unsubscribe(time.Now())
	subs := &memSubscribers{items: map[subscriber.ChatID]*subscriber.Subscriber{
		1: subscriberWithGroup(t, 1, "ИС-951"),
		2: off,
	}}
	h := NewGetProfileHandler(subs, loadedStore(t))
	ctx := context.Background()

	p, err := h.Handle(ctx, GetProfileQuery{ChatID: 1})
	require.NoError(t, err)
	assert.Equal(t, ProfileDTO{Registered: true, Group: "ИС-951", Subscribed: true, GroupInDocument: true}, *p)

	p, err = h.Handle(ctx, GetProfileQuery{ChatID: 2})
	require.NoError(t, err)
	assert.Equal(t, ProfileDTO{Registered: true, Group: "АБ-101"}, *p)

	p, err = h.Handle(ctx, GetProfileQuery{ChatID: 3})
	require.NoError(t, err)
	assert.False(t, p.Registered)
}

func TestGetStatus(t *testing.T) {
	subs := &memSubscribers{items: map[subscriber.ChatID]*subscriber.Subscriber{
		1: subscriberWithGroup(t, 1, "ИС-951"),
	}}

	st, err := NewGetStatusHandler(loadedStore(t), subs).Handle(context.Background())
	require.NoError(t, err)
	assert.True(t, st.DocumentLoaded)
	assert.Equal(t, 2, st.Units)
	assert.Equal(t, 3, st.Groups)
	assert.Equal(t, 1, st.Chats)
	assert.Equal(t, 1, st.Subscribed)

	st, err = NewGetStatusHandler(document.NewStore(), subs).Handle(context.Background())
	require.NoError(t, err)
	assert.False(t, st.DocumentLoaded)
}
