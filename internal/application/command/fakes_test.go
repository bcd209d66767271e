package command

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/kemsu-schedule/schedule-bot/internal/domain/document"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/shared"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/subscriber"
)

// ─────────────────────────────────────────────────────────────────────────────
// Subscriber repository
// ─────────────────────────────────────────────────────────────────────────────

type memSubscribers struct {
	mu    sync.Mutex
	items map[subscriber.ChatID]subscriber.Subscriber
}

func newMemSubscribers(subs ...*subscriber.Subscriber) *memSubscribers {
	m := &memSubscribers{items: make(map[subscriber.ChatID]subscriber.Subscriber)}
	for _, s := range subs {
		m.items[s.ChatID] = *s
	}
	return m
}

func (m *memSubscribers) Get(_ context.Context, chatID subscriber.ChatID) (*subscriber.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[chatID]
	if !ok {
		return nil, shared.ErrSubscriberNotFound
	}
	return &s, nil
}

func (m *memSubscribers) GetOrCreate(_ context.Context, chatID subscriber.ChatID) (*subscriber.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.items[chatID]; ok {
		return &s, nil
	}
	s, err := subscriber.New(chatID, time.Now())
	if err != nil {
		return nil, err
	}
	m.items[chatID] = *s
	return s, nil
}

func (m *memSubscribers) Save(_ context.Context, s *subscriber.Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[s.ChatID] = *s
	return nil
}

func (m *memSubscribers) ListSubscribed(_ context.Context) ([]*subscriber.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*subscriber.Subscriber
	for _, s := range m.items {
		if s.Subscribed {
			s := s
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out, nil
}

func (m *memSubscribers) Count(_ context.Context) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subscribed := 0
	for _, s := range m.items {
		if s.Subscribed {
			subscribed++
		}
	}
	return len(m.items), subscribed, nil
}

func (m *memSubscribers) get(chatID subscriber.ChatID) subscriber.Subscriber {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[chatID]
}

// ─────────────────────────────────────────────────────────────────────────────
// Snapshot repository
// ─────────────────────────────────────────────────────────────────────────────

type memSnapshots struct {
	mu    sync.Mutex
	saved []*document.Snapshot
}

func (m *memSnapshots) Save(_ context.Context, snap *document.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, snap)
	return nil
}

func (m *memSnapshots) Latest(_ context.Context) (*document.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saved) == 0 {
		return nil, shared.ErrSnapshotNotFound
	}
	return m.saved[len(m.saved)-1], nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Document source
// ─────────────────────────────────────────────────────────────────────────────

type fakeSource struct {
	text     string
	fetchErr error
	archived int
	extracts int
}

func (f *fakeSource) Fetch(_ context.Context) (*SourceDocument, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return &SourceDocument{
		Data:        []byte(f.text),
		Fingerprint: "fp-" + f.text,
		SourceURL:   "https://example.test/schedule.pdf",
		FetchedAt:   time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC),
	}, nil
}

func (f *fakeSource) Archive(_ context.Context, _ *SourceDocument) error {
	f.archived++
	return nil
}

func (f *fakeSource) Extract(_ context.Context, doc *SourceDocument) (*ExtractedDocument, error) {
	f.extracts++
	return &ExtractedDocument{Text: string(doc.Data), PageCount: 1}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Notification sender
// ─────────────────────────────────────────────────────────────────────────────

type fakeSender struct {
	mu          sync.Mutex
	messages    map[subscriber.ChatID]string
	unreachable map[subscriber.ChatID]bool
}

func newFakeSender(unreachable ...subscriber.ChatID) *fakeSender {
	s := &fakeSender{
		messages:    make(map[subscriber.ChatID]string),
		unreachable: make(map[subscriber.ChatID]bool),
	}
	for _, id := range unreachable {
		s.unreachable[id] = true
	}
	return s
}

func (s *fakeSender) Send(_ context.Context, chatID subscriber.ChatID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unreachable[chatID] {
		return shared.WrapError("telegram", "Send", shared.ErrInvalidState, "chat is unreachable", errors.New("403 Forbidden"))
	}
	s.messages[chatID] = text
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Locker
// ─────────────────────────────────────────────────────────────────────────────

type fakeLocker struct {
	held     bool
	acquired int
	released int
}

var errLockHeld = errors.New("lock held")

func (l *fakeLocker) Acquire(_ context.Context, _ string) (func(context.Context) error, error) {
	if l.held {
		return nil, errLockHeld
	}
	l.held = true
	l.acquired++
	return func(context.Context) error {
		l.held = false
		l.released++
		return nil
	}, nil
}
