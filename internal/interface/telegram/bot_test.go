package telegram

import (
	"context"
	"errors"
	"fmt"
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
	"github.com/kemsu-schedule/schedule-bot/internal/infrastructure/external/telegram"
	"github.com/kemsu-schedule/schedule-bot/internal/interface/telegram/handler"
	"github.com/kemsu-schedule/schedule-bot/internal/interface/telegram/middleware"
	"github.com/kemsu-schedule/schedule-bot/internal/interface/telegram/presenter"
)

const testDocument = "ИС-952\n01.09.2025\nФизика\nИС-951\n01.09.2025\n8:30-\n10:05\nАлгебра\nПИ-101\nХимия"

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type sent struct {
	ChatID   int64
	Text     string
	Keyboard *telegram.InlineKeyboardMarkup
	Edited   int64
}

type fakeClient struct {
	mu       sync.Mutex
	sent     []sent
	answers  []string
	editErr  error
	webhooks []string
	deleted  int
}

func (c *fakeClient) GetMe(context.Context) (*telegram.User, error) {
	return &telegram.User{ID: 1, Username: "schedule_bot", IsBot: true}, nil
}

func (c *fakeClient) StartPolling(ctx context.Context, _ telegram.UpdateHandler) error {
	<-ctx.Done()
	return nil
}

func (c *fakeClient) SetWebhook(_ context.Context, url, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.webhooks = append(c.webhooks, url)
	return nil
}

func (c *fakeClient) DeleteWebhook(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted++
	return nil
}

func (c *fakeClient) SendMessage(_ context.Context, p telegram.SendMessageParams) (*telegram.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sent{ChatID: p.ChatID, Text: p.Text, Keyboard: p.ReplyMarkup})
	return &telegram.Message{MessageID: int64(len(c.sent))}, nil
}

func (c *fakeClient) EditMessageText(_ context.Context, chatID, messageID int64, text, _ string, kb *telegram.InlineKeyboardMarkup) (*telegram.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editErr != nil {
		return nil, c.editErr
	}
	c.sent = append(c.sent, sent{ChatID: chatID, Text: text, Keyboard: kb, Edited: messageID})
	return &telegram.Message{MessageID: messageID}, nil
}

func (c *fakeClient) AnswerCallbackQuery(_ context.Context, _ string, text string, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answers = append(c.answers, text)
	return nil
}

func (c *fakeClient) messages() []sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sent(nil), c.sent...)
}

type memSubscribers struct {
	mu    sync.Mutex
	items map[subscriber.ChatID]subscriber.Subscriber
}

func (m *memSubscribers) Get(_ context.Context, id subscriber.ChatID) (*subscriber.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.items[id]; ok {
		return &s, nil
	}
	return nil, shared.ErrSubscriberNotFound
}

func (m *memSubscribers) GetOrCreate(ctx context.Context, id subscriber.ChatID) (*subscriber.Subscriber, error) {
	if s, err := m.Get(ctx, id); err == nil {
		return s, nil
	}
	s, err := subscriber.New(id, time.Now())
	if err != nil {
		return nil, err
	}
	return s, m.Save(ctx, s)
}

func (m *memSubscribers) Save(_ context.Context, s *subscriber.Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[s.ChatID] = *s
	return nil
}

func (m *memSubscribers) ListSubscribed(context.Context) ([]*subscriber.Subscriber, error) {
	return nil, nil
}

func (m *memSubscribers) Count(context.Context) (int, int, error) {
	return 0, 0, nil
}

func newTestBot(t *testing.T, config BotConfig) (*Bot, *fakeClient) {
	t.Helper()

	store := document.NewStore()
	snap, err := document.NewSnapshot(1, "fp", "doc", 1, testDocument, time.Date(2025, 9, 1, 5, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	store.Swap(snap)

	subs := &memSubscribers{items: make(map[subscriber.ChatID]subscriber.Subscriber)}
	profile := query.NewGetProfileHandler(subs, store)

	deps := BotDependencies{
		Start: handler.NewStartHandler(command.NewRegisterChatHandler(subs), query.NewCatalogHandler(store)),
		Group: handler.NewGroupHandler(
			command.NewSelectGroupHandler(subs, store),
			command.NewRequestManualGroupHandler(subs),
			profile,
		),
		Schedule: handler.NewScheduleHandler(query.NewGetScheduleHandler(store, subs, nil, query.GetScheduleConfig{})),
		Profile:  handler.NewProfileHandler(profile, command.NewSetSubscriptionHandler(subs)),
	}

	client := &fakeClient{}
	b, err := NewBot(config, client, deps)
	require.NoError(t, err)
	return b, client
}

func commandUpdate(chatID int64, text string) *telegram.Update {
	cmd, _, _ := strings.Cut(text, " ")
	return &telegram.Update{Message: &telegram.Message{
		MessageID: 1,
		From:      &telegram.User{ID: chatID},
		Chat:      &telegram.Chat{ID: chatID, Type: "private"},
		Text:      text,
		Entities:  []telegram.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func callbackUpdate(chatID, messageID int64, data string) *telegram.Update {
	return &telegram.Update{CallbackQuery: &telegram.CallbackQuery{
		ID:   "cb",
		From: &telegram.User{ID: chatID},
		Data: data,
		Message: &telegram.Message{
			MessageID: messageID,
			Chat:      &telegram.Chat{ID: chatID, Type: "private"},
		},
	}}
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestNewBot_Validation(t *testing.T) {
	_, err := NewBot(DefaultBotConfig(), &fakeClient{}, BotDependencies{})
	assert.ErrorContains(t, err, "missing bot dependencies")

	_, err = NewBot(DefaultBotConfig(), nil, BotDependencies{})
	assert.Error(t, err)
}

func TestBot_Routes(t *testing.T) {
	b, _ := newTestBot(t, DefaultBotConfig())

	assert.Equal(t, []string{"help", "mygroup", "schedule", "start", "subscribe", "unsubscribe"}, b.Router().Commands())
	assert.Equal(t, []string{"group", "institute"}, b.Router().CallbackPrefixes())
}

func TestBot_SelectionFlow(t *testing.T) {
	b, client := newTestBot(t, DefaultBotConfig())
	ctx := context.Background()

	require.NoError(t, b.HandleUpdate(ctx, commandUpdate(7, "/start")))
	require.NoError(t, b.HandleUpdate(ctx, callbackUpdate(7, 100, "institute|ИС")))
	require.NoError(t, b.HandleUpdate(ctx, callbackUpdate(7, 100, "group|ИС-951")))
	require.NoError(t, b.HandleUpdate(ctx, commandUpdate(7, "/schedule@schedule_bot")))

	msgs := client.messages()
	require.Len(t, msgs, 4)

	assert.Equal(t, presenter.ChooseUnitText, msgs[0].Text)
	require.NotNil(t, msgs[0].Keyboard)

	assert.Equal(t, int64(100), msgs[1].Edited)
	assert.Equal(t, "Институт: ИС. Выберите группу:", msgs[1].Text)

	assert.Equal(t, presenter.GroupSavedText("ИС-951", true), msgs[2].Text)
	assert.Contains(t, msgs[3].Text, "Алгебра")

	assert.Equal(t, []string{"", "ИС-951"}, client.answers)

	stats := b.Stats()
	assert.Equal(t, int64(4), stats.UpdatesHandled)
	assert.Zero(t, stats.Errors)
}

func TestBot_EditFailureFallsBackToSend(t *testing.T) {
	b, client := newTestBot(t, DefaultBotConfig())
	client.editErr = errors.New("message to edit not found")

	require.NoError(t, b.HandleUpdate(context.Background(), callbackUpdate(7, 100, "institute|ПИ")))

	msgs := client.messages()
	require.Len(t, msgs, 1)
	assert.Zero(t, msgs[0].Edited)
	assert.Equal(t, "Институт: ПИ. Выберите группу:", msgs[0].Text)
}

func TestBot_UnknownCommandAndCallback(t *testing.T) {
	b, client := newTestBot(t, DefaultBotConfig())
	ctx := context.Background()

	require.NoError(t, b.HandleUpdate(ctx, commandUpdate(7, "/nope")))
	require.NoError(t, b.HandleUpdate(ctx, callbackUpdate(7, 100, "stale|x")))

	msgs := client.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, presenter.UnknownCommandText, msgs[0].Text)
	assert.Equal(t, []string{presenter.UnknownCallbackText}, client.answers)
}

func TestBot_PanicAndErrorReplies(t *testing.T) {
	b, client := newTestBot(t, DefaultBotConfig())
	ctx := context.Background()

	b.Router().RegisterCommand("boom", func(context.Context, handler.Request) (*handler.Response, error) {
		panic("boom")
	})
	b.Router().RegisterCommand("fail", func(context.Context, handler.Request) (*handler.Response, error) {
		return nil, errors.New("db down")
	})

	require.NoError(t, b.HandleUpdate(ctx, commandUpdate(7, "/boom")))
	require.NoError(t, b.HandleUpdate(ctx, commandUpdate(7, "/fail")))

	msgs := client.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, middleware.DefaultRecoveryConfig().UserErrorMessage, msgs[0].Text)
	assert.Equal(t, presenter.ErrorText, msgs[1].Text)

	stats := b.Stats()
	assert.Equal(t, int64(1), stats.Panics)
	assert.Equal(t, int64(1), stats.Errors)
}

func TestBot_RateLimit(t *testing.T) {
	cfg := DefaultBotConfig()
	cfg.RateLimit = middleware.RateLimitConfig{RequestsPerMinute: 1, BurstSize: 1}
	b, client := newTestBot(t, cfg)
	ctx := context.Background()

	for range 3 {
		require.NoError(t, b.HandleUpdate(ctx, commandUpdate(7, "/help")))
	}

	msgs := client.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, presenter.HelpText, msgs[0].Text)
	assert.Contains(t, msgs[1].Text, "Слишком много запросов")
	assert.Equal(t, int64(2), b.Stats().RateLimited)
}

func TestBot_GroupChatterIsIgnored(t *testing.T) {
	b, client := newTestBot(t, DefaultBotConfig())

	update := &telegram.Update{Message: &telegram.Message{
		From: &telegram.User{ID: 5},
		Chat: &telegram.Chat{ID: -100, Type: "supergroup"},
		Text: "всем привет",
	}}
	require.NoError(t, b.HandleUpdate(context.Background(), update))
	assert.Empty(t, client.messages())
}

func TestBot_LongReplyIsSplit(t *testing.T) {
	b, client := newTestBot(t, DefaultBotConfig())

	line := strings.Repeat("я", 99)
	long := strings.TrimSuffix(strings.Repeat(line+"\n", 100), "\n")
	kb := telegram.NewKeyboard().Row(telegram.Button("x", "y")).Build()

	require.NoError(t, b.deliver(context.Background(), 7, 0, &handler.Response{Text: long, Keyboard: kb}))

	msgs := client.messages()
	require.Len(t, msgs, 3)
	for _, m := range msgs {
		assert.LessOrEqual(t, len([]rune(m.Text)), telegram.MaxMessageLength)
	}
	assert.Nil(t, msgs[0].Keyboard)
	assert.Equal(t, kb, msgs[2].Keyboard)
}

func TestBot_DispatchKeepsChatOrder(t *testing.T) {
	cfg := DefaultBotConfig()
	cfg.MaxConcurrentUpdates = 2
	cfg.RateLimit = middleware.RateLimitConfig{Whitelist: map[int64]bool{1: true, 2: true}}
	b, client := newTestBot(t, cfg)

	b.Router().RegisterCommand("echo", func(_ context.Context, req handler.Request) (*handler.Response, error) {
		time.Sleep(time.Millisecond)
		return &handler.Response{Text: req.Args}, nil
	})

	ctx := context.Background()
	for i := range 10 {
		require.NoError(t, b.Dispatch(ctx, commandUpdate(1, fmt.Sprintf("/echo %d", i))))
		require.NoError(t, b.Dispatch(ctx, commandUpdate(2, fmt.Sprintf("/echo %d", i))))
	}
	b.wg.Wait()

	perChat := map[int64][]string{}
	for _, m := range client.messages() {
		perChat[m.ChatID] = append(perChat[m.ChatID], m.Text)
	}
	want := []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}
	assert.Equal(t, want, perChat[1])
	assert.Equal(t, want, perChat[2])
	assert.Equal(t, int64(20), b.Stats().UpdatesReceived)
}

func TestBot_RunWebhookMode(t *testing.T) {
	cfg := DefaultBotConfig()
	cfg.Mode = ModeWebhook
	cfg.WebhookURL = "https://bot.example.org/telegram/webhook"
	b, client := newTestBot(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, b.IsRunning, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{cfg.WebhookURL}, client.webhooks)
	assert.False(t, b.IsRunning())
}

func TestBot_RunPollingModeDropsWebhook(t *testing.T) {
	b, client := newTestBot(t, DefaultBotConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, b.IsRunning, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, 1, client.deleted)
	assert.Empty(t, client.webhooks)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text, cmd, args string
	}{
		{"/start", "start", ""},
		{"/Schedule ИС-951", "schedule", "ИС-951"},
		{"/schedule@schedule_bot   пи-101 ", "schedule", "пи-101"},
		{"привет", "", ""},
	}
	for _, tt := range tests {
		cmd, args := parseCommand(&telegram.Message{Text: tt.text})
		assert.Equal(t, tt.cmd, cmd, tt.text)
		assert.Equal(t, tt.args, args, tt.text)
	}
}
