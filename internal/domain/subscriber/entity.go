// Package subscriber содержит доменную модель подписчика бота: чат Telegram,
// выбранную группу и состояние подписки на уведомления об обновлении расписания.
package subscriber

import (
	"strings"
	"time"

	"github.com/kemsu-schedule/schedule-bot/internal/domain/shared"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/timetable"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// ChatID - идентификатор чата Telegram.
type ChatID int64

// IsValid проверяет, что ChatID не нулевой (у групповых чатов он отрицательный).
func (c ChatID) IsValid() bool {
	return c != 0
}

// NormalizeGroupInput приводит ручной ввод группы к виду, в котором коды
// записаны в документе: обрезает пробелы и переводит в верхний регистр.
// Возвращает shared.ErrInvalidGroupCode, если результат не похож на код группы.
func NormalizeGroupInput(text string) (timetable.GroupCode, error) {
	return timetable.ParseGroupCode(strings.ToUpper(strings.TrimSpace(text)))
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: SUBSCRIBER
// ══════════════════════════════════════════════════════════════════════════════

// Subscriber - чат, который пользуется ботом.
type Subscriber struct {
	// ChatID - чат Telegram, куда отправляются ответы и уведомления.
	ChatID ChatID

	// Group - выбранная группа. Пустая, пока пользователь не выбрал группу.
	Group timetable.GroupCode

	// Subscribed - получать ли уведомления об обновлении расписания.
	Subscribed bool

	// AwaitingGroup - бот ждёт, что следующее текстовое сообщение будет кодом группы.
	AwaitingGroup bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New создаёт подписчика. Новые чаты подписаны на уведомления сразу.
func New(chatID ChatID, now time.Time) (*Subscriber, error) {
	if !chatID.IsValid() {
		return nil, shared.ErrInvalidChatID
	}
	return &Subscriber{
		ChatID:     chatID,
		Subscribed: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// HasGroup возвращает true, если группа выбрана.
func (s *Subscriber) HasGroup() bool {
	return s.Group != ""
}

// SelectGroup запоминает группу и выходит из режима ручного ввода.
func (s *Subscriber) SelectGroup(group timetable.GroupCode, now time.Time) {
	s.Group = group
	s.AwaitingGroup = false
	s.UpdatedAt = now
}

// AwaitGroupInput включает режим ручного ввода группы.
func (s *Subscriber) AwaitGroupInput(now time.Time) {
	s.AwaitingGroup = true
	s.UpdatedAt = now
}

// Subscribe включает уведомления.
func (s *Subscriber) Subscribe(now time.Time) {
	s.Subscribed = true
	s.UpdatedAt = now
}

// Unsubscribe отключает уведомления.
func (s *Subscriber) Unsubscribe(now time.Time) {
	s.Subscribed = false
	s.UpdatedAt = now
}

// RequireGroup возвращает shared.ErrNoGroupSelected, если группа не выбрана.
func (s *Subscriber) RequireGroup() (timetable.GroupCode, error) {
	if !s.HasGroup() {
		return "", shared.ErrNoGroupSelected
	}
	return s.Group, nil
}
