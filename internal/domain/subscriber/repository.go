package subscriber

import "context"

// Repository определяет контракт хранилища подписчиков.
// Реализация находится в infrastructure/persistence/postgres.
type Repository interface {
	// Get возвращает подписчика по чату.
	// Возвращает shared.ErrSubscriberNotFound, если чат неизвестен.
	Get(ctx context.Context, chatID ChatID) (*Subscriber, error)

	// GetOrCreate возвращает существующего подписчика или создаёт нового.
	GetOrCreate(ctx context.Context, chatID ChatID) (*Subscriber, error)

	// Save сохраняет подписчика (upsert).
	Save(ctx context.Context, s *Subscriber) error

	// ListSubscribed возвращает всех подписчиков с включёнными уведомлениями.
	ListSubscribed(ctx context.Context) ([]*Subscriber, error)

	// Count возвращает общее число чатов и число подписанных.
	Count(ctx context.Context) (total, subscribed int, err error)
}
