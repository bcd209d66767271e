package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kemsu-schedule/schedule-bot/internal/domain/shared"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/subscriber"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/timetable"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBSCRIBER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// SubscriberRepository implements subscriber.Repository for PostgreSQL.
type SubscriberRepository struct {
	conn *Connection
	now  func() time.Time
}

// NewSubscriberRepository creates a new SubscriberRepository.
func NewSubscriberRepository(conn *Connection) *SubscriberRepository {
	return &SubscriberRepository{conn: conn, now: time.Now}
}

const subscriberColumns = `chat_id, group_code, subscribed, awaiting_group, created_at, updated_at`

// Get returns a subscriber by chat.
func (r *SubscriberRepository) Get(ctx context.Context, chatID subscriber.ChatID) (*subscriber.Subscriber, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+subscriberColumns+` FROM subscribers WHERE chat_id = $1`, int64(chatID))
	s, err := scanSubscriber(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrSubscriberNotFound
		}
		return nil, fmt.Errorf("failed to get subscriber: %w", err)
	}
	return s, nil
}

// GetOrCreate returns the subscriber, inserting a fresh row for unknown chats.
func (r *SubscriberRepository) GetOrCreate(ctx context.Context, chatID subscriber.ChatID) (*subscriber.Subscriber, error) {
	fresh, err := subscriber.New(chatID, r.now().UTC())
	if err != nil {
		return nil, err
	}

	// The no-op update makes RETURNING yield the existing row on conflict.
	query := `
		INSERT INTO subscribers (` + subscriberColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (chat_id) DO UPDATE SET chat_id = EXCLUDED.chat_id
		RETURNING ` + subscriberColumns

	row := r.conn.QueryRow(ctx, query,
		int64(fresh.ChatID),
		string(fresh.Group),
		fresh.Subscribed,
		fresh.AwaitingGroup,
		fresh.CreatedAt,
		fresh.UpdatedAt,
	)
	s, err := scanSubscriber(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create subscriber: %w", err)
	}
	return s, nil
}

// Save upserts the subscriber.
func (r *SubscriberRepository) Save(ctx context.Context, s *subscriber.Subscriber) error {
	query := `
		INSERT INTO subscribers (` + subscriberColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (chat_id) DO UPDATE SET
			group_code = EXCLUDED.group_code,
			subscribed = EXCLUDED.subscribed,
			awaiting_group = EXCLUDED.awaiting_group,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.conn.Exec(ctx, query,
		int64(s.ChatID),
		string(s.Group),
		s.Subscribed,
		s.AwaitingGroup,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save subscriber: %w", err)
	}
	return nil
}

// ListSubscribed returns every chat with notifications enabled.
func (r *SubscriberRepository) ListSubscribed(ctx context.Context) ([]*subscriber.Subscriber, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+subscriberColumns+` FROM subscribers WHERE subscribed ORDER BY chat_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	defer rows.Close()

	var out []*subscriber.Subscriber
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Count returns the number of known chats and of subscribed ones.
func (r *SubscriberRepository) Count(ctx context.Context) (total, subscribed int, err error) {
	err = r.conn.QueryRow(ctx, `SELECT count(*), count(*) FILTER (WHERE subscribed) FROM subscribers`).
		Scan(&total, &subscribed)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count subscribers: %w", err)
	}
	return total, subscribed, nil
}

func scanSubscriber(row pgx.Row) (*subscriber.Subscriber, error) {
	var (
		s       subscriber.Subscriber
		chatID  int64
		groupCd string
	)
	if err := row.Scan(&chatID, &groupCd, &s.Subscribed, &s.AwaitingGroup, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.ChatID = subscriber.ChatID(chatID)
	s.Group = timetable.GroupCode(groupCd)
	return &s, nil
}
