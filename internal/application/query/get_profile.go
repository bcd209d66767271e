package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/kemsu-schedule/schedule-bot/internal/domain/shared"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/subscriber"
)

// GetProfileQuery запрашивает состояние чата (/mygroup).
type GetProfileQuery struct {
	ChatID int64
}

// ProfileDTO - сохранённая группа и подписка чата.
type ProfileDTO struct {
	// Registered - чат уже обращался к боту.
	Registered bool

	Group      string
	Subscribed bool

	// AwaitingGroup - бот ждёт ручного ввода кода группы.
	AwaitingGroup bool

	// GroupInDocument - группа есть в каталоге текущего документа.
	GroupInDocument bool
}

// GetProfileHandler обрабатывает GetProfileQuery.
type GetProfileHandler struct {
	subscribers subscriber.Repository
	snapshots   SnapshotProvider
}

// NewGetProfileHandler создаёт обработчик.
func NewGetProfileHandler(subscribers subscriber.Repository, snapshots SnapshotProvider) *GetProfileHandler {
	return &GetProfileHandler{subscribers: subscribers, snapshots: snapshots}
}

// Handle выполняет запрос. Незнакомый чат - не ошибка.
func (h *GetProfileHandler) Handle(ctx context.Context, q GetProfileQuery) (*ProfileDTO, error) {
	s, err := h.subscribers.Get(ctx, subscriber.ChatID(q.ChatID))
	if err != nil {
		if errors.Is(err, shared.ErrSubscriberNotFound) {
			return &ProfileDTO{}, nil
		}
		return nil, fmt.Errorf("get_profile: %w", err)
	}

	dto := &ProfileDTO{
		Registered:    true,
		Group:         s.Group.String(),
		Subscribed:    s.Subscribed,
		AwaitingGroup: s.AwaitingGroup,
	}
	if s.HasGroup() {
		if snap, err := h.snapshots.Current(); err == nil {
			dto.GroupInDocument = snap.Index.Contains(s.Group)
		}
	}
	return dto, nil
}
