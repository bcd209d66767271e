package query

import (
	"context"
	"fmt"
	"time"

	"github.com/kemsu-schedule/schedule-bot/internal/domain/subscriber"
)

// StatusDTO - состояние сервиса для /readyz и журнала.
type StatusDTO struct {
	DocumentLoaded bool      `json:"document_loaded"`
	Version        int64     `json:"version,omitempty"`
	Fingerprint    string    `json:"fingerprint,omitempty"`
	PageCount      int       `json:"page_count,omitempty"`
	FetchedAt      time.Time `json:"fetched_at,omitzero"`
	Units          int       `json:"units"`
	Groups         int       `json:"groups"`
	Chats          int       `json:"chats"`
	Subscribed     int       `json:"subscribed"`
}

// GetStatusHandler собирает StatusDTO.
type GetStatusHandler struct {
	snapshots   SnapshotProvider
	subscribers subscriber.Repository
}

// NewGetStatusHandler создаёт обработчик.
func NewGetStatusHandler(snapshots SnapshotProvider, subscribers subscriber.Repository) *GetStatusHandler {
	return &GetStatusHandler{snapshots: snapshots, subscribers: subscribers}
}

// Handle выполняет запрос.
func (h *GetStatusHandler) Handle(ctx context.Context) (*StatusDTO, error) {
	dto := &StatusDTO{}

	if snap, err := h.snapshots.Current(); err == nil {
		dto.DocumentLoaded = true
		dto.Version = snap.Version
		dto.Fingerprint = snap.Fingerprint
		dto.PageCount = snap.PageCount
		dto.FetchedAt = snap.FetchedAt
		dto.Units = snap.Index.Len()
		dto.Groups = snap.Index.GroupCount()
	}

	total, subscribed, err := h.subscribers.Count(ctx)
	if err != nil {
		return dto, fmt.Errorf("get_status: %w", err)
	}
	dto.Chats = total
	dto.Subscribed = subscribed
	return dto, nil
}
