// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/kemsu-schedule/schedule-bot/internal/domain/document"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/timetable"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST UNITS / LIST GROUPS QUERIES
// Каталог групп текущего документа: подразделения (институты) и их группы.
// Используется клавиатурами выбора группы и HTTP-эндпоинтом /v1/groups.
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotProvider отдаёт текущий снимок документа.
type SnapshotProvider interface {
	Current() (*document.Snapshot, error)
}

// CatalogDTO - каталог групп.
type CatalogDTO struct {
	// Version - версия снимка, по которому построен каталог.
	Version int64 `json:"version" yaml:"version"`

	// FetchedAt - когда документ был загружен.
	FetchedAt time.Time `json:"fetched_at" yaml:"fetched_at"`

	// Units - подразделения в порядке сортировки.
	Units []UnitDTO `json:"units" yaml:"units"`
}

// UnitDTO - подразделение и его группы.
type UnitDTO struct {
	Name   string   `json:"name" yaml:"name"`
	Groups []string `json:"groups" yaml:"groups"`
}

// ListUnitsQuery запрашивает подразделения.
type ListUnitsQuery struct {
	// Limit - максимум подразделений (0 - без ограничения).
	Limit int
}

// ListUnitsResult - подразделения и общее их число.
type ListUnitsResult struct {
	Units []string
	Total int
}

// ListGroupsQuery запрашивает группы подразделения.
type ListGroupsQuery struct {
	Unit string

	// Limit - максимум групп (0 - без ограничения).
	Limit int
}

// ListGroupsResult - группы подразделения и общее их число.
type ListGroupsResult struct {
	Unit   string
	Groups []timetable.GroupCode
	Total  int
}

// CatalogHandler отвечает на запросы к каталогу групп.
type CatalogHandler struct {
	snapshots SnapshotProvider
}

// NewCatalogHandler создаёт обработчик.
func NewCatalogHandler(snapshots SnapshotProvider) *CatalogHandler {
	return &CatalogHandler{snapshots: snapshots}
}

// ListUnits возвращает подразделения. Пустой каталог - не ошибка: Total будет 0.
// Если документ ещё не загружен, возвращает shared.ErrDocumentNotLoaded.
func (h *CatalogHandler) ListUnits(_ context.Context, q ListUnitsQuery) (*ListUnitsResult, error) {
	snap, err := h.snapshots.Current()
	if err != nil {
		return nil, fmt.Errorf("list_units: %w", err)
	}

	units := snap.Index.Units()
	return &ListUnitsResult{
		Units: truncate(units, q.Limit),
		Total: len(units),
	}, nil
}

// ListGroups возвращает группы подразделения. Неизвестное подразделение даёт
// пустой список.
func (h *CatalogHandler) ListGroups(_ context.Context, q ListGroupsQuery) (*ListGroupsResult, error) {
	snap, err := h.snapshots.Current()
	if err != nil {
		return nil, fmt.Errorf("list_groups: %w", err)
	}

	groups := snap.Index.Groups(q.Unit)
	return &ListGroupsResult{
		Unit:   q.Unit,
		Groups: truncate(groups, q.Limit),
		Total:  len(groups),
	}, nil
}

// Catalog возвращает весь каталог.
func (h *CatalogHandler) Catalog(_ context.Context) (*CatalogDTO, error) {
	snap, err := h.snapshots.Current()
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return NewCatalogDTO(snap.Version, snap.FetchedAt, snap.Index), nil
}

// NewCatalogDTO переводит каталог в DTO.
func NewCatalogDTO(version int64, fetchedAt time.Time, idx timetable.InstituteIndex) *CatalogDTO {
	dto := &CatalogDTO{
		Version:   version,
		FetchedAt: fetchedAt,
		Units:     make([]UnitDTO, 0, idx.Len()),
	}
	for _, unit := range idx.Units() {
		groups := idx.Groups(unit)
		names := make([]string, len(groups))
		for i, g := range groups {
			names[i] = g.String()
		}
		dto.Units = append(dto.Units, UnitDTO{Name: unit, Groups: names})
	}
	return dto
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
