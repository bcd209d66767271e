// Package document описывает снимок опубликованного документа с расписанием:
// извлечённый текст, его отпечаток и каталог групп, построенный по тексту.
package document

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kemsu-schedule/schedule-bot/internal/domain/shared"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/timetable"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot - неизменяемый снимок документа. После создания поля не меняются,
// поэтому снимок можно читать из любого числа горутин без блокировок.
type Snapshot struct {
	// ID - уникальный идентификатор снимка.
	ID uuid.UUID

	// Version растёт на единицу при каждом изменении документа.
	Version int64

	// Fingerprint - hex-отпечаток исходных байт документа.
	Fingerprint string

	// SourceURL - откуда документ был загружен.
	SourceURL string

	// PageCount - число страниц (0 для текстовых источников).
	PageCount int

	// Text - плоский текст документа, строки разделены '\n'.
	Text string

	// Index - каталог групп по подразделениям.
	Index timetable.InstituteIndex

	// FetchedAt - время загрузки.
	FetchedAt time.Time
}

// NewSnapshot создаёт снимок и строит каталог групп по тексту.
func NewSnapshot(version int64, fingerprint, sourceURL string, pageCount int, text string, fetchedAt time.Time) (*Snapshot, error) {
	if fingerprint == "" {
		return nil, shared.NewDomainError("document", "NewSnapshot", shared.ErrEmptyValue, "fingerprint is required")
	}
	if version < 1 {
		return nil, shared.NewDomainError("document", "NewSnapshot", shared.ErrInvalidInput, "version must be positive")
	}
	return &Snapshot{
		ID:          uuid.New(),
		Version:     version,
		Fingerprint: fingerprint,
		SourceURL:   sourceURL,
		PageCount:   pageCount,
		Text:        text,
		Index:       timetable.BuildIndex(text),
		FetchedAt:   fetchedAt,
	}, nil
}

// Restore собирает снимок из сохранённых полей; каталог строится заново.
func Restore(id uuid.UUID, version int64, fingerprint, sourceURL string, pageCount int, text string, fetchedAt time.Time) *Snapshot {
	return &Snapshot{
		ID:          id,
		Version:     version,
		Fingerprint: fingerprint,
		SourceURL:   sourceURL,
		PageCount:   pageCount,
		Text:        text,
		Index:       timetable.BuildIndex(text),
		FetchedAt:   fetchedAt,
	}
}

// Schedule возвращает отрисованное расписание группы из этого снимка.
func (s *Snapshot) Schedule(group timetable.GroupCode, maxLines int, labels timetable.Labels) string {
	return timetable.GetSchedule(s.Text, group, maxLines, labels)
}

// NextVersion возвращает номер версии для снимка, который заменит s.
// Для отсутствующего снимка это 1.
func (s *Snapshot) NextVersion() int64 {
	if s == nil {
		return 1
	}
	return s.Version + 1
}

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store хранит текущий снимок. Замена атомарна: читатель видит либо старый,
// либо новый снимок целиком.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{}
}

// Current возвращает текущий снимок или shared.ErrDocumentNotLoaded.
func (s *Store) Current() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, shared.ErrDocumentNotLoaded
	}
	return snap, nil
}

// Loaded возвращает true, если хотя бы один снимок установлен.
func (s *Store) Loaded() bool {
	return s.current.Load() != nil
}

// Swap устанавливает новый снимок и возвращает предыдущий (nil, если его не было).
func (s *Store) Swap(next *Snapshot) *Snapshot {
	return s.current.Swap(next)
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// Repository сохраняет снимки, чтобы после перезапуска бот сразу отвечал по
// последнему известному документу.
type Repository interface {
	// Save сохраняет снимок.
	Save(ctx context.Context, snap *Snapshot) error

	// Latest возвращает снимок с наибольшей версией.
	// Возвращает shared.ErrSnapshotNotFound, если снимков нет.
	Latest(ctx context.Context) (*Snapshot, error)
}
