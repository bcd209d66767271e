// Package shared содержит ошибки, общие для всех доменных пакетов.
// Пакет не зависит ни от чего, кроме стандартной библиотеки.
package shared

import (
	"errors"
	"fmt"
)

// ══════════════════════════════════════════════════════════════════════════════
// ВИДЫ ОШИБОК
// По виду слой интерфейса выбирает ответ (HTTP-статус, текст в чате),
// а инфраструктура решает, стоит ли повторять запрос.
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	ErrValidation    = errors.New("validation failed")
	ErrInvalidID     = errors.New("invalid id")
	ErrInvalidInput  = errors.New("invalid input")
	ErrEmptyValue    = errors.New("empty value")
	ErrInvalidFormat = errors.New("invalid format")

	ErrInvalidState     = errors.New("invalid state")
	ErrAlreadyProcessed = errors.New("already processed")

	ErrExternalService    = errors.New("external service failed")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("timed out")
	ErrRateLimited        = errors.New("rate limited")
)

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERROR
// ══════════════════════════════════════════════════════════════════════════════

// DomainError - ошибка с указанием, где она возникла.
//
// errors.Is совпадает с видом (Kind), с вложенной ошибкой (Err) и с другой
// DomainError, у которой те же Domain, Op и Message. Последнее позволяет
// сравнивать обёрнутую ошибку с эталоном вроде ErrChatUnreachable.
type DomainError struct {
	Domain  string
	Op      string
	Kind    error
	Message string
	Err     error
}

// NewDomainError создаёт ошибку без причины.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError создаёт ошибку с причиной err.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

func (e *DomainError) Error() string {
	s := e.Domain + "." + e.Op + ": " + e.Message
	if e.Err != nil {
		s = fmt.Sprintf("%s: %v", s, e.Err)
	}
	return s
}

// Unwrap отдаёт причину, а если её нет - вид.
func (e *DomainError) Unwrap() error {
	if e.Err == nil {
		return e.Kind
	}
	return e.Err
}

func (e *DomainError) Is(target error) bool {
	if t, ok := target.(*DomainError); ok {
		return e.Domain == t.Domain && e.Op == t.Op && e.Message == t.Message
	}
	return (e.Kind != nil && errors.Is(e.Kind, target)) ||
		(e.Err != nil && errors.Is(e.Err, target))
}

// ══════════════════════════════════════════════════════════════════════════════
// ЭТАЛОННЫЕ ОШИБКИ
// ══════════════════════════════════════════════════════════════════════════════

// Расписание.
var (
	ErrBlockNotFound    = NewDomainError("timetable", "FindBlock", ErrNotFound, "group not found in document")
	ErrInvalidGroupCode = NewDomainError("timetable", "ParseGroupCode", ErrInvalidFormat, "invalid group code")
)

// Подписчики.
var (
	ErrSubscriberNotFound = NewDomainError("subscriber", "Find", ErrNotFound, "subscriber not found")
	ErrInvalidChatID      = NewDomainError("subscriber", "Validate", ErrInvalidID, "invalid chat ID")
	ErrNoGroupSelected    = NewDomainError("subscriber", "CheckGroup", ErrInvalidState, "no group selected")
)

// Документ.
var (
	ErrDocumentNotLoaded   = NewDomainError("document", "Current", ErrNotFound, "no document snapshot loaded")
	ErrDocumentUnchanged   = NewDomainError("document", "Refresh", ErrAlreadyProcessed, "document fingerprint unchanged")
	ErrDocumentInvalid     = NewDomainError("document", "Extract", ErrInvalidFormat, "document could not be read")
	ErrDocumentFetchFailed = NewDomainError("document", "Fetch", ErrServiceUnavailable, "document could not be fetched")
	ErrSnapshotNotFound    = NewDomainError("document", "Latest", ErrNotFound, "no stored snapshot")
)

// Telegram.
var (
	ErrTelegramAPIFailed = NewDomainError("telegram", "Send", ErrExternalService, "Telegram API request failed")
	ErrChatUnreachable   = NewDomainError("telegram", "Send", ErrInvalidState, "chat is unreachable")
)

// ══════════════════════════════════════════════════════════════════════════════
// КЛАССИФИКАЦИЯ
// ══════════════════════════════════════════════════════════════════════════════

func isAny(err error, kinds ...error) bool {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// IsNotFound - запрошенного объекта нет.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsAlreadyExists - объект уже существует.
func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }

// IsValidation - ошибка во входных данных пользователя.
func IsValidation(err error) bool {
	return isAny(err, ErrValidation, ErrInvalidID, ErrInvalidInput, ErrEmptyValue, ErrInvalidFormat)
}

// IsExternalService - сбой внешнего сервиса (сайт вуза, Telegram, хранилище).
func IsExternalService(err error) bool {
	return isAny(err, ErrExternalService, ErrServiceUnavailable, ErrTimeout, ErrRateLimited)
}

// IsRetryable - операцию можно повторить позже.
func IsRetryable(err error) bool {
	return isAny(err, ErrServiceUnavailable, ErrTimeout, ErrRateLimited)
}
