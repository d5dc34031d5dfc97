package domain

import (
	"errors"
	"fmt"
)

// Application errors
var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate дубликат записи
	ErrDuplicate = errors.New("duplicate record")

	// ErrInvalidInput неверные входные данные
	ErrInvalidInput = errors.New("invalid input data")

	// ErrUnauthenticated нет учетных данных или они неверны
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNoCredentials запрос не содержит учетных данных для данной стратегии
	ErrNoCredentials = errors.New("no credentials presented")

	// ErrPaymentRequired нет активной подписки
	ErrPaymentRequired = errors.New("active subscription required")

	// ErrConflict состояние не позволяет выполнить операцию
	ErrConflict = errors.New("conflict")

	// ErrRateLimited превышен лимит запросов
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrExternalServiceUnavailable внешний сервис недоступен
	ErrExternalServiceUnavailable = errors.New("external service unavailable")

	// ErrInternal внутренняя ошибка
	ErrInternal = errors.New("internal error")
)

// Kind закрытый набор категорий ошибок. Каждая категория отображается в HTTP статус ровно в одном месте (pkg/res).
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindPaymentRequired
	KindNotFound
	KindConflict
	KindRateLimited
	KindUpstream
)

// Code возвращает машиночитаемый код категории
func (k Kind) Code() string {
	switch k {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindUnauthorized:
		return "UNAUTHORIZED"
	case KindPaymentRequired:
		return "PAYMENT_REQUIRED"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindRateLimited:
		return "RATE_LIMITED"
	case KindUpstream:
		return "UPSTREAM_FAILURE"
	default:
		return "INTERNAL"
	}
}

func (k Kind) String() string { return k.Code() }

// Error ошибка приложения с категорией и сообщением для клиента
type Error struct {
	Kind    Kind
	Message string
	Details any
	Err     error
}

// Error реализует интерфейс error
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind.Code(), e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind.Code(), e.Message)
}

// Unwrap возвращает исходную ошибку
func (e *Error) Unwrap() error {
	return e.Err
}

// E создает ошибку заданной категории
func E(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *Error { return E(KindValidation, message, ErrInvalidInput) }

func NotFound(message string) *Error { return E(KindNotFound, message, ErrNotFound) }

func Unauthorized(message string) *Error { return E(KindUnauthorized, message, ErrUnauthenticated) }

func Conflict(message string) *Error { return E(KindConflict, message, ErrConflict) }

func PaymentRequired(message string) *Error {
	return E(KindPaymentRequired, message, ErrPaymentRequired)
}

func Internal(message string, err error) *Error { return E(KindInternal, message, err) }

// KindOf классифицирует произвольную ошибку
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}

	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		return KindValidation
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrInvalidInput):
		return KindValidation
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrNoCredentials):
		return KindUnauthorized
	case errors.Is(err, ErrPaymentRequired):
		return KindPaymentRequired
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrExternalServiceUnavailable):
		return KindUpstream
	}
	return KindInternal
}

// PublicMessage возвращает сообщение, которое безопасно показать клиенту
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" && appErr.Kind != KindInternal {
		return appErr.Message
	}

	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		return verrs.Error()
	}

	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nf.Error()
	}

	var dup *DuplicateError
	if errors.As(err, &dup) {
		return dup.Error()
	}

	switch KindOf(err) {
	case KindValidation:
		return "invalid request"
	case KindUnauthorized:
		return "unauthorized"
	case KindPaymentRequired:
		return "active subscription required"
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "too many requests"
	case KindUpstream:
		return "upstream service failure"
	default:
		return "internal server error"
	}
}

// ValidationError представляет ошибку валидации
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors представляет набор ошибок валидации
type ValidationErrors []ValidationError

// Error реализует интерфейс error
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}

	if len(e) == 1 {
		return fmt.Sprintf("validation failed: %s - %s", e[0].Field, e[0].Message)
	}

	return fmt.Sprintf("validation failed: %d errors", len(e))
}

// Add добавляет ошибку валидации
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, ValidationError{Field: field, Message: message})
}

// HasErrors проверяет наличие ошибок
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// GetByField возвращает сообщение об ошибке для указанного поля
func (e ValidationErrors) GetByField(field string) string {
	for _, err := range e {
		if err.Field == field {
			return err.Message
		}
	}
	return ""
}

// ExternalServiceError представляет ошибку внешнего сервиса
type ExternalServiceError struct {
	Service     string
	StatusCode  int
	Message     string
	OriginalErr error
}

// Error реализует интерфейс error
func (e *ExternalServiceError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("%s service error [%d]: %s: %v", e.Service, e.StatusCode, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("%s service error [%d]: %s", e.Service, e.StatusCode, e.Message)
}

// Unwrap возвращает оригинальную ошибку
func (e *ExternalServiceError) Unwrap() error {
	return e.OriginalErr
}

// Is относит ошибку к недоступности внешнего сервиса
func (e *ExternalServiceError) Is(target error) bool {
	return target == ErrExternalServiceUnavailable
}

// NewExternalServiceError создает новую ошибку внешнего сервиса
func NewExternalServiceError(service string, statusCode int, message string, err error) *ExternalServiceError {
	return &ExternalServiceError{
		Service:     service,
		StatusCode:  statusCode,
		Message:     message,
		OriginalErr: err,
	}
}

// NotFoundError представляет ошибку "не найдено"
type NotFoundError struct {
	Entity string
	ID     string
}

// Error реализует интерфейс error
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Entity, e.ID)
}

// Is проверяет, является ли ошибка ошибкой типа "не найдено"
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError создает новую ошибку "не найдено"
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// DuplicateError представляет ошибку дубликата
type DuplicateError struct {
	Entity string
	Field  string
	Value  string
}

// Error реализует интерфейс error
func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s with %s '%s' already exists", e.Entity, e.Field, e.Value)
}

// Is проверяет, является ли ошибка ошибкой дубликата
func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

// NewDuplicateError создает новую ошибку дубликата
func NewDuplicateError(entity, field, value string) *DuplicateError {
	return &DuplicateError{
		Entity: entity,
		Field:  field,
		Value:  value,
	}
}
