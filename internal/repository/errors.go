package repository

import (
	"errors"
	"fmt"

	"github.com/okdriver/okdriver-backend/internal/domain"
)

var (
	// ErrNotFound запись не найдена
	ErrNotFound = domain.ErrNotFound

	// ErrDuplicate дубликат записи
	ErrDuplicate = domain.ErrDuplicate

	// ErrInvalidData неверные данные
	ErrInvalidData = errors.New("invalid data")

	// ErrActiveSubscription у владельца уже есть действующая подписка
	ErrActiveSubscription = fmt.Errorf("%w: tenant already has an active subscription", domain.ErrConflict)

	// ErrPlanInUse на план ссылаются активные подписки или пополнения
	ErrPlanInUse = errors.New("plan is in use")
)
