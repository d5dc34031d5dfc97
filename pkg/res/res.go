package res

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

// Envelope единый формат JSON-ответа
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody тело ошибки
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JsonResponse отправляет JSON-ответ с заданным статусом.
func JsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// OK отправляет успешный ответ в конверте
func OK(w http.ResponseWriter, data any, status int) {
	JsonResponse(w, Envelope{Success: true, Data: data}, status)
}

// StatusFor единственное место, где категория ошибки превращается в HTTP статус
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindPaymentRequired:
		return http.StatusPaymentRequired
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error классифицирует ошибку, логирует ее и отправляет конверт с ошибкой.
// Возвращает отправленный статус.
func Error(w http.ResponseWriter, err error, log *logger.Logger) int {
	kind := domain.KindOf(err)
	status := StatusFor(kind)

	body := &ErrorBody{
		Code:    kind.Code(),
		Message: domain.PublicMessage(err),
	}

	var verrs domain.ValidationErrors
	if errors.As(err, &verrs) {
		body.Details = verrs
	}

	var appErr *domain.Error
	if errors.As(err, &appErr) && appErr.Details != nil && kind != domain.KindInternal {
		body.Details = appErr.Details
	}

	if log != nil {
		if status >= http.StatusInternalServerError {
			log.Errorw("Request failed", "status", status, "code", body.Code, "error", err)
		} else {
			log.Warnw("Request rejected", "status", status, "code", body.Code, "error", err)
		}
	}

	JsonResponse(w, Envelope{Success: false, Error: body}, status)
	return status
}
