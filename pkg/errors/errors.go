package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Классы ошибок. Доменные ошибки ниже оборачивают один из них,
// поэтому errors.Is(err, ErrForbidden) работает и для ErrNotChatMember.
var (
	ErrNotFound       = errors.New("not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrConflict       = errors.New("conflict")
	ErrInternalServer = errors.New("internal server error")
	ErrInvalidToken   = fmt.Errorf("%w: invalid token", ErrUnauthorized)
	ErrTokenExpired   = fmt.Errorf("%w: token expired", ErrUnauthorized)
)

var (
	ErrNotChatMember      = fmt.Errorf("%w: not an active member of this chat", ErrForbidden)
	ErrNotCallHost        = fmt.Errorf("%w: only the call host can do this", ErrForbidden)
	ErrNotMessageSender   = fmt.Errorf("%w: only the sender can delete a message", ErrForbidden)
	ErrChatNotFound       = fmt.Errorf("%w: chat", ErrNotFound)
	ErrMessageNotFound    = fmt.Errorf("%w: message", ErrNotFound)
	ErrCallNotFound       = fmt.Errorf("%w: call session", ErrNotFound)
	ErrUserNotFound       = fmt.Errorf("%w: user", ErrNotFound)
	ErrCallAlreadyActive  = fmt.Errorf("%w: chat already has an active call", ErrConflict)
	ErrCallNotActive      = fmt.Errorf("%w: call session is not active", ErrConflict)
	ErrInvalidMessageType = fmt.Errorf("%w: invalid message type", ErrBadRequest)
	ErrInvalidPayload     = fmt.Errorf("%w: malformed payload", ErrBadRequest)
)

type APIError struct {
	Message string `json:"error"`
	Code    int    `json:"code"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(message string, code int) *APIError {
	return &APIError{
		Message: message,
		Code:    code,
	}
}

// BadRequest оборачивает описание ошибки валидации
func BadRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

func HTTPStatusFromError(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// CodeFromError возвращает код ошибки для ERROR-фрейма realtime-протокола
func CodeFromError(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}

// PublicMessage скрывает детали внутренних ошибок от клиента
func PublicMessage(err error) string {
	if HTTPStatusFromError(err) == http.StatusInternalServerError {
		return ErrInternalServer.Error()
	}
	return err.Error()
}
