package utils

import (
	"errors"
	"net/http"
)

type ErrorKind string

const (
	KindPermissionDenied    ErrorKind = "PERMISSION_DENIED"
	KindCapacityConflict    ErrorKind = "CAPACITY_CONFLICT"
	KindInvalidTransition   ErrorKind = "INVALID_TRANSITION"
	KindInvalidAction       ErrorKind = "INVALID_ACTION"
	KindAlreadyBooked       ErrorKind = "ALREADY_BOOKED"
	KindRideFull            ErrorKind = "RIDE_FULL"
	KindRideEnded           ErrorKind = "RIDE_ENDED"
	KindChatSessionRequired ErrorKind = "CHAT_SESSION_REQUIRED"
	KindRideDeletionRefused ErrorKind = "RIDE_DELETION_REFUSED"
	KindNotFound            ErrorKind = "NOT_FOUND"
	KindValidation          ErrorKind = "VALIDATION_ERROR"
)

// AppError is a typed rejection the caller is expected to render. Errors of
// any other type are infrastructure failures.
type AppError struct {
	Kind    ErrorKind
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

// Is matches on Kind so that an AppError carrying a specific message still
// matches its sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Kind == e.Kind
}

func NewAppError(kind ErrorKind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

var (
	ErrPermissionDenied    = NewAppError(KindPermissionDenied, "permission denied")
	ErrCapacityConflict    = NewAppError(KindCapacityConflict, "this ride is fully booked")
	ErrInvalidTransition   = NewAppError(KindInvalidTransition, "invalid reservation transition")
	ErrInvalidAction       = NewAppError(KindInvalidAction, "invalid action")
	ErrAlreadyBooked       = NewAppError(KindAlreadyBooked, "you have already booked this ride")
	ErrRideFull            = NewAppError(KindRideFull, "this ride is fully booked, you cannot reserve a seat")
	ErrRideEnded           = NewAppError(KindRideEnded, "you cannot book a completed ride")
	ErrChatSessionRequired = NewAppError(KindChatSessionRequired, "open a chat with the driver before booking")
	ErrRideDeletionRefused = NewAppError(KindRideDeletionRefused, "you cannot delete this ride because it has riders and is not over yet")
	ErrNotFound            = NewAppError(KindNotFound, ErrNotFoundMessage)
	ErrValidation          = NewAppError(KindValidation, ErrValidationFailed)
)

// NotFound returns a NotFound error naming the missing resource.
func NotFound(resource string) error {
	return NewAppError(KindNotFound, resource+" not found")
}

func KindOf(err error) (ErrorKind, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind, true
	}
	return "", false
}

func HTTPStatus(err error) int {
	kind, ok := KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}

	switch kind {
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidTransition, KindInvalidAction, KindValidation, KindChatSessionRequired:
		return http.StatusBadRequest
	case KindCapacityConflict, KindAlreadyBooked, KindRideFull, KindRideEnded, KindRideDeletionRefused:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
