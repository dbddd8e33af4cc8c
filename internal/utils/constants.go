package utils

import "time"

// Application Constants
const (
	AppName = "Carpool"

	// Pagination
	DefaultPageSize = 20
	MaxPageSize     = 100
	MinPageSize     = 1

	// Authentication
	JWTAccessTokenTTL = 24 * time.Hour

	// Chat
	DefaultReplayLimit       = 50
	MaxMessageLength         = 1000
	HiddenMessagePlaceholder = "This message has been removed."
)

// HTTP Status Messages
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error Messages
const (
	ErrInternalServer   = "internal server error"
	ErrUnauthorized     = "unauthorized"
	ErrForbidden        = "forbidden"
	ErrNotFoundMessage  = "not found"
	ErrValidationFailed = "validation failed"
)

// Cache Keys
const (
	CacheChatSessionPrefix = "chat_session:"
	CacheDebounceLockKey   = "lock:notification_debouncer"
)

// Event Types
const (
	EventReservationRequested = "reservation_requested"
	EventReservationAccepted  = "reservation_accepted"
	EventReservationDeclined  = "reservation_declined"
	EventReservationCanceled  = "reservation_canceled"
	EventRideDeleted          = "ride_deleted"
)
