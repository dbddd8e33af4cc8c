package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NoticeKind string

const (
	NoticeReservationRequested NoticeKind = "reservation_requested"
	NoticeReservationAccepted  NoticeKind = "reservation_accepted"
	NoticeReservationDeclined  NoticeKind = "reservation_declined"
	NoticeUnreadMessages       NoticeKind = "unread_messages"
)

// Notice is handed to the external delivery collaborator (email, push).
type Notice struct {
	Kind          NoticeKind          `json:"kind"`
	RecipientID   primitive.ObjectID  `json:"recipient_id"`
	ReservationID *primitive.ObjectID `json:"reservation_id,omitempty"`
	RideID        *primitive.ObjectID `json:"ride_id,omitempty"`
	Unread        []UnreadDigestEntry `json:"unread,omitempty"`
	UnreadCount   int                 `json:"unread_count,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

type UnreadDigestEntry struct {
	SessionID   primitive.ObjectID   `json:"session_id"`
	RideID      primitive.ObjectID   `json:"ride_id"`
	Contacts    []primitive.ObjectID `json:"contacts"`
	UnreadCount int                  `json:"unread_count"`
}
