package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChatSession is the single conversation between a rider and the driver of
// a ride. There is at most one per (UserID, RideID).
type ChatSession struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID    primitive.ObjectID `json:"user_id" bson:"user_id" validate:"required"`
	RideID    primitive.ObjectID `json:"ride_id" bson:"ride_id" validate:"required"`
	DriverID  primitive.ObjectID `json:"driver_id" bson:"driver_id" validate:"required"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}

func (s *ChatSession) Participants() []primitive.ObjectID {
	return []primitive.ObjectID{s.UserID, s.DriverID}
}

func (s *ChatSession) IsParticipant(userID primitive.ObjectID) bool {
	return !userID.IsZero() && (userID == s.UserID || userID == s.DriverID)
}

// Counterpart returns the other participant. For a non-participant it
// returns the rider.
func (s *ChatSession) Counterpart(userID primitive.ObjectID) primitive.ObjectID {
	if userID == s.UserID {
		return s.DriverID
	}
	return s.UserID
}

type ChatSessionView struct {
	Session         *ChatSession       `json:"session"`
	WithUser        primitive.ObjectID `json:"with_user"`
	SharedRideCount int64              `json:"shared_ride_count"`
	Reservation     *Reservation       `json:"reservation,omitempty"`
}

type ChatInbox struct {
	Outgoing []*ChatSession `json:"outgoing"`
	Incoming []*ChatSession `json:"incoming"`
}
