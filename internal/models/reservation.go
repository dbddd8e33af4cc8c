package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ReservationStatus string

const (
	ReservationStatusPending  ReservationStatus = "PENDING"
	ReservationStatusAccepted ReservationStatus = "ACCEPTED"
	ReservationStatusDeclined ReservationStatus = "DECLINED"
	ReservationStatusCanceled ReservationStatus = "CANCELED"
)

var reservationStatuses = []ReservationStatus{
	ReservationStatusPending,
	ReservationStatusAccepted,
	ReservationStatusDeclined,
	ReservationStatusCanceled,
}

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationStatusPending:  {ReservationStatusAccepted, ReservationStatusDeclined, ReservationStatusCanceled},
	ReservationStatusAccepted: {ReservationStatusDeclined, ReservationStatusCanceled},
}

// IsLive reports whether the status still blocks a new reservation for the
// same (user, ride) pair.
func (s ReservationStatus) IsLive() bool {
	return s == ReservationStatusPending || s == ReservationStatusAccepted
}

func (s ReservationStatus) CanTransition(to ReservationStatus) bool {
	for _, allowed := range reservationTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// SourcesFor lists, in declaration order, the statuses from which to is
// reachable. Stores use it as the guard of a conditional update.
func SourcesFor(to ReservationStatus) []ReservationStatus {
	var from []ReservationStatus
	for _, source := range reservationStatuses {
		if source.CanTransition(to) {
			from = append(from, source)
		}
	}
	return from
}

type Reservation struct {
	ID     primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID primitive.ObjectID `json:"user_id" bson:"user_id" validate:"required"`
	RideID primitive.ObjectID `json:"ride_id" bson:"ride_id" validate:"required"`
	Status ReservationStatus  `json:"status" bson:"status"`
	// Live mirrors Status.IsLive() so stores can index it.
	Live      bool      `json:"-" bson:"live"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

func (r *Reservation) SetStatus(status ReservationStatus, at time.Time) {
	r.Status = status
	r.Live = status.IsLive()
	r.UpdatedAt = at
}

type ReservationAction string

const (
	ReservationActionAccept  ReservationAction = "accept"
	ReservationActionDecline ReservationAction = "decline"
)
