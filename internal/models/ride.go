package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Ride is a published carpool trip. Riders holds the accepted occupants and
// never grows beyond SeatsOffered.
type Ride struct {
	ID           primitive.ObjectID   `json:"id" bson:"_id,omitempty"`
	DriverID     primitive.ObjectID   `json:"driver_id" bson:"driver_id" validate:"required"`
	SeatsOffered int                  `json:"seats_offered" bson:"seats_offered" validate:"required,min=1"`
	Riders       []primitive.ObjectID `json:"riders" bson:"riders"`
	StartCity    string               `json:"start_city" bson:"start_city"`
	EndCity      string               `json:"end_city" bson:"end_city"`
	StartAt      time.Time            `json:"start_at" bson:"start_at"`
	EndAt        *time.Time           `json:"end_at" bson:"end_at"`
	CreatedAt    time.Time            `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at" bson:"updated_at"`
}

func (r *Ride) Occupancy() int {
	return len(r.Riders)
}

func (r *Ride) RemainingSeats() int {
	return r.SeatsOffered - len(r.Riders)
}

func (r *Ride) IsFull() bool {
	return len(r.Riders) >= r.SeatsOffered
}

// HasEnded reports whether the ride's time window closed before now.
// Rides without an end time never end.
func (r *Ride) HasEnded(now time.Time) bool {
	return r.EndAt != nil && r.EndAt.Before(now)
}

// Removable reports whether the ride may be deleted: nobody holds a seat, or
// the ride is over.
func (r *Ride) Removable(now time.Time) bool {
	return len(r.Riders) == 0 || r.HasEnded(now)
}

func (r *Ride) HasRider(userID primitive.ObjectID) bool {
	for _, id := range r.Riders {
		if id == userID {
			return true
		}
	}
	return false
}
