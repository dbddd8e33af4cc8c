package validators

import (
	"time"

	"carpool/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CreateRideRequest struct {
	SeatsOffered int        `json:"seats_offered" validate:"required,min=1,max=8"`
	StartCity    string     `json:"start_city" validate:"required,min=2,max=100,city_name"`
	EndCity      string     `json:"end_city" validate:"required,min=2,max=100,city_name"`
	StartAt      time.Time  `json:"start_at" validate:"required,future_date"`
	EndAt        *time.Time `json:"end_at" validate:"omitempty"`
}

type ReservationTransitionRequest struct {
	ReservationID string `json:"reservation_id" validate:"required,object_id"`
	Action        string `json:"action" validate:"required"`
}

func ValidateCreateRide(req *CreateRideRequest) ValidationErrors {
	errors := ValidateStruct(req)

	if req.StartCity != "" && req.StartCity == req.EndCity {
		errors = append(errors, ValidationError{
			Field:   "end_city",
			Message: "Destination must differ from departure city",
		})
	}

	if req.EndAt != nil && !req.EndAt.After(req.StartAt) {
		errors = append(errors, ValidationError{
			Field:   "end_at",
			Message: "Arrival must be after departure",
		})
	}

	return errors
}

// ValidateReservationTransition checks shape only; unknown actions are
// rejected by the reservation service so they map to InvalidAction.
func ValidateReservationTransition(req *ReservationTransitionRequest) ValidationErrors {
	return ValidateStruct(req)
}

func (r *CreateRideRequest) ToRide() *models.Ride {
	var endAt *time.Time
	if r.EndAt != nil {
		end := r.EndAt.UTC()
		endAt = &end
	}

	return &models.Ride{
		SeatsOffered: r.SeatsOffered,
		StartCity:    SanitizeInput(r.StartCity),
		EndCity:      SanitizeInput(r.EndCity),
		StartAt:      r.StartAt.UTC(),
		EndAt:        endAt,
		Riders:       []primitive.ObjectID{},
	}
}
