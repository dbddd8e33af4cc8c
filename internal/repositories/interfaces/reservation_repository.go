package interfaces

import (
	"context"

	"carpool/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ReservationRepository interface {
	// Create stores a PENDING reservation. A live reservation for the same
	// (user, ride) pair makes it fail with utils.ErrAlreadyBooked.
	Create(ctx context.Context, reservation *models.Reservation) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Reservation, error)
	GetLive(ctx context.Context, userID, rideID primitive.ObjectID) (*models.Reservation, error)
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]*models.Reservation, error)
	ListByRide(ctx context.Context, rideID primitive.ObjectID) ([]*models.Reservation, error)

	// AcceptAndOccupy moves a PENDING reservation to ACCEPTED and adds the
	// rider to the ride as one atomic unit. The occupant insert is
	// conditioned on the ride having a free seat; when it has none the call
	// fails with utils.ErrCapacityConflict and nothing changes. A reservation
	// that is no longer PENDING fails with utils.ErrInvalidTransition.
	AcceptAndOccupy(ctx context.Context, id primitive.ObjectID) (*models.Reservation, error)

	// Release moves the reservation from one of from to to and removes the
	// rider from the ride's occupants if present, atomically. A reservation
	// not in from fails with utils.ErrInvalidTransition.
	Release(ctx context.Context, id primitive.ObjectID, from []models.ReservationStatus, to models.ReservationStatus) (*models.Reservation, error)
}
