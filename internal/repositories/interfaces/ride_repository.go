package interfaces

import (
	"context"
	"time"

	"carpool/internal/models"
	"carpool/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RideRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, ride *models.Ride) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Ride, error)

	// DeleteIfRemovable deletes the ride in one conditional statement when it
	// has no riders or its end time is before now. deleted is false when the
	// ride exists but is neither vacant nor ended.
	DeleteIfRemovable(ctx context.Context, id primitive.ObjectID, now time.Time) (deleted bool, err error)

	// CountSharedRides counts rides ended before now that a and b took
	// together: one drove and the other rode, or both rode.
	CountSharedRides(ctx context.Context, a, b primitive.ObjectID, now time.Time) (int64, error)

	// ListUpcoming returns rides whose start date (UTC day) is today or
	// later, ordered by start time.
	ListUpcoming(ctx context.Context, now time.Time, params *utils.PaginationParams) ([]*models.Ride, int64, error)
	ListByDriver(ctx context.Context, driverID primitive.ObjectID) ([]*models.Ride, error)
}
