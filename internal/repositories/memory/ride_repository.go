package memory

import (
	"context"
	"sort"
	"time"

	"carpool/internal/models"
	"carpool/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type rideRepository struct {
	store *Store
}

func (r *rideRepository) Create(ctx context.Context, ride *models.Ride) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if ride.ID.IsZero() {
		ride.ID = primitive.NewObjectID()
	}
	now := time.Now()
	if ride.CreatedAt.IsZero() {
		ride.CreatedAt = now
	}
	ride.UpdatedAt = now
	if ride.Riders == nil {
		ride.Riders = []primitive.ObjectID{}
	}

	r.store.rides[ride.ID] = copyRide(ride)
	return nil
}

func (r *rideRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Ride, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	ride, ok := r.store.rides[id]
	if !ok {
		return nil, utils.NotFound("ride")
	}
	return copyRide(ride), nil
}

func (r *rideRepository) DeleteIfRemovable(ctx context.Context, id primitive.ObjectID, now time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	ride, ok := r.store.rides[id]
	if !ok {
		return false, utils.NotFound("ride")
	}
	if !ride.Removable(now) {
		return false, nil
	}

	delete(r.store.rides, id)
	return true, nil
}

func (r *rideRepository) CountSharedRides(ctx context.Context, a, b primitive.ObjectID, now time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var count int64
	for _, ride := range r.store.rides {
		if !ride.HasEnded(now) {
			continue
		}
		aIn := ride.DriverID == a || ride.HasRider(a)
		bIn := ride.DriverID == b || ride.HasRider(b)
		if aIn && bIn && a != b {
			count++
		}
	}
	return count, nil
}

func (r *rideRepository) ListUpcoming(ctx context.Context, now time.Time, params *utils.PaginationParams) ([]*models.Ride, int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	today := utils.StartOfDay(now.UTC())
	var rides []*models.Ride
	for _, ride := range r.store.rides {
		if !ride.StartAt.Before(today) {
			rides = append(rides, copyRide(ride))
		}
	}
	sort.Slice(rides, func(i, j int) bool {
		return rides[i].StartAt.Before(rides[j].StartAt)
	})

	total := int64(len(rides))
	return paginate(rides, params), total, nil
}

func (r *rideRepository) ListByDriver(ctx context.Context, driverID primitive.ObjectID) ([]*models.Ride, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var rides []*models.Ride
	for _, ride := range r.store.rides {
		if ride.DriverID == driverID {
			rides = append(rides, copyRide(ride))
		}
	}
	sort.Slice(rides, func(i, j int) bool {
		return rides[i].StartAt.Before(rides[j].StartAt)
	})
	return rides, nil
}

func paginate[T any](items []T, params *utils.PaginationParams) []T {
	if params == nil {
		return items
	}
	skip := params.GetSkip()
	if skip >= len(items) {
		return nil
	}
	end := skip + params.GetLimit()
	if end > len(items) {
		end = len(items)
	}
	return items[skip:end]
}
