package memory

import (
	"context"
	"sort"
	"time"

	"carpool/internal/models"
	"carpool/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type reservationRepository struct {
	store *Store
}

func (r *reservationRepository) Create(ctx context.Context, reservation *models.Reservation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, existing := range r.store.reservations {
		if existing.Live && existing.UserID == reservation.UserID && existing.RideID == reservation.RideID {
			return utils.ErrAlreadyBooked
		}
	}

	if reservation.ID.IsZero() {
		reservation.ID = primitive.NewObjectID()
	}
	now := time.Now()
	reservation.CreatedAt = now
	reservation.SetStatus(models.ReservationStatusPending, now)

	r.store.reservations[reservation.ID] = copyReservation(reservation)
	return nil
}

func (r *reservationRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Reservation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	reservation, ok := r.store.reservations[id]
	if !ok {
		return nil, utils.NotFound("reservation")
	}
	return copyReservation(reservation), nil
}

func (r *reservationRepository) GetLive(ctx context.Context, userID, rideID primitive.ObjectID) (*models.Reservation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, reservation := range r.store.reservations {
		if reservation.Live && reservation.UserID == userID && reservation.RideID == rideID {
			return copyReservation(reservation), nil
		}
	}
	return nil, utils.NotFound("reservation")
}

func (r *reservationRepository) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]*models.Reservation, error) {
	return r.list(func(res *models.Reservation) bool { return res.UserID == userID }), nil
}

func (r *reservationRepository) ListByRide(ctx context.Context, rideID primitive.ObjectID) ([]*models.Reservation, error) {
	return r.list(func(res *models.Reservation) bool { return res.RideID == rideID }), nil
}

func (r *reservationRepository) list(match func(*models.Reservation) bool) []*models.Reservation {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var reservations []*models.Reservation
	for _, reservation := range r.store.reservations {
		if match(reservation) {
			reservations = append(reservations, copyReservation(reservation))
		}
	}
	sort.Slice(reservations, func(i, j int) bool {
		return reservations[i].CreatedAt.After(reservations[j].CreatedAt)
	})
	return reservations
}

func (r *reservationRepository) AcceptAndOccupy(ctx context.Context, id primitive.ObjectID) (*models.Reservation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	reservation, ok := r.store.reservations[id]
	if !ok {
		return nil, utils.NotFound("reservation")
	}
	if reservation.Status != models.ReservationStatusPending {
		return nil, utils.ErrInvalidTransition
	}

	ride, ok := r.store.rides[reservation.RideID]
	if !ok {
		return nil, utils.NotFound("ride")
	}
	if !ride.HasRider(reservation.UserID) {
		if ride.IsFull() {
			return nil, utils.ErrCapacityConflict
		}
		ride.Riders = append(ride.Riders, reservation.UserID)
	}

	now := time.Now()
	ride.UpdatedAt = now
	reservation.SetStatus(models.ReservationStatusAccepted, now)
	return copyReservation(reservation), nil
}

func (r *reservationRepository) Release(ctx context.Context, id primitive.ObjectID, from []models.ReservationStatus, to models.ReservationStatus) (*models.Reservation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	reservation, ok := r.store.reservations[id]
	if !ok {
		return nil, utils.NotFound("reservation")
	}
	if !statusIn(reservation.Status, from) {
		return nil, utils.ErrInvalidTransition
	}

	now := time.Now()
	if ride, ok := r.store.rides[reservation.RideID]; ok {
		riders := ride.Riders[:0]
		for _, rider := range ride.Riders {
			if rider != reservation.UserID {
				riders = append(riders, rider)
			}
		}
		ride.Riders = riders
		ride.UpdatedAt = now
	}

	reservation.SetStatus(to, now)
	return copyReservation(reservation), nil
}

func statusIn(status models.ReservationStatus, set []models.ReservationStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}
