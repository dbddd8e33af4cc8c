package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carpool/internal/models"
	"carpool/internal/repositories/interfaces"
	"carpool/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type reservationRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
	rides      *mongo.Collection
}

// NewReservationRepository needs a replica set or sharded cluster: accept
// and release run as multi-document transactions.
func NewReservationRepository(db *mongo.Database) interfaces.ReservationRepository {
	return &reservationRepository{
		client:     db.Client(),
		collection: db.Collection("reservations"),
		rides:      db.Collection("rides"),
	}
}

func (r *reservationRepository) Create(ctx context.Context, reservation *models.Reservation) error {
	now := time.Now()
	reservation.ID = primitive.NewObjectID()
	reservation.CreatedAt = now
	reservation.SetStatus(models.ReservationStatusPending, now)

	_, err := r.collection.InsertOne(ctx, reservation)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return utils.ErrAlreadyBooked
		}
		return fmt.Errorf("failed to create reservation: %w", err)
	}

	return nil
}

func (r *reservationRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Reservation, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *reservationRepository) GetLive(ctx context.Context, userID, rideID primitive.ObjectID) (*models.Reservation, error) {
	return r.findOne(ctx, bson.M{"user_id": userID, "ride_id": rideID, "live": true})
}

func (r *reservationRepository) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]*models.Reservation, error) {
	return r.find(ctx, bson.M{"user_id": userID})
}

func (r *reservationRepository) ListByRide(ctx context.Context, rideID primitive.ObjectID) ([]*models.Reservation, error) {
	return r.find(ctx, bson.M{"ride_id": rideID})
}

func (r *reservationRepository) AcceptAndOccupy(ctx context.Context, id primitive.ObjectID) (*models.Reservation, error) {
	result, err := r.withTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		reservation, err := r.findOne(sessCtx, bson.M{"_id": id})
		if err != nil {
			return nil, err
		}
		if reservation.Status != models.ReservationStatusPending {
			return nil, utils.ErrInvalidTransition
		}

		now := time.Now()
		seatFilter := bson.M{
			"_id":    reservation.RideID,
			"riders": bson.M{"$ne": reservation.UserID},
			"$expr":  bson.M{"$lt": bson.A{bson.M{"$size": bson.M{"$ifNull": bson.A{"$riders", bson.A{}}}}, "$seats_offered"}},
		}
		update := bson.M{
			"$push": bson.M{"riders": reservation.UserID},
			"$set":  bson.M{"updated_at": now},
		}
		pushed, err := r.rides.UpdateOne(sessCtx, seatFilter, update)
		if err != nil {
			return nil, fmt.Errorf("failed to occupy seat: %w", err)
		}
		if pushed.MatchedCount == 0 {
			if err := r.explainNoSeat(sessCtx, reservation); err != nil {
				return nil, err
			}
		}

		return r.transition(sessCtx, id, []models.ReservationStatus{models.ReservationStatusPending}, models.ReservationStatusAccepted, now)
	})
	if err != nil {
		return nil, err
	}

	return result.(*models.Reservation), nil
}

// explainNoSeat tells apart a rider already seated (not an error), a missing
// ride and a full one.
func (r *reservationRepository) explainNoSeat(ctx context.Context, reservation *models.Reservation) error {
	var ride models.Ride
	err := r.rides.FindOne(ctx, bson.M{"_id": reservation.RideID}).Decode(&ride)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return utils.NotFound("ride")
		}
		return fmt.Errorf("failed to get ride: %w", err)
	}
	if ride.HasRider(reservation.UserID) {
		return nil
	}
	return utils.ErrCapacityConflict
}

func (r *reservationRepository) Release(ctx context.Context, id primitive.ObjectID, from []models.ReservationStatus, to models.ReservationStatus) (*models.Reservation, error) {
	result, err := r.withTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		now := time.Now()
		reservation, err := r.transition(sessCtx, id, from, to, now)
		if err != nil {
			return nil, err
		}

		_, err = r.rides.UpdateOne(sessCtx,
			bson.M{"_id": reservation.RideID},
			bson.M{
				"$pull": bson.M{"riders": reservation.UserID},
				"$set":  bson.M{"updated_at": now},
			},
		)
		if err != nil {
			return nil, fmt.Errorf("failed to release seat: %w", err)
		}

		return reservation, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*models.Reservation), nil
}

// transition is a conditional status update: it only matches while the
// reservation is still in one of from.
func (r *reservationRepository) transition(ctx context.Context, id primitive.ObjectID, from []models.ReservationStatus, to models.ReservationStatus, now time.Time) (*models.Reservation, error) {
	filter := bson.M{"_id": id, "status": bson.M{"$in": from}}
	update := bson.M{"$set": bson.M{
		"status":     to,
		"live":       to.IsLive(),
		"updated_at": now,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var reservation models.Reservation
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&reservation)
	if err == nil {
		return &reservation, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, fmt.Errorf("failed to update reservation: %w", err)
	}

	if _, err := r.findOne(ctx, bson.M{"_id": id}); err != nil {
		return nil, err
	}
	return nil, utils.ErrInvalidTransition
}

func (r *reservationRepository) withTransaction(ctx context.Context, fn func(sessCtx mongo.SessionContext) (interface{}, error)) (interface{}, error) {
	session, err := r.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	result, err := session.WithTransaction(ctx, fn)
	if err != nil {
		var appErr *utils.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, fmt.Errorf("transaction failed: %w", err)
	}

	return result, nil
}

func (r *reservationRepository) findOne(ctx context.Context, filter bson.M) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.collection.FindOne(ctx, filter).Decode(&reservation)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, utils.NotFound("reservation")
		}
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}

	return &reservation, nil
}

func (r *reservationRepository) find(ctx context.Context, filter bson.M) ([]*models.Reservation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find reservations: %w", err)
	}
	defer cursor.Close(ctx)

	var reservations []*models.Reservation
	for cursor.Next(ctx) {
		var reservation models.Reservation
		if err := cursor.Decode(&reservation); err != nil {
			return nil, fmt.Errorf("failed to decode reservation: %w", err)
		}
		reservations = append(reservations, &reservation)
	}

	return reservations, cursor.Err()
}
