package mongodb

import (
	"context"
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

type rideRepository struct {
	collection *mongo.Collection
}

func NewRideRepository(db *mongo.Database) interfaces.RideRepository {
	return &rideRepository{
		collection: db.Collection("rides"),
	}
}

func (r *rideRepository) Create(ctx context.Context, ride *models.Ride) error {
	ride.ID = primitive.NewObjectID()
	ride.CreatedAt = time.Now()
	ride.UpdatedAt = time.Now()
	if ride.Riders == nil {
		ride.Riders = []primitive.ObjectID{}
	}

	_, err := r.collection.InsertOne(ctx, ride)
	if err != nil {
		return fmt.Errorf("failed to create ride: %w", err)
	}

	return nil
}

func (r *rideRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Ride, error) {
	var ride models.Ride
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&ride)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, utils.NotFound("ride")
		}
		return nil, fmt.Errorf("failed to get ride: %w", err)
	}

	return &ride, nil
}

func (r *rideRepository) DeleteIfRemovable(ctx context.Context, id primitive.ObjectID, now time.Time) (bool, error) {
	filter := bson.M{
		"_id": id,
		"$or": []bson.M{
			{"riders": bson.M{"$size": 0}},
			{"riders": nil},
			{"end_at": bson.M{"$lt": now}},
		},
	}

	result, err := r.collection.DeleteOne(ctx, filter)
	if err != nil {
		return false, fmt.Errorf("failed to delete ride: %w", err)
	}
	if result.DeletedCount == 1 {
		return true, nil
	}

	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("failed to check ride: %w", err)
	}
	if count == 0 {
		return false, utils.NotFound("ride")
	}

	return false, nil
}

func (r *rideRepository) CountSharedRides(ctx context.Context, a, b primitive.ObjectID, now time.Time) (int64, error) {
	filter := bson.M{
		"end_at": bson.M{"$lt": now},
		"$or": []bson.M{
			{"driver_id": a, "riders": b},
			{"driver_id": b, "riders": a},
			{"riders": bson.M{"$all": []primitive.ObjectID{a, b}}},
		},
	}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count shared rides: %w", err)
	}

	return count, nil
}

func (r *rideRepository) ListUpcoming(ctx context.Context, now time.Time, params *utils.PaginationParams) ([]*models.Ride, int64, error) {
	filter := bson.M{
		"start_at": bson.M{"$gte": utils.StartOfDay(now.UTC())},
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count rides: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "start_at", Value: 1}}).
		SetSkip(int64(params.GetSkip())).
		SetLimit(int64(params.GetLimit()))

	rides, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}

	return rides, total, nil
}

func (r *rideRepository) ListByDriver(ctx context.Context, driverID primitive.ObjectID) ([]*models.Ride, error) {
	opts := options.Find().SetSort(bson.D{{Key: "start_at", Value: 1}})
	return r.find(ctx, bson.M{"driver_id": driverID}, opts)
}

func (r *rideRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.Ride, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find rides: %w", err)
	}
	defer cursor.Close(ctx)

	var rides []*models.Ride
	for cursor.Next(ctx) {
		var ride models.Ride
		if err := cursor.Decode(&ride); err != nil {
			return nil, fmt.Errorf("failed to decode ride: %w", err)
		}
		rides = append(rides, &ride)
	}

	return rides, cursor.Err()
}
