package services

import (
	"context"
	"time"

	"carpool/internal/models"
	"carpool/internal/repositories/interfaces"
	"carpool/internal/utils"
	"carpool/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RideService interface {
	CreateRide(ctx context.Context, principal models.Principal, ride *models.Ride) (*models.Ride, error)
	GetRide(ctx context.Context, rideID primitive.ObjectID) (*models.Ride, error)
	ListUpcoming(ctx context.Context, params *utils.PaginationParams) ([]*models.Ride, int64, error)
	ListMyRides(ctx context.Context, principal models.Principal) ([]*models.Ride, error)
}

type rideService struct {
	rideRepo interfaces.RideRepository
	logger   *logger.Logger
	now      func() time.Time
}

func NewRideService(rideRepo interfaces.RideRepository, log *logger.Logger) RideService {
	return &rideService{
		rideRepo: rideRepo,
		logger:   log,
		now:      time.Now,
	}
}

func (s *rideService) CreateRide(ctx context.Context, principal models.Principal, ride *models.Ride) (*models.Ride, error) {
	if principal.IsAnonymous() {
		return nil, utils.ErrPermissionDenied
	}

	ride.ID = primitive.NilObjectID
	ride.DriverID = principal.UserID
	ride.Riders = []primitive.ObjectID{}

	if err := s.rideRepo.Create(ctx, ride); err != nil {
		return nil, err
	}

	s.logger.WithRideID(ride.ID).WithUserID(principal.UserID).Info("Ride published")
	return ride, nil
}

func (s *rideService) GetRide(ctx context.Context, rideID primitive.ObjectID) (*models.Ride, error) {
	return s.rideRepo.GetByID(ctx, rideID)
}

func (s *rideService) ListUpcoming(ctx context.Context, params *utils.PaginationParams) ([]*models.Ride, int64, error) {
	return s.rideRepo.ListUpcoming(ctx, s.now(), params)
}

func (s *rideService) ListMyRides(ctx context.Context, principal models.Principal) ([]*models.Ride, error) {
	if principal.IsAnonymous() {
		return nil, utils.ErrPermissionDenied
	}
	return s.rideRepo.ListByDriver(ctx, principal.UserID)
}
