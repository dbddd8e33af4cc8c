package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carpool/internal/models"
	"carpool/internal/repositories/interfaces"
	"carpool/internal/utils"
	"carpool/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ReservationService interface {
	// Booking
	CreateReservation(ctx context.Context, principal models.Principal, rideID primitive.ObjectID) (*models.Reservation, error)
	Cancel(ctx context.Context, principal models.Principal, reservationID primitive.ObjectID) (*models.Reservation, error)

	// Driver decisions
	Accept(ctx context.Context, principal models.Principal, reservationID primitive.ObjectID) (*models.Reservation, error)
	Decline(ctx context.Context, principal models.Principal, reservationID primitive.ObjectID) (*models.Reservation, error)
	Transition(ctx context.Context, principal models.Principal, reservationID primitive.ObjectID, action models.ReservationAction) (*models.Reservation, error)

	// Ride removal
	SafeDeleteRide(ctx context.Context, principal models.Principal, rideID primitive.ObjectID) error

	// Queries
	ListMyReservations(ctx context.Context, principal models.Principal) ([]*models.Reservation, error)
	ListRideReservations(ctx context.Context, principal models.Principal, rideID primitive.ObjectID) ([]*models.Reservation, error)
}

type reservationService struct {
	rideRepo        interfaces.RideRepository
	reservationRepo interfaces.ReservationRepository
	chatRepo        interfaces.ChatRepository
	notifier        Notifier
	logger          *logger.Logger
	now             func() time.Time
}

func NewReservationService(
	rideRepo interfaces.RideRepository,
	reservationRepo interfaces.ReservationRepository,
	chatRepo interfaces.ChatRepository,
	notifier Notifier,
	log *logger.Logger,
) ReservationService {
	return &reservationService{
		rideRepo:        rideRepo,
		reservationRepo: reservationRepo,
		chatRepo:        chatRepo,
		notifier:        notifier,
		logger:          log,
		now:             time.Now,
	}
}

func (s *reservationService) CreateReservation(ctx context.Context, principal models.Principal, rideID primitive.ObjectID) (*models.Reservation, error) {
	if principal.IsAnonymous() {
		return nil, utils.ErrPermissionDenied
	}

	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID == principal.UserID {
		return nil, utils.NewAppError(utils.KindPermissionDenied, "you cannot book your own ride")
	}
	if ride.HasEnded(s.now()) {
		return nil, utils.ErrRideEnded
	}
	if ride.IsFull() {
		return nil, utils.ErrRideFull
	}

	if _, err := s.chatRepo.GetSession(ctx, principal.UserID, rideID); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.ErrChatSessionRequired
		}
		return nil, err
	}

	if _, err := s.reservationRepo.GetLive(ctx, principal.UserID, rideID); err == nil {
		return nil, utils.ErrAlreadyBooked
	} else if !errors.Is(err, utils.ErrNotFound) {
		return nil, err
	}

	// The store rejects a concurrent duplicate with ErrAlreadyBooked.
	reservation := &models.Reservation{
		UserID: principal.UserID,
		RideID: rideID,
	}
	if err := s.reservationRepo.Create(ctx, reservation); err != nil {
		return nil, err
	}

	s.logger.LogReservationEvent(reservation.ID, rideID, utils.EventReservationRequested, map[string]interface{}{
		"user_id": principal.UserID.Hex(),
	})
	s.notify(ctx, models.NoticeReservationRequested, ride.DriverID, reservation)

	return reservation, nil
}

func (s *reservationService) Accept(ctx context.Context, principal models.Principal, reservationID primitive.ObjectID) (*models.Reservation, error) {
	reservation, _, err := s.loadForDriver(ctx, principal, reservationID)
	if err != nil {
		return nil, err
	}
	return s.accept(ctx, reservation)
}

func (s *reservationService) accept(ctx context.Context, reservation *models.Reservation) (*models.Reservation, error) {
	if !reservation.Status.CanTransition(models.ReservationStatusAccepted) {
		return nil, utils.ErrInvalidTransition
	}

	accepted, err := s.reservationRepo.AcceptAndOccupy(ctx, reservation.ID)
	if err != nil {
		if errors.Is(err, utils.ErrCapacityConflict) {
			s.logger.LogReservationEvent(reservation.ID, reservation.RideID, "reservation_capacity_conflict", nil)
		}
		return nil, err
	}

	s.logger.LogReservationEvent(accepted.ID, accepted.RideID, utils.EventReservationAccepted, nil)
	s.notify(ctx, models.NoticeReservationAccepted, accepted.UserID, accepted)

	return accepted, nil
}

func (s *reservationService) Decline(ctx context.Context, principal models.Principal, reservationID primitive.ObjectID) (*models.Reservation, error) {
	if _, _, err := s.loadForDriver(ctx, principal, reservationID); err != nil {
		return nil, err
	}
	return s.decline(ctx, reservationID)
}

func (s *reservationService) decline(ctx context.Context, reservationID primitive.ObjectID) (*models.Reservation, error) {
	declined, err := s.reservationRepo.Release(ctx, reservationID,
		models.SourcesFor(models.ReservationStatusDeclined),
		models.ReservationStatusDeclined)
	if err != nil {
		return nil, err
	}

	s.logger.LogReservationEvent(declined.ID, declined.RideID, utils.EventReservationDeclined, nil)
	s.notify(ctx, models.NoticeReservationDeclined, declined.UserID, declined)

	return declined, nil
}

func (s *reservationService) Cancel(ctx context.Context, principal models.Principal, reservationID primitive.ObjectID) (*models.Reservation, error) {
	if principal.IsAnonymous() {
		return nil, utils.ErrPermissionDenied
	}

	reservation, err := s.reservationRepo.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if reservation.UserID != principal.UserID {
		return nil, utils.ErrPermissionDenied
	}

	canceled, err := s.reservationRepo.Release(ctx, reservationID,
		models.SourcesFor(models.ReservationStatusCanceled),
		models.ReservationStatusCanceled)
	if err != nil {
		return nil, err
	}

	s.logger.LogReservationEvent(canceled.ID, canceled.RideID, utils.EventReservationCanceled, nil)
	return canceled, nil
}

// Transition checks that principal drives the ride before looking at the
// action, so strangers get PermissionDenied whatever they send.
func (s *reservationService) Transition(ctx context.Context, principal models.Principal, reservationID primitive.ObjectID, action models.ReservationAction) (*models.Reservation, error) {
	reservation, _, err := s.loadForDriver(ctx, principal, reservationID)
	if err != nil {
		return nil, err
	}

	switch action {
	case models.ReservationActionAccept:
		return s.accept(ctx, reservation)
	case models.ReservationActionDecline:
		return s.decline(ctx, reservationID)
	default:
		return nil, utils.NewAppError(utils.KindInvalidAction, fmt.Sprintf("invalid action %q", action))
	}
}

func (s *reservationService) SafeDeleteRide(ctx context.Context, principal models.Principal, rideID primitive.ObjectID) error {
	if principal.IsAnonymous() {
		return utils.ErrPermissionDenied
	}

	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return err
	}
	if ride.DriverID != principal.UserID {
		return utils.ErrPermissionDenied
	}

	deleted, err := s.rideRepo.DeleteIfRemovable(ctx, rideID, s.now())
	if err != nil {
		return err
	}
	if !deleted {
		return utils.ErrRideDeletionRefused
	}

	if err := s.chatRepo.DeleteSessionsByRide(ctx, rideID); err != nil {
		return fmt.Errorf("ride deleted but its chat sessions were not: %w", err)
	}

	s.logger.WithRideID(rideID).WithField("event", utils.EventRideDeleted).Info("Ride deleted")
	return nil
}

func (s *reservationService) ListMyReservations(ctx context.Context, principal models.Principal) ([]*models.Reservation, error) {
	if principal.IsAnonymous() {
		return nil, utils.ErrPermissionDenied
	}
	return s.reservationRepo.ListByUser(ctx, principal.UserID)
}

func (s *reservationService) ListRideReservations(ctx context.Context, principal models.Principal, rideID primitive.ObjectID) ([]*models.Reservation, error) {
	if principal.IsAnonymous() {
		return nil, utils.ErrPermissionDenied
	}

	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != principal.UserID {
		return nil, utils.ErrPermissionDenied
	}
	return s.reservationRepo.ListByRide(ctx, rideID)
}

// loadForDriver returns the reservation and its ride when principal drives
// that ride.
func (s *reservationService) loadForDriver(ctx context.Context, principal models.Principal, reservationID primitive.ObjectID) (*models.Reservation, *models.Ride, error) {
	if principal.IsAnonymous() {
		return nil, nil, utils.ErrPermissionDenied
	}

	reservation, err := s.reservationRepo.GetByID(ctx, reservationID)
	if err != nil {
		return nil, nil, err
	}
	ride, err := s.rideRepo.GetByID(ctx, reservation.RideID)
	if err != nil {
		return nil, nil, err
	}
	if ride.DriverID != principal.UserID {
		return nil, nil, utils.ErrPermissionDenied
	}
	return reservation, ride, nil
}

// notify runs after the store commit. A delivery failure is logged and
// never undoes the transition.
func (s *reservationService) notify(ctx context.Context, kind models.NoticeKind, recipient primitive.ObjectID, reservation *models.Reservation) {
	if s.notifier == nil {
		return
	}

	reservationID, rideID := reservation.ID, reservation.RideID
	notice := &models.Notice{
		Kind:          kind,
		RecipientID:   recipient,
		ReservationID: &reservationID,
		RideID:        &rideID,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.notifier.Notify(ctx, notice); err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"kind":           kind,
			"reservation_id": reservationID.Hex(),
		}).Error("Failed to deliver reservation notice")
	}
}
