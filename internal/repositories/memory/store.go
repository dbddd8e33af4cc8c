// Package memory is an in-process implementation of every repository
// interface. All repositories created from one Store share a single mutex,
// so multi-entity operations such as AcceptAndOccupy are atomic.
package memory

import (
	"sync"

	"carpool/internal/models"
	"carpool/internal/repositories/interfaces"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Store struct {
	mu sync.Mutex

	rides        map[primitive.ObjectID]*models.Ride
	reservations map[primitive.ObjectID]*models.Reservation
	sessions     map[primitive.ObjectID]*models.ChatSession
	messages     map[primitive.ObjectID]*models.Message
	modActions   []*models.ModAction
	reports      []*models.ChatReport
	users        map[primitive.ObjectID]*models.User
}

func NewStore() *Store {
	return &Store{
		rides:        make(map[primitive.ObjectID]*models.Ride),
		reservations: make(map[primitive.ObjectID]*models.Reservation),
		sessions:     make(map[primitive.ObjectID]*models.ChatSession),
		messages:     make(map[primitive.ObjectID]*models.Message),
		users:        make(map[primitive.ObjectID]*models.User),
	}
}

func (s *Store) Rides() interfaces.RideRepository {
	return &rideRepository{store: s}
}

func (s *Store) Reservations() interfaces.ReservationRepository {
	return &reservationRepository{store: s}
}

func (s *Store) Chat() interfaces.ChatRepository {
	return &chatRepository{store: s}
}

func (s *Store) Moderation() interfaces.ModerationRepository {
	return &moderationRepository{store: s}
}

func (s *Store) Users() interfaces.UserRepository {
	return &userRepository{store: s}
}

func copyRide(r *models.Ride) *models.Ride {
	c := *r
	c.Riders = append([]primitive.ObjectID(nil), r.Riders...)
	if r.EndAt != nil {
		end := *r.EndAt
		c.EndAt = &end
	}
	return &c
}

func copyReservation(r *models.Reservation) *models.Reservation {
	c := *r
	return &c
}

func copySession(s *models.ChatSession) *models.ChatSession {
	c := *s
	return &c
}

func copyMessage(m *models.Message) *models.Message {
	c := *m
	if m.ReadAt != nil {
		t := *m.ReadAt
		c.ReadAt = &t
	}
	if m.NotifiedAt != nil {
		t := *m.NotifiedAt
		c.NotifiedAt = &t
	}
	return &c
}
