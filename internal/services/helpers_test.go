package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"carpool/internal/models"
	"carpool/internal/repositories/memory"
	"carpool/pkg/logger"
	"carpool/pkg/websocket"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type recordingNotifier struct {
	mu      sync.Mutex
	notices []*models.Notice
	err     error
}

func (n *recordingNotifier) Notify(ctx context.Context, notice *models.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.notices = append(n.notices, notice)
	return nil
}

func (n *recordingNotifier) kinds() []models.NoticeKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]models.NoticeKind, len(n.notices))
	for i, notice := range n.notices {
		kinds[i] = notice.Kind
	}
	return kinds
}

func (n *recordingNotifier) failWith(err error) {
	n.mu.Lock()
	n.err = err
	n.mu.Unlock()
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events map[primitive.ObjectID][]*models.ChatEvent
}

func (b *recordingBroadcaster) Publish(ctx context.Context, sessionID primitive.ObjectID, event *models.ChatEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.events == nil {
		b.events = make(map[primitive.ObjectID][]*models.ChatEvent)
	}
	b.events[sessionID] = append(b.events[sessionID], event)
	return nil
}

func (b *recordingBroadcaster) sent(sessionID primitive.ObjectID) []*models.ChatEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*models.ChatEvent(nil), b.events[sessionID]...)
}

type fixture struct {
	store        *memory.Store
	notifier     *recordingNotifier
	broadcaster  *recordingBroadcaster
	reservations ReservationService
	rides        RideService
	chat         ChatService
	moderation   ModerationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := logger.NewNop()
	store := memory.NewStore()
	notifier := &recordingNotifier{}
	broadcaster := &recordingBroadcaster{}
	guard := NewAccessGuard()
	hub := websocket.NewHub(websocket.NewLocalBus(64), log)

	moderation := NewModerationService(store.Chat(), store.Moderation(), guard, broadcaster, log)
	return &fixture{
		store:        store,
		notifier:     notifier,
		broadcaster:  broadcaster,
		reservations: NewReservationService(store.Rides(), store.Reservations(), store.Chat(), notifier, log),
		rides:        NewRideService(store.Rides(), log),
		chat:         NewChatService(store.Chat(), store.Rides(), store.Reservations(), guard, moderation, hub, broadcaster, ChatOptions{}, log),
		moderation:   moderation,
	}
}

func user() models.Principal {
	return models.Principal{UserID: primitive.NewObjectID(), Username: "user"}
}

func moderator() models.Principal {
	return models.Principal{
		UserID:      primitive.NewObjectID(),
		Username:    "mod",
		Permissions: []string{models.PermissionModerateMessages},
	}
}

func (f *fixture) publishRide(t *testing.T, driver models.Principal, seats int) *models.Ride {
	t.Helper()
	ride, err := f.rides.CreateRide(context.Background(), driver, &models.Ride{
		SeatsOffered: seats,
		StartCity:    "Lyon",
		EndCity:      "Paris",
		StartAt:      time.Now().Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateRide: %v", err)
	}
	return ride
}

// book opens a chat session and requests a seat.
func (f *fixture) book(t *testing.T, rider models.Principal, ride *models.Ride) *models.Reservation {
	t.Helper()
	ctx := context.Background()
	if _, err := f.chat.OpenSession(ctx, rider, ride.ID); err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	reservation, err := f.reservations.CreateReservation(ctx, rider, ride.ID)
	if err != nil {
		t.Fatalf("CreateReservation: %v", err)
	}
	return reservation
}

func expectErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}
