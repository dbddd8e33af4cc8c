package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"carpool/internal/models"
	"carpool/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func seedRide(t *testing.T, store *Store, seats int) *models.Ride {
	t.Helper()
	ride := &models.Ride{
		DriverID:     primitive.NewObjectID(),
		SeatsOffered: seats,
		StartAt:      time.Now().Add(time.Hour),
	}
	if err := store.Rides().Create(context.Background(), ride); err != nil {
		t.Fatalf("create ride: %v", err)
	}
	return ride
}

func TestAcceptAndOccupyNeverOverfills(t *testing.T) {
	t.Parallel()

	const seats = 3
	const riders = 10

	ctx := context.Background()
	store := NewStore()
	ride := seedRide(t, store, seats)

	ids := make([]primitive.ObjectID, riders)
	for i := range ids {
		res := &models.Reservation{UserID: primitive.NewObjectID(), RideID: ride.ID}
		if err := store.Reservations().Create(ctx, res); err != nil {
			t.Fatalf("create reservation: %v", err)
		}
		ids[i] = res.ID
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		accepted  int
		conflicts int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id primitive.ObjectID) {
			defer wg.Done()
			_, err := store.Reservations().AcceptAndOccupy(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, utils.ErrCapacityConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	if accepted != seats {
		t.Errorf("expected %d accepted, got %d", seats, accepted)
	}
	if conflicts != riders-seats {
		t.Errorf("expected %d conflicts, got %d", riders-seats, conflicts)
	}

	got, _ := store.Rides().GetByID(ctx, ride.ID)
	if got.Occupancy() != seats {
		t.Errorf("expected occupancy %d, got %d", seats, got.Occupancy())
	}
}

func TestReservationCreateRejectsDuplicateLive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	ride := seedRide(t, store, 2)
	user := primitive.NewObjectID()

	first := &models.Reservation{UserID: user, RideID: ride.ID}
	if err := store.Reservations().Create(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Reservations().Create(ctx, &models.Reservation{UserID: user, RideID: ride.ID}); !errors.Is(err, utils.ErrAlreadyBooked) {
		t.Fatalf("expected ErrAlreadyBooked, got %v", err)
	}

	if _, err := store.Reservations().Release(ctx, first.ID, []models.ReservationStatus{models.ReservationStatusPending}, models.ReservationStatusCanceled); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := store.Reservations().Create(ctx, &models.Reservation{UserID: user, RideID: ride.ID}); err != nil {
		t.Errorf("expected rebooking after cancel to succeed, got %v", err)
	}
}

func TestReleaseRemovesOccupant(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	ride := seedRide(t, store, 1)

	res := &models.Reservation{UserID: primitive.NewObjectID(), RideID: ride.ID}
	_ = store.Reservations().Create(ctx, res)
	if _, err := store.Reservations().AcceptAndOccupy(ctx, res.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	from := []models.ReservationStatus{models.ReservationStatusPending, models.ReservationStatusAccepted}
	if _, err := store.Reservations().Release(ctx, res.ID, from, models.ReservationStatusDeclined); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := store.Reservations().Release(ctx, res.ID, from, models.ReservationStatusDeclined); !errors.Is(err, utils.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition on second release, got %v", err)
	}

	got, _ := store.Rides().GetByID(ctx, ride.ID)
	if got.Occupancy() != 0 {
		t.Errorf("expected empty ride, got %d riders", got.Occupancy())
	}
}

func TestDeleteIfRemovable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	now := time.Now()

	vacant := seedRide(t, store, 2)
	if deleted, err := store.Rides().DeleteIfRemovable(ctx, vacant.ID, now); err != nil || !deleted {
		t.Errorf("expected vacant ride deleted, got %v %v", deleted, err)
	}

	occupied := seedRide(t, store, 2)
	res := &models.Reservation{UserID: primitive.NewObjectID(), RideID: occupied.ID}
	_ = store.Reservations().Create(ctx, res)
	_, _ = store.Reservations().AcceptAndOccupy(ctx, res.ID)
	if deleted, err := store.Rides().DeleteIfRemovable(ctx, occupied.ID, now); err != nil || deleted {
		t.Errorf("expected occupied upcoming ride kept, got %v %v", deleted, err)
	}

	later := now.Add(48 * time.Hour)
	end := now.Add(2 * time.Hour)
	store.mu.Lock()
	store.rides[occupied.ID].EndAt = &end
	store.mu.Unlock()
	if deleted, err := store.Rides().DeleteIfRemovable(ctx, occupied.ID, later); err != nil || !deleted {
		t.Errorf("expected ended ride deleted, got %v %v", deleted, err)
	}
}

func TestGetRecentMessagesReturnsTailInOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	chat := store.Chat()

	session, err := chat.GetOrCreateSession(ctx, &models.ChatSession{
		UserID:   primitive.NewObjectID(),
		RideID:   primitive.NewObjectID(),
		DriverID: primitive.NewObjectID(),
	})
	if err != nil {
		t.Fatalf("session: %v", err)
	}

	var sent []primitive.ObjectID
	for i := 0; i < 60; i++ {
		msg := &models.Message{SessionID: session.ID, SenderID: session.UserID, Content: "hi"}
		if err := chat.CreateMessage(ctx, msg); err != nil {
			t.Fatalf("create message: %v", err)
		}
		sent = append(sent, msg.ID)
	}

	recent, err := chat.GetRecentMessages(ctx, session.ID, 50)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 50 {
		t.Fatalf("expected 50 messages, got %d", len(recent))
	}
	for i, msg := range recent {
		if msg.ID != sent[10+i] {
			t.Fatalf("message %d out of order", i)
		}
	}
}

func TestClaimForNotificationIsExclusive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	chat := store.Chat()

	session, _ := chat.GetOrCreateSession(ctx, &models.ChatSession{
		UserID:   primitive.NewObjectID(),
		RideID:   primitive.NewObjectID(),
		DriverID: primitive.NewObjectID(),
	})
	msg := &models.Message{SessionID: session.ID, SenderID: session.UserID, RecipientID: session.DriverID, Content: "ping"}
	_ = chat.CreateMessage(ctx, msg)

	now := time.Now()
	first, _ := chat.ClaimForNotification(ctx, []primitive.ObjectID{msg.ID}, "run-1", now)
	second, _ := chat.ClaimForNotification(ctx, []primitive.ObjectID{msg.ID}, "run-2", now)
	if len(first) != 1 || len(second) != 0 {
		t.Fatalf("expected exclusive claim, got %d and %d", len(first), len(second))
	}

	if err := chat.ReleaseNotificationClaim(ctx, "run-2", []primitive.ObjectID{msg.ID}); err != nil {
		t.Fatalf("release: %v", err)
	}
	got, _ := chat.GetMessageByID(ctx, msg.ID)
	if got.NotifiedAt == nil {
		t.Error("release with foreign run id must not clear the claim")
	}

	_ = chat.ReleaseNotificationClaim(ctx, "run-1", []primitive.ObjectID{msg.ID})
	got, _ = chat.GetMessageByID(ctx, msg.ID)
	if got.NotifiedAt != nil {
		t.Error("expected claim released")
	}
}
