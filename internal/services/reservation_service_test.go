package services

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

func TestCreateReservationPreconditions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	driver, rider := user(), user()
	ride := f.publishRide(t, driver, 2)

	_, err := f.reservations.CreateReservation(ctx, models.Principal{}, ride.ID)
	expectErr(t, err, utils.ErrPermissionDenied)

	_, err = f.reservations.CreateReservation(ctx, rider, primitive.NewObjectID())
	expectErr(t, err, utils.ErrNotFound)

	_, err = f.reservations.CreateReservation(ctx, driver, ride.ID)
	expectErr(t, err, utils.ErrPermissionDenied)

	_, err = f.reservations.CreateReservation(ctx, rider, ride.ID)
	expectErr(t, err, utils.ErrChatSessionRequired)

	reservation := f.book(t, rider, ride)
	if reservation.Status != models.ReservationStatusPending {
		t.Errorf("expected PENDING, got %s", reservation.Status)
	}

	_, err = f.reservations.CreateReservation(ctx, rider, ride.ID)
	expectErr(t, err, utils.ErrAlreadyBooked)

	if _, err := f.reservations.Cancel(ctx, rider, reservation.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := f.reservations.CreateReservation(ctx, rider, ride.ID); err != nil {
		t.Errorf("expected rebooking after cancel to succeed, got %v", err)
	}

	kinds := f.notifier.kinds()
	if len(kinds) != 2 || kinds[0] != models.NoticeReservationRequested {
		t.Errorf("expected two reservation_requested notices, got %v", kinds)
	}
}

func TestCreateReservationRejectsEndedRide(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	driver, rider := user(), user()

	ended := time.Now().Add(-time.Hour)
	ride, err := f.rides.CreateRide(ctx, driver, &models.Ride{
		SeatsOffered: 1,
		StartAt:      ended.Add(-time.Hour),
		EndAt:        &ended,
	})
	if err != nil {
		t.Fatalf("CreateRide: %v", err)
	}
	f.chat.OpenSession(ctx, rider, ride.ID)

	_, err = f.reservations.CreateReservation(ctx, rider, ride.ID)
	expectErr(t, err, utils.ErrRideEnded)
}

func TestSingleSeatScenario(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	driver, r1, r2 := user(), user(), user()
	ride := f.publishRide(t, driver, 1)

	res1 := f.book(t, r1, ride)
	res2 := f.book(t, r2, ride)

	accepted, err := f.reservations.Accept(ctx, driver, res1.ID)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if accepted.Status != models.ReservationStatusAccepted {
		t.Errorf("expected ACCEPTED, got %s", accepted.Status)
	}

	_, err = f.reservations.Accept(ctx, driver, res2.ID)
	expectErr(t, err, utils.ErrCapacityConflict)
	if utils.HTTPStatus(err) != 409 || err.Error() != "this ride is fully booked" {
		t.Errorf("expected 409 fully booked, got %d %q", utils.HTTPStatus(err), err.Error())
	}

	still, _ := f.store.Reservations().GetByID(ctx, res2.ID)
	if still.Status != models.ReservationStatusPending {
		t.Errorf("expected R2 to stay PENDING, got %s", still.Status)
	}
	current, _ := f.rides.GetRide(ctx, ride.ID)
	if current.Occupancy() != 1 {
		t.Errorf("expected occupancy 1, got %d", current.Occupancy())
	}

	r3 := user()
	f.chat.OpenSession(ctx, r3, ride.ID)
	_, err = f.reservations.CreateReservation(ctx, r3, ride.ID)
	expectErr(t, err, utils.ErrRideFull)
}

func TestConcurrentAcceptsRespectCapacity(t *testing.T) {
	t.Parallel()

	const seats, riders = 3, 10

	f := newFixture(t)
	ctx := context.Background()
	driver := user()
	ride := f.publishRide(t, driver, seats)

	ids := make([]primitive.ObjectID, riders)
	for i := range ids {
		ids[i] = f.book(t, user(), ride).ID
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id primitive.ObjectID) {
			defer wg.Done()
			_, err := f.reservations.Accept(ctx, driver, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, utils.ErrCapacityConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	if ok != seats || conflicts != riders-seats {
		t.Errorf("expected %d accepts and %d conflicts, got %d and %d", seats, riders-seats, ok, conflicts)
	}
	current, _ := f.rides.GetRide(ctx, ride.ID)
	if current.Occupancy() != seats {
		t.Errorf("expected occupancy %d, got %d", seats, current.Occupancy())
	}
}

func TestDeclineAcceptedFreesSeat(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	driver, r1, r2 := user(), user(), user()
	ride := f.publishRide(t, driver, 1)

	res1 := f.book(t, r1, ride)
	res2 := f.book(t, r2, ride)
	f.reservations.Accept(ctx, driver, res1.ID)

	declined, err := f.reservations.Transition(ctx, driver, res1.ID, models.ReservationActionDecline)
	if err != nil {
		t.Fatalf("Decline: %v", err)
	}
	if declined.Status != models.ReservationStatusDeclined {
		t.Errorf("expected DECLINED, got %s", declined.Status)
	}

	current, _ := f.rides.GetRide(ctx, ride.ID)
	if current.HasRider(r1.UserID) || current.Occupancy() != 0 {
		t.Errorf("expected R1 removed from occupancy, riders=%v", current.Riders)
	}

	if _, err := f.reservations.Accept(ctx, driver, res2.ID); err != nil {
		t.Errorf("expected freed seat to be acceptable, got %v", err)
	}
}

func TestTerminalStatesAreIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	driver, rider := user(), user()
	ride := f.publishRide(t, driver, 2)

	declinedRes := f.book(t, rider, ride)
	f.reservations.Accept(ctx, driver, declinedRes.ID)
	if _, err := f.reservations.Decline(ctx, driver, declinedRes.ID); err != nil {
		t.Fatalf("Decline: %v", err)
	}
	_, err := f.reservations.Decline(ctx, driver, declinedRes.ID)
	expectErr(t, err, utils.ErrInvalidTransition)
	_, err = f.reservations.Accept(ctx, driver, declinedRes.ID)
	expectErr(t, err, utils.ErrInvalidTransition)

	canceledRes := f.book(t, rider, ride)
	f.reservations.Accept(ctx, driver, canceledRes.ID)
	if _, err := f.reservations.Cancel(ctx, rider, canceledRes.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	_, err = f.reservations.Cancel(ctx, rider, canceledRes.ID)
	expectErr(t, err, utils.ErrInvalidTransition)

	current, _ := f.rides.GetRide(ctx, ride.ID)
	if current.Occupancy() != 0 {
		t.Errorf("expected no occupants after unwinding, got %d", current.Occupancy())
	}
}

func TestTransitionPermissionsAndActions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	driver, rider, stranger := user(), user(), user()
	ride := f.publishRide(t, driver, 2)
	reservation := f.book(t, rider, ride)

	_, err := f.reservations.Transition(ctx, stranger, reservation.ID, models.ReservationActionAccept)
	expectErr(t, err, utils.ErrPermissionDenied)

	_, err = f.reservations.Transition(ctx, rider, reservation.ID, models.ReservationActionAccept)
	expectErr(t, err, utils.ErrPermissionDenied)

	// Identity is checked before the action is parsed.
	_, err = f.reservations.Transition(ctx, stranger, reservation.ID, "approve")
	expectErr(t, err, utils.ErrPermissionDenied)
	_, err = f.reservations.Transition(ctx, rider, reservation.ID, "foo")
	expectErr(t, err, utils.ErrPermissionDenied)
	_, err = f.reservations.Transition(ctx, stranger, primitive.NewObjectID(), "foo")
	expectErr(t, err, utils.ErrNotFound)

	_, err = f.reservations.Transition(ctx, driver, reservation.ID, "approve")
	expectErr(t, err, utils.ErrInvalidAction)
	if utils.HTTPStatus(err) != 400 {
		t.Errorf("expected 400 for unknown action, got %d", utils.HTTPStatus(err))
	}

	_, err = f.reservations.Cancel(ctx, driver, reservation.ID)
	expectErr(t, err, utils.ErrPermissionDenied)
}

func TestNotifierFailureDoesNotUndoAccept(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	driver, rider := user(), user()
	ride := f.publishRide(t, driver, 1)
	reservation := f.book(t, rider, ride)

	f.notifier.failWith(errors.New("broker down"))
	accepted, err := f.reservations.Accept(ctx, driver, reservation.ID)
	if err != nil {
		t.Fatalf("expected accept to succeed despite notifier failure, got %v", err)
	}
	if accepted.Status != models.ReservationStatusAccepted {
		t.Errorf("expected ACCEPTED, got %s", accepted.Status)
	}
}

func TestSafeDeleteRide(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	driver, rider := user(), user()
	ride := f.publishRide(t, driver, 1)
	reservation := f.book(t, rider, ride)
	f.reservations.Accept(ctx, driver, reservation.ID)

	expectErr(t, f.reservations.SafeDeleteRide(ctx, rider, ride.ID), utils.ErrPermissionDenied)
	expectErr(t, f.reservations.SafeDeleteRide(ctx, driver, ride.ID), utils.ErrRideDeletionRefused)

	f.reservations.Cancel(ctx, rider, reservation.ID)
	if err := f.reservations.SafeDeleteRide(ctx, driver, ride.ID); err != nil {
		t.Fatalf("expected vacant ride to be deleted, got %v", err)
	}

	_, err := f.rides.GetRide(ctx, ride.ID)
	expectErr(t, err, utils.ErrNotFound)
	_, err = f.store.Chat().GetSession(ctx, rider.UserID, ride.ID)
	expectErr(t, err, utils.ErrNotFound)
}

func TestListReservations(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	driver, rider := user(), user()
	ride := f.publishRide(t, driver, 2)
	f.book(t, rider, ride)

	mine, err := f.reservations.ListMyReservations(ctx, rider)
	if err != nil || len(mine) != 1 {
		t.Fatalf("expected 1 reservation, got %d (%v)", len(mine), err)
	}

	_, err = f.reservations.ListRideReservations(ctx, rider, ride.ID)
	expectErr(t, err, utils.ErrPermissionDenied)

	forRide, err := f.reservations.ListRideReservations(ctx, driver, ride.ID)
	if err != nil || len(forRide) != 1 {
		t.Errorf("expected driver to see 1 reservation, got %d (%v)", len(forRide), err)
	}
}
