package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"carpool/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// newTestPool connects to CARPOOL_TEST_POSTGRES_DSN and skips otherwise.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("CARPOOL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CARPOOL_TEST_POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return pool
}

func TestDeleteNeverRemovesRideGainingARider(t *testing.T) {
	pool := newTestPool(t)
	rides := NewRideRepository(pool)
	reservations := NewReservationRepository(pool)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		ride := &models.Ride{
			DriverID:     primitive.NewObjectID(),
			SeatsOffered: 1,
			StartCity:    "Lyon",
			EndCity:      "Paris",
			StartAt:      time.Now().Add(24 * time.Hour),
		}
		if err := rides.Create(ctx, ride); err != nil {
			t.Fatalf("Create ride: %v", err)
		}
		reservation := &models.Reservation{UserID: primitive.NewObjectID(), RideID: ride.ID}
		if err := reservations.Create(ctx, reservation); err != nil {
			t.Fatalf("Create reservation: %v", err)
		}

		var (
			wg        sync.WaitGroup
			acceptErr error
			deleted   bool
			deleteErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, acceptErr = reservations.AcceptAndOccupy(ctx, reservation.ID)
		}()
		go func() {
			defer wg.Done()
			deleted, deleteErr = rides.DeleteIfRemovable(ctx, ride.ID, time.Now())
		}()
		wg.Wait()

		if deleteErr != nil {
			t.Fatalf("DeleteIfRemovable: %v", deleteErr)
		}
		if deleted && acceptErr == nil {
			t.Fatalf("round %d: ride deleted although a seat was taken", i)
		}
		if !deleted && acceptErr != nil {
			t.Fatalf("round %d: accept failed on a ride that was kept: %v", i, acceptErr)
		}
	}
}
