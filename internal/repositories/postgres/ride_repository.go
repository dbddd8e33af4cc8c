package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carpool/internal/models"
	"carpool/internal/repositories/interfaces"
	"carpool/internal/utils"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type rideRepository struct {
	pool *pgxpool.Pool
}

func NewRideRepository(pool *pgxpool.Pool) interfaces.RideRepository {
	return &rideRepository{pool: pool}
}

const rideColumns = `
	r.id, r.driver_id, r.seats_offered, r.start_city, r.end_city, r.start_at, r.end_at, r.created_at, r.updated_at,
	ARRAY(SELECT rr.user_id FROM ride_riders rr WHERE rr.ride_id = r.id ORDER BY rr.joined_at)`

func (r *rideRepository) Create(ctx context.Context, ride *models.Ride) error {
	ride.ID = primitive.NewObjectID()
	ride.CreatedAt = time.Now()
	ride.UpdatedAt = ride.CreatedAt
	ride.Riders = []primitive.ObjectID{}

	q := `INSERT INTO rides (
			id, driver_id, seats_offered, start_city, end_city, start_at, end_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, q,
		ride.ID.Hex(),
		ride.DriverID.Hex(),
		ride.SeatsOffered,
		ride.StartCity,
		ride.EndCity,
		ride.StartAt,
		ride.EndAt,
		ride.CreatedAt,
		ride.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create ride: %w", err)
	}

	return nil
}

func (r *rideRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Ride, error) {
	q := `SELECT` + rideColumns + ` FROM rides r WHERE r.id = $1`

	ride, err := scanRide(r.pool.QueryRow(ctx, q, id.Hex()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, utils.NotFound("ride")
		}
		return nil, fmt.Errorf("failed to get ride: %w", err)
	}

	return ride, nil
}

// DeleteIfRemovable takes the same ride row lock as AcceptAndOccupy. The
// rider count is read after the lock is held, so a seat taken by an accept
// that committed while we waited is seen.
func (r *rideRepository) DeleteIfRemovable(ctx context.Context, id primitive.ObjectID, now time.Time) (bool, error) {
	var deleted bool

	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		ride := &models.Ride{ID: id}
		err := tx.QueryRow(ctx, `SELECT end_at FROM rides WHERE id = $1 FOR UPDATE`, id.Hex()).Scan(&ride.EndAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return utils.NotFound("ride")
			}
			return fmt.Errorf("failed to lock ride: %w", err)
		}

		var occupied int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM ride_riders WHERE ride_id = $1`, id.Hex()).Scan(&occupied); err != nil {
			return fmt.Errorf("failed to count riders: %w", err)
		}
		ride.Riders = make([]primitive.ObjectID, occupied)
		if !ride.Removable(now) {
			return nil
		}

		if _, err := tx.Exec(ctx, `DELETE FROM rides WHERE id = $1`, id.Hex()); err != nil {
			return fmt.Errorf("failed to delete ride: %w", err)
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return deleted, nil
}

func (r *rideRepository) CountSharedRides(ctx context.Context, a, b primitive.ObjectID, now time.Time) (int64, error) {
	q := `
	SELECT COUNT(*)
	FROM rides r
	WHERE r.end_at IS NOT NULL AND r.end_at < $3
		AND (r.driver_id = $1 OR EXISTS (SELECT 1 FROM ride_riders rr WHERE rr.ride_id = r.id AND rr.user_id = $1))
		AND (r.driver_id = $2 OR EXISTS (SELECT 1 FROM ride_riders rr WHERE rr.ride_id = r.id AND rr.user_id = $2))`

	var count int64
	if err := r.pool.QueryRow(ctx, q, a.Hex(), b.Hex(), now).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count shared rides: %w", err)
	}

	return count, nil
}

func (r *rideRepository) ListUpcoming(ctx context.Context, now time.Time, params *utils.PaginationParams) ([]*models.Ride, int64, error) {
	today := utils.StartOfDay(now.UTC())

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rides WHERE start_at >= $1`, today).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count rides: %w", err)
	}

	q := `SELECT` + rideColumns + `
	FROM rides r
	WHERE r.start_at >= $1
	ORDER BY r.start_at ASC
	LIMIT $2 OFFSET $3`

	rides, err := r.query(ctx, q, today, params.GetLimit(), params.GetSkip())
	if err != nil {
		return nil, 0, err
	}

	return rides, total, nil
}

func (r *rideRepository) ListByDriver(ctx context.Context, driverID primitive.ObjectID) ([]*models.Ride, error) {
	q := `SELECT` + rideColumns + ` FROM rides r WHERE r.driver_id = $1 ORDER BY r.start_at ASC`
	return r.query(ctx, q, driverID.Hex())
}

func (r *rideRepository) query(ctx context.Context, q string, args ...interface{}) ([]*models.Ride, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rides: %w", err)
	}
	defer rows.Close()

	var rides []*models.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ride: %w", err)
		}
		rides = append(rides, ride)
	}

	return rides, rows.Err()
}

func scanRide(row pgx.Row) (*models.Ride, error) {
	var (
		ride     models.Ride
		id       string
		driverID string
		riders   []string
	)

	err := row.Scan(
		&id,
		&driverID,
		&ride.SeatsOffered,
		&ride.StartCity,
		&ride.EndCity,
		&ride.StartAt,
		&ride.EndAt,
		&ride.CreatedAt,
		&ride.UpdatedAt,
		&riders,
	)
	if err != nil {
		return nil, err
	}

	if ride.ID, err = primitive.ObjectIDFromHex(id); err != nil {
		return nil, err
	}
	if ride.DriverID, err = primitive.ObjectIDFromHex(driverID); err != nil {
		return nil, err
	}
	ride.Riders, err = parseIDs(riders)
	if err != nil {
		return nil, err
	}

	return &ride, nil
}

func parseIDs(hexes []string) ([]primitive.ObjectID, error) {
	ids := make([]primitive.ObjectID, 0, len(hexes))
	for _, h := range hexes {
		id, err := primitive.ObjectIDFromHex(h)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
