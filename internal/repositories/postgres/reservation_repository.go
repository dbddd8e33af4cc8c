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
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const uniqueViolation = "23505"

type reservationRepository struct {
	pool *pgxpool.Pool
}

func NewReservationRepository(pool *pgxpool.Pool) interfaces.ReservationRepository {
	return &reservationRepository{pool: pool}
}

const reservationColumns = `id, user_id, ride_id, status, live, created_at, updated_at`

func (r *reservationRepository) Create(ctx context.Context, reservation *models.Reservation) error {
	now := time.Now()
	reservation.ID = primitive.NewObjectID()
	reservation.CreatedAt = now
	reservation.SetStatus(models.ReservationStatusPending, now)

	q := `INSERT INTO reservations (` + reservationColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, q,
		reservation.ID.Hex(),
		reservation.UserID.Hex(),
		reservation.RideID.Hex(),
		string(reservation.Status),
		reservation.Live,
		reservation.CreatedAt,
		reservation.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return utils.ErrAlreadyBooked
		}
		return fmt.Errorf("failed to create reservation: %w", err)
	}

	return nil
}

func (r *reservationRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	return r.queryOne(ctx, r.pool, q, id.Hex())
}

func (r *reservationRepository) GetLive(ctx context.Context, userID, rideID primitive.ObjectID) (*models.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations WHERE user_id = $1 AND ride_id = $2 AND live`
	return r.queryOne(ctx, r.pool, q, userID.Hex(), rideID.Hex())
}

func (r *reservationRepository) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]*models.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations WHERE user_id = $1 ORDER BY created_at DESC`
	return r.query(ctx, q, userID.Hex())
}

func (r *reservationRepository) ListByRide(ctx context.Context, rideID primitive.ObjectID) ([]*models.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations WHERE ride_id = $1 ORDER BY created_at DESC`
	return r.query(ctx, q, rideID.Hex())
}

// AcceptAndOccupy locks the reservation and then the ride row, so concurrent
// accepts on one ride serialize on the ride lock and each sees the occupancy
// committed by the previous one.
func (r *reservationRepository) AcceptAndOccupy(ctx context.Context, id primitive.ObjectID) (*models.Reservation, error) {
	var accepted *models.Reservation

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		q := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1 FOR UPDATE`
		reservation, err := r.queryOne(ctx, tx, q, id.Hex())
		if err != nil {
			return err
		}
		if reservation.Status != models.ReservationStatusPending {
			return utils.ErrInvalidTransition
		}

		var seats int
		err = tx.QueryRow(ctx, `SELECT seats_offered FROM rides WHERE id = $1 FOR UPDATE`, reservation.RideID.Hex()).Scan(&seats)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return utils.NotFound("ride")
			}
			return fmt.Errorf("failed to lock ride: %w", err)
		}

		var occupied int
		var seated bool
		err = tx.QueryRow(ctx, `
			SELECT COUNT(*), COALESCE(BOOL_OR(user_id = $2), false)
			FROM ride_riders WHERE ride_id = $1`,
			reservation.RideID.Hex(), reservation.UserID.Hex(),
		).Scan(&occupied, &seated)
		if err != nil {
			return fmt.Errorf("failed to count riders: %w", err)
		}

		now := time.Now()
		if !seated {
			if occupied >= seats {
				return utils.ErrCapacityConflict
			}
			_, err = tx.Exec(ctx,
				`INSERT INTO ride_riders (ride_id, user_id, joined_at) VALUES ($1, $2, $3)`,
				reservation.RideID.Hex(), reservation.UserID.Hex(), now,
			)
			if err != nil {
				return fmt.Errorf("failed to occupy seat: %w", err)
			}
			if _, err = tx.Exec(ctx, `UPDATE rides SET updated_at = $2 WHERE id = $1`, reservation.RideID.Hex(), now); err != nil {
				return fmt.Errorf("failed to update ride: %w", err)
			}
		}

		accepted, err = r.setStatus(ctx, tx, reservation, models.ReservationStatusAccepted, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	return accepted, nil
}

func (r *reservationRepository) Release(ctx context.Context, id primitive.ObjectID, from []models.ReservationStatus, to models.ReservationStatus) (*models.Reservation, error) {
	var released *models.Reservation

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		q := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1 FOR UPDATE`
		reservation, err := r.queryOne(ctx, tx, q, id.Hex())
		if err != nil {
			return err
		}
		if !statusIn(reservation.Status, from) {
			return utils.ErrInvalidTransition
		}

		now := time.Now()
		_, err = tx.Exec(ctx,
			`DELETE FROM ride_riders WHERE ride_id = $1 AND user_id = $2`,
			reservation.RideID.Hex(), reservation.UserID.Hex(),
		)
		if err != nil {
			return fmt.Errorf("failed to release seat: %w", err)
		}

		released, err = r.setStatus(ctx, tx, reservation, to, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	return released, nil
}

func (r *reservationRepository) setStatus(ctx context.Context, tx pgx.Tx, reservation *models.Reservation, status models.ReservationStatus, now time.Time) (*models.Reservation, error) {
	reservation.SetStatus(status, now)
	_, err := tx.Exec(ctx,
		`UPDATE reservations SET status = $2, live = $3, updated_at = $4 WHERE id = $1`,
		reservation.ID.Hex(), string(reservation.Status), reservation.Live, reservation.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update reservation: %w", err)
	}
	return reservation, nil
}

func (r *reservationRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return inTx(ctx, r.pool, fn)
}

func inTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *reservationRepository) queryOne(ctx context.Context, db querier, q string, args ...interface{}) (*models.Reservation, error) {
	reservation, err := scanReservation(db.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, utils.NotFound("reservation")
		}
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return reservation, nil
}

func (r *reservationRepository) query(ctx context.Context, q string, args ...interface{}) ([]*models.Reservation, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var reservations []*models.Reservation
	for rows.Next() {
		reservation, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, reservation)
	}

	return reservations, rows.Err()
}

func scanReservation(row pgx.Row) (*models.Reservation, error) {
	var (
		reservation models.Reservation
		id          string
		userID      string
		rideID      string
		status      string
	)

	err := row.Scan(&id, &userID, &rideID, &status, &reservation.Live, &reservation.CreatedAt, &reservation.UpdatedAt)
	if err != nil {
		return nil, err
	}

	reservation.Status = models.ReservationStatus(status)
	if reservation.ID, err = primitive.ObjectIDFromHex(id); err != nil {
		return nil, err
	}
	if reservation.UserID, err = primitive.ObjectIDFromHex(userID); err != nil {
		return nil, err
	}
	if reservation.RideID, err = primitive.ObjectIDFromHex(rideID); err != nil {
		return nil, err
	}

	return &reservation, nil
}

func statusIn(status models.ReservationStatus, set []models.ReservationStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}
