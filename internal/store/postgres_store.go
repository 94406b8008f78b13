package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-bidding/internal/models"
)

// PostgresStore persists auctions in Postgres. The single-resolution
// guarantee comes from conditional updates guarded on bidding_state, so
// concurrent resolvers race through the database rather than in memory.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) CreateBooking(ctx context.Context, b *models.Booking) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO bookings(id, rider_id, pickup, drop_off, pickup_lat, pickup_lon, drop_lat, drop_lon, vehicle_type, estimated_price, bidding_state, bidding_end_time, winning_bid_id, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NULLIF($13,''),$14,$15)`,
		b.ID, b.RiderID, b.Pickup, b.Drop, b.PickupCoord.Lat, b.PickupCoord.Lon, b.DropCoord.Lat, b.DropCoord.Lon,
		b.VehicleType, b.EstimatedPrice, string(b.BiddingState), b.BiddingEndTime, b.WinningBidID, b.CreatedAt, b.UpdatedAt)
	return err
}

func (p *PostgresStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id, rider_id, pickup, drop_off, pickup_lat, pickup_lon, drop_lat, drop_lon, vehicle_type, estimated_price, bidding_state, bidding_end_time, COALESCE(winning_bid_id,''), created_at, updated_at
		FROM bookings WHERE id=$1`, id)
	var b models.Booking
	var state string
	err := row.Scan(&b.ID, &b.RiderID, &b.Pickup, &b.Drop, &b.PickupCoord.Lat, &b.PickupCoord.Lon, &b.DropCoord.Lat, &b.DropCoord.Lon,
		&b.VehicleType, &b.EstimatedPrice, &state, &b.BiddingEndTime, &b.WinningBidID, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	b.BiddingState = models.BiddingState(state)
	return &b, nil
}

func (p *PostgresStore) UpsertBid(ctx context.Context, bid *models.Bid) error {
	// the unique (booking_id, driver_id) index serializes replace-vs-insert
	// for the same driver
	_, err := p.db.ExecContext(ctx, `INSERT INTO bids(id, booking_id, driver_id, amount, eta_minutes, submitted_at, expires_at, status)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (booking_id, driver_id) DO UPDATE
		SET id=EXCLUDED.id, amount=EXCLUDED.amount, eta_minutes=EXCLUDED.eta_minutes, submitted_at=EXCLUDED.submitted_at, expires_at=EXCLUDED.expires_at, status=EXCLUDED.status`,
		bid.ID, bid.BookingID, bid.DriverID, bid.Amount, bid.ETAMinutes, bid.SubmittedAt, bid.ExpiresAt, string(bid.Status))
	return err
}

func (p *PostgresStore) GetBid(ctx context.Context, bookingID, bidID string) (*models.Bid, error) {
	return p.scanBid(p.db.QueryRowContext(ctx, `SELECT id, booking_id, driver_id, amount, eta_minutes, submitted_at, expires_at, status
		FROM bids WHERE booking_id=$1 AND id=$2`, bookingID, bidID))
}

func (p *PostgresStore) GetDriverBid(ctx context.Context, bookingID, driverID string) (*models.Bid, error) {
	return p.scanBid(p.db.QueryRowContext(ctx, `SELECT id, booking_id, driver_id, amount, eta_minutes, submitted_at, expires_at, status
		FROM bids WHERE booking_id=$1 AND driver_id=$2`, bookingID, driverID))
}

func (p *PostgresStore) scanBid(row *sql.Row) (*models.Bid, error) {
	var b models.Bid
	var status string
	err := row.Scan(&b.ID, &b.BookingID, &b.DriverID, &b.Amount, &b.ETAMinutes, &b.SubmittedAt, &b.ExpiresAt, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrBidNotFound
	}
	if err != nil {
		return nil, err
	}
	b.Status = models.BidStatus(status)
	return &b, nil
}

func (p *PostgresStore) ListBids(ctx context.Context, bookingID string) ([]models.Bid, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, booking_id, driver_id, amount, eta_minutes, submitted_at, expires_at, status
		FROM bids WHERE booking_id=$1 ORDER BY amount ASC, submitted_at ASC`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Bid
	for rows.Next() {
		var b models.Bid
		var status string
		if err := rows.Scan(&b.ID, &b.BookingID, &b.DriverID, &b.Amount, &b.ETAMinutes, &b.SubmittedAt, &b.ExpiresAt, &status); err != nil {
			return nil, err
		}
		b.Status = models.BidStatus(status)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (p *PostgresStore) MarkClosing(ctx context.Context, bookingID string, now time.Time) (bool, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE bookings SET bidding_state='CLOSING', updated_at=$2 WHERE id=$1 AND bidding_state='OPEN'`, bookingID, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (p *PostgresStore) CloseAuction(ctx context.Context, bookingID, winningBidID string, state models.BiddingState, now time.Time) (bool, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	// compare-and-set on bidding_state: exactly one concurrent resolver
	// gets a row back
	res, err := tx.ExecContext(ctx, `UPDATE bookings SET bidding_state=$2, winning_bid_id=NULLIF($3,''), updated_at=$4
		WHERE id=$1 AND bidding_state IN ('OPEN','CLOSING')`,
		bookingID, string(state), winningBidID, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM bookings WHERE id=$1)`, bookingID).Scan(&exists); err != nil {
			return false, err
		}
		if !exists {
			return false, models.ErrBookingNotFound
		}
		return false, nil
	}

	if state == models.BiddingResolved {
		res, err := tx.ExecContext(ctx, `UPDATE bids SET status='ACCEPTED'
			WHERE booking_id=$1 AND id=$2 AND status='ACTIVE' AND expires_at > $3`,
			bookingID, winningBidID, now)
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, err
		}
		if n == 0 {
			// rollback leaves the booking untouched
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM bids WHERE booking_id=$1 AND id=$2)`, bookingID, winningBidID).Scan(&exists); err != nil {
				return false, err
			}
			if !exists {
				return false, models.ErrBidNotFound
			}
			return false, models.ErrBidExpired
		}
	}

	loserStatus := models.BidRejected
	if state == models.BiddingExpired {
		loserStatus = models.BidExpired
	}
	if _, err := tx.ExecContext(ctx, `UPDATE bids SET status=$3 WHERE booking_id=$1 AND id <> $2 AND status='ACTIVE'`,
		bookingID, winningBidID, string(loserStatus)); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
