package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepo struct{ DB *pgxpool.Pool }

var _ Repo = (*PostgresRepo)(nil)

func (r *PostgresRepo) GetStock(ctx context.Context, productID string) (StockLevel, error) {
	var s StockLevel
	err := r.DB.QueryRow(ctx, `
		SELECT id, stock_quantity, reserved_quantity, reorder_level, version
		FROM products WHERE id=$1`, productID).
		Scan(&s.ProductID, &s.StockQuantity, &s.ReservedQuantity, &s.ReorderLevel, &s.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockLevel{}, ErrProductNotFound
	}
	if err != nil {
		return StockLevel{}, err
	}
	return s, nil
}

func (r *PostgresRepo) ApplyStock(ctx context.Context, productID string, stockDelta, reservedDelta int, expected int64) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity + $2,
		    reserved_quantity = reserved_quantity + $3,
		    version = version + 1,
		    updated_at = now()
		WHERE id=$1 AND version=$4`,
		productID, stockDelta, reservedDelta, expected)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *PostgresRepo) ReserveHold(ctx context.Context, res Reservation, expected int64) (bool, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `
		UPDATE products
		SET reserved_quantity = reserved_quantity + $2,
		    version = version + 1,
		    updated_at = now()
		WHERE id=$1 AND version=$3`,
		res.ProductID, res.Quantity, expected)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 0 {
		return false, nil
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO stock_reservations (id, product_id, quantity, order_id, expires_at, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		res.ID, res.ProductID, res.Quantity, res.OrderID, res.ExpiresAt, res.Status, res.CreatedAt); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func (r *PostgresRepo) ReleaseHold(ctx context.Context, res Reservation, expected int64) (bool, bool, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return false, false, err
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `
		UPDATE stock_reservations SET status='cancelled' WHERE id=$1 AND status='active'`, res.ID)
	if err != nil {
		return false, false, err
	}
	if ct.RowsAffected() == 0 {
		return false, false, nil
	}
	ct, err = tx.Exec(ctx, `
		UPDATE products
		SET reserved_quantity = reserved_quantity - $2,
		    version = version + 1,
		    updated_at = now()
		WHERE id=$1 AND version=$3`,
		res.ProductID, res.Quantity, expected)
	if err != nil {
		return false, false, err
	}
	if ct.RowsAffected() == 0 {
		// guard miss rolls the status flip back with it
		return false, true, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return false, false, err
	}
	return true, false, nil
}

func (r *PostgresRepo) GetReservation(ctx context.Context, id string) (Reservation, error) {
	var res Reservation
	err := r.DB.QueryRow(ctx, `
		SELECT id, product_id, quantity, order_id, expires_at, status, created_at
		FROM stock_reservations WHERE id=$1`, id).
		Scan(&res.ID, &res.ProductID, &res.Quantity, &res.OrderID, &res.ExpiresAt, &res.Status, &res.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reservation{}, ErrReservationNotFound
	}
	return res, err
}

func (r *PostgresRepo) SetReservationStatus(ctx context.Context, id string, from, to ReservationStatus) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE stock_reservations SET status=$3 WHERE id=$1 AND status=$2`,
		id, from, to)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *PostgresRepo) ReservationsByOrder(ctx context.Context, orderID string, status ReservationStatus) ([]Reservation, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, product_id, quantity, order_id, expires_at, status, created_at
		FROM stock_reservations WHERE order_id=$1 AND status=$2`, orderID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReservations(rows)
}

func (r *PostgresRepo) ExpiredReservations(ctx context.Context, now time.Time, limit int) ([]Reservation, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, product_id, quantity, order_id, expires_at, status, created_at
		FROM stock_reservations
		WHERE status='active' AND expires_at < $1
		ORDER BY expires_at LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReservations(rows)
}

func (r *PostgresRepo) InsertMovement(ctx context.Context, m Movement) error {
	var orderID any
	if m.OrderID != "" {
		orderID = m.OrderID
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO stock_movements (id, product_id, delta, movement_type, order_id, actor, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		m.ID, m.ProductID, m.Delta, m.Type, orderID, m.Actor, m.CreatedAt)
	return err
}

func scanReservations(rows pgx.Rows) ([]Reservation, error) {
	var out []Reservation
	for rows.Next() {
		var res Reservation
		if err := rows.Scan(&res.ID, &res.ProductID, &res.Quantity, &res.OrderID,
			&res.ExpiresAt, &res.Status, &res.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
