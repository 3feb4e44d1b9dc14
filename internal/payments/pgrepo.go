package payments

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepo struct{ DB *pgxpool.Pool }

var _ Repo = (*PostgresRepo)(nil)

func (r *PostgresRepo) Insert(ctx context.Context, p Payment) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO payments (transaction_id, order_id, amount, currency, customer_id,
		                      payment_method, status, gateway_response, created_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.TransactionID, p.OrderID, p.Amount, p.Currency, p.CustomerID,
		p.Method, p.Status, p.GatewayResponse, p.CreatedAt, p.CompletedAt)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, transactionID string) (Payment, error) {
	var p Payment
	err := r.DB.QueryRow(ctx, `
		SELECT transaction_id, order_id, amount, currency, customer_id,
		       payment_method, status, gateway_response, created_at, completed_at
		FROM payments WHERE transaction_id=$1`, transactionID).
		Scan(&p.TransactionID, &p.OrderID, &p.Amount, &p.Currency, &p.CustomerID,
			&p.Method, &p.Status, &p.GatewayResponse, &p.CreatedAt, &p.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrPaymentNotFound
	}
	return p, err
}

func (r *PostgresRepo) FindOpenByOrder(ctx context.Context, orderID string) (*Payment, error) {
	var p Payment
	err := r.DB.QueryRow(ctx, `
		SELECT transaction_id, order_id, amount, currency, customer_id,
		       payment_method, status, gateway_response, created_at, completed_at
		FROM payments
		WHERE order_id=$1 AND status IN ('initialized','processing','completed')
		ORDER BY created_at DESC LIMIT 1`, orderID).
		Scan(&p.TransactionID, &p.OrderID, &p.Amount, &p.Currency, &p.CustomerID,
			&p.Method, &p.Status, &p.GatewayResponse, &p.CreatedAt, &p.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, transactionID string, from, to Status, gatewayResponse []byte) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE payments
		SET status=$3,
		    gateway_response=COALESCE($4, gateway_response),
		    completed_at=CASE WHEN $3='completed' THEN now() ELSE completed_at END
		WHERE transaction_id=$1 AND status=$2`,
		transactionID, from, to, gatewayResponse)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}
