package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-ticket-service/internal/domain"
)

// CustomerRepository resolves ticket owners. Customers are managed elsewhere.
type CustomerRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Customer, error)
	GetByAWSAccountID(ctx context.Context, accountID string) (*domain.Customer, error)
}

type customerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a Postgres-backed implementation.
func NewCustomerRepository(pool *pgxpool.Pool) CustomerRepository {
	return &customerRepository{pool: pool}
}

func (r *customerRepository) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	const query = `
        SELECT id, name, email, aws_account_id, created_at
        FROM customers WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *customerRepository) GetByAWSAccountID(ctx context.Context, accountID string) (*domain.Customer, error) {
	const query = `
        SELECT id, name, email, aws_account_id, created_at
        FROM customers WHERE aws_account_id=$1`
	return r.fetchSingle(ctx, query, accountID)
}

func (r *customerRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Customer, error) {
	var customer domain.Customer
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&customer.ID,
		&customer.Name,
		&customer.Email,
		&customer.AWSAccountID,
		&customer.CreatedAt,
	); err != nil {
		return nil, mapError(err)
	}
	return &customer, nil
}
