package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/spec-kit/sla-ticket-service/internal/domain"
	"github.com/spec-kit/sla-ticket-service/internal/repository"
)

// CustomerStore reads customers. Create exists for seeding single-node installs.
type CustomerStore struct {
	db *sqlx.DB
}

// Create inserts customer. Generates a UUID if ID is empty.
func (s *CustomerStore) Create(ctx context.Context, customer *domain.Customer) error {
	if customer.ID == "" {
		customer.ID = uuid.New().String()
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now()
	}
	customer.CreatedAt = utc(customer.CreatedAt)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, email, aws_account_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		customer.ID, customer.Name, customer.Email, customer.AWSAccountID, customer.CreatedAt,
	)
	if err != nil {
		return wrapWrite("creating customer", err)
	}
	return nil
}

// GetByID returns the customer with id.
func (s *CustomerStore) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	return s.getOne(ctx, "SELECT id, name, email, aws_account_id, created_at FROM customers WHERE id = ?", id)
}

// GetByAWSAccountID returns the customer owning accountID.
func (s *CustomerStore) GetByAWSAccountID(ctx context.Context, accountID string) (*domain.Customer, error) {
	return s.getOne(ctx, "SELECT id, name, email, aws_account_id, created_at FROM customers WHERE aws_account_id = ?", accountID)
}

func (s *CustomerStore) getOne(ctx context.Context, query string, arg any) (*domain.Customer, error) {
	var customer domain.Customer
	err := s.db.QueryRowxContext(ctx, query, arg).Scan(
		&customer.ID, &customer.Name, &customer.Email, &customer.AWSAccountID, &customer.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting customer: %w", err)
	}
	return &customer, nil
}
