package domain

import "time"

// Customer owns tickets and receives notifications about them.
type Customer struct {
	ID           string
	Name         string
	Email        string
	AWSAccountID *string
	CreatedAt    time.Time
}
