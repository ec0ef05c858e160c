// Package sla computes SLA deadlines from a swappable policy snapshot.
package sla

import (
	"sync/atomic"
	"time"

	"github.com/spec-kit/sla-ticket-service/internal/domain"
	apperrors "github.com/spec-kit/sla-ticket-service/pkg/errorutil"
)

// Calculator derives due dates from the policy snapshot in force.
// Readers always see a whole snapshot; Replace swaps it atomically.
type Calculator struct {
	policy atomic.Pointer[domain.SLAPolicy]
}

// NewCalculator returns a calculator seeded with policy.
func NewCalculator(policy domain.SLAPolicy) *Calculator {
	c := &Calculator{}
	c.policy.Store(&policy)
	return c
}

// ComputeDueDate returns now plus the response window for priority.
func (c *Calculator) ComputeDueDate(priority domain.TicketPriority, now time.Time) (time.Time, error) {
	if !priority.Valid() {
		return time.Time{}, apperrors.NewUnknownPriority(string(priority))
	}
	target, ok := c.Policy().Target(priority)
	if !ok {
		return time.Time{}, apperrors.NewUnknownPriority(string(priority))
	}
	return now.Add(target.ResponseTime()), nil
}

// Policy returns the current snapshot.
func (c *Calculator) Policy() domain.SLAPolicy {
	return *c.policy.Load()
}

// Replace installs a new snapshot for subsequent computations.
func (c *Calculator) Replace(policy domain.SLAPolicy) {
	c.policy.Store(&policy)
}
