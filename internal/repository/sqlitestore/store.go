// Package sqlitestore implements the repository interfaces on SQLite for
// single-node deployments and tests.
package sqlitestore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/spec-kit/sla-ticket-service/internal/repository"
)

// Stores bundles the SQLite repositories over a shared handle.
type Stores struct {
	Tickets   *TicketStore
	Comments  *CommentStore
	Policies  *PolicyStore
	Customers *CustomerStore
	History   *HistoryStore
}

// New builds all repositories over db.
func New(db *sqlx.DB) Stores {
	return Stores{
		Tickets:   &TicketStore{db: db},
		Comments:  &CommentStore{db: db},
		Policies:  &PolicyStore{db: db},
		Customers: &CustomerStore{db: db},
		History:   &HistoryStore{db: db},
	}
}

var (
	_ repository.TicketRepository        = (*TicketStore)(nil)
	_ repository.TicketCommentRepository = (*CommentStore)(nil)
	_ repository.SLAPolicyRepository     = (*PolicyStore)(nil)
	_ repository.CustomerRepository      = (*CustomerStore)(nil)
	_ repository.TicketHistoryRepository = (*HistoryStore)(nil)
)

// utc normalises times so DATETIME text compares chronologically.
func utc(t time.Time) time.Time {
	return t.UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func wrapWrite(op string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w: %v", op, repository.ErrDuplicate, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// inClause renders "column IN (?,?,...)" and the matching args.
func inClause[T ~string](column string, values []T, negate bool) (string, []any) {
	placeholders := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		args[i] = string(v)
	}
	op := "IN"
	if negate {
		op = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", column, op, strings.Join(placeholders, ", ")), args
}
