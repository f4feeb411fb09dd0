package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrDuplicate       = errors.New("record already exists")
	ErrReferenced      = errors.New("record is referenced by other records")
	ErrInvalidRef      = errors.New("referenced record does not exist")
	ErrVersionConflict = errors.New("record was modified concurrently")
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// translate maps driver errors onto the repository sentinels. Anything else
// is wrapped with op.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
		case pqForeignKeyViolation:
			// deleting a parent reports the child table; inserting a child reports the missing parent
			if strings.Contains(pqErr.Message, "update or delete") {
				return fmt.Errorf("%w: %s", ErrReferenced, pqErr.Constraint)
			}
			return fmt.Errorf("%w: %s", ErrInvalidRef, pqErr.Constraint)
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// expectOne turns a zero rows-affected result into ErrNotFound
func expectOne(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(s)) + "%"
}
