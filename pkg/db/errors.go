package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
)

// IsUniqueViolation reports a unique constraint failure from Postgres (SQLSTATE 23505)
// or SQLite. A non-empty constraintName narrows the match to that constraint or column.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if pg := pkgerrors.PGError(err); pg != nil {
		if pg.Code != pkgerrors.PGUniqueViolation {
			return false
		}
		return constraintName == "" || strings.Contains(pg.Constraint, constraintName) || strings.Contains(pg.Message, constraintName)
	}

	msg := err.Error()
	unique := errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
	if !unique {
		return false
	}
	return constraintName == "" || strings.Contains(msg, constraintName)
}
