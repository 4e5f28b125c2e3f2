package services

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrRoundNotFound      = errors.New("round not found")
	ErrRoundNotActive     = errors.New("round is not accepting entries")
	ErrDuplicateEntry     = errors.New("participant already has a confirmed entry in this round")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrPaymentUnverified  = errors.New("payment not verified")
	ErrPaymentFailed      = errors.New("payment network call failed")
	ErrInvalidTransition  = errors.New("invalid round status transition")
	ErrRoundFrozen        = errors.New("round ranking is frozen")
	ErrScoringUnavailable = errors.New("scoring service unavailable")
	ErrScoringParse       = errors.New("scoring response could not be parsed")
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// isUniqueViolation reports whether err came from a unique constraint, whichever
// dialect produced it.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
