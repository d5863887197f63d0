package repositories

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a row addressed by id or ordinal is missing.
	ErrNotFound = errors.New("not found")
	// ErrOrdinalConflict means another writer took the ordinal first. The
	// caller may retry with a fresh one.
	ErrOrdinalConflict = errors.New("ordinal already taken")
	// ErrAliasTaken is returned when an entity alias is already in use.
	ErrAliasTaken = errors.New("alias already taken")
)

const uniqueViolation = "23505"

// translate maps driver errors onto the storage sentinels. Unique
// violations on ordinal columns become ErrOrdinalConflict.
func translate(err error) error {
	if isUniqueViolation(err) {
		return ErrOrdinalConflict
	}
	return err
}

// translateAlias is translate for inserts into entities.
func translateAlias(err error) error {
	if isUniqueViolation(err) {
		return ErrAliasTaken
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
