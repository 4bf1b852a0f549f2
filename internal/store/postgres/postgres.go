package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/slotwise/slotwise/internal/store"
)

// mapError translates driver-level failures into the store's sentinel
// errors. SQLSTATE 23P01 (exclusion violation) is the authoritative
// double-booking signal; 23505 covers unique-key races.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23P01", "23505":
			return store.ErrConflict
		}
	}
	return err
}
