package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// notFound translates pgx.ErrNoRows into domain.ErrNotFound so callers
// outside the repository never depend on the driver.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}
