package repository

import (
	"errors"
	"fmt"

	"clubimpact/internal/domain"

	"gorm.io/gorm"
)

// notFound maps gorm's missing-row error onto domain.ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return err
}
