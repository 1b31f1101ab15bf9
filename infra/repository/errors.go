package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirasaad/retailpay/pkg/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// PostgreSQL error codes that mean "give up and let the caller retry".
const (
	pgLockNotAvailable  = "55P03"
	pgQueryCanceled     = "57014"
	pgDeadlockDetected  = "40P01"
	pgSerializationFail = "40001"
	pgCheckViolation    = "23514"
)

// MapGormErrorToDomain converts GORM and driver errors to domain errors.
// Errors that already carry a domain kind are returned unchanged.
func MapGormErrorToDomain(err error) error {
	if err == nil {
		return nil
	}
	if domain.KindOf(err) != domain.KindInternal {
		return err
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	case errors.Is(err, gorm.ErrCheckConstraintViolated):
		return fmt.Errorf("%w: %v", domain.ErrInsufficientFunds, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgQueryCanceled, pgDeadlockDetected, pgSerializationFail:
			return fmt.Errorf("%w: %s", domain.ErrTimeout, pgErr.Message)
		case pgCheckViolation:
			return fmt.Errorf("%w: %s", domain.ErrInsufficientFunds, pgErr.Message)
		}
	}

	return fmt.Errorf("%w: %v", domain.ErrInternal, err)
}

// WrapError wraps a GORM operation and automatically maps errors.
//
// Usage:
//
//	err := WrapError(func() error {
//	    return r.db.WithContext(ctx).Create(m).Error
//	})
func WrapError(op func() error) error {
	return MapGormErrorToDomain(op())
}

// notFound maps gorm.ErrRecordNotFound to the entity specific error.
func notFound(err, target error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return target
	}
	return MapGormErrorToDomain(err)
}
