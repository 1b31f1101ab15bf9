package repository

import (
	"context"

	"github.com/amirasaad/retailpay/pkg/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type idempotencyRepository struct {
	db *gorm.DB
}

// NewIdempotencyRepository creates a gorm backed idempotency key store.
func NewIdempotencyRepository(db *gorm.DB) repository.IdempotencyRepository {
	return &idempotencyRepository{db: db}
}

// Get implements repository.IdempotencyRepository. A missing key returns nil, nil.
func (r *idempotencyRepository) Get(ctx context.Context, key string) (*repository.IdempotencyRecord, error) {
	var rows []IdempotencyKey
	if err := r.db.WithContext(ctx).Where("key = ?", key).Limit(1).Find(&rows).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	m := rows[0]
	return &repository.IdempotencyRecord{
		Key:       m.Key,
		Method:    m.Method,
		Path:      m.Path,
		Status:    m.Status,
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
	}, nil
}

// Save implements repository.IdempotencyRepository. The first response for a key wins.
func (r *idempotencyRepository) Save(ctx context.Context, rec *repository.IdempotencyRecord) error {
	m := &IdempotencyKey{
		Key:       rec.Key,
		Method:    rec.Method,
		Path:      rec.Path,
		Status:    rec.Status,
		Body:      rec.Body,
		CreatedAt: rec.CreatedAt,
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(m).Error
	})
}
