package repository

import (
	"context"
	"time"

	"github.com/amirasaad/retailpay/pkg/domain/order"
	"github.com/amirasaad/retailpay/pkg/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a gorm backed payment repository.
func NewPaymentRepository(db *gorm.DB) repository.PaymentRepository {
	return &paymentRepository{db: db}
}

// Create implements repository.PaymentRepository.
func (r *paymentRepository) Create(ctx context.Context, p *order.Payment) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(toPaymentModel(p)).Error
	})
}

func (r *paymentRepository) take(q *gorm.DB, id uuid.UUID) (*order.Payment, error) {
	var m Payment
	if err := q.Where("id = ?", id).Take(&m).Error; err != nil {
		return nil, notFound(err, order.ErrPaymentNotFound)
	}
	return toPaymentDomain(&m), nil
}

// Get implements repository.PaymentRepository.
func (r *paymentRepository) Get(ctx context.Context, id uuid.UUID) (*order.Payment, error) {
	return r.take(r.db.WithContext(ctx), id)
}

// GetForUpdate implements repository.PaymentRepository.
func (r *paymentRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*order.Payment, error) {
	return r.take(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

// Update implements repository.PaymentRepository.
func (r *paymentRepository) Update(ctx context.Context, p *order.Payment) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).
			Model(&Payment{}).
			Where("id = ?", p.ID).
			Updates(map[string]any{
				"status":         string(p.Status),
				"processor_ref":  p.ProcessorRef,
				"failure_reason": p.FailureReason,
				"updated_at":     time.Now().UTC(),
			}).Error
	})
}

// ListByOrder implements repository.PaymentRepository. Oldest first.
func (r *paymentRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*order.Payment, error) {
	var rows []Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at").
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	out := make([]*order.Payment, 0, len(rows))
	for i := range rows {
		out = append(out, toPaymentDomain(&rows[i]))
	}
	return out, nil
}
