package repository

import (
	"context"
	"time"

	"github.com/amirasaad/retailpay/pkg/domain/order"
	"github.com/amirasaad/retailpay/pkg/domain/session"
	"github.com/amirasaad/retailpay/pkg/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository creates a gorm backed gateway session repository.
func NewSessionRepository(db *gorm.DB) repository.SessionRepository {
	return &sessionRepository{db: db}
}

// Create implements repository.SessionRepository. A second active session
// for the same payment violates the partial unique index and maps to a conflict.
func (r *sessionRepository) Create(ctx context.Context, s *session.Session) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(toSessionModel(s)).Error
	})
}

func (r *sessionRepository) take(ctx context.Context, query string, args ...any) (*session.Session, error) {
	var m GatewaySession
	if err := r.db.WithContext(ctx).Where(query, args...).Order("created_at DESC").Take(&m).Error; err != nil {
		return nil, notFound(err, session.ErrSessionNotFound)
	}
	return toSessionDomain(&m), nil
}

// Get implements repository.SessionRepository.
func (r *sessionRepository) Get(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	return r.take(ctx, "id = ?", id)
}

// GetByToken implements repository.SessionRepository.
func (r *sessionRepository) GetByToken(ctx context.Context, token string) (*session.Session, error) {
	return r.take(ctx, "token = ?", token)
}

// FindActiveByPayment implements repository.SessionRepository.
func (r *sessionRepository) FindActiveByPayment(ctx context.Context, paymentID uuid.UUID) (*session.Session, error) {
	return r.take(ctx, "payment_id = ? AND state IN ?", paymentID,
		[]string{string(session.StateInitiated), string(session.StateConfirmed)})
}

// FindByPayment implements repository.SessionRepository.
func (r *sessionRepository) FindByPayment(
	ctx context.Context,
	paymentID uuid.UUID,
	state session.State,
) (*session.Session, error) {
	return r.take(ctx, "payment_id = ? AND state = ?", paymentID, string(state))
}

// ConfirmByToken implements repository.SessionRepository. The state check
// and the write are a single UPDATE, so concurrent confirmations of one
// token cannot both succeed.
func (r *sessionRepository) ConfirmByToken(
	ctx context.Context,
	token string,
	next session.State,
	authCode string,
) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&GatewaySession{}).
		Where("token = ? AND state = ?", token, string(session.StateInitiated)).
		Updates(map[string]any{
			"state":      string(next),
			"auth_code":  authCode,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, MapGormErrorToDomain(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MarkVoided implements repository.SessionRepository.
func (r *sessionRepository) MarkVoided(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&GatewaySession{}).
		Where("id = ? AND state = ?", id, string(session.StateConfirmed)).
		Updates(map[string]any{
			"state":       string(session.StateVoided),
			"void_reason": reason,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return false, MapGormErrorToDomain(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ListUnreconciled implements repository.SessionRepository. It finds
// confirmed or failed sessions whose payment is still pending, and voided
// sessions whose payment is still completed. A failed session is skipped
// when the payment has moved on to a newer active session.
func (r *sessionRepository) ListUnreconciled(ctx context.Context, limit int) ([]*session.Session, error) {
	var rows []GatewaySession
	err := r.db.WithContext(ctx).
		Table("gateway_sessions AS gs").
		Select("gs.*").
		Joins("JOIN payments p ON p.id = gs.payment_id").
		Where(
			r.db.Where("gs.state IN ? AND p.status = ?",
				[]string{string(session.StateConfirmed), string(session.StateFailed)},
				string(order.PaymentPending)).
				Or("gs.state = ? AND p.status = ?",
					string(session.StateVoided), string(order.PaymentCompleted)),
		).
		Where("NOT EXISTS (SELECT 1 FROM gateway_sessions a WHERE a.payment_id = gs.payment_id AND a.state = ? AND a.id <> gs.id)",
			string(session.StateInitiated)).
		Order("gs.updated_at").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	out := make([]*session.Session, 0, len(rows))
	for i := range rows {
		out = append(out, toSessionDomain(&rows[i]))
	}
	return out, nil
}
