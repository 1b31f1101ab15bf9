// Package gateway simulates a card processor with one session per payment
// attempt. Sessions move initiated -> confirmed|failed and confirmed -> voided;
// each move is a single compare-and-set in storage.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/amirasaad/retailpay/pkg/domain"
	"github.com/amirasaad/retailpay/pkg/domain/events"
	"github.com/amirasaad/retailpay/pkg/domain/order"
	"github.com/amirasaad/retailpay/pkg/domain/session"
	"github.com/amirasaad/retailpay/pkg/eventbus"
	"github.com/amirasaad/retailpay/pkg/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Service manages gateway sessions.
type Service struct {
	uow          repository.UnitOfWork
	bus          eventbus.Bus
	redirectBase string
	logger       *slog.Logger
	tracer       trace.Tracer
}

// New creates a gateway service. Redirect targets are built as
// redirectBase/<token>.
func New(uow repository.UnitOfWork, bus eventbus.Bus, redirectBase string, logger *slog.Logger) *Service {
	return &Service{
		uow:          uow,
		bus:          bus,
		redirectBase: redirectBase,
		logger:       logger,
		tracer:       otel.Tracer("retailpay/gateway"),
	}
}

// WithUnitOfWork returns a copy of the service bound to u.
func (s *Service) WithUnitOfWork(u repository.UnitOfWork) *Service {
	c := *s
	c.uow = u
	return &c
}

// InitiateInput starts a card payment attempt.
type InitiateInput struct {
	PaymentID uuid.UUID
	Amount    decimal.Decimal
	ReturnURL string
}

// InitiateResult is a new session and where to send the customer.
type InitiateResult struct {
	Session     *session.Session
	RedirectURL string
}

func (s *Service) redirectURL(token string) (string, error) {
	u, err := url.JoinPath(s.redirectBase, token)
	if err != nil {
		return "", fmt.Errorf("%w: gateway redirect base: %v", domain.ErrInternal, err)
	}
	return u, nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Initiate opens a session for a pending payment. It fails with a conflict
// when the payment already has an initiated or confirmed session.
func (s *Service) Initiate(ctx context.Context, in InitiateInput) (*InitiateResult, error) {
	ctx, span := s.tracer.Start(ctx, "gateway.Initiate",
		trace.WithAttributes(attribute.String("payment.id", in.PaymentID.String())))
	defer span.End()
	logger := s.logger.With("op", "Initiate", "payment_id", in.PaymentID)

	var res InitiateResult
	err := s.uow.Do(ctx, func(u repository.UnitOfWork) error {
		payments, err := u.PaymentRepository()
		if err != nil {
			return err
		}
		orders, err := u.OrderRepository()
		if err != nil {
			return err
		}
		sessions, err := u.SessionRepository()
		if err != nil {
			return err
		}

		p, err := payments.Get(ctx, in.PaymentID)
		if err != nil {
			return err
		}
		if p.Method != order.MethodCredit {
			return fmt.Errorf("%w: payment method %s does not use the gateway", domain.ErrValidation, p.Method)
		}
		if p.Status != order.PaymentPending {
			return fmt.Errorf("%w: payment is %s", domain.ErrInvalidState, p.Status)
		}
		if !in.Amount.Equal(p.Amount) {
			return fmt.Errorf("%w: amount %s does not match payment amount %s",
				domain.ErrValidation, in.Amount, p.Amount)
		}
		o, err := orders.Get(ctx, p.OrderID)
		if err != nil {
			return err
		}

		if _, err := sessions.FindActiveByPayment(ctx, p.ID); err == nil {
			return session.ErrActiveSessionExists
		} else if domain.KindOf(err) != domain.KindNotFound {
			return err
		}

		sess, err := session.New(p.ID, p.Amount, o.Currency, in.ReturnURL)
		if err != nil {
			return err
		}
		if err := sessions.Create(ctx, sess); err != nil {
			if domain.KindOf(err) == domain.KindConflict {
				return session.ErrActiveSessionExists
			}
			return err
		}
		redirect, err := s.redirectURL(sess.Token)
		if err != nil {
			return err
		}
		res = InitiateResult{Session: sess, RedirectURL: redirect}
		return nil
	})
	if err != nil {
		logger.Warn("Initiate failed", "error", err)
		return nil, fail(span, err)
	}
	logger.Info("💳 gateway session initiated", "session_id", res.Session.ID)
	return &res, nil
}

// Confirm settles an initiated session. Only the first confirmation of a
// token takes effect; later calls fail with an invalid state error and
// publish nothing.
func (s *Service) Confirm(ctx context.Context, token string, approved bool, authCode string) (*session.Session, error) {
	ctx, span := s.tracer.Start(ctx, "gateway.Confirm",
		trace.WithAttributes(attribute.Bool("gateway.approved", approved)))
	defer span.End()
	logger := s.logger.With("op", "Confirm", "approved", approved)

	if approved && authCode == "" {
		authCode = "AUTH-" + strings.ToUpper(session.NewToken()[:10])
	}
	if !approved {
		authCode = ""
	}

	var sess *session.Session
	err := s.uow.Do(ctx, func(u repository.UnitOfWork) error {
		sessions, err := u.SessionRepository()
		if err != nil {
			return err
		}
		ok, err := sessions.ConfirmByToken(ctx, token, session.ConfirmTarget(approved), authCode)
		if err != nil {
			return err
		}
		current, err := sessions.GetByToken(ctx, token)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: session is %s", session.ErrInvalidTransition, current.State)
		}
		sess = current
		return nil
	})
	if err != nil {
		logger.Warn("Confirm rejected", "error", err)
		return nil, fail(span, err)
	}
	span.SetAttributes(attribute.String("session.id", sess.ID.String()))
	logger.Info("💳 gateway session confirmed", "session_id", sess.ID, "state", sess.State)

	s.publish(ctx, events.GatewaySessionConfirmed{
		SessionID:  sess.ID,
		PaymentID:  sess.PaymentID,
		Approved:   approved,
		AuthCode:   sess.AuthCode,
		OccurredAt: time.Now().UTC(),
	})
	return sess, nil
}

// Void reverses a confirmed session.
func (s *Service) Void(ctx context.Context, id uuid.UUID, reason string) (*session.Session, error) {
	ctx, span := s.tracer.Start(ctx, "gateway.Void",
		trace.WithAttributes(attribute.String("session.id", id.String())))
	defer span.End()
	logger := s.logger.With("op", "Void", "session_id", id)

	var sess *session.Session
	err := s.uow.Do(ctx, func(u repository.UnitOfWork) error {
		sessions, err := u.SessionRepository()
		if err != nil {
			return err
		}
		ok, err := sessions.MarkVoided(ctx, id, reason)
		if err != nil {
			return err
		}
		current, err := sessions.Get(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: session is %s", session.ErrInvalidTransition, current.State)
		}
		sess = current
		return nil
	})
	if err != nil {
		logger.Warn("Void rejected", "error", err)
		return nil, fail(span, err)
	}
	logger.Info("↩️ gateway session voided", "payment_id", sess.PaymentID)

	s.publish(ctx, events.GatewaySessionVoided{
		SessionID:  sess.ID,
		PaymentID:  sess.PaymentID,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	})
	return sess, nil
}

// publish runs after commit. Handler failures are logged only: the session
// transition stands and the reconciliation worker picks the session up again.
func (s *Service) publish(ctx context.Context, e events.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Emit(ctx, e); err != nil {
		s.logger.Error("event handler failed", "event", e.Type(), "error", err)
	}
}

// Get returns a session by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (sess *session.Session, err error) {
	err = s.uow.Do(ctx, func(u repository.UnitOfWork) error {
		sessions, err := u.SessionRepository()
		if err != nil {
			return err
		}
		sess, err = sessions.Get(ctx, id)
		return err
	})
	return
}

// GetByToken returns a session by its opaque token.
func (s *Service) GetByToken(ctx context.Context, token string) (sess *session.Session, err error) {
	err = s.uow.Do(ctx, func(u repository.UnitOfWork) error {
		sessions, err := u.SessionRepository()
		if err != nil {
			return err
		}
		sess, err = sessions.GetByToken(ctx, token)
		return err
	})
	return
}

// RedirectURL returns the customer redirect target for a session.
func (s *Service) RedirectURL(sess *session.Session) (string, error) {
	return s.redirectURL(sess.Token)
}

// ListUnreconciled returns settled sessions whose payment has not caught up.
func (s *Service) ListUnreconciled(ctx context.Context, limit int) (out []*session.Session, err error) {
	err = s.uow.Do(ctx, func(u repository.UnitOfWork) error {
		sessions, err := u.SessionRepository()
		if err != nil {
			return err
		}
		out, err = sessions.ListUnreconciled(ctx, limit)
		return err
	})
	return
}
