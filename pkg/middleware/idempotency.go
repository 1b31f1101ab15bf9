// Package middleware holds fiber middleware shared by the HTTP routes.
package middleware

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/amirasaad/retailpay/pkg/lock"
	"github.com/amirasaad/retailpay/pkg/repository"
	"github.com/gofiber/fiber/v2"
)

const (
	// HeaderIdempotencyKey carries the client's key for a POST request.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotentReplayed is set on responses served from the store.
	HeaderIdempotentReplayed = "Idempotent-Replayed"

	maxKeyLength = 255
)

// Idempotency stores the first response to a POST carrying an
// Idempotency-Key and replays it for every repeat of that key. Requests
// sharing a key are serialized. 5xx and 429 responses are not stored, so
// the client may retry them.
func Idempotency(uow repository.UnitOfWork, locker lock.Locker, logger *slog.Logger) fiber.Handler {
	logger = logger.With("middleware", "idempotency")
	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Next()
		}
		key := strings.TrimSpace(c.Get(HeaderIdempotencyKey))
		if key == "" {
			return c.Next()
		}
		if len(key) > maxKeyLength {
			return fiber.NewError(fiber.StatusBadRequest, "Idempotency-Key is too long")
		}

		ctx := c.UserContext()
		release, err := locker.Lock(ctx, "idempotency:"+key)
		if err != nil {
			return err
		}
		defer release()

		rec, err := load(ctx, uow, key)
		if err != nil {
			return err
		}
		if rec != nil {
			if rec.Method != c.Method() || rec.Path != c.Path() {
				return fiber.NewError(fiber.StatusUnprocessableEntity, "Idempotency-Key was used for a different request")
			}
			logger.Info("🔁 [SKIP] replaying stored response", "key", key, "path", rec.Path)
			c.Set(HeaderIdempotentReplayed, "true")
			contentType := fiber.MIMEApplicationJSON
			if rec.Status >= fiber.StatusBadRequest {
				contentType = "application/problem+json"
			}
			c.Set(fiber.HeaderContentType, contentType)
			return c.Status(rec.Status).Send(rec.Body)
		}

		if err := c.Next(); err != nil {
			return err
		}
		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError || status == fiber.StatusTooManyRequests {
			return nil
		}
		rec = &repository.IdempotencyRecord{
			Key:       key,
			Method:    c.Method(),
			Path:      c.Path(),
			Status:    status,
			Body:      append([]byte(nil), c.Response().Body()...),
			CreatedAt: time.Now().UTC(),
		}
		if err := uow.Do(ctx, func(u repository.UnitOfWork) error {
			repo, err := u.IdempotencyRepository()
			if err != nil {
				return err
			}
			return repo.Save(ctx, rec)
		}); err != nil {
			logger.Error("storing idempotent response failed", "key", key, "error", err)
		}
		return nil
	}
}

func load(ctx context.Context, uow repository.UnitOfWork, key string) (rec *repository.IdempotencyRecord, err error) {
	err = uow.Do(ctx, func(u repository.UnitOfWork) error {
		repo, err := u.IdempotencyRepository()
		if err != nil {
			return err
		}
		rec, err = repo.Get(ctx, key)
		return err
	})
	return
}
