// Package webapi provides the HTTP surface of the retail payment service.
// It is organized into sub-packages per area:
// - account: Ledger accounts, movements and transfers
// - gateway: The simulated card gateway and its hosted checkout
// - orders: Orders and their payments
package webapi

import (
	"errors"
	"strings"

	"github.com/amirasaad/retailpay/pkg/app"
	"github.com/amirasaad/retailpay/pkg/middleware"
	accountweb "github.com/amirasaad/retailpay/webapi/account"
	"github.com/amirasaad/retailpay/webapi/common"
	gatewayweb "github.com/amirasaad/retailpay/webapi/gateway"
	ordersweb "github.com/amirasaad/retailpay/webapi/orders"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// SetupApp Initialize Fiber with custom configuration
func SetupApp(app *app.App) *fiber.App {
	fiberApp := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return common.ProblemDetailsJSON(c, "Internal Server Error", err)
		},
	})

	// Configure rate limiting middleware
	// Uses X-Forwarded-For header when behind a proxy
	// Falls back to X-Real-IP or direct IP if needed
	fiberApp.Use(limiter.New(limiter.Config{
		Max:        app.Config.RateLimit.MaxRequests,
		Expiration: app.Config.RateLimit.Window,
		KeyGenerator: func(c *fiber.Ctx) string {
			if forwardedFor := c.Get("X-Forwarded-For"); forwardedFor != "" {
				// Take the first IP in the chain
				if commaIndex := strings.Index(forwardedFor, ","); commaIndex != -1 {
					return strings.TrimSpace(forwardedFor[:commaIndex])
				}
				return strings.TrimSpace(forwardedFor)
			}
			if realIP := c.Get("X-Real-IP"); realIP != "" {
				return realIP
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return common.ProblemDetailsJSON(
				c,
				"Too Many Requests",
				errors.New("rate limit exceeded"),
				fiber.StatusTooManyRequests,
			)
		},
	}))
	fiberApp.Use(recover.New())
	fiberApp.Use(logger.New())
	fiberApp.Use(common.ExposeInternalErrors(app.Config.IsDevelopment()))
	fiberApp.Use(middleware.Idempotency(app.Deps.Uow, app.Deps.Locker, app.Deps.Logger))

	// Health check endpoint
	fiberApp.Get(
		"/",
		func(c *fiber.Ctx) error {
			return c.SendString("RetailPay API is running! 🚀")
		},
	)

	// Debug endpoint to list all routes
	fiberApp.Get("/debug/routes", func(c *fiber.Ctx) error {
		routes := fiberApp.GetRoutes()
		var routeList []map[string]any
		for _, route := range routes {
			if route.Path != "" {
				routeList = append(routeList, map[string]any{
					"method": route.Method,
					"path":   route.Path,
				})
			}
		}
		return c.JSON(routeList)
	})

	accountweb.Routes(fiberApp, app.LedgerService)
	gatewayweb.Routes(fiberApp, app.GatewayService)
	ordersweb.Routes(fiberApp, app.Reconciler)
	return fiberApp
}
