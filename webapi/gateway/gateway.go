package gateway

import (
	"github.com/amirasaad/retailpay/pkg/domain/session"
	gatewaysvc "github.com/amirasaad/retailpay/pkg/service/gateway"
	"github.com/amirasaad/retailpay/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Routes registers the simulated card gateway endpoints.
//
// Routes:
//   - POST /gateway/sessions                 : Open a session for a card payment.
//   - GET  /gateway/sessions/:id             : Session by id.
//   - POST /gateway/sessions/:token/confirm  : Approve or decline a session.
//   - POST /gateway/sessions/:id/void        : Void a confirmed session.
//   - GET  /gateway/checkout/:token          : The hosted checkout target of a redirect.
func Routes(app fiber.Router, gatewaySvc *gatewaysvc.Service) {
	app.Post("/gateway/sessions", Initiate(gatewaySvc))
	app.Get("/gateway/sessions/:id", Get(gatewaySvc))
	app.Post("/gateway/sessions/:token/confirm", Confirm(gatewaySvc))
	app.Post("/gateway/sessions/:id/void", Void(gatewaySvc))
	app.Get("/gateway/checkout/:token", Checkout(gatewaySvc))
}

func redirectFor(svc *gatewaysvc.Service, s *session.Session) string {
	if s.State != session.StateInitiated {
		return ""
	}
	u, err := svc.RedirectURL(s)
	if err != nil {
		return ""
	}
	return u
}

// Initiate returns a handler that opens a gateway session.
func Initiate(gatewaySvc *gatewaysvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[InitiateRequest](c)
		if input == nil {
			return err
		}
		res, err := gatewaySvc.Initiate(c.UserContext(), gatewaysvc.InitiateInput{
			PaymentID: uuid.MustParse(input.PaymentID),
			Amount:    input.Amount,
			ReturnURL: input.ReturnURL,
		})
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to initiate session", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusCreated, "Session initiated",
			ToSessionDTO(res.Session, res.RedirectURL))
	}
}

// Get returns a handler that fetches a session by id.
func Get(gatewaySvc *gatewaysvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := common.ParseIDParam(c, "id")
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid session ID", err)
		}
		s, err := gatewaySvc.Get(c.UserContext(), id)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to get session", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Session fetched", ToSessionDTO(s, redirectFor(gatewaySvc, s)))
	}
}

// Checkout returns a handler standing in for the hosted payment page a
// customer is redirected to.
func Checkout(gatewaySvc *gatewaysvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := gatewaySvc.GetByToken(c.UserContext(), c.Params("token"))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to get session", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Checkout session", ToSessionDTO(s, ""))
	}
}

// Confirm returns a handler that settles a session. Repeating a
// confirmation is answered with an invalid_state problem and has no effect.
func Confirm(gatewaySvc *gatewaysvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[ConfirmRequest](c)
		if input == nil {
			return err
		}
		s, err := gatewaySvc.Confirm(c.UserContext(), c.Params("token"), input.Approved, input.AuthCode)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to confirm session", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Session confirmed", ToSessionDTO(s, ""))
	}
}

// Void returns a handler that voids a confirmed session. The payment
// behind it is reversed by the reconciler.
func Void(gatewaySvc *gatewaysvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := common.ParseIDParam(c, "id")
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid session ID", err)
		}
		input, err := common.BindAndValidate[VoidRequest](c)
		if input == nil {
			return err
		}
		s, err := gatewaySvc.Void(c.UserContext(), id, input.Reason)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to void session", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Session voided", ToSessionDTO(s, ""))
	}
}
