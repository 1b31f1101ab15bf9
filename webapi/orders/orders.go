package orders

import (
	"context"
	"strings"

	"github.com/amirasaad/retailpay/pkg/domain/order"
	"github.com/amirasaad/retailpay/pkg/service/reconciler"
	"github.com/amirasaad/retailpay/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Routes registers the order and payment endpoints.
//
// Routes:
//   - POST /orders                 : Place an order with its first payment.
//   - GET  /orders/:id             : Order with its payments.
//   - POST /orders/:id/payments    : Add a payment to a partially paid order.
//   - POST /orders/:id/cancel      : Cancel an order that holds no money.
//   - POST /orders/:id/deliver     : Mark an approved order as delivered.
//   - POST /orders/:id/void        : Void an order and reverse its payments.
//   - GET  /payments/:id           : Payment by id.
//   - POST /payments/:id/cash      : Confirm a cash payment at the till.
//   - POST /payments/:id/void      : Void a single payment.
func Routes(app fiber.Router, rec *reconciler.Reconciler) {
	app.Post("/orders", CreateOrder(rec))
	app.Get("/orders/:id", GetOrder(rec))
	app.Post("/orders/:id/payments", AddPayment(rec))
	app.Post("/orders/:id/cancel", orderTransition("Order cancelled", "Failed to cancel order", rec.CancelOrder))
	app.Post("/orders/:id/deliver", orderTransition("Order delivered", "Failed to deliver order", rec.DeliverOrder))
	app.Post("/orders/:id/void", VoidOrder(rec))
	app.Get("/payments/:id", GetPayment(rec))
	app.Post("/payments/:id/cash", ConfirmCash(rec))
	app.Post("/payments/:id/void", VoidPayment(rec))
}

// CreateOrder returns a handler that prices, stock-checks and persists an
// order and submits its first payment. The payment outcome is part of the
// response; a declined payment is still a 201.
func CreateOrder(rec *reconciler.Reconciler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[CreateOrderRequest](c)
		if input == nil {
			return err
		}
		lines := make([]order.LineInput, 0, len(input.Items))
		for _, l := range input.Items {
			lines = append(lines, l.toInput())
		}
		res, err := rec.CreateOrder(c.UserContext(), reconciler.CreateOrderInput{
			ClientID:       uuid.MustParse(input.ClientID),
			BranchID:       input.BranchID,
			Currency:       strings.ToUpper(input.Currency),
			DeliveryMethod: order.DeliveryMethod(input.DeliveryMethod),
			Items:          lines,
			Payment:        input.Payment.toInput(),
		})
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to create order", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusCreated, "Order created", toPaymentResultDTO(res))
	}
}

// GetOrder returns a handler that fetches an order with its payments.
func GetOrder(rec *reconciler.Reconciler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := common.ParseIDParam(c, "id")
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid order ID", err)
		}
		view, err := rec.GetOrder(c.UserContext(), id)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to get order", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Order fetched", toOrderDTO(view.Order, view.Payments))
	}
}

// AddPayment returns a handler that submits another payment against an
// order that is not fully paid.
func AddPayment(rec *reconciler.Reconciler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := common.ParseIDParam(c, "id")
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid order ID", err)
		}
		input, err := common.BindAndValidate[PaymentRequest](c)
		if input == nil {
			return err
		}
		res, err := rec.AddPayment(c.UserContext(), id, input.toInput())
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to add payment", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusCreated, "Payment submitted", toPaymentResultDTO(res))
	}
}

type transition func(ctx context.Context, id uuid.UUID) (*order.Order, error)

func orderTransition(okMsg, failTitle string, fn transition) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := common.ParseIDParam(c, "id")
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid order ID", err)
		}
		o, err := fn(c.UserContext(), id)
		if err != nil {
			return common.ProblemDetailsJSON(c, failTitle, err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, okMsg, toOrderDTO(o, nil))
	}
}

// VoidOrder returns a handler that voids an order, reversing every
// completed payment and cancelling the rest.
func VoidOrder(rec *reconciler.Reconciler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := common.ParseIDParam(c, "id")
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid order ID", err)
		}
		input, err := common.BindAndValidate[ReasonRequest](c)
		if input == nil {
			return err
		}
		view, err := rec.VoidOrder(c.UserContext(), id, input.Reason)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to void order", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Order voided", toOrderDTO(view.Order, view.Payments))
	}
}

// GetPayment returns a handler that fetches a payment by id.
func GetPayment(rec *reconciler.Reconciler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := common.ParseIDParam(c, "id")
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid payment ID", err)
		}
		p, err := rec.GetPayment(c.UserContext(), id)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to get payment", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Payment fetched", toPaymentDTO(p))
	}
}

// ConfirmCash returns a handler that completes a pending cash payment.
func ConfirmCash(rec *reconciler.Reconciler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := common.ParseIDParam(c, "id")
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid payment ID", err)
		}
		o, err := rec.ConfirmCashPayment(c.UserContext(), id)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to confirm cash payment", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Cash payment confirmed", toOrderDTO(o, nil))
	}
}

// VoidPayment returns a handler that voids one payment.
func VoidPayment(rec *reconciler.Reconciler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := common.ParseIDParam(c, "id")
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid payment ID", err)
		}
		input, err := common.BindAndValidate[ReasonRequest](c)
		if input == nil {
			return err
		}
		p, err := rec.VoidPayment(c.UserContext(), id, input.Reason)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to void payment", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Payment voided", toPaymentDTO(p))
	}
}
