// Package common holds the response envelope, RFC 9457 problem details and
// request binding shared by every HTTP handler.
package common

import (
	"errors"
	"fmt"
	"strings"

	"github.com/amirasaad/retailpay/pkg/domain"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Response defines the standard API response structure for success cases.
type Response struct {
	Status  int    `json:"status"`         // HTTP status code
	Message string `json:"message"`        // Human-readable explanation
	Data    any    `json:"data,omitempty"` // Response data
}

// ProblemDetails follows RFC 9457 Problem Details for HTTP APIs, extended
// with the error kind.
type ProblemDetails struct {
	Type     string `json:"type,omitempty"`     // A URI reference that identifies the problem type
	Title    string `json:"title"`              // Short, human-readable summary
	Status   int    `json:"status"`             // HTTP status code
	Kind     string `json:"kind,omitempty"`     // Machine readable error kind
	Detail   string `json:"detail,omitempty"`   // Human-readable explanation
	Instance string `json:"instance,omitempty"` // URI reference that identifies the specific occurrence
	Errors   any    `json:"errors,omitempty"`   // Optional: additional error details
}

// FieldError describes one failed validation rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

const exposeInternalKey = "common.exposeInternal"

// ExposeInternalErrors returns a middleware that controls whether the
// detail of internal errors reaches the client.
func ExposeInternalErrors(expose bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(exposeInternalKey, expose)
		return c.Next()
	}
}

// SuccessResponseJSON writes the success envelope.
func SuccessResponseJSON(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(Response{
		Status:  status,
		Message: message,
		Data:    data,
	})
}

// ErrorToStatusCode maps error kinds to HTTP status codes.
func ErrorToStatusCode(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation, domain.KindInsufficientFunds, domain.KindOutOfStock:
		return fiber.StatusBadRequest
	case domain.KindNotFound:
		return fiber.StatusNotFound
	case domain.KindConflict, domain.KindInvalidState:
		return fiber.StatusConflict
	case domain.KindTimeout, domain.KindUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return fe.Code
		}
		return fiber.StatusInternalServerError
	}
}

// ProblemDetailsJSON writes err as problem details. opts may carry a string
// detail overriding err's message and an int status overriding the mapped
// one. A nil err is a client error.
func ProblemDetailsJSON(c *fiber.Ctx, title string, err error, opts ...any) error {
	pd := ProblemDetails{
		Type:     "about:blank",
		Title:    title,
		Status:   fiber.StatusBadRequest,
		Instance: c.OriginalURL(),
	}
	if err != nil {
		kind := domain.KindOf(err)
		pd.Status = ErrorToStatusCode(err)
		pd.Detail = err.Error()
		var fe *fiber.Error
		if kind == domain.KindInternal && errors.As(err, &fe) {
			kind = ""
		}
		if kind != "" {
			pd.Kind = string(kind)
			pd.Type = "urn:retailpay:problem:" + string(kind)
		}
		if kind == domain.KindInternal && !exposeInternal(c) {
			pd.Detail = "an internal error occurred"
		}
		if kind == domain.KindTimeout || kind == domain.KindUnavailable {
			c.Set(fiber.HeaderRetryAfter, "1")
		}
	}
	for _, o := range opts {
		switch v := o.(type) {
		case string:
			pd.Detail = v
		case int:
			pd.Status = v
		case []FieldError:
			pd.Errors = v
		}
	}
	return c.Status(pd.Status).JSON(pd, "application/problem+json")
}

func exposeInternal(c *fiber.Ctx) bool {
	v, _ := c.Locals(exposeInternalKey).(bool)
	return v
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// BindAndValidate parses the request body and validates it using go-playground/validator.
// Returns a pointer to the struct (populated), or writes an error response and returns nil.
func BindAndValidate[T any](c *fiber.Ctx) (*T, error) {
	var input T
	if err := c.BodyParser(&input); err != nil {
		return nil, ProblemDetailsJSON(c, "Invalid request body", domain.ErrValidation, err.Error())
	}
	if err := validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, ProblemDetailsJSON(c, "Validation failed", domain.ErrValidation, err.Error())
		}
		fields := make([]FieldError, 0, len(verrs))
		names := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
			names = append(names, fe.Field())
		}
		return nil, ProblemDetailsJSON(c, "Validation failed", domain.ErrValidation,
			"invalid fields: "+strings.Join(names, ", "), fields)
	}
	return &input, nil
}

// ParseIDParam reads a UUID route parameter.
func ParseIDParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s must be a valid UUID", domain.ErrValidation, name)
	}
	return id, nil
}
