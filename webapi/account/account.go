package account

import (
	"context"
	"strings"

	"github.com/amirasaad/retailpay/pkg/domain/account"
	ledgersvc "github.com/amirasaad/retailpay/pkg/service/ledger"
	"github.com/amirasaad/retailpay/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxPageSize = 200

// Routes registers the account ledger endpoints.
//
// Routes:
//   - POST /accounts                    : Open an account.
//   - GET  /accounts/:id                : Account with its balance.
//   - GET  /accounts/:id/transactions   : Movements, newest first.
//   - POST /accounts/:id/deposit        : Credit the account.
//   - POST /accounts/:id/withdraw       : Debit the account.
//   - POST /accounts/:id/block          : Block the account.
//   - POST /accounts/:id/activate       : Re-activate a blocked account.
//   - POST /accounts/:id/close          : Close an empty account.
//   - POST /transfers                   : Move funds between two accounts.
func Routes(app fiber.Router, ledgerSvc *ledgersvc.Service) {
	app.Post("/accounts", OpenAccount(ledgerSvc))
	app.Get("/accounts/:id", GetAccount(ledgerSvc))
	app.Get("/accounts/:id/transactions", ListTransactions(ledgerSvc))
	app.Post("/accounts/:id/deposit", Deposit(ledgerSvc))
	app.Post("/accounts/:id/withdraw", Withdraw(ledgerSvc))
	app.Post("/accounts/:id/block", statusChange("Account blocked", ledgerSvc.Block))
	app.Post("/accounts/:id/activate", statusChange("Account activated", ledgerSvc.Activate))
	app.Post("/accounts/:id/close", statusChange("Account closed", ledgerSvc.Close))
	app.Post("/transfers", Transfer(ledgerSvc))
}

// OpenAccount returns a handler that opens an active, empty account.
func OpenAccount(ledgerSvc *ledgersvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[OpenAccountRequest](c)
		if input == nil {
			return err
		}
		clientID := uuid.MustParse(input.ClientID)
		a, err := ledgerSvc.OpenAccount(c.UserContext(), ledgersvc.OpenAccountInput{
			ClientID: clientID,
			Currency: strings.ToUpper(input.Currency),
		})
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to open account", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusCreated, "Account created", toAccountDTO(a))
	}
}

// GetAccount returns a handler that fetches an account and its balance.
func GetAccount(ledgerSvc *ledgersvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := common.ParseIDParam(c, "id")
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid account ID", err)
		}
		a, err := ledgerSvc.GetAccount(c.UserContext(), id)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to get account", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Account fetched", toAccountDTO(a))
	}
}

// ListTransactions returns a handler that pages through an account's
// movements with ?limit= and ?offset=.
func ListTransactions(ledgerSvc *ledgersvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := common.ParseIDParam(c, "id")
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid account ID", err)
		}
		limit := c.QueryInt("limit", 50)
		if limit <= 0 || limit > maxPageSize {
			limit = maxPageSize
		}
		offset := max(c.QueryInt("offset", 0), 0)
		txs, err := ledgerSvc.ListTransactions(c.UserContext(), id, limit, offset)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to list transactions", err)
		}
		dtos := make([]TransactionDTO, 0, len(txs))
		for _, t := range txs {
			dtos = append(dtos, toTransactionDTO(t))
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Transactions fetched", dtos)
	}
}

type movement func(ctx context.Context, id uuid.UUID, amount decimal.Decimal, description string) (*ledgersvc.Result, error)

// Deposit returns a handler that credits an account.
func Deposit(ledgerSvc *ledgersvc.Service) fiber.Handler {
	return move("Deposit successful", "Failed to deposit", ledgerSvc.Deposit)
}

// Withdraw returns a handler that debits an account. A balance that does
// not cover the amount is answered with an insufficient_funds problem.
func Withdraw(ledgerSvc *ledgersvc.Service) fiber.Handler {
	return move("Withdrawal successful", "Failed to withdraw", ledgerSvc.Withdraw)
}

func move(okMsg, failTitle string, fn movement) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := common.ParseIDParam(c, "id")
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid account ID", err)
		}
		input, err := common.BindAndValidate[AmountRequest](c)
		if input == nil {
			return err
		}
		res, err := fn(c.UserContext(), id, input.Amount, input.Description)
		if err != nil {
			return common.ProblemDetailsJSON(c, failTitle, err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, okMsg, MovementDTO{
			Transaction: toTransactionDTO(res.Transaction),
			Balance:     res.Balance,
		})
	}
}

func statusChange(okMsg string, fn func(context.Context, uuid.UUID) (*account.Account, error)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := common.ParseIDParam(c, "id")
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid account ID", err)
		}
		a, err := fn(c.UserContext(), id)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to change account status", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, okMsg, toAccountDTO(a))
	}
}

// Transfer returns a handler that moves funds between two accounts in one
// storage transaction.
func Transfer(ledgerSvc *ledgersvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[TransferRequest](c)
		if input == nil {
			return err
		}
		res, err := ledgerSvc.Transfer(
			c.UserContext(),
			uuid.MustParse(input.FromID),
			uuid.MustParse(input.ToID),
			input.Amount,
			input.Description,
		)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to transfer", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Transfer successful", TransferDTO{
			Out: toTransactionDTO(res.Out),
			In:  toTransactionDTO(res.In),
		})
	}
}
