package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/amirasaad/retailpay/infra/initializer"
	"github.com/amirasaad/retailpay/pkg/app"
	"github.com/amirasaad/retailpay/pkg/config"
	"github.com/amirasaad/retailpay/pkg/service/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const usage = `Usage: cli <command> [arguments]
Commands:
  open <client_id> <currency>
  deposit <account_id> <amount>
  withdraw <account_id> <amount>
  balance <account_id>
  order <order_id>
  reconcile [batch_size]`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		return
	}
	ctx := context.Background()
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Println("Failed to load configuration:", err)
		os.Exit(1)
	}
	deps, cleanup, err := initializer.InitializeDependencies(ctx, cfg)
	if err != nil {
		fmt.Println("Failed to initialize dependencies:", err)
		_ = cleanup(ctx)
		os.Exit(1)
	}
	defer cleanup(ctx) //nolint: errcheck

	if err := execute(ctx, app.New(deps, cfg), os.Args[1:], os.Stdout); err != nil {
		fmt.Println(err)
		_ = cleanup(ctx)
		os.Exit(1)
	}
}

func execute(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	argsLen := len(args)
	if argsLen == 0 {
		return fmt.Errorf("%s", usage)
	}
	svc := a.LedgerService
	switch args[0] {
	case "open":
		if argsLen < 3 {
			return fmt.Errorf("usage: open <client_id> <currency>")
		}
		clientID, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid client id: %w", err)
		}
		acc, err := svc.OpenAccount(ctx, ledger.OpenAccountInput{ClientID: clientID, Currency: strings.ToUpper(args[2])})
		if err != nil {
			return fmt.Errorf("error opening account: %w", err)
		}
		fmt.Fprintf(out, "Account opened: ID=%s, Currency=%s\n", acc.ID, acc.Currency)
	case "deposit", "withdraw":
		if argsLen < 3 {
			return fmt.Errorf("usage: %s <account_id> <amount>", args[0])
		}
		id, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid account id: %w", err)
		}
		amount, err := decimal.NewFromString(args[2])
		if err != nil {
			return fmt.Errorf("invalid amount: %w", err)
		}
		move, verb := svc.Deposit, "Deposited"
		if args[0] == "withdraw" {
			move, verb = svc.Withdraw, "Withdrew"
		}
		res, err := move(ctx, id, amount, "cli")
		if err != nil {
			return fmt.Errorf("error on %s: %w", args[0], err)
		}
		fmt.Fprintf(out, "%s %s on account %s. New balance: %s\n", verb, amount, id, res.Balance)
	case "balance":
		if argsLen < 2 {
			return fmt.Errorf("usage: balance <account_id>")
		}
		id, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid account id: %w", err)
		}
		acc, err := svc.GetAccount(ctx, id)
		if err != nil {
			return fmt.Errorf("error fetching balance: %w", err)
		}
		fmt.Fprintf(out, "Account %s balance: %s %s (%s)\n", acc.ID, acc.Balance, acc.Currency, acc.Status)
	case "order":
		if argsLen < 2 {
			return fmt.Errorf("usage: order <order_id>")
		}
		id, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid order id: %w", err)
		}
		view, err := a.Reconciler.GetOrder(ctx, id)
		if err != nil {
			return fmt.Errorf("error fetching order: %w", err)
		}
		o := view.Order
		fmt.Fprintf(out, "Order %s (%s): %s, total %s %s, inventory %s after %d attempt(s)\n",
			o.Code, o.ID, o.Status, o.Total, o.Currency, o.InventorySync, o.InventoryAttempts)
		for _, p := range view.Payments {
			fmt.Fprintf(out, "  payment %s %s %s %s\n", p.ID, p.Method, p.Amount, p.Status)
		}
	case "reconcile":
		limit := a.Config.Worker.BatchSize
		if argsLen > 1 {
			if _, err := fmt.Sscanf(args[1], "%d", &limit); err != nil || limit <= 0 {
				return fmt.Errorf("invalid batch size: %s", args[1])
			}
		}
		sessions, err := a.Reconciler.ReconcileSessions(ctx, limit)
		if err != nil {
			return fmt.Errorf("error reconciling sessions: %w", err)
		}
		retried, err := a.Reconciler.RetryInventorySync(ctx, limit)
		if err != nil {
			return fmt.Errorf("error retrying inventory sync: %w", err)
		}
		fmt.Fprintf(out, "Reconciled %d session(s), retried inventory for %d order(s)\n", sessions, retried)
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
	return nil
}
