package repository

import (
	"github.com/amirasaad/retailpay/pkg/domain/account"
	"github.com/amirasaad/retailpay/pkg/domain/order"
	"github.com/amirasaad/retailpay/pkg/domain/session"
)

func toAccountModel(a *account.Account) *Account {
	return &Account{
		ID:        a.ID,
		ClientID:  a.ClientID,
		Currency:  a.Currency,
		Balance:   a.Balance,
		Status:    string(a.Status),
		Version:   a.Version,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toAccountDomain(m *Account) *account.Account {
	return &account.Account{
		ID:        m.ID,
		ClientID:  m.ClientID,
		Currency:  m.Currency,
		Balance:   m.Balance,
		Status:    account.Status(m.Status),
		Version:   m.Version,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func toTransactionModel(t *account.Transaction) *Transaction {
	return &Transaction{
		ID:            t.ID,
		AccountID:     t.AccountID,
		Type:          string(t.Type),
		Amount:        t.Amount,
		BalanceAfter:  t.BalanceAfter,
		Status:        string(t.Status),
		CounterpartID: t.CounterpartID,
		Description:   t.Description,
		CreatedAt:     t.CreatedAt,
	}
}

func toTransactionDomain(m *Transaction) *account.Transaction {
	return &account.Transaction{
		ID:            m.ID,
		AccountID:     m.AccountID,
		Type:          account.TransactionType(m.Type),
		Amount:        m.Amount,
		BalanceAfter:  m.BalanceAfter,
		Status:        account.TransactionStatus(m.Status),
		CounterpartID: m.CounterpartID,
		Description:   m.Description,
		CreatedAt:     m.CreatedAt,
	}
}

func toSessionModel(s *session.Session) *GatewaySession {
	return &GatewaySession{
		ID:         s.ID,
		PaymentID:  s.PaymentID,
		Token:      s.Token,
		Amount:     s.Amount,
		Currency:   s.Currency,
		ReturnURL:  s.ReturnURL,
		State:      string(s.State),
		AuthCode:   s.AuthCode,
		VoidReason: s.VoidReason,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

func toSessionDomain(m *GatewaySession) *session.Session {
	return &session.Session{
		ID:         m.ID,
		PaymentID:  m.PaymentID,
		Token:      m.Token,
		Amount:     m.Amount,
		Currency:   m.Currency,
		ReturnURL:  m.ReturnURL,
		State:      session.State(m.State),
		AuthCode:   m.AuthCode,
		VoidReason: m.VoidReason,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func toOrderModel(o *order.Order) *Order {
	m := &Order{
		ID:                 o.ID,
		Code:               o.Code,
		ClientID:           o.ClientID,
		BranchID:           o.BranchID,
		DeliveryMethod:     string(o.DeliveryMethod),
		Subtotal:           o.Subtotal,
		Tax:                o.Tax,
		Shipping:           o.Shipping,
		Total:              o.Total,
		Currency:           o.Currency,
		SourceCurrency:     o.SourceCurrency,
		FxRate:             o.FxRate,
		Status:             string(o.Status),
		InventoryTriggered: o.InventoryTriggered,
		InventorySync:      string(o.InventorySync),
		InventoryAttempts:  o.InventoryAttempts,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
	for _, it := range o.Items {
		m.Items = append(m.Items, OrderItem{
			ID:                   it.ID,
			OrderID:              o.ID,
			ProductID:            it.ProductID,
			Quantity:             it.Quantity,
			UnitPrice:            it.UnitPrice,
			LineTotal:            it.LineTotal,
			InventoryDecremented: it.InventoryDecremented,
		})
	}
	return m
}

func toOrderDomain(m *Order) *order.Order {
	o := &order.Order{
		ID:                 m.ID,
		Code:               m.Code,
		ClientID:           m.ClientID,
		BranchID:           m.BranchID,
		DeliveryMethod:     order.DeliveryMethod(m.DeliveryMethod),
		Subtotal:           m.Subtotal,
		Tax:                m.Tax,
		Shipping:           m.Shipping,
		Total:              m.Total,
		Currency:           m.Currency,
		SourceCurrency:     m.SourceCurrency,
		FxRate:             m.FxRate,
		Status:             order.Status(m.Status),
		InventoryTriggered: m.InventoryTriggered,
		InventorySync:      order.InventorySync(m.InventorySync),
		InventoryAttempts:  m.InventoryAttempts,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
	for i := range m.Items {
		it := m.Items[i]
		o.Items = append(o.Items, &order.Item{
			ID:                   it.ID,
			OrderID:              it.OrderID,
			ProductID:            it.ProductID,
			Quantity:             it.Quantity,
			UnitPrice:            it.UnitPrice,
			LineTotal:            it.LineTotal,
			InventoryDecremented: it.InventoryDecremented,
		})
	}
	return o
}

func toPaymentModel(p *order.Payment) *Payment {
	return &Payment{
		ID:              p.ID,
		OrderID:         p.OrderID,
		Method:          string(p.Method),
		Amount:          p.Amount,
		SourceAccountID: p.SourceAccountID,
		ProcessorRef:    p.ProcessorRef,
		Status:          string(p.Status),
		FailureReason:   p.FailureReason,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func toPaymentDomain(m *Payment) *order.Payment {
	return &order.Payment{
		ID:              m.ID,
		OrderID:         m.OrderID,
		Method:          order.Method(m.Method),
		Amount:          m.Amount,
		SourceAccountID: m.SourceAccountID,
		ProcessorRef:    m.ProcessorRef,
		Status:          order.PaymentStatus(m.Status),
		FailureReason:   m.FailureReason,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}
