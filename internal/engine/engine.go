// Package engine wires the ledger components together and runs each
// operation inside one unit of work.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/ap"
	"github.com/odyssey-erp/odyssey-ledger/internal/fx"
	"github.com/odyssey-erp/odyssey-ledger/internal/installments"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/masterdata"
	"github.com/odyssey-erp/odyssey-ledger/internal/payments"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/returns"
	"github.com/odyssey-erp/odyssey-ledger/internal/sales"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Tx is the composite unit of work every component runs in.
type Tx interface {
	ap.Tx
	installments.Tx
	returns.Tx
	fx.WriteStore
	shared.IdempotencyTx
	CreateAccount(ctx context.Context, account ledger.Account) (int64, error)
	CreatePaymentMethod(ctx context.Context, method payments.Method) (int64, error)
}

// Store begins units of work. Implementations commit when fn returns nil and
// roll back otherwise; transient conflicts may be retried with the same fn.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Config tunes the engine.
type Config struct {
	BaseCurrency string
}

// Engine is the entry point used by the HTTP adapter, jobs and the CLI.
type Engine struct {
	store Store

	Rates        *fx.Resolver
	Ledger       *ledger.Engine
	Inventory    *inventory.Service
	Parties      *masterdata.Service
	Sales        *sales.Service
	Payments     *payments.Allocator
	Procurement  *procurement.Service
	AP           *ap.Service
	Installments *installments.Scheduler
	Returns      *returns.Service

	logger *slog.Logger
}

// New constructs the engine. cache may be nil.
func New(store Store, cfg Config, cache fx.Cache, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	rates := fx.NewResolver(cache, logger)
	ledgerEngine := ledger.NewEngine(rates, cfg.BaseCurrency, logger)
	stock := inventory.NewService(logger)
	allocator := payments.NewAllocator(ledgerEngine, logger)
	return &Engine{
		store:        store,
		Rates:        rates,
		Ledger:       ledgerEngine,
		Inventory:    stock,
		Parties:      masterdata.NewService(),
		Sales:        sales.NewService(ledgerEngine, logger),
		Payments:     allocator,
		Procurement:  procurement.NewService(ledgerEngine, stock, rates, logger),
		AP:           ap.NewService(ledgerEngine, logger),
		Installments: installments.NewScheduler(allocator, logger),
		Returns:      returns.NewService(ledgerEngine, stock, allocator, logger),
		logger:       logger,
	}
}

// run executes fn in one unit of work, claiming the idempotency key first so
// a replayed request fails without side effects.
func run[T any](ctx context.Context, e *Engine, module, key string, fn func(ctx context.Context, tx Tx) (T, error)) (T, error) {
	var out T
	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := shared.ClaimKey(ctx, tx, module, key); err != nil {
			return err
		}
		result, err := fn(ctx, tx)
		if err != nil {
			return err
		}
		out = result
		return nil
	})
	if err != nil {
		var zero T
		e.logFailure(ctx, module, err)
		return zero, err
	}
	return out, nil
}

func (e *Engine) logFailure(ctx context.Context, module string, err error) {
	level := slog.LevelError
	if shared.IsBusiness(err) {
		level = slog.LevelWarn
	}
	e.logger.Log(ctx, level, "engine operation failed",
		slog.String("module", module),
		slog.String("code", string(shared.CodeOf(err))),
		slog.Int64("tenant_id", shared.TenantID(ctx)),
		slog.Any("error", err))
}

// CreateJournalEntry posts a manual journal entry.
func (e *Engine) CreateJournalEntry(ctx context.Context, key string, input ledger.JournalInput) (ledger.Posting, error) {
	return run(ctx, e, "ledger.journal", key, func(ctx context.Context, tx Tx) (ledger.Posting, error) {
		return e.Ledger.CreateJournalEntry(ctx, tx, input)
	})
}

// Reverse posts the reversal of a transaction.
func (e *Engine) Reverse(ctx context.Context, key string, transactionID uuid.UUID, reason string) (ledger.Posting, error) {
	return run(ctx, e, "ledger.reverse", key, func(ctx context.Context, tx Tx) (ledger.Posting, error) {
		return e.Ledger.Reverse(ctx, tx, transactionID, reason)
	})
}

// OpenAccount adds an account to the chart of accounts.
func (e *Engine) OpenAccount(ctx context.Context, account ledger.Account) (ledger.Account, error) {
	return run(ctx, e, "ledger.account", "", func(ctx context.Context, tx Tx) (ledger.Account, error) {
		return e.Ledger.OpenAccount(ctx, tx, account)
	})
}

// AccountBalance returns an account with its per-currency balances.
func (e *Engine) AccountBalance(ctx context.Context, accountID int64) (ledger.Account, error) {
	return run(ctx, e, "ledger.balance", "", func(ctx context.Context, tx Tx) (ledger.Account, error) {
		return e.Ledger.AccountBalance(ctx, tx, accountID)
	})
}

// History lists ledger rows.
func (e *Engine) History(ctx context.Context, filter ledger.HistoryFilter) ([]ledger.Entry, error) {
	return run(ctx, e, "ledger.history", "", func(ctx context.Context, tx Tx) ([]ledger.Entry, error) {
		return e.Ledger.History(ctx, tx, filter)
	})
}

// TransactionRows lists the rows of one transaction.
func (e *Engine) TransactionRows(ctx context.Context, transactionID uuid.UUID) ([]ledger.Entry, error) {
	return run(ctx, e, "ledger.transaction", "", func(ctx context.Context, tx Tx) ([]ledger.Entry, error) {
		return e.Ledger.TransactionRows(ctx, tx, transactionID)
	})
}

// VerifyIntegrity audits the tenant's ledger.
func (e *Engine) VerifyIntegrity(ctx context.Context) (ledger.IntegrityReport, error) {
	return run(ctx, e, "ledger.integrity", "", func(ctx context.Context, tx Tx) (ledger.IntegrityReport, error) {
		return e.Ledger.VerifyIntegrity(ctx, tx)
	})
}

// GetRate resolves a conversion rate. Exact-day hits are cached after the
// read commits.
func (e *Engine) GetRate(ctx context.Context, from, to string, date time.Time) (decimal.Decimal, error) {
	quote, err := run(ctx, e, "fx.rate", "", func(ctx context.Context, tx Tx) (fx.Quote, error) {
		return e.Rates.Quote(ctx, tx, from, to, date)
	})
	if err != nil {
		return decimal.Zero, err
	}
	e.Rates.Remember(ctx, quote)
	return quote.Rate, nil
}

// PutRate stores a daily rate and retires cached rates of the pair once the
// write has committed.
func (e *Engine) PutRate(ctx context.Context, rate fx.Rate) (fx.Rate, error) {
	saved, err := run(ctx, e, "fx.put", "", func(ctx context.Context, tx Tx) (fx.Rate, error) {
		return e.Rates.PutRate(ctx, tx, rate)
	})
	if err != nil {
		return fx.Rate{}, err
	}
	e.Rates.Forget(ctx, saved)
	return saved, nil
}

// RegisterSupplier stores a supplier.
func (e *Engine) RegisterSupplier(ctx context.Context, supplier masterdata.Supplier) (masterdata.Supplier, error) {
	return run(ctx, e, "masterdata.supplier", "", func(ctx context.Context, tx Tx) (masterdata.Supplier, error) {
		return e.Parties.RegisterSupplier(ctx, tx, supplier)
	})
}

// RegisterCustomer stores a customer.
func (e *Engine) RegisterCustomer(ctx context.Context, customer masterdata.Customer) (masterdata.Customer, error) {
	return run(ctx, e, "masterdata.customer", "", func(ctx context.Context, tx Tx) (masterdata.Customer, error) {
		return e.Parties.RegisterCustomer(ctx, tx, customer)
	})
}

// ConfigurePaymentMethod stores a payment method.
func (e *Engine) ConfigurePaymentMethod(ctx context.Context, method payments.Method) (payments.Method, error) {
	return run(ctx, e, "payments.method", "", func(ctx context.Context, tx Tx) (payments.Method, error) {
		return e.Payments.ConfigureMethod(ctx, tx, method)
	})
}

// PostSalesInvoice records a sale.
func (e *Engine) PostSalesInvoice(ctx context.Context, key string, input sales.PostInvoiceInput) (sales.Invoice, error) {
	return run(ctx, e, "sales.invoice", key, func(ctx context.Context, tx Tx) (sales.Invoice, error) {
		return e.Sales.PostInvoice(ctx, tx, input)
	})
}

// RecordPayment allocates a split payment.
func (e *Engine) RecordPayment(ctx context.Context, key string, input payments.Input) (payments.Payment, error) {
	return run(ctx, e, "payments.record", key, func(ctx context.Context, tx Tx) (payments.Payment, error) {
		return e.Payments.RecordPayment(ctx, tx, input)
	})
}

// ClearCheque clears a pending cheque.
func (e *Engine) ClearCheque(ctx context.Context, key string, chequeID int64, at time.Time) (payments.Cheque, error) {
	return run(ctx, e, "payments.cheque_clear", key, func(ctx context.Context, tx Tx) (payments.Cheque, error) {
		return e.Payments.ClearCheque(ctx, tx, chequeID, at)
	})
}

// BounceCheque bounces a pending cheque.
func (e *Engine) BounceCheque(ctx context.Context, key string, chequeID int64, at time.Time) (payments.Cheque, error) {
	return run(ctx, e, "payments.cheque_bounce", key, func(ctx context.Context, tx Tx) (payments.Cheque, error) {
		return e.Payments.BounceCheque(ctx, tx, chequeID, at)
	})
}

// VoidPayment voids a payment.
func (e *Engine) VoidPayment(ctx context.Context, key string, paymentID int64, reason string) (payments.Payment, error) {
	return run(ctx, e, "payments.void", key, func(ctx context.Context, tx Tx) (payments.Payment, error) {
		return e.Payments.VoidPayment(ctx, tx, paymentID, reason)
	})
}

// PendingCheques lists cheques awaiting clearance dated on or before dueBy.
func (e *Engine) PendingCheques(ctx context.Context, dueBy time.Time) ([]payments.Cheque, error) {
	return run(ctx, e, "payments.pending_cheques", "", func(ctx context.Context, tx Tx) ([]payments.Cheque, error) {
		return e.Payments.PendingCheques(ctx, tx, dueBy)
	})
}

// CreatePurchaseOrder stores a draft purchase order with a frozen rate.
func (e *Engine) CreatePurchaseOrder(ctx context.Context, key string, input procurement.CreatePOInput) (procurement.PurchaseOrder, error) {
	return run(ctx, e, "procurement.po", key, func(ctx context.Context, tx Tx) (procurement.PurchaseOrder, error) {
		return e.Procurement.CreatePurchaseOrder(ctx, tx, input)
	})
}

// PlaceOrder moves a draft order to ordered.
func (e *Engine) PlaceOrder(ctx context.Context, poID int64) (procurement.PurchaseOrder, error) {
	return run(ctx, e, "procurement.place", "", func(ctx context.Context, tx Tx) (procurement.PurchaseOrder, error) {
		return e.Procurement.PlaceOrder(ctx, tx, poID)
	})
}

// CancelOrder cancels an order.
func (e *Engine) CancelOrder(ctx context.Context, poID int64) (procurement.PurchaseOrder, error) {
	return run(ctx, e, "procurement.cancel", "", func(ctx context.Context, tx Tx) (procurement.PurchaseOrder, error) {
		return e.Procurement.CancelOrder(ctx, tx, poID)
	})
}

// ReceiveGoods records a goods receipt.
func (e *Engine) ReceiveGoods(ctx context.Context, key string, input procurement.ReceiveInput) (procurement.Receipt, error) {
	return run(ctx, e, "procurement.grn", key, func(ctx context.Context, tx Tx) (procurement.Receipt, error) {
		return e.Procurement.ReceiveGoods(ctx, tx, input)
	})
}

// PostSupplierInvoice performs the three-way match.
func (e *Engine) PostSupplierInvoice(ctx context.Context, key string, input ap.PostInvoiceInput) (ap.SupplierInvoice, error) {
	return run(ctx, e, "ap.invoice", key, func(ctx context.Context, tx Tx) (ap.SupplierInvoice, error) {
		return e.AP.PostSupplierInvoice(ctx, tx, input)
	})
}

// CreatePlan creates a payment plan.
func (e *Engine) CreatePlan(ctx context.Context, key string, input installments.CreatePlanInput) (installments.Plan, error) {
	return run(ctx, e, "installments.plan", key, func(ctx context.Context, tx Tx) (installments.Plan, error) {
		return e.Installments.CreatePlan(ctx, tx, input)
	})
}

// InstallmentPayment is the outcome of ApplyPaymentToInstallment.
type InstallmentPayment struct {
	Plan    installments.Plan
	Payment payments.Payment
}

// ApplyPaymentToInstallment pays one installment.
func (e *Engine) ApplyPaymentToInstallment(ctx context.Context, key string, planID int64, index int, lines []payments.LineInput, paidAt time.Time) (InstallmentPayment, error) {
	return run(ctx, e, "installments.pay", key, func(ctx context.Context, tx Tx) (InstallmentPayment, error) {
		plan, payment, err := e.Installments.ApplyPaymentToInstallment(ctx, tx, planID, index, lines, paidAt)
		return InstallmentPayment{Plan: plan, Payment: payment}, err
	})
}

// DueInstallments lists pending installments due on or before asOf.
func (e *Engine) DueInstallments(ctx context.Context, asOf time.Time) ([]installments.Due, error) {
	return run(ctx, e, "installments.due", "", func(ctx context.Context, tx Tx) ([]installments.Due, error) {
		return e.Installments.DueOn(ctx, tx, asOf)
	})
}

// ProcessReturn processes a customer return.
func (e *Engine) ProcessReturn(ctx context.Context, key string, input returns.ReturnInput) (returns.Result, error) {
	return run(ctx, e, "returns.rma", key, func(ctx context.Context, tx Tx) (returns.Result, error) {
		return e.Returns.ProcessReturn(ctx, tx, input)
	})
}

// RedeemVoucher draws from a refund voucher.
func (e *Engine) RedeemVoucher(ctx context.Context, key, code string, amount decimal.Decimal) (returns.RefundVoucher, error) {
	return run(ctx, e, "returns.voucher", key, func(ctx context.Context, tx Tx) (returns.RefundVoucher, error) {
		return e.Returns.RedeemVoucher(ctx, tx, code, amount)
	})
}

// StockOnHand returns the stock balance of a variant at a branch.
func (e *Engine) StockOnHand(ctx context.Context, branchID, variantID int64) (inventory.Balance, error) {
	return run(ctx, e, "inventory.balance", "", func(ctx context.Context, tx Tx) (inventory.Balance, error) {
		return e.Inventory.StockOnHand(ctx, tx, branchID, variantID)
	})
}
