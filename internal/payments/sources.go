package payments

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// SourceResolver loads and settles one kind of source document.
type SourceResolver struct {
	// Direction is the only direction money may move for this kind.
	Direction Direction
	// Control is the system account used when the document's party has no sub-account.
	Control ledger.SystemAccount
	Load    func(ctx context.Context, tx Tx, id int64) (Source, error)
	Settle  func(ctx context.Context, tx Tx, id int64, paid decimal.Decimal, status shared.PaymentStatus) error
}

func defaultResolvers() map[SourceKind]SourceResolver {
	return map[SourceKind]SourceResolver{
		SourcePurchaseInvoice: {
			Direction: DirectionOutflow,
			Control:   ledger.SystemAccountsPayable,
			Load: func(ctx context.Context, tx Tx, id int64) (Source, error) {
				return tx.PurchaseInvoiceSource(ctx, id)
			},
			Settle: func(ctx context.Context, tx Tx, id int64, paid decimal.Decimal, status shared.PaymentStatus) error {
				return tx.SetPurchaseInvoicePayment(ctx, id, paid, status)
			},
		},
		SourceSalesInvoice: {
			Direction: DirectionInflow,
			Control:   ledger.SystemAccountsReceivable,
			Load: func(ctx context.Context, tx Tx, id int64) (Source, error) {
				return tx.SalesInvoiceSource(ctx, id)
			},
			Settle: func(ctx context.Context, tx Tx, id int64, paid decimal.Decimal, status shared.PaymentStatus) error {
				return tx.SetSalesInvoicePayment(ctx, id, paid, status)
			},
		},
		SourceSalesReturn: {
			Direction: DirectionOutflow,
			Control:   ledger.SystemAccountsReceivable,
			Load: func(ctx context.Context, tx Tx, id int64) (Source, error) {
				return tx.ReturnSource(ctx, id)
			},
			Settle: func(ctx context.Context, tx Tx, id int64, paid decimal.Decimal, status shared.PaymentStatus) error {
				return tx.SetReturnPayment(ctx, id, paid, status)
			},
		},
	}
}

// DefaultDirection returns the usual direction for kind. Unknown kinds are inflows.
func DefaultDirection(kind SourceKind) Direction {
	if r, ok := defaultResolvers()[kind]; ok {
		return r.Direction
	}
	return DirectionInflow
}

func (a *Allocator) resolver(kind SourceKind) (SourceResolver, error) {
	r, ok := a.sources[kind]
	if !ok || r.Load == nil {
		return SourceResolver{}, shared.Invalid("source.kind", "unsupported source kind "+string(kind))
	}
	return r, nil
}

// Register installs or replaces the resolver for kind.
func (a *Allocator) Register(kind SourceKind, r SourceResolver) {
	a.sources[kind] = r
}
