package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/engine"
	"github.com/odyssey-erp/odyssey-ledger/internal/returns"
	"github.com/odyssey-erp/odyssey-ledger/internal/sales"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func (f *fixture) twoShirts(t *testing.T) sales.Invoice {
	t.Helper()
	return f.salesInvoice(t, sales.InvoiceLine{VariantID: variantShirt, Quantity: dec("2"), UnitPrice: dec("100"), UnitCost: dec("60")})
}

func oneShirt() []returns.ReturnItem {
	return []returns.ReturnItem{{VariantID: variantShirt, Quantity: dec("1")}}
}

func TestCashRefundRestocksAndPaysOut(t *testing.T) {
	f := newFixture(t)
	inv := f.twoShirts(t)

	result, err := f.engine.ProcessReturn(f.ctx, "rma-1", returns.ReturnInput{
		SalesInvoiceID: inv.ID,
		Items:          oneShirt(),
		Resolution:     returns.ResolutionRefund,
		RefundLines:    cash(f, "100"),
		Reason:         "wrong size",
		Date:           rateDay,
	})
	require.NoError(t, err)
	require.Equal(t, "RMA-000001", result.RMA.Number)
	requireAmount(t, "100", result.RMA.TotalRefund)
	require.NotNil(t, result.Payment)
	require.Nil(t, result.Voucher)
	require.Equal(t, shared.PaymentFullyPaid, result.RMA.PaymentStatus)

	stock, err := f.engine.StockOnHand(f.ctx, 1, variantShirt)
	require.NoError(t, err)
	requireAmount(t, "1", stock.Qty)
	requireAmount(t, "60", stock.AvgCost)

	requireAmount(t, "100", f.balance(t, f.returns))
	requireAmount(t, "-100", f.balance(t, f.cash))
	requireAmount(t, "200", f.balance(t, f.customerAR))

	var stored returns.RMA
	f.view(t, func(ctx context.Context, tx engine.Tx) error {
		var err error
		stored, err = tx.GetRMA(ctx, result.RMA.ID)
		return err
	})
	require.Equal(t, result.RMA.TransactionID, stored.TransactionID)
	requireAmount(t, "100", stored.AmountPaid)
	f.requireIntegrity(t)
}

func TestReturnCannotExceedWhatWasSold(t *testing.T) {
	f := newFixture(t)
	inv := f.twoShirts(t)

	_, err := f.engine.ProcessReturn(f.ctx, "", returns.ReturnInput{
		SalesInvoiceID: inv.ID,
		Items:          oneShirt(),
		Resolution:     returns.ResolutionStoreCredit,
	})
	require.NoError(t, err)

	_, err = f.engine.ProcessReturn(f.ctx, "", returns.ReturnInput{
		SalesInvoiceID: inv.ID,
		Items:          []returns.ReturnItem{{VariantID: variantShirt, Quantity: dec("2")}},
		Resolution:     returns.ResolutionStoreCredit,
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.engine.ProcessReturn(f.ctx, "", returns.ReturnInput{
		SalesInvoiceID: inv.ID,
		Items:          []returns.ReturnItem{{VariantID: 999, Quantity: dec("1")}},
		Resolution:     returns.ResolutionStoreCredit,
	})
	require.ErrorIs(t, err, shared.ErrReferenceNotFound)
}

func TestRefundLinesMustMatchRefund(t *testing.T) {
	f := newFixture(t)
	inv := f.twoShirts(t)

	_, err := f.engine.ProcessReturn(f.ctx, "", returns.ReturnInput{
		SalesInvoiceID: inv.ID,
		Items:          oneShirt(),
		Resolution:     returns.ResolutionRefund,
		RefundLines:    cash(f, "90"),
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	stock, err := f.engine.StockOnHand(f.ctx, 1, variantShirt)
	require.NoError(t, err)
	require.True(t, stock.Qty.IsZero())
}

func TestStoreCreditIssuesRedeemableVoucher(t *testing.T) {
	f := newFixture(t)
	inv := f.twoShirts(t)

	result, err := f.engine.ProcessReturn(f.ctx, "", returns.ReturnInput{
		SalesInvoiceID: inv.ID,
		Items:          oneShirt(),
		Resolution:     returns.ResolutionStoreCredit,
	})
	require.NoError(t, err)
	require.Nil(t, result.Payment)
	require.NotNil(t, result.Voucher)
	require.Equal(t, "RV-000001", result.Voucher.Code)
	require.Equal(t, result.Voucher.ID, result.RMA.VoucherID)
	requireAmount(t, "100", result.Voucher.CurrentBalance)
	requireAmount(t, "100", f.balance(t, f.customerAR))

	voucher, err := f.engine.RedeemVoucher(f.ctx, "redeem-1", "RV-000001", dec("40"))
	require.NoError(t, err)
	requireAmount(t, "60", voucher.CurrentBalance)

	_, err = f.engine.RedeemVoucher(f.ctx, "redeem-2", "RV-000001", dec("70"))
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.engine.RedeemVoucher(f.ctx, "redeem-1", "RV-000001", dec("10"))
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)

	voucher, err = f.engine.RedeemVoucher(f.ctx, "redeem-3", "RV-000001", dec("60"))
	require.NoError(t, err)
	require.True(t, voucher.CurrentBalance.IsZero())

	_, err = f.engine.RedeemVoucher(f.ctx, "", "RV-404", dec("1"))
	require.ErrorIs(t, err, shared.ErrReferenceNotFound)
	f.requireIntegrity(t)
}
