//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/odyssey-erp/odyssey-ledger/internal/engine"
	"github.com/odyssey-erp/odyssey-ledger/internal/fx"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/masterdata"
	"github.com/odyssey-erp/odyssey-ledger/internal/payments"
	"github.com/odyssey-erp/odyssey-ledger/internal/sales"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func startPostgres(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("ledger"),
		tcpostgres.WithUsername("ledger"),
		tcpostgres.WithPassword("ledger"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := New(pool, 3, nil)
	require.NoError(t, store.Migrate(ctx))
	// schema statements are idempotent
	require.NoError(t, store.Migrate(ctx))
	return store
}

func actor(tenantID int64) context.Context {
	return shared.ContextWithActor(context.Background(), shared.Actor{TenantID: tenantID, UserID: 1, BaseCurrency: "LKR"})
}

func TestPostgresStoreEndToEnd(t *testing.T) {
	store := startPostgres(t)
	ctx := actor(1)
	eng := engine.New(store, engine.Config{BaseCurrency: "LKR"}, nil, nil)

	cash, err := eng.OpenAccount(ctx, ledger.Account{Code: "1000", Name: "Cash", Type: ledger.AccountTypeAsset})
	require.NoError(t, err)
	ar, err := eng.OpenAccount(ctx, ledger.Account{Code: "1100", Name: "AR", Type: ledger.AccountTypeAsset, SystemKey: ledger.SystemAccountsReceivable})
	require.NoError(t, err)
	_, err = eng.OpenAccount(ctx, ledger.Account{Code: "4000", Name: "Revenue", Type: ledger.AccountTypeRevenue, SystemKey: ledger.SystemSalesRevenue})
	require.NoError(t, err)
	_, err = eng.PutRate(ctx, fx.Rate{From: "USD", To: "LKR", Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Rate: decimal.NewFromInt(300)})
	require.NoError(t, err)

	posting, err := eng.CreateJournalEntry(ctx, "je-1", ledger.JournalInput{
		Description: "opening float",
		Currency:    "USD",
		Date:        time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		Lines: []ledger.Line{
			ledger.Debit(cash.ID, decimal.NewFromInt(10)),
			ledger.Credit(ar.ID, decimal.NewFromInt(10)),
		},
	})
	require.NoError(t, err)
	require.True(t, posting.ExchangeRate.Equal(decimal.NewFromInt(300)))

	_, err = eng.CreateJournalEntry(ctx, "je-1", ledger.JournalInput{
		Currency: "LKR",
		Lines:    []ledger.Line{ledger.Debit(cash.ID, decimal.NewFromInt(1)), ledger.Credit(ar.ID, decimal.NewFromInt(1))},
	})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)

	balance, err := eng.AccountBalance(ctx, cash.ID)
	require.NoError(t, err)
	require.True(t, balance.Balance("LKR").Equal(decimal.NewFromInt(3000)))
	require.True(t, balance.Balance("USD").Equal(decimal.NewFromInt(10)))

	rows, err := eng.TransactionRows(ctx, posting.TransactionID)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	report, err := eng.VerifyIntegrity(ctx)
	require.NoError(t, err)
	require.True(t, report.OK())

	// another tenant sees nothing
	_, err = eng.AccountBalance(actor(2), cash.ID)
	require.ErrorIs(t, err, shared.ErrReferenceNotFound)
}

func TestPostgresUnitOfWorkRollsBack(t *testing.T) {
	store := startPostgres(t)
	ctx := actor(1)
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(ctx context.Context, tx engine.Tx) error {
		_, err := tx.CreateAccount(ctx, ledger.Account{Code: "1000", Name: "Cash", Type: ledger.AccountTypeAsset})
		require.NoError(t, err)
		require.NoError(t, tx.ClaimIdempotencyKey(ctx, "m", "k"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx engine.Tx) error {
		accounts, err := tx.ListAccounts(ctx)
		require.NoError(t, err)
		require.Empty(t, accounts)
		require.NoError(t, tx.ClaimIdempotencyKey(ctx, "m", "k"))
		require.ErrorIs(t, tx.ClaimIdempotencyKey(ctx, "m", "k"), shared.ErrIdempotencyConflict)
		return nil
	}))
}

func TestPostgresDocumentsRoundTrip(t *testing.T) {
	store := startPostgres(t)
	ctx := actor(1)
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx engine.Tx) error {
		arID, err := tx.CreateAccount(ctx, ledger.Account{Code: "1100", Name: "AR", Type: ledger.AccountTypeAsset})
		require.NoError(t, err)
		customerID, err := tx.CreateCustomer(ctx, masterdata.Customer{Code: "C1", Name: "Acme", ReceivableAccountID: arID})
		require.NoError(t, err)

		invID, err := tx.CreateSalesInvoice(ctx, sales.Invoice{
			Number:        "SI-1",
			CustomerID:    customerID,
			Currency:      "LKR",
			ExchangeRate:  decimal.NewFromInt(1),
			IssuedAt:      day,
			Lines:         []sales.InvoiceLine{{VariantID: 7, Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(50)}},
			Total:         decimal.NewFromInt(100),
			PaymentStatus: shared.PaymentPending,
		})
		require.NoError(t, err)

		src, err := tx.SalesInvoiceSource(ctx, invID)
		require.NoError(t, err)
		require.Equal(t, arID, src.PartyAccountID)
		require.True(t, src.Total.Equal(decimal.NewFromInt(100)))

		require.NoError(t, tx.SetSalesInvoicePayment(ctx, invID, decimal.NewFromInt(40), shared.PaymentPartiallyPaid))
		inv, err := tx.GetSalesInvoice(ctx, invID)
		require.NoError(t, err)
		require.Equal(t, shared.PaymentPartiallyPaid, inv.PaymentStatus)
		require.Len(t, inv.Lines, 1)
		require.True(t, inv.Lines[0].UnitPrice.Equal(decimal.NewFromInt(50)))

		paymentID, err := tx.CreatePayment(ctx, payments.Payment{
			Number:    "PAY-1",
			Source:    src.Ref,
			Direction: payments.DirectionInflow,
			Lines:     []payments.Line{{MethodID: 1, Amount: decimal.NewFromInt(40), Status: payments.LinePending}},
			Total:     decimal.NewFromInt(40),
			Status:    payments.StatusPendingClearance,
			PaidAt:    day,
		})
		require.NoError(t, err)
		chequeID, err := tx.CreateCheque(ctx, payments.Cheque{
			PaymentID: paymentID, Number: "000123", ChequeDate: day, Amount: decimal.NewFromInt(40),
			Status: payments.ChequePendingClearance, Direction: payments.DirectionInflow,
		})
		require.NoError(t, err)

		pending, err := tx.ListPendingCheques(ctx, day)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		require.NoError(t, tx.UpdateChequeStatus(ctx, chequeID, payments.ChequeCleared, day))
		pending, err = tx.ListPendingCheques(ctx, day)
		require.NoError(t, err)
		require.Empty(t, pending)

		bySource, err := tx.ListPaymentsBySource(ctx, src.Ref)
		require.NoError(t, err)
		require.Len(t, bySource, 1)
		require.Equal(t, payments.LinePending, bySource[0].Lines[0].Status)

		_, ok, err := tx.GetStockForUpdate(ctx, 1, 7)
		require.NoError(t, err)
		require.False(t, ok)
		require.NoError(t, tx.UpsertStock(ctx, inventory.Balance{BranchID: 1, VariantID: 7, Qty: decimal.NewFromInt(3), AvgCost: decimal.NewFromInt(20)}))
		stock, ok, err := tx.GetStockForUpdate(ctx, 1, 7)
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, stock.Qty.Equal(decimal.NewFromInt(3)))

		_, err = tx.GetVoucherByCode(ctx, "RV-404")
		require.ErrorIs(t, err, shared.ErrReferenceNotFound)
		return nil
	}))
}
