package ledger

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/fx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type memoryLedger struct {
	accounts map[int64]Account
	system   map[SystemAccount]int64
	entries  []Entry
	rates    []fx.Rate
	nextID   int64
}

func newMemoryLedger(ids ...int64) *memoryLedger {
	m := &memoryLedger{accounts: map[int64]Account{}, system: map[SystemAccount]int64{}}
	for _, id := range ids {
		m.accounts[id] = Account{ID: id, Name: "acct", Type: AccountTypeAsset, Balances: map[string]decimal.Decimal{}}
	}
	return m
}

func (m *memoryLedger) RateOn(ctx context.Context, from, to string, day time.Time) (fx.Rate, bool, error) {
	for _, r := range m.rates {
		if r.From == from && r.To == to && r.Date.Equal(day) {
			return r, true, nil
		}
	}
	return fx.Rate{}, false, nil
}

func (m *memoryLedger) LatestRateOnOrBefore(ctx context.Context, from, to string, day time.Time) (fx.Rate, bool, error) {
	var best fx.Rate
	found := false
	for _, r := range m.rates {
		if r.From == from && r.To == to && !r.Date.After(day) && (!found || r.Date.After(best.Date)) {
			best, found = r, true
		}
	}
	return best, found, nil
}

func (m *memoryLedger) GetAccount(ctx context.Context, id int64) (Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return Account{}, shared.NotFound("account", id)
	}
	return a, nil
}

func (m *memoryLedger) FindSystemAccount(ctx context.Context, key SystemAccount) (Account, bool, error) {
	id, ok := m.system[key]
	if !ok {
		return Account{}, false, nil
	}
	return m.accounts[id], true, nil
}

func (m *memoryLedger) ListAccounts(ctx context.Context) ([]Account, error) {
	out := make([]Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	return out, nil
}

func (m *memoryLedger) InsertEntries(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		m.nextID++
		e.ID = m.nextID
		m.entries = append(m.entries, e)
	}
	return nil
}

func (m *memoryLedger) ApplyBalanceDeltas(ctx context.Context, deltas []BalanceDelta) error {
	for _, d := range deltas {
		a := m.accounts[d.AccountID]
		a.Balances[d.Currency] = a.Balances[d.Currency].Add(d.Amount)
		m.accounts[d.AccountID] = a
	}
	return nil
}

func (m *memoryLedger) ListEntries(ctx context.Context, filter HistoryFilter) ([]Entry, error) {
	var out []Entry
	for _, e := range m.entries {
		if filter.TransactionID != uuid.Nil && e.TransactionID != filter.TransactionID {
			continue
		}
		if filter.ReversalOf != uuid.Nil && e.ReversalOf != filter.ReversalOf {
			continue
		}
		if filter.AccountID != 0 && e.DebitAccountID != filter.AccountID && e.CreditAccountID != filter.AccountID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func newTestEngine() *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(fx.NewResolver(nil, logger), "LKR", logger)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// requireBalanced checks every row is a proper debit/credit pair and that the
// base balances across all accounts net to zero.
func requireBalanced(t *testing.T, store *memoryLedger) {
	t.Helper()
	for _, r := range store.entries {
		require.True(t, r.Amount.IsPositive(), "row %d has non-positive amount", r.ID)
		require.NotEqual(t, r.DebitAccountID, r.CreditAccountID, "row %d posts to one account", r.ID)
	}
	net := decimal.Zero
	for _, a := range store.accounts {
		net = net.Add(a.Balance("LKR"))
	}
	require.True(t, shared.NearlyEqual(net, decimal.Zero), "balances net to %s", net)
}

func TestCreateJournalEntryExpandsCompoundEntryPairwise(t *testing.T) {
	store := newMemoryLedger(1, 2, 3, 4)
	engine := newTestEngine()
	ctx := context.Background()

	posting, err := engine.CreateJournalEntry(ctx, store, JournalInput{
		Description: "split settlement",
		Lines: []Line{
			Debit(1, dec("100")),
			Credit(2, dec("60")),
			Credit(3, dec("30")),
			Credit(4, dec("10")),
		},
	})
	require.NoError(t, err)
	require.Len(t, posting.Entries, 3)
	for _, row := range posting.Entries {
		require.Equal(t, posting.TransactionID, row.TransactionID)
		require.Equal(t, int64(1), row.DebitAccountID)
		require.Equal(t, "LKR", row.OriginalCurrency)
	}
	require.True(t, posting.Entries[0].Amount.Equal(dec("60")))
	require.True(t, posting.Entries[1].Amount.Equal(dec("30")))
	require.True(t, posting.Entries[2].Amount.Equal(dec("10")))

	require.True(t, store.accounts[1].Balance("LKR").Equal(dec("100")))
	require.True(t, store.accounts[2].Balance("LKR").Equal(dec("-60")))
	require.True(t, store.accounts[3].Balance("LKR").Equal(dec("-30")))
	require.True(t, store.accounts[4].Balance("LKR").Equal(dec("-10")))
	requireBalanced(t, store)
}

func TestCreateJournalEntryInterleavesManyToMany(t *testing.T) {
	store := newMemoryLedger(1, 2, 3, 4)
	engine := newTestEngine()

	posting, err := engine.CreateJournalEntry(context.Background(), store, JournalInput{
		Lines: []Line{
			Debit(1, dec("70")),
			Debit(2, dec("30")),
			Credit(3, dec("50")),
			Credit(4, dec("50")),
		},
	})
	require.NoError(t, err)
	// 1->3 50, 1->4 20, 2->4 30
	require.Len(t, posting.Entries, 3)
	require.Equal(t, [2]int64{1, 3}, [2]int64{posting.Entries[0].DebitAccountID, posting.Entries[0].CreditAccountID})
	require.Equal(t, [2]int64{1, 4}, [2]int64{posting.Entries[1].DebitAccountID, posting.Entries[1].CreditAccountID})
	require.Equal(t, [2]int64{2, 4}, [2]int64{posting.Entries[2].DebitAccountID, posting.Entries[2].CreditAccountID})
	require.True(t, posting.Entries[1].Amount.Equal(dec("20")))
	require.True(t, posting.Total().Equal(dec("100")))
}

func TestCreateJournalEntryRejectsUnbalancedWithoutWriting(t *testing.T) {
	store := newMemoryLedger(1, 2)
	engine := newTestEngine()

	_, err := engine.CreateJournalEntry(context.Background(), store, JournalInput{
		Lines: []Line{Debit(1, dec("100")), Credit(2, dec("99.50"))},
	})
	require.ErrorIs(t, err, shared.ErrUnbalancedEntry)
	var unbalanced *UnbalancedEntryError
	require.ErrorAs(t, err, &unbalanced)
	require.True(t, unbalanced.Imbalance.Equal(dec("0.5")))
	require.Len(t, unbalanced.Lines, 2)
	require.Empty(t, store.entries)
	require.True(t, store.accounts[1].Balance("LKR").IsZero())
}

func TestCreateJournalEntryRejectsZeroMovement(t *testing.T) {
	store := newMemoryLedger(1, 2)
	engine := newTestEngine()

	_, err := engine.CreateJournalEntry(context.Background(), store, JournalInput{
		Lines: []Line{Debit(1, decimal.Zero), Credit(2, decimal.Zero)},
	})
	require.ErrorIs(t, err, ErrNoMovement)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateJournalEntryRejectsUnknownAccount(t *testing.T) {
	store := newMemoryLedger(1)
	engine := newTestEngine()

	_, err := engine.CreateJournalEntry(context.Background(), store, JournalInput{
		Lines: []Line{Debit(1, dec("5")), Credit(99, dec("5"))},
	})
	require.ErrorIs(t, err, shared.ErrReferenceNotFound)
	require.Empty(t, store.entries)
}

func TestCreateJournalEntryConvertsForeignCurrency(t *testing.T) {
	store := newMemoryLedger(1, 2)
	store.rates = []fx.Rate{{From: "USD", To: "LKR", Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Rate: dec("300")}}
	engine := newTestEngine()

	posting, err := engine.CreateJournalEntry(context.Background(), store, JournalInput{
		Currency: "usd",
		Date:     time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC),
		Lines:    []Line{Debit(1, dec("50")), Credit(2, dec("50"))},
	})
	require.NoError(t, err)
	row := posting.Entries[0]
	require.True(t, row.Amount.Equal(dec("15000")))
	require.True(t, row.OriginalAmount.Equal(dec("50")))
	require.Equal(t, "USD", row.OriginalCurrency)
	require.True(t, row.ExchangeRate.Equal(dec("300")))
	require.True(t, store.accounts[1].Balance("LKR").Equal(dec("15000")))
	require.True(t, store.accounts[1].Balance("USD").Equal(dec("50")))
	require.True(t, store.accounts[2].Balance("USD").Equal(dec("-50")))
}

func TestCreateJournalEntryFailsWithoutRate(t *testing.T) {
	store := newMemoryLedger(1, 2)
	engine := newTestEngine()

	_, err := engine.CreateJournalEntry(context.Background(), store, JournalInput{
		Currency: "USD",
		Lines:    []Line{Debit(1, dec("1")), Credit(2, dec("1"))},
	})
	require.ErrorIs(t, err, shared.ErrRateNotFound)
	require.Empty(t, store.entries)
}

func TestCreateJournalEntryHonoursFixedRate(t *testing.T) {
	store := newMemoryLedger(1, 2)
	engine := newTestEngine()
	frozen := dec("287.5")

	posting, err := engine.CreateJournalEntry(context.Background(), store, JournalInput{
		Currency:  "USD",
		FixedRate: &frozen,
		Lines:     []Line{Debit(1, dec("2")), Credit(2, dec("2"))},
	})
	require.NoError(t, err)
	require.True(t, posting.Entries[0].Amount.Equal(dec("575")))
}

func TestReverseMirrorsRowsOnce(t *testing.T) {
	store := newMemoryLedger(1, 2, 3)
	engine := newTestEngine()
	ctx := context.Background()

	posting, err := engine.CreateJournalEntry(ctx, store, JournalInput{
		Lines: []Line{Debit(1, dec("40")), Credit(2, dec("25")), Credit(3, dec("15"))},
	})
	require.NoError(t, err)

	reversal, err := engine.Reverse(ctx, store, posting.TransactionID, "")
	require.NoError(t, err)
	require.Len(t, reversal.Entries, 2)
	require.Equal(t, int64(2), reversal.Entries[0].DebitAccountID)
	require.Equal(t, posting.TransactionID, reversal.Entries[0].ReversalOf)
	for _, id := range []int64{1, 2, 3} {
		require.True(t, store.accounts[id].Balance("LKR").IsZero())
	}

	_, err = engine.Reverse(ctx, store, posting.TransactionID, "again")
	require.ErrorIs(t, err, ErrAlreadyReversed)

	_, err = engine.Reverse(ctx, store, uuid.New(), "missing")
	require.ErrorIs(t, err, shared.ErrReferenceNotFound)
}

func TestFindSystemAccountMissingIsConfigurationError(t *testing.T) {
	store := newMemoryLedger(1)
	store.system[SystemGRNI] = 1
	engine := newTestEngine()
	ctx := context.Background()

	account, err := engine.FindSystemAccount(ctx, store, SystemGRNI)
	require.NoError(t, err)
	require.Equal(t, int64(1), account.ID)

	_, err = engine.FindSystemAccount(ctx, store, SystemPriceVariance)
	require.ErrorIs(t, err, shared.ErrConfigurationMissing)
	require.Equal(t, shared.CodeConfigurationMissing, shared.CodeOf(err))
}

func TestVerifyIntegrityDetectsDrift(t *testing.T) {
	store := newMemoryLedger(1, 2)
	engine := newTestEngine()
	ctx := context.Background()

	_, err := engine.CreateJournalEntry(ctx, store, JournalInput{Lines: []Line{Debit(1, dec("10")), Credit(2, dec("10"))}})
	require.NoError(t, err)

	report, err := engine.VerifyIntegrity(ctx, store)
	require.NoError(t, err)
	require.True(t, report.OK())
	require.Equal(t, 1, report.Transactions)

	a := store.accounts[2]
	a.Balances["LKR"] = dec("-9")
	store.accounts[2] = a

	report, err = engine.VerifyIntegrity(ctx, store)
	require.NoError(t, err)
	require.False(t, report.OK())
	require.Len(t, report.Drift, 1)
	require.Equal(t, int64(2), report.Drift[0].AccountID)
	require.True(t, report.Drift[0].Expected.Equal(dec("-10")))
}

func TestAccountBalanceMatchesSignedRowSum(t *testing.T) {
	store := newMemoryLedger(1, 2, 3)
	engine := newTestEngine()
	ctx := context.Background()

	inputs := [][]Line{
		{Debit(1, dec("10.10")), Credit(2, dec("10.10"))},
		{Debit(2, dec("3.05")), Credit(1, dec("3.05"))},
		{Debit(3, dec("7")), Credit(1, dec("2")), Credit(2, dec("5"))},
	}
	for _, lines := range inputs {
		_, err := engine.CreateJournalEntry(ctx, store, JournalInput{Lines: lines})
		require.NoError(t, err)
	}
	for id, account := range store.accounts {
		expected := decimal.Zero
		for _, row := range store.entries {
			if row.DebitAccountID == id {
				expected = expected.Add(row.Amount)
			}
			if row.CreditAccountID == id {
				expected = expected.Sub(row.Amount)
			}
		}
		require.True(t, expected.Equal(account.Balance("LKR")), "account %d", id)
	}
	requireBalanced(t, store)
}
