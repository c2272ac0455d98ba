package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/fx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// RatePort resolves transaction currency to base currency.
type RatePort interface {
	GetRate(ctx context.Context, store fx.Store, from, to string, date time.Time) (decimal.Decimal, error)
}

// Engine posts journal entries. It never begins or commits a transaction.
type Engine struct {
	rates        RatePort
	baseCurrency string
	logger       *slog.Logger
	now          func() time.Time
	newID        func() uuid.UUID
}

// NewEngine constructs the posting engine. baseCurrency applies when the
// caller's actor does not carry one.
func NewEngine(rates RatePort, baseCurrency string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		rates:        rates,
		baseCurrency: shared.NormalizeCurrency(baseCurrency),
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.New,
	}
}

// WithNow overrides the clock for deterministic tests.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// BaseCurrency returns the base currency in effect for ctx.
func (e *Engine) BaseCurrency(ctx context.Context) string {
	return shared.BaseCurrency(ctx, e.baseCurrency)
}

// CreateJournalEntry validates, expands and persists a journal entry, then
// applies the net balance deltas for every touched account.
func (e *Engine) CreateJournalEntry(ctx context.Context, tx Tx, input JournalInput) (Posting, error) {
	base := e.BaseCurrency(ctx)
	if base == "" {
		return Posting{}, shared.MissingConfiguration(shared.TenantID(ctx), "base currency")
	}
	currency := shared.NormalizeCurrency(input.Currency)
	if currency == "" {
		currency = base
	}
	date := input.Date
	if date.IsZero() {
		date = e.now()
	}

	debits, credits, err := splitLines(input.Lines)
	if err != nil {
		return Posting{}, err
	}
	totalDebit := shared.Sum(amounts(debits)...)
	totalCredit := shared.Sum(amounts(credits)...)
	if !shared.NearlyEqual(totalDebit, totalCredit) {
		return Posting{}, &UnbalancedEntryError{
			Currency:  currency,
			Debits:    totalDebit,
			Credits:   totalCredit,
			Imbalance: totalDebit.Sub(totalCredit),
			Lines:     append([]Line(nil), input.Lines...),
		}
	}

	pairs := expand(debits, credits)
	if len(pairs) == 0 {
		return Posting{}, ErrNoMovement
	}

	for _, id := range touchedAccounts(pairs) {
		if _, err := tx.GetAccount(ctx, id); err != nil {
			return Posting{}, err
		}
	}

	rate, err := e.resolveRate(ctx, tx, currency, base, date, input.FixedRate)
	if err != nil {
		return Posting{}, err
	}

	txID := e.newID()
	createdAt := e.now()
	actor := shared.UserID(ctx)
	entries := make([]Entry, 0, len(pairs))
	for _, p := range pairs {
		entries = append(entries, Entry{
			TransactionID:    txID,
			Description:      input.Description,
			Date:             date,
			DebitAccountID:   p.debit,
			CreditAccountID:  p.credit,
			Amount:           p.amount.Mul(rate),
			OriginalAmount:   p.amount,
			OriginalCurrency: currency,
			ExchangeRate:     rate,
			Refs:             input.Refs,
			CreatedBy:        actor,
			CreatedAt:        createdAt,
		})
	}
	if err := e.persist(ctx, tx, base, entries); err != nil {
		return Posting{}, err
	}
	e.logger.Debug("journal entry posted",
		slog.String("transaction_id", txID.String()),
		slog.String("currency", currency),
		slog.String("rate", rate.String()),
		slog.Int("rows", len(entries)))
	return Posting{TransactionID: txID, BaseCurrency: base, ExchangeRate: rate, Entries: entries}, nil
}

// Reverse posts mirrored rows for transactionID under a new transaction id.
func (e *Engine) Reverse(ctx context.Context, tx Tx, transactionID uuid.UUID, reason string) (Posting, error) {
	original, err := tx.ListEntries(ctx, HistoryFilter{TransactionID: transactionID})
	if err != nil {
		return Posting{}, fmt.Errorf("ledger: load transaction: %w", err)
	}
	if len(original) == 0 {
		return Posting{}, shared.NotFound("ledger transaction", transactionID)
	}
	existing, err := tx.ListEntries(ctx, HistoryFilter{ReversalOf: transactionID, Limit: 1})
	if err != nil {
		return Posting{}, fmt.Errorf("ledger: load reversals: %w", err)
	}
	if len(existing) > 0 {
		return Posting{}, ErrAlreadyReversed
	}

	base := e.BaseCurrency(ctx)
	txID := e.newID()
	now := e.now()
	description := reason
	if description == "" {
		description = "Reversal of " + transactionID.String()
	}
	entries := make([]Entry, 0, len(original))
	for _, row := range original {
		entries = append(entries, Entry{
			TransactionID:    txID,
			Description:      description,
			Date:             now,
			DebitAccountID:   row.CreditAccountID,
			CreditAccountID:  row.DebitAccountID,
			Amount:           row.Amount,
			OriginalAmount:   row.OriginalAmount,
			OriginalCurrency: row.OriginalCurrency,
			ExchangeRate:     row.ExchangeRate,
			Refs:             row.Refs,
			ReversalOf:       transactionID,
			CreatedBy:        shared.UserID(ctx),
			CreatedAt:        now,
		})
	}
	if err := e.persist(ctx, tx, base, entries); err != nil {
		return Posting{}, err
	}
	return Posting{TransactionID: txID, BaseCurrency: base, ExchangeRate: original[0].ExchangeRate, Entries: entries}, nil
}

// FindSystemAccount resolves a well-known account through tx. A missing account
// is a configuration error.
func (e *Engine) FindSystemAccount(ctx context.Context, tx Tx, key SystemAccount) (Account, error) {
	account, ok, err := tx.FindSystemAccount(ctx, key)
	if err != nil {
		return Account{}, fmt.Errorf("ledger: find system account %s: %w", key, err)
	}
	if !ok {
		return Account{}, shared.MissingConfiguration(shared.TenantID(ctx), string(key))
	}
	return account, nil
}

func (e *Engine) resolveRate(ctx context.Context, tx Tx, currency, base string, date time.Time, fixed *decimal.Decimal) (decimal.Decimal, error) {
	if currency == base {
		return decimal.NewFromInt(1), nil
	}
	if fixed != nil {
		if !fixed.IsPositive() {
			return decimal.Zero, shared.Invalid("exchange_rate", "must be positive")
		}
		return *fixed, nil
	}
	if e.rates == nil {
		return decimal.Zero, shared.MissingConfiguration(shared.TenantID(ctx), "exchange rate resolver")
	}
	return e.rates.GetRate(ctx, tx, currency, base, date)
}

func (e *Engine) persist(ctx context.Context, tx Tx, base string, entries []Entry) error {
	if err := tx.InsertEntries(ctx, entries); err != nil {
		return fmt.Errorf("ledger: insert entries: %w", err)
	}
	if err := tx.ApplyBalanceDeltas(ctx, netDeltas(base, entries)); err != nil {
		return fmt.Errorf("ledger: apply balance deltas: %w", err)
	}
	return nil
}

type side struct {
	account int64
	amount  decimal.Decimal
}

type pair struct {
	debit  int64
	credit int64
	amount decimal.Decimal
}

func splitLines(lines []Line) ([]side, []side, error) {
	var debits, credits []side
	for i, line := range lines {
		if line.AccountID == 0 {
			return nil, nil, shared.Invalid(fmt.Sprintf("lines[%d].account_id", i), "required")
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return nil, nil, shared.Invalid(fmt.Sprintf("lines[%d]", i), "amounts must not be negative")
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return nil, nil, shared.Invalid(fmt.Sprintf("lines[%d]", i), "a line is either a debit or a credit")
		}
		switch {
		case line.Debit.IsPositive():
			debits = append(debits, side{account: line.AccountID, amount: line.Debit})
		case line.Credit.IsPositive():
			credits = append(credits, side{account: line.AccountID, amount: line.Credit})
		}
	}
	return debits, credits, nil
}

func amounts(sides []side) []decimal.Decimal {
	out := make([]decimal.Decimal, len(sides))
	for i, s := range sides {
		out[i] = s.amount
	}
	return out
}

// expand walks debits against credits emitting min(remaining debit, remaining
// credit) per pair until either side runs out.
func expand(debits, credits []side) []pair {
	var pairs []pair
	i, j := 0, 0
	remDebit, remCredit := decimal.Zero, decimal.Zero
	if len(debits) > 0 {
		remDebit = debits[0].amount
	}
	if len(credits) > 0 {
		remCredit = credits[0].amount
	}
	for i < len(debits) && j < len(credits) {
		amount := decimal.Min(remDebit, remCredit)
		if amount.IsPositive() {
			pairs = append(pairs, pair{debit: debits[i].account, credit: credits[j].account, amount: amount})
		}
		remDebit = remDebit.Sub(amount)
		remCredit = remCredit.Sub(amount)
		if !remDebit.IsPositive() {
			i++
			if i < len(debits) {
				remDebit = debits[i].amount
			}
		}
		if !remCredit.IsPositive() {
			j++
			if j < len(credits) {
				remCredit = credits[j].amount
			}
		}
	}
	return pairs
}

func touchedAccounts(pairs []pair) []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, p := range pairs {
		for _, id := range []int64{p.debit, p.credit} {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

type deltaKey struct {
	account  int64
	currency string
}

// netDeltas aggregates signed movements per account and currency. Base
// amounts land in the base bucket; foreign rows also move their own bucket.
func netDeltas(base string, entries []Entry) []BalanceDelta {
	sums := make(map[deltaKey]decimal.Decimal)
	add := func(account int64, currency string, amount decimal.Decimal) {
		k := deltaKey{account: account, currency: currency}
		sums[k] = sums[k].Add(amount)
	}
	for _, e := range entries {
		add(e.DebitAccountID, base, e.Amount)
		add(e.CreditAccountID, base, e.Amount.Neg())
		if e.OriginalCurrency != "" && e.OriginalCurrency != base {
			add(e.DebitAccountID, e.OriginalCurrency, e.OriginalAmount)
			add(e.CreditAccountID, e.OriginalCurrency, e.OriginalAmount.Neg())
		}
	}
	deltas := make([]BalanceDelta, 0, len(sums))
	for k, amount := range sums {
		if amount.IsZero() {
			continue
		}
		deltas = append(deltas, BalanceDelta{AccountID: k.account, Currency: k.currency, Amount: amount})
	}
	sort.Slice(deltas, func(i, j int) bool {
		if deltas[i].AccountID != deltas[j].AccountID {
			return deltas[i].AccountID < deltas[j].AccountID
		}
		return deltas[i].Currency < deltas[j].Currency
	})
	return deltas
}
