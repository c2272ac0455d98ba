package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/fx"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func dayKey(t time.Time) string {
	return fx.NormalizeDay(t).Format(time.DateOnly)
}

func (t *tx) RateOn(ctx context.Context, from, to string, day time.Time) (fx.Rate, bool, error) {
	rate, ok := t.state.rates[rateKey{from: from, to: to, day: dayKey(day)}]
	return rate, ok, nil
}

func (t *tx) LatestRateOnOrBefore(ctx context.Context, from, to string, day time.Time) (fx.Rate, bool, error) {
	var best fx.Rate
	found := false
	for k, rate := range t.state.rates {
		if k.from != from || k.to != to || rate.Date.After(day) {
			continue
		}
		if !found || rate.Date.After(best.Date) {
			best, found = rate, true
		}
	}
	return best, found, nil
}

func (t *tx) UpsertRate(ctx context.Context, rate fx.Rate) error {
	t.state.rates[rateKey{from: rate.From, to: rate.To, day: dayKey(rate.Date)}] = rate
	return nil
}

func copyAccount(a ledger.Account) ledger.Account {
	balances := make(map[string]decimal.Decimal, len(a.Balances))
	for cur, amount := range a.Balances {
		balances[cur] = amount
	}
	a.Balances = balances
	return a
}

func (t *tx) CreateAccount(ctx context.Context, account ledger.Account) (int64, error) {
	account.ID = t.state.id()
	t.state.accounts[account.ID] = copyAccount(account)
	if account.SystemKey != "" {
		t.state.system[account.SystemKey] = account.ID
	}
	return account.ID, nil
}

func (t *tx) GetAccount(ctx context.Context, id int64) (ledger.Account, error) {
	account, ok := t.state.accounts[id]
	if !ok {
		return ledger.Account{}, shared.NotFound("account", id)
	}
	return copyAccount(account), nil
}

func (t *tx) FindSystemAccount(ctx context.Context, key ledger.SystemAccount) (ledger.Account, bool, error) {
	id, ok := t.state.system[key]
	if !ok {
		return ledger.Account{}, false, nil
	}
	return copyAccount(t.state.accounts[id]), true, nil
}

func (t *tx) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	out := make([]ledger.Account, 0, len(t.state.accounts))
	for _, account := range t.state.accounts {
		out = append(out, copyAccount(account))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) InsertEntries(ctx context.Context, entries []ledger.Entry) error {
	for _, entry := range entries {
		entry.ID = t.state.id()
		t.state.entries = append(t.state.entries, entry)
	}
	return nil
}

func (t *tx) ApplyBalanceDeltas(ctx context.Context, deltas []ledger.BalanceDelta) error {
	for _, delta := range deltas {
		account, ok := t.state.accounts[delta.AccountID]
		if !ok {
			return shared.NotFound("account", delta.AccountID)
		}
		account = copyAccount(account)
		account.Balances[delta.Currency] = account.Balances[delta.Currency].Add(delta.Amount)
		t.state.accounts[delta.AccountID] = account
	}
	return nil
}

func (t *tx) ListEntries(ctx context.Context, filter ledger.HistoryFilter) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for _, entry := range t.state.entries {
		if filter.TransactionID != uuid.Nil && entry.TransactionID != filter.TransactionID {
			continue
		}
		if filter.ReversalOf != uuid.Nil && entry.ReversalOf != filter.ReversalOf {
			continue
		}
		if filter.AccountID != 0 && entry.DebitAccountID != filter.AccountID && entry.CreditAccountID != filter.AccountID {
			continue
		}
		if !filter.From.IsZero() && entry.Date.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && entry.Date.After(filter.To) {
			continue
		}
		out = append(out, entry)
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
