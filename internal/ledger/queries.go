package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AccountBalance returns the account with its running balances.
func (e *Engine) AccountBalance(ctx context.Context, tx Tx, accountID int64) (Account, error) {
	return tx.GetAccount(ctx, accountID)
}

// History lists ledger rows matching filter, oldest first.
func (e *Engine) History(ctx context.Context, tx Tx, filter HistoryFilter) ([]Entry, error) {
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, shared.Invalid("limit", "must not be negative")
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, shared.Invalid("to", "must not be before from")
	}
	return tx.ListEntries(ctx, filter)
}

// TransactionRows returns every row sharing transactionID.
func (e *Engine) TransactionRows(ctx context.Context, tx Tx, transactionID uuid.UUID) ([]Entry, error) {
	rows, err := tx.ListEntries(ctx, HistoryFilter{TransactionID: transactionID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, shared.NotFound("ledger transaction", transactionID)
	}
	return rows, nil
}

// TransactionAnomaly reports a transaction whose rows break the posting rules.
type TransactionAnomaly struct {
	TransactionID uuid.UUID
	EntryID       int64
	Reason        string
}

// AccountDrift reports a stored balance that differs from the ledger rows.
type AccountDrift struct {
	AccountID int64
	Currency  string
	Stored    decimal.Decimal
	Expected  decimal.Decimal
}

// IntegrityReport summarises a ledger audit.
type IntegrityReport struct {
	CheckedAt    time.Time
	Transactions int
	Rows         int
	Accounts     int
	Anomalies    []TransactionAnomaly
	Drift        []AccountDrift
}

// OK reports whether no violation was found.
func (r IntegrityReport) OK() bool {
	return len(r.Anomalies) == 0 && len(r.Drift) == 0
}

// Violations counts the findings.
func (r IntegrityReport) Violations() int {
	return len(r.Anomalies) + len(r.Drift)
}

// VerifyIntegrity checks that every row is a positive debit/credit pair whose
// base amount matches its original amount at the recorded rate, and that every
// stored balance equals the signed sum of its rows.
func (e *Engine) VerifyIntegrity(ctx context.Context, tx Tx) (IntegrityReport, error) {
	base := e.BaseCurrency(ctx)
	rows, err := tx.ListEntries(ctx, HistoryFilter{})
	if err != nil {
		return IntegrityReport{}, fmt.Errorf("ledger: list entries: %w", err)
	}
	accounts, err := tx.ListAccounts(ctx)
	if err != nil {
		return IntegrityReport{}, fmt.Errorf("ledger: list accounts: %w", err)
	}

	transactions := make(map[uuid.UUID]struct{})
	expected := make(map[deltaKey]decimal.Decimal)
	report := IntegrityReport{CheckedAt: e.now(), Rows: len(rows), Accounts: len(accounts)}
	for _, row := range rows {
		transactions[row.TransactionID] = struct{}{}
		if reason := rowAnomaly(row); reason != "" {
			report.Anomalies = append(report.Anomalies, TransactionAnomaly{TransactionID: row.TransactionID, EntryID: row.ID, Reason: reason})
		}
		for _, d := range netDeltas(base, []Entry{row}) {
			k := deltaKey{account: d.AccountID, currency: d.Currency}
			expected[k] = expected[k].Add(d.Amount)
		}
	}
	report.Transactions = len(transactions)

	for _, account := range accounts {
		currencies := make(map[string]struct{})
		for cur := range account.Balances {
			currencies[cur] = struct{}{}
		}
		for k := range expected {
			if k.account == account.ID {
				currencies[k.currency] = struct{}{}
			}
		}
		for cur := range currencies {
			want := expected[deltaKey{account: account.ID, currency: cur}]
			got := account.Balances[cur]
			if !shared.NearlyEqual(want, got) {
				report.Drift = append(report.Drift, AccountDrift{AccountID: account.ID, Currency: cur, Stored: got, Expected: want})
			}
		}
	}
	sort.Slice(report.Drift, func(i, j int) bool {
		if report.Drift[i].AccountID != report.Drift[j].AccountID {
			return report.Drift[i].AccountID < report.Drift[j].AccountID
		}
		return report.Drift[i].Currency < report.Drift[j].Currency
	})
	return report, nil
}

func rowAnomaly(row Entry) string {
	switch {
	case !row.Amount.IsPositive():
		return "non-positive amount"
	case row.DebitAccountID == 0 || row.CreditAccountID == 0:
		return "missing account"
	case !shared.NearlyEqual(row.OriginalAmount.Mul(row.ExchangeRate), row.Amount):
		return "base amount does not match original amount at recorded rate"
	}
	return ""
}
