package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/fx"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Rates.

func (t *tx) scanRate(row pgx.Row, from, to string) (fx.Rate, bool, error) {
	rate := fx.Rate{From: from, To: to}
	if err := row.Scan(&rate.Date, &rate.Rate); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fx.Rate{}, false, nil
		}
		return fx.Rate{}, false, err
	}
	return rate, true, nil
}

func (t *tx) RateOn(ctx context.Context, from, to string, day time.Time) (fx.Rate, bool, error) {
	row := t.tx.QueryRow(ctx, `SELECT rate_date, rate FROM fx_rates
WHERE tenant_id=$1 AND from_currency=$2 AND to_currency=$3 AND rate_date=$4`,
		t.tenant, from, to, fx.NormalizeDay(day))
	return t.scanRate(row, from, to)
}

func (t *tx) LatestRateOnOrBefore(ctx context.Context, from, to string, day time.Time) (fx.Rate, bool, error) {
	row := t.tx.QueryRow(ctx, `SELECT rate_date, rate FROM fx_rates
WHERE tenant_id=$1 AND from_currency=$2 AND to_currency=$3 AND rate_date<=$4
ORDER BY rate_date DESC LIMIT 1`,
		t.tenant, from, to, fx.NormalizeDay(day))
	return t.scanRate(row, from, to)
}

func (t *tx) UpsertRate(ctx context.Context, rate fx.Rate) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO fx_rates (tenant_id, from_currency, to_currency, rate_date, rate)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (tenant_id, from_currency, to_currency, rate_date) DO UPDATE SET rate = EXCLUDED.rate`,
		t.tenant, rate.From, rate.To, fx.NormalizeDay(rate.Date), numeric(rate.Rate))
	return err
}

// Accounts.

const accountColumns = `id, code, name, type, sub_type, is_system, system_key`

func scanAccount(row rowScanner) (ledger.Account, error) {
	var (
		account   ledger.Account
		accType   string
		systemKey string
	)
	if err := row.Scan(&account.ID, &account.Code, &account.Name, &accType, &account.SubType, &account.IsSystem, &systemKey); err != nil {
		return ledger.Account{}, err
	}
	account.Type = ledger.AccountType(accType)
	account.SystemKey = ledger.SystemAccount(systemKey)
	account.Balances = map[string]decimal.Decimal{}
	return account, nil
}

func (t *tx) loadBalances(ctx context.Context, accounts map[int64]*ledger.Account, ids []int64) error {
	rows, err := t.tx.Query(ctx, `SELECT account_id, currency, balance FROM account_balances WHERE account_id = ANY($1)`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			accountID int64
			currency  string
			balance   decimal.Decimal
		)
		if err := rows.Scan(&accountID, &currency, &balance); err != nil {
			return err
		}
		if account, ok := accounts[accountID]; ok {
			account.Balances[currency] = balance
		}
	}
	return rows.Err()
}

func (t *tx) CreateAccount(ctx context.Context, account ledger.Account) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO accounts (tenant_id, code, name, type, sub_type, is_system, system_key)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		t.tenant, account.Code, account.Name, string(account.Type), account.SubType, account.IsSystem, string(account.SystemKey)).Scan(&id)
	if err != nil {
		return 0, err
	}
	for currency, balance := range account.Balances {
		if balance.IsZero() {
			continue
		}
		if _, err := t.tx.Exec(ctx, `INSERT INTO account_balances (account_id, currency, balance) VALUES ($1,$2,$3)`,
			id, currency, numeric(balance)); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (t *tx) GetAccount(ctx context.Context, id int64) (ledger.Account, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND id=$2`, t.tenant, id)
	account, err := scanAccount(row)
	if err != nil {
		return ledger.Account{}, notFound(err, "account", id)
	}
	if err := t.loadBalances(ctx, map[int64]*ledger.Account{id: &account}, []int64{id}); err != nil {
		return ledger.Account{}, err
	}
	return account, nil
}

func (t *tx) FindSystemAccount(ctx context.Context, key ledger.SystemAccount) (ledger.Account, bool, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND system_key=$2`, t.tenant, string(key))
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Account{}, false, nil
		}
		return ledger.Account{}, false, err
	}
	if err := t.loadBalances(ctx, map[int64]*ledger.Account{account.ID: &account}, []int64{account.ID}); err != nil {
		return ledger.Account{}, false, err
	}
	return account, true, nil
}

func (t *tx) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 ORDER BY id`, t.tenant)
	if err != nil {
		return nil, err
	}
	var accounts []ledger.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		accounts = append(accounts, account)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	byID := make(map[int64]*ledger.Account, len(accounts))
	ids := make([]int64, len(accounts))
	for i := range accounts {
		byID[accounts[i].ID] = &accounts[i]
		ids[i] = accounts[i].ID
	}
	if err := t.loadBalances(ctx, byID, ids); err != nil {
		return nil, err
	}
	return accounts, nil
}

// Entries and balances.

func (t *tx) InsertEntries(ctx context.Context, entries []ledger.Entry) error {
	batch := &pgx.Batch{}
	for _, entry := range entries {
		refs, err := toJSON(entry.Refs)
		if err != nil {
			return err
		}
		batch.Queue(`INSERT INTO ledger_entries (tenant_id, transaction_id, description, entry_date, debit_account_id, credit_account_id,
amount, original_amount, original_currency, exchange_rate, refs, reversal_of, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11::jsonb,$12,$13,$14)`,
			t.tenant, entry.TransactionID, entry.Description, entry.Date, entry.DebitAccountID, entry.CreditAccountID,
			numeric(entry.Amount), numeric(entry.OriginalAmount), entry.OriginalCurrency, numeric(entry.ExchangeRate),
			refs, nullUUID(entry.ReversalOf), entry.CreatedBy, entry.CreatedAt)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *tx) ApplyBalanceDeltas(ctx context.Context, deltas []ledger.BalanceDelta) error {
	batch := &pgx.Batch{}
	for _, delta := range deltas {
		batch.Queue(`INSERT INTO account_balances (account_id, currency, balance)
SELECT id, $3::char(3), $4::numeric FROM accounts WHERE tenant_id=$1 AND id=$2
ON CONFLICT (account_id, currency) DO UPDATE SET balance = account_balances.balance + EXCLUDED.balance`,
			t.tenant, delta.AccountID, delta.Currency, numeric(delta.Amount))
	}
	results := t.tx.SendBatch(ctx, batch)
	defer results.Close()
	for _, delta := range deltas {
		cmd, err := results.Exec()
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return shared.NotFound("account", delta.AccountID)
		}
	}
	return results.Close()
}

func (t *tx) ListEntries(ctx context.Context, filter ledger.HistoryFilter) ([]ledger.Entry, error) {
	conds := []string{"tenant_id=$1"}
	args := []any{t.tenant}
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(args))))
	}
	if filter.TransactionID != uuid.Nil {
		add("transaction_id=?", filter.TransactionID)
	}
	if filter.ReversalOf != uuid.Nil {
		add("reversal_of=?", filter.ReversalOf)
	}
	if filter.AccountID != 0 {
		add("(debit_account_id=? OR credit_account_id=?)", filter.AccountID)
	}
	if !filter.From.IsZero() {
		add("entry_date>=?", filter.From)
	}
	if !filter.To.IsZero() {
		add("entry_date<=?", filter.To)
	}
	query := `SELECT id, transaction_id, description, entry_date, debit_account_id, credit_account_id, amount,
original_amount, original_currency, exchange_rate, refs, reversal_of, created_by, created_at
FROM ledger_entries WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Entry
	for rows.Next() {
		var (
			entry      ledger.Entry
			refs       []byte
			reversalOf *uuid.UUID
		)
		if err := rows.Scan(&entry.ID, &entry.TransactionID, &entry.Description, &entry.Date, &entry.DebitAccountID,
			&entry.CreditAccountID, &entry.Amount, &entry.OriginalAmount, &entry.OriginalCurrency, &entry.ExchangeRate,
			&refs, &reversalOf, &entry.CreatedBy, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if err := fromJSON(refs, &entry.Refs); err != nil {
			return nil, err
		}
		entry.ReversalOf = uuidOrNil(reversalOf)
		out = append(out, entry)
	}
	return out, rows.Err()
}
