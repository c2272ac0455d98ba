package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/ap"
	"github.com/odyssey-erp/odyssey-ledger/internal/installments"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/masterdata"
	"github.com/odyssey-erp/odyssey-ledger/internal/payments"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/returns"
	"github.com/odyssey-erp/odyssey-ledger/internal/sales"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func collect[T any](rows pgx.Rows, err error, scan func(rowScanner) (T, error)) ([]T, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// update runs a tenant-scoped UPDATE and maps zero affected rows to not found.
func (t *tx) update(ctx context.Context, kind string, id int64, sql string, args ...any) error {
	cmd, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.NotFound(kind, id)
	}
	return nil
}

func (t *tx) insert(ctx context.Context, sql string, args ...any) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, sql, args...).Scan(&id)
	return id, err
}

// Inventory.

func (t *tx) GetStockForUpdate(ctx context.Context, branchID, variantID int64) (inventory.Balance, bool, error) {
	balance := inventory.Balance{BranchID: branchID, VariantID: variantID}
	err := t.tx.QueryRow(ctx, `SELECT qty, avg_cost, updated_at FROM stock_balances
WHERE tenant_id=$1 AND branch_id=$2 AND variant_id=$3 FOR UPDATE`, t.tenant, branchID, variantID).
		Scan(&balance.Qty, &balance.AvgCost, &balance.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return inventory.Balance{}, false, nil
		}
		return inventory.Balance{}, false, err
	}
	return balance, true, nil
}

func (t *tx) UpsertStock(ctx context.Context, balance inventory.Balance) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO stock_balances (tenant_id, branch_id, variant_id, qty, avg_cost, updated_at)
VALUES ($1,$2,$3,$4,$5,COALESCE($6::timestamptz, NOW()))
ON CONFLICT (tenant_id, branch_id, variant_id) DO UPDATE
SET qty = EXCLUDED.qty, avg_cost = EXCLUDED.avg_cost, updated_at = EXCLUDED.updated_at`,
		t.tenant, balance.BranchID, balance.VariantID, numeric(balance.Qty), numeric(balance.AvgCost), nullTime(balance.UpdatedAt))
	return err
}

func (t *tx) InsertMovement(ctx context.Context, m inventory.Movement) (int64, error) {
	return t.insert(ctx, `INSERT INTO stock_movements (tenant_id, type, branch_id, variant_id, qty, unit_cost, balance_qty, avg_cost,
serials, ref_module, ref_id, note, posted_at, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING id`,
		t.tenant, string(m.Type), m.BranchID, m.VariantID, numeric(m.Qty), numeric(m.UnitCost), numeric(m.BalanceQty),
		numeric(m.AvgCost), textArray(m.Serials), m.RefModule, m.RefID, m.Note, m.PostedAt, m.CreatedBy)
}

// Parties.

func (t *tx) CreateSupplier(ctx context.Context, s masterdata.Supplier) (int64, error) {
	return t.insert(ctx, `INSERT INTO suppliers (tenant_id, code, name, currency, payable_account_id, created_at)
VALUES ($1,$2,$3,$4,$5,COALESCE($6::timestamptz, NOW())) RETURNING id`,
		t.tenant, s.Code, s.Name, s.Currency, s.PayableAccountID, nullTime(s.CreatedAt))
}

func (t *tx) GetSupplier(ctx context.Context, id int64) (masterdata.Supplier, error) {
	var s masterdata.Supplier
	err := t.tx.QueryRow(ctx, `SELECT id, code, name, currency, payable_account_id, created_at
FROM suppliers WHERE tenant_id=$1 AND id=$2`, t.tenant, id).
		Scan(&s.ID, &s.Code, &s.Name, &s.Currency, &s.PayableAccountID, &s.CreatedAt)
	if err != nil {
		return masterdata.Supplier{}, notFound(err, "supplier", id)
	}
	return s, nil
}

func (t *tx) CreateCustomer(ctx context.Context, c masterdata.Customer) (int64, error) {
	return t.insert(ctx, `INSERT INTO customers (tenant_id, code, name, receivable_account_id, created_at)
VALUES ($1,$2,$3,$4,COALESCE($5::timestamptz, NOW())) RETURNING id`,
		t.tenant, c.Code, c.Name, c.ReceivableAccountID, nullTime(c.CreatedAt))
}

func (t *tx) GetCustomer(ctx context.Context, id int64) (masterdata.Customer, error) {
	var c masterdata.Customer
	err := t.tx.QueryRow(ctx, `SELECT id, code, name, receivable_account_id, created_at
FROM customers WHERE tenant_id=$1 AND id=$2`, t.tenant, id).
		Scan(&c.ID, &c.Code, &c.Name, &c.ReceivableAccountID, &c.CreatedAt)
	if err != nil {
		return masterdata.Customer{}, notFound(err, "customer", id)
	}
	return c, nil
}

// Sales invoices.

const salesInvoiceColumns = `id, number, customer_id, branch_id, currency, exchange_rate, issued_at, lines, total,
amount_paid, payment_status, transaction_id, created_by`

func scanSalesInvoice(row rowScanner) (sales.Invoice, error) {
	var (
		inv    sales.Invoice
		lines  []byte
		status string
		txID   *uuid.UUID
	)
	if err := row.Scan(&inv.ID, &inv.Number, &inv.CustomerID, &inv.BranchID, &inv.Currency, &inv.ExchangeRate, &inv.IssuedAt,
		&lines, &inv.Total, &inv.AmountPaid, &status, &txID, &inv.CreatedBy); err != nil {
		return sales.Invoice{}, err
	}
	inv.PaymentStatus = shared.PaymentStatus(status)
	inv.TransactionID = uuidOrNil(txID)
	return inv, fromJSON(lines, &inv.Lines)
}

func (t *tx) CreateSalesInvoice(ctx context.Context, inv sales.Invoice) (int64, error) {
	lines, err := toJSON(inv.Lines)
	if err != nil {
		return 0, err
	}
	return t.insert(ctx, `INSERT INTO sales_invoices (tenant_id, number, customer_id, branch_id, currency, exchange_rate, issued_at,
lines, total, amount_paid, payment_status, transaction_id, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8::jsonb,$9,$10,$11,$12,$13) RETURNING id`,
		t.tenant, inv.Number, inv.CustomerID, inv.BranchID, inv.Currency, numeric(inv.ExchangeRate), inv.IssuedAt,
		lines, numeric(inv.Total), numeric(inv.AmountPaid), string(inv.PaymentStatus), nullUUID(inv.TransactionID), inv.CreatedBy)
}

func (t *tx) GetSalesInvoice(ctx context.Context, id int64) (sales.Invoice, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+salesInvoiceColumns+` FROM sales_invoices WHERE tenant_id=$1 AND id=$2`, t.tenant, id)
	inv, err := scanSalesInvoice(row)
	if err != nil {
		return sales.Invoice{}, notFound(err, "sales invoice", id)
	}
	return inv, nil
}

func (t *tx) UpdateSalesInvoice(ctx context.Context, inv sales.Invoice) error {
	lines, err := toJSON(inv.Lines)
	if err != nil {
		return err
	}
	return t.update(ctx, "sales invoice", inv.ID, `UPDATE sales_invoices
SET currency=$3, exchange_rate=$4, lines=$5::jsonb, total=$6, amount_paid=$7, payment_status=$8, transaction_id=$9
WHERE tenant_id=$1 AND id=$2`,
		t.tenant, inv.ID, inv.Currency, numeric(inv.ExchangeRate), lines, numeric(inv.Total), numeric(inv.AmountPaid),
		string(inv.PaymentStatus), nullUUID(inv.TransactionID))
}

func (t *tx) UpdateSalesInvoicePayment(ctx context.Context, id int64, paid decimal.Decimal, status shared.PaymentStatus) error {
	return t.update(ctx, "sales invoice", id, `UPDATE sales_invoices SET amount_paid=$3, payment_status=$4 WHERE tenant_id=$1 AND id=$2`,
		t.tenant, id, numeric(paid), string(status))
}

// Payment sources.

func (t *tx) source(ctx context.Context, ref payments.SourceRef, kind, sql string) (payments.Source, error) {
	src := payments.Source{Ref: ref}
	err := t.tx.QueryRow(ctx, sql, t.tenant, ref.ID).
		Scan(&src.Number, &src.PartyAccountID, &src.Currency, &src.ExchangeRate, &src.Total)
	if err != nil {
		return payments.Source{}, notFound(err, kind, ref.ID)
	}
	return src, nil
}

func (t *tx) PurchaseInvoiceSource(ctx context.Context, id int64) (payments.Source, error) {
	return t.source(ctx, payments.SourceRef{Kind: payments.SourcePurchaseInvoice, ID: id}, "supplier invoice",
		`SELECT si.number, s.payable_account_id, si.currency, si.exchange_rate, si.total_amount
FROM supplier_invoices si JOIN suppliers s ON s.id = si.supplier_id
WHERE si.tenant_id=$1 AND si.id=$2`)
}

func (t *tx) SalesInvoiceSource(ctx context.Context, id int64) (payments.Source, error) {
	return t.source(ctx, payments.SourceRef{Kind: payments.SourceSalesInvoice, ID: id}, "sales invoice",
		`SELECT inv.number, c.receivable_account_id, inv.currency, inv.exchange_rate, inv.total
FROM sales_invoices inv JOIN customers c ON c.id = inv.customer_id
WHERE inv.tenant_id=$1 AND inv.id=$2`)
}

func (t *tx) ReturnSource(ctx context.Context, id int64) (payments.Source, error) {
	return t.source(ctx, payments.SourceRef{Kind: payments.SourceSalesReturn, ID: id}, "rma",
		`SELECT r.number, c.receivable_account_id, r.currency, r.exchange_rate, r.total_refund
FROM rmas r JOIN customers c ON c.id = r.customer_id
WHERE r.tenant_id=$1 AND r.id=$2`)
}

func (t *tx) SetPurchaseInvoicePayment(ctx context.Context, id int64, paid decimal.Decimal, status shared.PaymentStatus) error {
	return t.update(ctx, "supplier invoice", id, `UPDATE supplier_invoices SET amount_paid=$3, payment_status=$4 WHERE tenant_id=$1 AND id=$2`,
		t.tenant, id, numeric(paid), string(status))
}

func (t *tx) SetSalesInvoicePayment(ctx context.Context, id int64, paid decimal.Decimal, status shared.PaymentStatus) error {
	return t.UpdateSalesInvoicePayment(ctx, id, paid, status)
}

func (t *tx) SetReturnPayment(ctx context.Context, id int64, paid decimal.Decimal, status shared.PaymentStatus) error {
	return t.update(ctx, "rma", id, `UPDATE rmas SET amount_paid=$3, payment_status=$4 WHERE tenant_id=$1 AND id=$2`,
		t.tenant, id, numeric(paid), string(status))
}

// Payments.

func (t *tx) CreatePaymentMethod(ctx context.Context, m payments.Method) (int64, error) {
	return t.insert(ctx, `INSERT INTO payment_methods (tenant_id, name, type, linked_account_id, holding_account_id)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, t.tenant, m.Name, string(m.Type), m.LinkedAccountID, m.HoldingAccountID)
}

func (t *tx) GetPaymentMethod(ctx context.Context, id int64) (payments.Method, error) {
	var (
		m       payments.Method
		mthType string
	)
	err := t.tx.QueryRow(ctx, `SELECT id, name, type, linked_account_id, holding_account_id
FROM payment_methods WHERE tenant_id=$1 AND id=$2`, t.tenant, id).
		Scan(&m.ID, &m.Name, &mthType, &m.LinkedAccountID, &m.HoldingAccountID)
	if err != nil {
		return payments.Method{}, notFound(err, "payment method", id)
	}
	m.Type = payments.MethodType(mthType)
	return m, nil
}

const paymentColumns = `id, number, source_kind, source_id, direction, currency, lines, total, status, processed_by,
transaction_id, paid_at`

func scanPayment(row rowScanner) (payments.Payment, error) {
	var (
		p                       payments.Payment
		kind, direction, status string
		lines                   []byte
		txID                    *uuid.UUID
	)
	if err := row.Scan(&p.ID, &p.Number, &kind, &p.Source.ID, &direction, &p.Currency, &lines, &p.Total, &status,
		&p.ProcessedBy, &txID, &p.PaidAt); err != nil {
		return payments.Payment{}, err
	}
	p.Source.Kind = payments.SourceKind(kind)
	p.Direction = payments.Direction(direction)
	p.Status = payments.Status(status)
	p.TransactionID = uuidOrNil(txID)
	return p, fromJSON(lines, &p.Lines)
}

func (t *tx) CreatePayment(ctx context.Context, p payments.Payment) (int64, error) {
	lines, err := toJSON(p.Lines)
	if err != nil {
		return 0, err
	}
	return t.insert(ctx, `INSERT INTO payments (tenant_id, number, source_kind, source_id, direction, currency, lines, total, status,
processed_by, transaction_id, paid_at)
VALUES ($1,$2,$3,$4,$5,$6,$7::jsonb,$8,$9,$10,$11,$12) RETURNING id`,
		t.tenant, p.Number, string(p.Source.Kind), p.Source.ID, string(p.Direction), p.Currency, lines, numeric(p.Total),
		string(p.Status), p.ProcessedBy, nullUUID(p.TransactionID), p.PaidAt)
}

func (t *tx) GetPayment(ctx context.Context, id int64) (payments.Payment, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE tenant_id=$1 AND id=$2`, t.tenant, id)
	p, err := scanPayment(row)
	if err != nil {
		return payments.Payment{}, notFound(err, "payment", id)
	}
	return p, nil
}

func (t *tx) UpdatePayment(ctx context.Context, p payments.Payment) error {
	lines, err := toJSON(p.Lines)
	if err != nil {
		return err
	}
	return t.update(ctx, "payment", p.ID, `UPDATE payments SET lines=$3::jsonb, total=$4, status=$5, transaction_id=$6, currency=$7
WHERE tenant_id=$1 AND id=$2`,
		t.tenant, p.ID, lines, numeric(p.Total), string(p.Status), nullUUID(p.TransactionID), p.Currency)
}

func (t *tx) ListPaymentsBySource(ctx context.Context, ref payments.SourceRef) ([]payments.Payment, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+paymentColumns+` FROM payments
WHERE tenant_id=$1 AND source_kind=$2 AND source_id=$3 ORDER BY id`, t.tenant, string(ref.Kind), ref.ID)
	return collect(rows, err, scanPayment)
}

// Cheques.

const chequeColumns = `id, payment_id, line_index, number, bank_name, cheque_date, amount, status, direction, cleared_at`

func scanCheque(row rowScanner) (payments.Cheque, error) {
	var (
		c                 payments.Cheque
		status, direction string
		clearedAt         *time.Time
	)
	if err := row.Scan(&c.ID, &c.PaymentID, &c.LineIndex, &c.Number, &c.BankName, &c.ChequeDate, &c.Amount,
		&status, &direction, &clearedAt); err != nil {
		return payments.Cheque{}, err
	}
	c.Status = payments.ChequeStatus(status)
	c.Direction = payments.Direction(direction)
	c.ClearedAt = timeOrZero(clearedAt)
	return c, nil
}

func (t *tx) CreateCheque(ctx context.Context, c payments.Cheque) (int64, error) {
	return t.insert(ctx, `INSERT INTO cheques (tenant_id, payment_id, line_index, number, bank_name, cheque_date, amount, status,
direction, cleared_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		t.tenant, c.PaymentID, c.LineIndex, c.Number, c.BankName, c.ChequeDate, numeric(c.Amount), string(c.Status),
		string(c.Direction), nullTime(c.ClearedAt))
}

func (t *tx) GetCheque(ctx context.Context, id int64) (payments.Cheque, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+chequeColumns+` FROM cheques WHERE tenant_id=$1 AND id=$2`, t.tenant, id)
	c, err := scanCheque(row)
	if err != nil {
		return payments.Cheque{}, notFound(err, "cheque", id)
	}
	return c, nil
}

func (t *tx) UpdateChequeStatus(ctx context.Context, id int64, status payments.ChequeStatus, at time.Time) error {
	return t.update(ctx, "cheque", id, `UPDATE cheques SET status=$3, cleared_at=$4 WHERE tenant_id=$1 AND id=$2`,
		t.tenant, id, string(status), nullTime(at))
}

func (t *tx) ListPendingCheques(ctx context.Context, dueBy time.Time) ([]payments.Cheque, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+chequeColumns+` FROM cheques
WHERE tenant_id=$1 AND status=$2 AND cheque_date<=$3 ORDER BY id`,
		t.tenant, string(payments.ChequePendingClearance), dueBy)
	return collect(rows, err, scanCheque)
}

// Purchasing.

const orderColumns = `id, number, supplier_id, branch_id, status, currency, exchange_rate_to_base, expected_at, items, total,
created_by, created_at`

func scanOrder(row rowScanner) (procurement.PurchaseOrder, error) {
	var (
		po         procurement.PurchaseOrder
		status     string
		expectedAt *time.Time
		items      []byte
	)
	if err := row.Scan(&po.ID, &po.Number, &po.SupplierID, &po.BranchID, &status, &po.Currency, &po.ExchangeRateToBase,
		&expectedAt, &items, &po.Total, &po.CreatedBy, &po.CreatedAt); err != nil {
		return procurement.PurchaseOrder{}, err
	}
	po.Status = procurement.POStatus(status)
	po.ExpectedAt = timeOrZero(expectedAt)
	return po, fromJSON(items, &po.Items)
}

func (t *tx) CreatePurchaseOrder(ctx context.Context, po procurement.PurchaseOrder) (int64, error) {
	items, err := toJSON(po.Items)
	if err != nil {
		return 0, err
	}
	return t.insert(ctx, `INSERT INTO purchase_orders (tenant_id, number, supplier_id, branch_id, status, currency,
exchange_rate_to_base, expected_at, items, total, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::jsonb,$10,$11,COALESCE($12::timestamptz, NOW())) RETURNING id`,
		t.tenant, po.Number, po.SupplierID, po.BranchID, string(po.Status), po.Currency, numeric(po.ExchangeRateToBase),
		nullTime(po.ExpectedAt), items, numeric(po.Total), po.CreatedBy, nullTime(po.CreatedAt))
}

func (t *tx) GetPurchaseOrder(ctx context.Context, id int64) (procurement.PurchaseOrder, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE tenant_id=$1 AND id=$2`, t.tenant, id)
	po, err := scanOrder(row)
	if err != nil {
		return procurement.PurchaseOrder{}, notFound(err, "purchase order", id)
	}
	return po, nil
}

func (t *tx) UpdatePurchaseOrder(ctx context.Context, po procurement.PurchaseOrder) error {
	items, err := toJSON(po.Items)
	if err != nil {
		return err
	}
	return t.update(ctx, "purchase order", po.ID, `UPDATE purchase_orders SET status=$3, items=$4::jsonb, total=$5, expected_at=$6
WHERE tenant_id=$1 AND id=$2`,
		t.tenant, po.ID, string(po.Status), items, numeric(po.Total), nullTime(po.ExpectedAt))
}

const receiptColumns = `id, number, purchase_order_id, supplier_id, branch_id, status, currency, exchange_rate, items, total,
total_base, transaction_id, received_at, note, created_by`

func scanReceipt(row rowScanner) (procurement.GoodsReceipt, error) {
	var (
		grn    procurement.GoodsReceipt
		status string
		items  []byte
		txID   *uuid.UUID
	)
	if err := row.Scan(&grn.ID, &grn.Number, &grn.PurchaseOrderID, &grn.SupplierID, &grn.BranchID, &status, &grn.Currency,
		&grn.ExchangeRate, &items, &grn.Total, &grn.TotalBase, &txID, &grn.ReceivedAt, &grn.Note, &grn.CreatedBy); err != nil {
		return procurement.GoodsReceipt{}, err
	}
	grn.Status = procurement.GRNStatus(status)
	grn.TransactionID = uuidOrNil(txID)
	return grn, fromJSON(items, &grn.Items)
}

func (t *tx) CreateGoodsReceipt(ctx context.Context, grn procurement.GoodsReceipt) (int64, error) {
	items, err := toJSON(grn.Items)
	if err != nil {
		return 0, err
	}
	return t.insert(ctx, `INSERT INTO goods_receipts (tenant_id, number, purchase_order_id, supplier_id, branch_id, status, currency,
exchange_rate, items, total, total_base, transaction_id, received_at, note, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::jsonb,$10,$11,$12,$13,$14,$15) RETURNING id`,
		t.tenant, grn.Number, grn.PurchaseOrderID, grn.SupplierID, grn.BranchID, string(grn.Status), grn.Currency,
		numeric(grn.ExchangeRate), items, numeric(grn.Total), numeric(grn.TotalBase), nullUUID(grn.TransactionID),
		grn.ReceivedAt, grn.Note, grn.CreatedBy)
}

func (t *tx) GetGoodsReceipt(ctx context.Context, id int64) (procurement.GoodsReceipt, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+receiptColumns+` FROM goods_receipts WHERE tenant_id=$1 AND id=$2`, t.tenant, id)
	grn, err := scanReceipt(row)
	if err != nil {
		return procurement.GoodsReceipt{}, notFound(err, "goods receipt", id)
	}
	return grn, nil
}

// UpdateGoodsReceipt only touches the fields a receipt may change after it is posted.
func (t *tx) UpdateGoodsReceipt(ctx context.Context, grn procurement.GoodsReceipt) error {
	return t.update(ctx, "goods receipt", grn.ID, `UPDATE goods_receipts SET status=$3, transaction_id=$4
WHERE tenant_id=$1 AND id=$2`, t.tenant, grn.ID, string(grn.Status), nullUUID(grn.TransactionID))
}

func (t *tx) ListGoodsReceipts(ctx context.Context, purchaseOrderID int64) ([]procurement.GoodsReceipt, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+receiptColumns+` FROM goods_receipts
WHERE tenant_id=$1 AND purchase_order_id=$2 ORDER BY id`, t.tenant, purchaseOrderID)
	return collect(rows, err, scanReceipt)
}

// Supplier invoices.

func (t *tx) CreateSupplierInvoice(ctx context.Context, inv ap.SupplierInvoice) (int64, error) {
	items, err := toJSON(inv.Items)
	if err != nil {
		return 0, err
	}
	grnIDs := inv.GoodsReceiptIDs
	if grnIDs == nil {
		grnIDs = []int64{}
	}
	return t.insert(ctx, `INSERT INTO supplier_invoices (tenant_id, number, supplier_reference, supplier_id, purchase_order_id,
goods_receipt_ids, currency, exchange_rate, items, sub_total, total_amount, original_value, variance, variance_base,
amount_paid, payment_status, transaction_id, invoice_date, due_at, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::jsonb,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20) RETURNING id`,
		t.tenant, inv.Number, inv.SupplierReference, inv.SupplierID, inv.PurchaseOrderID, grnIDs, inv.Currency,
		numeric(inv.ExchangeRate), items, numeric(inv.SubTotal), numeric(inv.TotalAmount), numeric(inv.OriginalValue),
		numeric(inv.Variance), numeric(inv.VarianceBase), numeric(inv.AmountPaid), string(inv.PaymentStatus),
		nullUUID(inv.TransactionID), inv.InvoiceDate, nullTime(inv.DueAt), inv.CreatedBy)
}

func (t *tx) GetSupplierInvoice(ctx context.Context, id int64) (ap.SupplierInvoice, error) {
	var (
		inv    ap.SupplierInvoice
		items  []byte
		status string
		txID   *uuid.UUID
		dueAt  *time.Time
	)
	err := t.tx.QueryRow(ctx, `SELECT id, number, supplier_reference, supplier_id, purchase_order_id, goods_receipt_ids, currency,
exchange_rate, items, sub_total, total_amount, original_value, variance, variance_base, amount_paid, payment_status,
transaction_id, invoice_date, due_at, created_by
FROM supplier_invoices WHERE tenant_id=$1 AND id=$2`, t.tenant, id).
		Scan(&inv.ID, &inv.Number, &inv.SupplierReference, &inv.SupplierID, &inv.PurchaseOrderID, &inv.GoodsReceiptIDs,
			&inv.Currency, &inv.ExchangeRate, &items, &inv.SubTotal, &inv.TotalAmount, &inv.OriginalValue, &inv.Variance,
			&inv.VarianceBase, &inv.AmountPaid, &status, &txID, &inv.InvoiceDate, &dueAt, &inv.CreatedBy)
	if err != nil {
		return ap.SupplierInvoice{}, notFound(err, "supplier invoice", id)
	}
	inv.PaymentStatus = shared.PaymentStatus(status)
	inv.TransactionID = uuidOrNil(txID)
	inv.DueAt = timeOrZero(dueAt)
	return inv, fromJSON(items, &inv.Items)
}

func (t *tx) SetSupplierInvoiceTransaction(ctx context.Context, id int64, transactionID uuid.UUID) error {
	return t.update(ctx, "supplier invoice", id, `UPDATE supplier_invoices SET transaction_id=$3 WHERE tenant_id=$1 AND id=$2`,
		t.tenant, id, nullUUID(transactionID))
}

// Installment plans.

const planColumns = `id, source_kind, source_id, total_amount, frequency, start_date, installments, status, created_by, created_at`

func scanPlan(row rowScanner) (installments.Plan, error) {
	var (
		plan                    installments.Plan
		kind, frequency, status string
		lines                   []byte
	)
	if err := row.Scan(&plan.ID, &kind, &plan.Source.ID, &plan.TotalAmount, &frequency, &plan.StartDate, &lines, &status,
		&plan.CreatedBy, &plan.CreatedAt); err != nil {
		return installments.Plan{}, err
	}
	plan.Source.Kind = payments.SourceKind(kind)
	plan.Frequency = installments.Frequency(frequency)
	plan.Status = installments.PlanStatus(status)
	return plan, fromJSON(lines, &plan.Installments)
}

func (t *tx) CreatePlan(ctx context.Context, plan installments.Plan) (int64, error) {
	lines, err := toJSON(plan.Installments)
	if err != nil {
		return 0, err
	}
	return t.insert(ctx, `INSERT INTO payment_plans (tenant_id, source_kind, source_id, total_amount, frequency, start_date,
installments, status, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7::jsonb,$8,$9,COALESCE($10::timestamptz, NOW())) RETURNING id`,
		t.tenant, string(plan.Source.Kind), plan.Source.ID, numeric(plan.TotalAmount), string(plan.Frequency), plan.StartDate,
		lines, string(plan.Status), plan.CreatedBy, nullTime(plan.CreatedAt))
}

func (t *tx) GetPlan(ctx context.Context, id int64) (installments.Plan, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+planColumns+` FROM payment_plans WHERE tenant_id=$1 AND id=$2`, t.tenant, id)
	plan, err := scanPlan(row)
	if err != nil {
		return installments.Plan{}, notFound(err, "payment plan", id)
	}
	return plan, nil
}

func (t *tx) UpdatePlan(ctx context.Context, plan installments.Plan) error {
	lines, err := toJSON(plan.Installments)
	if err != nil {
		return err
	}
	return t.update(ctx, "payment plan", plan.ID, `UPDATE payment_plans SET installments=$3::jsonb, status=$4
WHERE tenant_id=$1 AND id=$2`, t.tenant, plan.ID, lines, string(plan.Status))
}

func (t *tx) ListActivePlans(ctx context.Context) ([]installments.Plan, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+planColumns+` FROM payment_plans WHERE tenant_id=$1 AND status=$2 ORDER BY id`,
		t.tenant, string(installments.PlanActive))
	return collect(rows, err, scanPlan)
}

// Returns.

const rmaColumns = `id, number, sales_invoice_id, customer_id, branch_id, currency, exchange_rate, items, total_refund,
resolution, reason, amount_paid, payment_status, transaction_id, voucher_id, created_by, created_at`

func scanRMA(row rowScanner) (returns.RMA, error) {
	var (
		rma                returns.RMA
		items              []byte
		resolution, status string
		txID               *uuid.UUID
	)
	if err := row.Scan(&rma.ID, &rma.Number, &rma.SalesInvoiceID, &rma.CustomerID, &rma.BranchID, &rma.Currency,
		&rma.ExchangeRate, &items, &rma.TotalRefund, &resolution, &rma.Reason, &rma.AmountPaid, &status, &txID,
		&rma.VoucherID, &rma.CreatedBy, &rma.CreatedAt); err != nil {
		return returns.RMA{}, err
	}
	rma.Resolution = returns.Resolution(resolution)
	rma.PaymentStatus = shared.PaymentStatus(status)
	rma.TransactionID = uuidOrNil(txID)
	return rma, fromJSON(items, &rma.Items)
}

func (t *tx) CreateRMA(ctx context.Context, rma returns.RMA) (int64, error) {
	items, err := toJSON(rma.Items)
	if err != nil {
		return 0, err
	}
	return t.insert(ctx, `INSERT INTO rmas (tenant_id, number, sales_invoice_id, customer_id, branch_id, currency, exchange_rate,
items, total_refund, resolution, reason, amount_paid, payment_status, transaction_id, voucher_id, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8::jsonb,$9,$10,$11,$12,$13,$14,$15,$16,$17) RETURNING id`,
		t.tenant, rma.Number, rma.SalesInvoiceID, rma.CustomerID, rma.BranchID, rma.Currency, numeric(rma.ExchangeRate),
		items, numeric(rma.TotalRefund), string(rma.Resolution), rma.Reason, numeric(rma.AmountPaid),
		string(rma.PaymentStatus), nullUUID(rma.TransactionID), rma.VoucherID, rma.CreatedBy, rma.CreatedAt)
}

func (t *tx) GetRMA(ctx context.Context, id int64) (returns.RMA, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+rmaColumns+` FROM rmas WHERE tenant_id=$1 AND id=$2`, t.tenant, id)
	rma, err := scanRMA(row)
	if err != nil {
		return returns.RMA{}, notFound(err, "rma", id)
	}
	return rma, nil
}

func (t *tx) UpdateRMA(ctx context.Context, rma returns.RMA) error {
	return t.update(ctx, "rma", rma.ID, `UPDATE rmas
SET currency=$3, exchange_rate=$4, amount_paid=$5, payment_status=$6, transaction_id=$7, voucher_id=$8
WHERE tenant_id=$1 AND id=$2`,
		t.tenant, rma.ID, rma.Currency, numeric(rma.ExchangeRate), numeric(rma.AmountPaid), string(rma.PaymentStatus),
		nullUUID(rma.TransactionID), rma.VoucherID)
}

func (t *tx) ListRMAsByInvoice(ctx context.Context, salesInvoiceID int64) ([]returns.RMA, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+rmaColumns+` FROM rmas WHERE tenant_id=$1 AND sales_invoice_id=$2 ORDER BY id`,
		t.tenant, salesInvoiceID)
	return collect(rows, err, scanRMA)
}

func (t *tx) CreateVoucher(ctx context.Context, v returns.RefundVoucher) (int64, error) {
	return t.insert(ctx, `INSERT INTO refund_vouchers (tenant_id, code, rma_id, customer_id, currency, initial_amount,
current_balance, issued_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		t.tenant, v.Code, v.RMAID, v.CustomerID, v.Currency, numeric(v.InitialAmount), numeric(v.CurrentBalance), v.IssuedAt)
}

func (t *tx) GetVoucherByCode(ctx context.Context, code string) (returns.RefundVoucher, error) {
	var v returns.RefundVoucher
	err := t.tx.QueryRow(ctx, `SELECT id, code, rma_id, customer_id, currency, initial_amount, current_balance, issued_at
FROM refund_vouchers WHERE tenant_id=$1 AND code=$2 FOR UPDATE`, t.tenant, code).
		Scan(&v.ID, &v.Code, &v.RMAID, &v.CustomerID, &v.Currency, &v.InitialAmount, &v.CurrentBalance, &v.IssuedAt)
	if err != nil {
		return returns.RefundVoucher{}, notFound(err, "refund voucher", code)
	}
	return v, nil
}

func (t *tx) UpdateVoucherBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	return t.update(ctx, "refund voucher", id, `UPDATE refund_vouchers SET current_balance=$3 WHERE tenant_id=$1 AND id=$2`,
		t.tenant, id, numeric(balance))
}
