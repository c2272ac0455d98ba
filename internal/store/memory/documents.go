package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
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

// Inventory.

func (t *tx) GetStockForUpdate(ctx context.Context, branchID, variantID int64) (inventory.Balance, bool, error) {
	balance, ok := t.state.stock[stockKey{branch: branchID, variant: variantID}]
	return balance, ok, nil
}

func (t *tx) UpsertStock(ctx context.Context, balance inventory.Balance) error {
	t.state.stock[stockKey{branch: balance.BranchID, variant: balance.VariantID}] = balance
	return nil
}

func (t *tx) InsertMovement(ctx context.Context, movement inventory.Movement) (int64, error) {
	movement.ID = t.state.id()
	movement.Serials = slices.Clone(movement.Serials)
	t.state.movements = append(t.state.movements, movement)
	return movement.ID, nil
}

// Parties.

func (t *tx) CreateSupplier(ctx context.Context, supplier masterdata.Supplier) (int64, error) {
	supplier.ID = t.state.id()
	t.state.suppliers[supplier.ID] = supplier
	return supplier.ID, nil
}

func (t *tx) GetSupplier(ctx context.Context, id int64) (masterdata.Supplier, error) {
	supplier, ok := t.state.suppliers[id]
	if !ok {
		return masterdata.Supplier{}, shared.NotFound("supplier", id)
	}
	return supplier, nil
}

func (t *tx) CreateCustomer(ctx context.Context, customer masterdata.Customer) (int64, error) {
	customer.ID = t.state.id()
	t.state.customers[customer.ID] = customer
	return customer.ID, nil
}

func (t *tx) GetCustomer(ctx context.Context, id int64) (masterdata.Customer, error) {
	customer, ok := t.state.customers[id]
	if !ok {
		return masterdata.Customer{}, shared.NotFound("customer", id)
	}
	return customer, nil
}

// Sales invoices.

func (t *tx) CreateSalesInvoice(ctx context.Context, inv sales.Invoice) (int64, error) {
	inv.ID = t.state.id()
	inv.Lines = slices.Clone(inv.Lines)
	t.state.invoices[inv.ID] = inv
	return inv.ID, nil
}

func (t *tx) GetSalesInvoice(ctx context.Context, id int64) (sales.Invoice, error) {
	inv, ok := t.state.invoices[id]
	if !ok {
		return sales.Invoice{}, shared.NotFound("sales invoice", id)
	}
	inv.Lines = slices.Clone(inv.Lines)
	return inv, nil
}

func (t *tx) UpdateSalesInvoice(ctx context.Context, inv sales.Invoice) error {
	if _, ok := t.state.invoices[inv.ID]; !ok {
		return shared.NotFound("sales invoice", inv.ID)
	}
	inv.Lines = slices.Clone(inv.Lines)
	t.state.invoices[inv.ID] = inv
	return nil
}

func (t *tx) UpdateSalesInvoicePayment(ctx context.Context, id int64, paid decimal.Decimal, status shared.PaymentStatus) error {
	inv, ok := t.state.invoices[id]
	if !ok {
		return shared.NotFound("sales invoice", id)
	}
	inv.AmountPaid = paid
	inv.PaymentStatus = status
	t.state.invoices[id] = inv
	return nil
}

// Payment sources.

func (t *tx) PurchaseInvoiceSource(ctx context.Context, id int64) (payments.Source, error) {
	inv, ok := t.state.supplierInvoices[id]
	if !ok {
		return payments.Source{}, shared.NotFound("supplier invoice", id)
	}
	supplier, err := t.GetSupplier(ctx, inv.SupplierID)
	if err != nil {
		return payments.Source{}, err
	}
	return payments.Source{
		Ref:            payments.SourceRef{Kind: payments.SourcePurchaseInvoice, ID: id},
		Number:         inv.Number,
		PartyAccountID: supplier.PayableAccountID,
		Currency:       inv.Currency,
		ExchangeRate:   inv.ExchangeRate,
		Total:          inv.TotalAmount,
	}, nil
}

func (t *tx) SalesInvoiceSource(ctx context.Context, id int64) (payments.Source, error) {
	inv, err := t.GetSalesInvoice(ctx, id)
	if err != nil {
		return payments.Source{}, err
	}
	customer, err := t.GetCustomer(ctx, inv.CustomerID)
	if err != nil {
		return payments.Source{}, err
	}
	return payments.Source{
		Ref:            payments.SourceRef{Kind: payments.SourceSalesInvoice, ID: id},
		Number:         inv.Number,
		PartyAccountID: customer.ReceivableAccountID,
		Currency:       inv.Currency,
		ExchangeRate:   inv.ExchangeRate,
		Total:          inv.Total,
	}, nil
}

func (t *tx) ReturnSource(ctx context.Context, id int64) (payments.Source, error) {
	rma, err := t.GetRMA(ctx, id)
	if err != nil {
		return payments.Source{}, err
	}
	customer, err := t.GetCustomer(ctx, rma.CustomerID)
	if err != nil {
		return payments.Source{}, err
	}
	return payments.Source{
		Ref:            payments.SourceRef{Kind: payments.SourceSalesReturn, ID: id},
		Number:         rma.Number,
		PartyAccountID: customer.ReceivableAccountID,
		Currency:       rma.Currency,
		ExchangeRate:   rma.ExchangeRate,
		Total:          rma.TotalRefund,
	}, nil
}

func (t *tx) SetPurchaseInvoicePayment(ctx context.Context, id int64, paid decimal.Decimal, status shared.PaymentStatus) error {
	inv, ok := t.state.supplierInvoices[id]
	if !ok {
		return shared.NotFound("supplier invoice", id)
	}
	inv.AmountPaid = paid
	inv.PaymentStatus = status
	t.state.supplierInvoices[id] = inv
	return nil
}

func (t *tx) SetSalesInvoicePayment(ctx context.Context, id int64, paid decimal.Decimal, status shared.PaymentStatus) error {
	return t.UpdateSalesInvoicePayment(ctx, id, paid, status)
}

func (t *tx) SetReturnPayment(ctx context.Context, id int64, paid decimal.Decimal, status shared.PaymentStatus) error {
	rma, ok := t.state.rmas[id]
	if !ok {
		return shared.NotFound("rma", id)
	}
	rma.AmountPaid = paid
	rma.PaymentStatus = status
	t.state.rmas[id] = rma
	return nil
}

// Payments.

func (t *tx) CreatePaymentMethod(ctx context.Context, method payments.Method) (int64, error) {
	method.ID = t.state.id()
	t.state.methods[method.ID] = method
	return method.ID, nil
}

func (t *tx) GetPaymentMethod(ctx context.Context, id int64) (payments.Method, error) {
	method, ok := t.state.methods[id]
	if !ok {
		return payments.Method{}, shared.NotFound("payment method", id)
	}
	return method, nil
}

func (t *tx) CreatePayment(ctx context.Context, payment payments.Payment) (int64, error) {
	payment.ID = t.state.id()
	payment.Lines = slices.Clone(payment.Lines)
	t.state.payments[payment.ID] = payment
	return payment.ID, nil
}

func (t *tx) GetPayment(ctx context.Context, id int64) (payments.Payment, error) {
	payment, ok := t.state.payments[id]
	if !ok {
		return payments.Payment{}, shared.NotFound("payment", id)
	}
	payment.Lines = slices.Clone(payment.Lines)
	return payment, nil
}

func (t *tx) UpdatePayment(ctx context.Context, payment payments.Payment) error {
	if _, ok := t.state.payments[payment.ID]; !ok {
		return shared.NotFound("payment", payment.ID)
	}
	payment.Lines = slices.Clone(payment.Lines)
	t.state.payments[payment.ID] = payment
	return nil
}

func (t *tx) ListPaymentsBySource(ctx context.Context, ref payments.SourceRef) ([]payments.Payment, error) {
	var out []payments.Payment
	for _, payment := range t.state.payments {
		if payment.Source == ref {
			payment.Lines = slices.Clone(payment.Lines)
			out = append(out, payment)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) CreateCheque(ctx context.Context, cheque payments.Cheque) (int64, error) {
	cheque.ID = t.state.id()
	t.state.cheques[cheque.ID] = cheque
	return cheque.ID, nil
}

func (t *tx) GetCheque(ctx context.Context, id int64) (payments.Cheque, error) {
	cheque, ok := t.state.cheques[id]
	if !ok {
		return payments.Cheque{}, shared.NotFound("cheque", id)
	}
	return cheque, nil
}

func (t *tx) UpdateChequeStatus(ctx context.Context, id int64, status payments.ChequeStatus, at time.Time) error {
	cheque, ok := t.state.cheques[id]
	if !ok {
		return shared.NotFound("cheque", id)
	}
	cheque.Status = status
	cheque.ClearedAt = at
	t.state.cheques[id] = cheque
	return nil
}

func (t *tx) ListPendingCheques(ctx context.Context, dueBy time.Time) ([]payments.Cheque, error) {
	var out []payments.Cheque
	for _, cheque := range t.state.cheques {
		if cheque.Status == payments.ChequePendingClearance && !cheque.ChequeDate.After(dueBy) {
			out = append(out, cheque)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Purchasing.

func copyOrder(po procurement.PurchaseOrder) procurement.PurchaseOrder {
	po.Items = slices.Clone(po.Items)
	return po
}

func copyReceipt(grn procurement.GoodsReceipt) procurement.GoodsReceipt {
	items := make([]procurement.GRNItem, len(grn.Items))
	for i, item := range grn.Items {
		item.Serials = slices.Clone(item.Serials)
		items[i] = item
	}
	grn.Items = items
	return grn
}

func (t *tx) CreatePurchaseOrder(ctx context.Context, po procurement.PurchaseOrder) (int64, error) {
	po.ID = t.state.id()
	t.state.orders[po.ID] = copyOrder(po)
	return po.ID, nil
}

func (t *tx) GetPurchaseOrder(ctx context.Context, id int64) (procurement.PurchaseOrder, error) {
	po, ok := t.state.orders[id]
	if !ok {
		return procurement.PurchaseOrder{}, shared.NotFound("purchase order", id)
	}
	return copyOrder(po), nil
}

func (t *tx) UpdatePurchaseOrder(ctx context.Context, po procurement.PurchaseOrder) error {
	if _, ok := t.state.orders[po.ID]; !ok {
		return shared.NotFound("purchase order", po.ID)
	}
	t.state.orders[po.ID] = copyOrder(po)
	return nil
}

func (t *tx) CreateGoodsReceipt(ctx context.Context, grn procurement.GoodsReceipt) (int64, error) {
	grn.ID = t.state.id()
	t.state.receipts[grn.ID] = copyReceipt(grn)
	return grn.ID, nil
}

func (t *tx) GetGoodsReceipt(ctx context.Context, id int64) (procurement.GoodsReceipt, error) {
	grn, ok := t.state.receipts[id]
	if !ok {
		return procurement.GoodsReceipt{}, shared.NotFound("goods receipt", id)
	}
	return copyReceipt(grn), nil
}

func (t *tx) UpdateGoodsReceipt(ctx context.Context, grn procurement.GoodsReceipt) error {
	if _, ok := t.state.receipts[grn.ID]; !ok {
		return shared.NotFound("goods receipt", grn.ID)
	}
	t.state.receipts[grn.ID] = copyReceipt(grn)
	return nil
}

func (t *tx) ListGoodsReceipts(ctx context.Context, purchaseOrderID int64) ([]procurement.GoodsReceipt, error) {
	var out []procurement.GoodsReceipt
	for _, grn := range t.state.receipts {
		if grn.PurchaseOrderID == purchaseOrderID {
			out = append(out, copyReceipt(grn))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) CreateSupplierInvoice(ctx context.Context, inv ap.SupplierInvoice) (int64, error) {
	inv.ID = t.state.id()
	inv.Items = slices.Clone(inv.Items)
	inv.GoodsReceiptIDs = slices.Clone(inv.GoodsReceiptIDs)
	t.state.supplierInvoices[inv.ID] = inv
	return inv.ID, nil
}

func (t *tx) GetSupplierInvoice(ctx context.Context, id int64) (ap.SupplierInvoice, error) {
	inv, ok := t.state.supplierInvoices[id]
	if !ok {
		return ap.SupplierInvoice{}, shared.NotFound("supplier invoice", id)
	}
	inv.Items = slices.Clone(inv.Items)
	inv.GoodsReceiptIDs = slices.Clone(inv.GoodsReceiptIDs)
	return inv, nil
}

func (t *tx) SetSupplierInvoiceTransaction(ctx context.Context, id int64, transactionID uuid.UUID) error {
	inv, ok := t.state.supplierInvoices[id]
	if !ok {
		return shared.NotFound("supplier invoice", id)
	}
	inv.TransactionID = transactionID
	t.state.supplierInvoices[id] = inv
	return nil
}

// Installment plans.

func (t *tx) CreatePlan(ctx context.Context, plan installments.Plan) (int64, error) {
	plan.ID = t.state.id()
	plan.Installments = slices.Clone(plan.Installments)
	t.state.plans[plan.ID] = plan
	return plan.ID, nil
}

func (t *tx) GetPlan(ctx context.Context, id int64) (installments.Plan, error) {
	plan, ok := t.state.plans[id]
	if !ok {
		return installments.Plan{}, shared.NotFound("payment plan", id)
	}
	plan.Installments = slices.Clone(plan.Installments)
	return plan, nil
}

func (t *tx) UpdatePlan(ctx context.Context, plan installments.Plan) error {
	if _, ok := t.state.plans[plan.ID]; !ok {
		return shared.NotFound("payment plan", plan.ID)
	}
	plan.Installments = slices.Clone(plan.Installments)
	t.state.plans[plan.ID] = plan
	return nil
}

func (t *tx) ListActivePlans(ctx context.Context) ([]installments.Plan, error) {
	var out []installments.Plan
	for _, plan := range t.state.plans {
		if plan.Status == installments.PlanActive {
			plan.Installments = slices.Clone(plan.Installments)
			out = append(out, plan)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Returns.

func copyRMA(rma returns.RMA) returns.RMA {
	items := make([]returns.Item, len(rma.Items))
	for i, item := range rma.Items {
		item.Serials = slices.Clone(item.Serials)
		items[i] = item
	}
	rma.Items = items
	return rma
}

func (t *tx) CreateRMA(ctx context.Context, rma returns.RMA) (int64, error) {
	rma.ID = t.state.id()
	t.state.rmas[rma.ID] = copyRMA(rma)
	return rma.ID, nil
}

func (t *tx) GetRMA(ctx context.Context, id int64) (returns.RMA, error) {
	rma, ok := t.state.rmas[id]
	if !ok {
		return returns.RMA{}, shared.NotFound("rma", id)
	}
	return copyRMA(rma), nil
}

func (t *tx) UpdateRMA(ctx context.Context, rma returns.RMA) error {
	if _, ok := t.state.rmas[rma.ID]; !ok {
		return shared.NotFound("rma", rma.ID)
	}
	t.state.rmas[rma.ID] = copyRMA(rma)
	return nil
}

func (t *tx) ListRMAsByInvoice(ctx context.Context, salesInvoiceID int64) ([]returns.RMA, error) {
	var out []returns.RMA
	for _, rma := range t.state.rmas {
		if rma.SalesInvoiceID == salesInvoiceID {
			out = append(out, copyRMA(rma))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) CreateVoucher(ctx context.Context, voucher returns.RefundVoucher) (int64, error) {
	voucher.ID = t.state.id()
	t.state.vouchers[voucher.ID] = voucher
	return voucher.ID, nil
}

func (t *tx) GetVoucherByCode(ctx context.Context, code string) (returns.RefundVoucher, error) {
	for _, voucher := range t.state.vouchers {
		if voucher.Code == code {
			return voucher, nil
		}
	}
	return returns.RefundVoucher{}, shared.NotFound("refund voucher", code)
}

func (t *tx) UpdateVoucherBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	voucher, ok := t.state.vouchers[id]
	if !ok {
		return shared.NotFound("refund voucher", id)
	}
	voucher.CurrentBalance = balance
	t.state.vouchers[id] = voucher
	return nil
}
