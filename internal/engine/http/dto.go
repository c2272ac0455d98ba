package enginehttp

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/ap"
	"github.com/odyssey-erp/odyssey-ledger/internal/fx"
	"github.com/odyssey-erp/odyssey-ledger/internal/installments"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/masterdata"
	"github.com/odyssey-erp/odyssey-ledger/internal/payments"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/returns"
	"github.com/odyssey-erp/odyssey-ledger/internal/sales"
)

type accountRequest struct {
	Code      string `json:"code" validate:"required,max=32"`
	Name      string `json:"name" validate:"required,max=200"`
	Type      string `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	SubType   string `json:"sub_type"`
	SystemKey string `json:"system_key"`
}

func (r accountRequest) toDomain() ledger.Account {
	return ledger.Account{
		Code:      r.Code,
		Name:      r.Name,
		Type:      ledger.AccountType(r.Type),
		SubType:   r.SubType,
		IsSystem:  r.SystemKey != "",
		SystemKey: ledger.SystemAccount(r.SystemKey),
	}
}

type journalLine struct {
	AccountID int64           `json:"account_id" validate:"required,gt=0"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

type journalRequest struct {
	Description string           `json:"description" validate:"max=500"`
	Currency    string           `json:"currency" validate:"omitempty,len=3"`
	Date        time.Time        `json:"date"`
	Lines       []journalLine    `json:"lines" validate:"required,min=2,dive"`
	FixedRate   *decimal.Decimal `json:"fixed_rate"`
}

func (r journalRequest) toDomain() ledger.JournalInput {
	lines := make([]ledger.Line, len(r.Lines))
	for i, l := range r.Lines {
		lines[i] = ledger.Line{AccountID: l.AccountID, Debit: l.Debit, Credit: l.Credit}
	}
	return ledger.JournalInput{
		Description: r.Description,
		Currency:    r.Currency,
		Date:        r.Date,
		Lines:       lines,
		FixedRate:   r.FixedRate,
	}
}

type reverseRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type rateRequest struct {
	From string          `json:"from" validate:"required,len=3"`
	To   string          `json:"to" validate:"required,len=3"`
	Date time.Time       `json:"date" validate:"required"`
	Rate decimal.Decimal `json:"rate"`
}

func (r rateRequest) toDomain() fx.Rate {
	return fx.Rate{From: r.From, To: r.To, Date: r.Date, Rate: r.Rate}
}

type supplierRequest struct {
	Code             string `json:"code" validate:"required,max=32"`
	Name             string `json:"name" validate:"required,max=200"`
	Currency         string `json:"currency" validate:"omitempty,len=3"`
	PayableAccountID int64  `json:"payable_account_id" validate:"gte=0"`
}

func (r supplierRequest) toDomain() masterdata.Supplier {
	return masterdata.Supplier{Code: r.Code, Name: r.Name, Currency: r.Currency, PayableAccountID: r.PayableAccountID}
}

type customerRequest struct {
	Code                string `json:"code" validate:"required,max=32"`
	Name                string `json:"name" validate:"required,max=200"`
	ReceivableAccountID int64  `json:"receivable_account_id" validate:"gte=0"`
}

func (r customerRequest) toDomain() masterdata.Customer {
	return masterdata.Customer{Code: r.Code, Name: r.Name, ReceivableAccountID: r.ReceivableAccountID}
}

type methodRequest struct {
	Name             string `json:"name" validate:"required,max=100"`
	Type             string `json:"type" validate:"required,oneof=cash card bank_transfer cheque"`
	LinkedAccountID  int64  `json:"linked_account_id" validate:"required,gt=0"`
	HoldingAccountID int64  `json:"holding_account_id" validate:"required_if=Type cheque"`
}

func (r methodRequest) toDomain() payments.Method {
	return payments.Method{
		Name:             r.Name,
		Type:             payments.MethodType(r.Type),
		LinkedAccountID:  r.LinkedAccountID,
		HoldingAccountID: r.HoldingAccountID,
	}
}

type salesLine struct {
	VariantID int64           `json:"variant_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

type salesInvoiceRequest struct {
	CustomerID int64       `json:"customer_id" validate:"required,gt=0"`
	BranchID   int64       `json:"branch_id" validate:"gte=0"`
	Currency   string      `json:"currency" validate:"omitempty,len=3"`
	IssuedAt   time.Time   `json:"issued_at"`
	Lines      []salesLine `json:"lines" validate:"required,min=1,dive"`
}

func (r salesInvoiceRequest) toDomain() sales.PostInvoiceInput {
	lines := make([]sales.InvoiceLine, len(r.Lines))
	for i, l := range r.Lines {
		lines[i] = sales.InvoiceLine{VariantID: l.VariantID, Quantity: l.Quantity, UnitPrice: l.UnitPrice, UnitCost: l.UnitCost}
	}
	return sales.PostInvoiceInput{
		CustomerID: r.CustomerID,
		BranchID:   r.BranchID,
		Currency:   r.Currency,
		IssuedAt:   r.IssuedAt,
		Lines:      lines,
	}
}

type paymentLine struct {
	MethodID        int64           `json:"method_id" validate:"required,gt=0"`
	Amount          decimal.Decimal `json:"amount"`
	ReferenceNumber string          `json:"reference_number" validate:"max=100"`
	Cheque          *chequeDetails  `json:"cheque"`
}

type chequeDetails struct {
	Number   string    `json:"number" validate:"required,max=50"`
	BankName string    `json:"bank_name" validate:"max=100"`
	Date     time.Time `json:"date"`
}

func toLineInputs(lines []paymentLine) []payments.LineInput {
	out := make([]payments.LineInput, len(lines))
	for i, l := range lines {
		out[i] = payments.LineInput{MethodID: l.MethodID, Amount: l.Amount, ReferenceNumber: l.ReferenceNumber}
		if l.Cheque != nil {
			out[i].Cheque = &payments.ChequeDetails{Number: l.Cheque.Number, BankName: l.Cheque.BankName, Date: l.Cheque.Date}
		}
	}
	return out
}

type sourceRef struct {
	Kind string `json:"kind" validate:"required,oneof=purchase_invoice sales_invoice sales_return"`
	ID   int64  `json:"id" validate:"required,gt=0"`
}

func (s sourceRef) toDomain() payments.SourceRef {
	return payments.SourceRef{Kind: payments.SourceKind(s.Kind), ID: s.ID}
}

type paymentRequest struct {
	Source      sourceRef     `json:"source"`
	Direction   string        `json:"direction" validate:"omitempty,oneof=inflow outflow"`
	Lines       []paymentLine `json:"lines" validate:"required,min=1,dive"`
	Date        time.Time     `json:"date"`
	Description string        `json:"description" validate:"max=500"`
}

func (r paymentRequest) toDomain() payments.Input {
	return payments.Input{
		Source:      r.Source.toDomain(),
		Direction:   payments.Direction(r.Direction),
		Lines:       toLineInputs(r.Lines),
		Date:        r.Date,
		Description: r.Description,
	}
}

type chequeActionRequest struct {
	At time.Time `json:"at"`
}

type poItem struct {
	VariantID int64           `json:"variant_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
	CostPrice decimal.Decimal `json:"cost_price"`
}

type purchaseOrderRequest struct {
	SupplierID   int64            `json:"supplier_id" validate:"required,gt=0"`
	BranchID     int64            `json:"branch_id" validate:"gte=0"`
	Currency     string           `json:"currency" validate:"required,len=3"`
	ExpectedAt   time.Time        `json:"expected_at"`
	Items        []poItem         `json:"items" validate:"required,min=1,dive"`
	ExchangeRate *decimal.Decimal `json:"exchange_rate"`
}

func (r purchaseOrderRequest) toDomain() procurement.CreatePOInput {
	items := make([]procurement.POItemInput, len(r.Items))
	for i, item := range r.Items {
		items[i] = procurement.POItemInput{VariantID: item.VariantID, Quantity: item.Quantity, CostPrice: item.CostPrice}
	}
	return procurement.CreatePOInput{
		SupplierID:   r.SupplierID,
		BranchID:     r.BranchID,
		Currency:     r.Currency,
		ExpectedAt:   r.ExpectedAt,
		Items:        items,
		ExchangeRate: r.ExchangeRate,
	}
}

type receiveItem struct {
	VariantID int64           `json:"variant_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
	Serials   []string        `json:"serials"`
}

type receiptRequest struct {
	PurchaseOrderID int64         `json:"purchase_order_id" validate:"required,gt=0"`
	BranchID        int64         `json:"branch_id" validate:"gte=0"`
	ReceivedAt      time.Time     `json:"received_at"`
	Note            string        `json:"note" validate:"max=500"`
	Items           []receiveItem `json:"items" validate:"required,min=1,dive"`
}

func (r receiptRequest) toDomain() procurement.ReceiveInput {
	items := make([]procurement.ReceiveItem, len(r.Items))
	for i, item := range r.Items {
		items[i] = procurement.ReceiveItem{VariantID: item.VariantID, Quantity: item.Quantity, Serials: item.Serials}
	}
	return procurement.ReceiveInput{
		PurchaseOrderID: r.PurchaseOrderID,
		BranchID:        r.BranchID,
		ReceivedAt:      r.ReceivedAt,
		Note:            r.Note,
		Items:           items,
	}
}

type billedItem struct {
	VariantID      int64           `json:"variant_id" validate:"required,gt=0"`
	QuantityBilled decimal.Decimal `json:"quantity_billed"`
	FinalCostPrice decimal.Decimal `json:"final_cost_price"`
}

type supplierInvoiceRequest struct {
	SupplierID        int64        `json:"supplier_id" validate:"required,gt=0"`
	GoodsReceiptIDs   []int64      `json:"goods_receipt_ids" validate:"required,min=1,dive,gt=0"`
	Items             []billedItem `json:"items" validate:"required,min=1,dive"`
	SupplierReference string       `json:"supplier_reference" validate:"max=100"`
	InvoiceDate       time.Time    `json:"invoice_date"`
	DueAt             time.Time    `json:"due_at"`
}

func (r supplierInvoiceRequest) toDomain() ap.PostInvoiceInput {
	items := make([]ap.BilledItem, len(r.Items))
	for i, item := range r.Items {
		items[i] = ap.BilledItem{VariantID: item.VariantID, QuantityBilled: item.QuantityBilled, FinalCostPrice: item.FinalCostPrice}
	}
	return ap.PostInvoiceInput{
		SupplierID:        r.SupplierID,
		GoodsReceiptIDs:   r.GoodsReceiptIDs,
		Items:             items,
		SupplierReference: r.SupplierReference,
		InvoiceDate:       r.InvoiceDate,
		DueAt:             r.DueAt,
	}
}

type planRequest struct {
	Source       sourceRef       `json:"source"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Installments int             `json:"installments" validate:"required,gt=0,lte=120"`
	StartDate    time.Time       `json:"start_date"`
	Frequency    string          `json:"frequency" validate:"omitempty,oneof=monthly"`
}

func (r planRequest) toDomain() installments.CreatePlanInput {
	return installments.CreatePlanInput{
		Source:       r.Source.toDomain(),
		TotalAmount:  r.TotalAmount,
		Installments: r.Installments,
		StartDate:    r.StartDate,
		Frequency:    installments.Frequency(r.Frequency),
	}
}

type installmentPaymentRequest struct {
	Lines  []paymentLine `json:"lines" validate:"required,min=1,dive"`
	PaidAt time.Time     `json:"paid_at"`
}

type returnItem struct {
	VariantID int64           `json:"variant_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
	Serials   []string        `json:"serials"`
}

type returnRequest struct {
	SalesInvoiceID int64         `json:"sales_invoice_id" validate:"required,gt=0"`
	BranchID       int64         `json:"branch_id" validate:"gte=0"`
	Items          []returnItem  `json:"items" validate:"required,min=1,dive"`
	Resolution     string        `json:"resolution" validate:"required,oneof=refund store_credit"`
	RefundLines    []paymentLine `json:"refund_lines" validate:"required_if=Resolution refund,dive"`
	Reason         string        `json:"reason" validate:"max=500"`
	Date           time.Time     `json:"date"`
}

func (r returnRequest) toDomain() returns.ReturnInput {
	items := make([]returns.ReturnItem, len(r.Items))
	for i, item := range r.Items {
		items[i] = returns.ReturnItem{VariantID: item.VariantID, Quantity: item.Quantity, Serials: item.Serials}
	}
	return returns.ReturnInput{
		SalesInvoiceID: r.SalesInvoiceID,
		BranchID:       r.BranchID,
		Items:          items,
		Resolution:     returns.Resolution(r.Resolution),
		RefundLines:    toLineInputs(r.RefundLines),
		Reason:         r.Reason,
		Date:           r.Date,
	}
}

type redeemRequest struct {
	Amount decimal.Decimal `json:"amount"`
}
