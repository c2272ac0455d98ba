// Package payments allocates split, multi-method payments against source
// documents and tracks deferred-clearance instruments such as cheques.
package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Direction tells whether money enters or leaves the business.
type Direction string

const (
	DirectionInflow  Direction = "inflow"
	DirectionOutflow Direction = "outflow"
)

// Status is the payment header lifecycle. A payment is bounced when none of
// its lines was collected.
type Status string

const (
	StatusCompleted        Status = "completed"
	StatusPendingClearance Status = "pending_clearance"
	StatusVoided           Status = "voided"
	StatusBounced          Status = "bounced"
)

// LineStatus tracks clearance of one payment line.
type LineStatus string

const (
	LineCleared LineStatus = "cleared"
	LinePending LineStatus = "pending"
	LineBounced LineStatus = "bounced"
)

// ChequeStatus tracks the cheque side record.
type ChequeStatus string

const (
	ChequePendingClearance ChequeStatus = "pending_clearance"
	ChequeCleared          ChequeStatus = "cleared"
	ChequeBounced          ChequeStatus = "bounced"
	ChequeCancelled        ChequeStatus = "cancelled"
)

// MethodType classifies payment methods.
type MethodType string

const (
	MethodCash         MethodType = "cash"
	MethodCard         MethodType = "card"
	MethodBankTransfer MethodType = "bank_transfer"
	MethodCheque       MethodType = "cheque"
)

// Method is a configured payment method. Deferred methods settle through a
// holding account until cleared into the linked account.
type Method struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	Type             MethodType `json:"type"`
	LinkedAccountID  int64      `json:"linked_account_id"`
	HoldingAccountID int64      `json:"holding_account_id"`
}

// Deferred reports whether the method clears later.
func (m Method) Deferred() bool {
	return m.Type == MethodCheque
}

// PostingAccount returns the account a new line of this method is posted to.
func (m Method) PostingAccount() int64 {
	if m.Deferred() {
		return m.HoldingAccountID
	}
	return m.LinkedAccountID
}

// SourceKind enumerates the documents a payment can settle.
type SourceKind string

const (
	SourcePurchaseInvoice SourceKind = "purchase_invoice"
	SourceSalesInvoice    SourceKind = "sales_invoice"
	SourceSalesReturn     SourceKind = "sales_return"
)

// SourceRef is a typed reference to a payable or receivable document.
type SourceRef struct {
	Kind SourceKind `json:"kind"`
	ID   int64      `json:"id"`
}

func (r SourceRef) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// Source is the resolved view of a source document.
type Source struct {
	Ref            SourceRef
	Number         string
	PartyAccountID int64
	Currency       string
	// ExchangeRate is the rate the document was booked at. Zero means resolve on the payment date.
	ExchangeRate decimal.Decimal
	Total        decimal.Decimal
}

// Line is one instrument within a split payment.
type Line struct {
	MethodID        int64           `json:"method_id"`
	Amount          decimal.Decimal `json:"amount"`
	ReferenceNumber string          `json:"reference_number"`
	Status          LineStatus      `json:"status"`
	ChequeID        int64           `json:"cheque_id,omitempty"`
}

// Payment is the header of a split payment.
type Payment struct {
	ID            int64
	Number        string
	Source        SourceRef
	Direction     Direction
	Currency      string
	Lines         []Line
	Total         decimal.Decimal
	Status        Status
	ProcessedBy   int64
	TransactionID uuid.UUID
	PaidAt        time.Time
}

// Cheque is the side record of a cheque line.
type Cheque struct {
	ID         int64
	PaymentID  int64
	LineIndex  int
	Number     string
	BankName   string
	ChequeDate time.Time
	Amount     decimal.Decimal
	Status     ChequeStatus
	Direction  Direction
	ClearedAt  time.Time
}

// ChequeDetails carries the instrument data of a cheque line.
type ChequeDetails struct {
	Number   string    `json:"number"`
	BankName string    `json:"bank_name"`
	Date     time.Time `json:"date"`
}

// LineInput describes one requested payment line.
type LineInput struct {
	MethodID        int64           `json:"method_id"`
	Amount          decimal.Decimal `json:"amount"`
	ReferenceNumber string          `json:"reference_number"`
	Cheque          *ChequeDetails  `json:"cheque,omitempty"`
}

// Input describes a payment to record. The source kind fixes the direction;
// a non-empty Direction must agree with it.
type Input struct {
	Source      SourceRef
	Direction   Direction
	Lines       []LineInput
	Date        time.Time
	Description string
}

// SourceDocuments resolves and settles the documents payments refer to.
type SourceDocuments interface {
	PurchaseInvoiceSource(ctx context.Context, id int64) (Source, error)
	SalesInvoiceSource(ctx context.Context, id int64) (Source, error)
	ReturnSource(ctx context.Context, id int64) (Source, error)
	SetPurchaseInvoicePayment(ctx context.Context, id int64, paid decimal.Decimal, status shared.PaymentStatus) error
	SetSalesInvoicePayment(ctx context.Context, id int64, paid decimal.Decimal, status shared.PaymentStatus) error
	SetReturnPayment(ctx context.Context, id int64, paid decimal.Decimal, status shared.PaymentStatus) error
}

// Tx is the unit of work payments run in.
type Tx interface {
	ledger.Tx
	SourceDocuments
	GetPaymentMethod(ctx context.Context, id int64) (Method, error)
	CreatePayment(ctx context.Context, payment Payment) (int64, error)
	GetPayment(ctx context.Context, id int64) (Payment, error)
	UpdatePayment(ctx context.Context, payment Payment) error
	ListPaymentsBySource(ctx context.Context, ref SourceRef) ([]Payment, error)
	CreateCheque(ctx context.Context, cheque Cheque) (int64, error)
	GetCheque(ctx context.Context, id int64) (Cheque, error)
	UpdateChequeStatus(ctx context.Context, id int64, status ChequeStatus, at time.Time) error
	ListPendingCheques(ctx context.Context, dueBy time.Time) ([]Cheque, error)
	NextSequence(ctx context.Context, name string) (int64, error)
}

// OverpaymentError carries the rejected amount and the outstanding balance.
type OverpaymentError struct {
	Source      SourceRef
	Amount      decimal.Decimal
	Outstanding decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payments: %s exceeds outstanding %s on %s", e.Amount.String(), e.Outstanding.String(), e.Source)
}

func (e *OverpaymentError) Unwrap() error {
	return shared.ErrOverpayment
}

// DuplicateInstrumentError names the method used twice.
type DuplicateInstrumentError struct {
	MethodID int64
}

func (e *DuplicateInstrumentError) Error() string {
	return fmt.Sprintf("payments: method %d used more than once", e.MethodID)
}

func (e *DuplicateInstrumentError) Unwrap() error {
	return shared.ErrDuplicateInstrument
}
