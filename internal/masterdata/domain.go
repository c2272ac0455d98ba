// Package masterdata holds the trading parties whose ledger accounts the
// engine posts against.
package masterdata

import (
	"context"
	"time"
)

// Supplier is a vendor with its own Accounts Payable sub-account.
type Supplier struct {
	ID               int64     `json:"id"`
	Code             string    `json:"code"`
	Name             string    `json:"name"`
	Currency         string    `json:"currency"`
	PayableAccountID int64     `json:"payable_account_id"`
	CreatedAt        time.Time `json:"created_at"`
}

// Customer is a buyer with its own Accounts Receivable sub-account.
type Customer struct {
	ID                  int64     `json:"id"`
	Code                string    `json:"code"`
	Name                string    `json:"name"`
	ReceivableAccountID int64     `json:"receivable_account_id"`
	CreatedAt           time.Time `json:"created_at"`
}

// Tx exposes party lookups within a unit of work.
type Tx interface {
	GetSupplier(ctx context.Context, id int64) (Supplier, error)
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	CreateSupplier(ctx context.Context, supplier Supplier) (int64, error)
	CreateCustomer(ctx context.Context, customer Customer) (int64, error)
}
