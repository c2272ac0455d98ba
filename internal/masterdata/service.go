package masterdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/fx"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// SetupTx is the unit of work for registering parties.
type SetupTx interface {
	Tx
	ledger.Tx
}

// Service registers suppliers and customers.
type Service struct {
	now func() time.Time
}

// NewService constructs the master data service.
func NewService() *Service {
	return &Service{now: func() time.Time { return time.Now().UTC() }}
}

// RegisterSupplier validates and stores a supplier. A payable account, when
// given, must be a liability.
func (s *Service) RegisterSupplier(ctx context.Context, tx SetupTx, supplier Supplier) (Supplier, error) {
	supplier.Code = strings.TrimSpace(supplier.Code)
	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Code == "" || supplier.Name == "" {
		return Supplier{}, shared.Invalid("supplier", "code and name are required")
	}
	if supplier.Currency != "" {
		code, err := fx.ValidateCurrency(supplier.Currency)
		if err != nil {
			return Supplier{}, err
		}
		supplier.Currency = code
	}
	if supplier.PayableAccountID != 0 {
		if err := requireAccountType(ctx, tx, supplier.PayableAccountID, ledger.AccountTypeLiability); err != nil {
			return Supplier{}, err
		}
	}
	supplier.CreatedAt = s.now()
	id, err := tx.CreateSupplier(ctx, supplier)
	if err != nil {
		return Supplier{}, fmt.Errorf("masterdata: create supplier: %w", err)
	}
	supplier.ID = id
	return supplier, nil
}

// RegisterCustomer validates and stores a customer. A receivable account, when
// given, must be an asset.
func (s *Service) RegisterCustomer(ctx context.Context, tx SetupTx, customer Customer) (Customer, error) {
	customer.Code = strings.TrimSpace(customer.Code)
	customer.Name = strings.TrimSpace(customer.Name)
	if customer.Code == "" || customer.Name == "" {
		return Customer{}, shared.Invalid("customer", "code and name are required")
	}
	if customer.ReceivableAccountID != 0 {
		if err := requireAccountType(ctx, tx, customer.ReceivableAccountID, ledger.AccountTypeAsset); err != nil {
			return Customer{}, err
		}
	}
	customer.CreatedAt = s.now()
	id, err := tx.CreateCustomer(ctx, customer)
	if err != nil {
		return Customer{}, fmt.Errorf("masterdata: create customer: %w", err)
	}
	customer.ID = id
	return customer, nil
}

func requireAccountType(ctx context.Context, tx ledger.Tx, accountID int64, want ledger.AccountType) error {
	account, err := tx.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if account.Type != want {
		return shared.Invalid("account_id", fmt.Sprintf("account %d is %s, expected %s", accountID, account.Type, want))
	}
	return nil
}
