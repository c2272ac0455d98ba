// Package memory is an in-process engine.Store. Each tenant's state is
// copied at the start of a unit of work and swapped in only on commit.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/odyssey-erp/odyssey-ledger/internal/ap"
	"github.com/odyssey-erp/odyssey-ledger/internal/engine"
	"github.com/odyssey-erp/odyssey-ledger/internal/fx"
	"github.com/odyssey-erp/odyssey-ledger/internal/installments"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/masterdata"
	"github.com/odyssey-erp/odyssey-ledger/internal/payments"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/returns"
	"github.com/odyssey-erp/odyssey-ledger/internal/sales"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Store keeps tenants isolated by the tenant id carried on the context.
type Store struct {
	mu      sync.Mutex
	tenants map[int64]*state
}

// New constructs an empty store.
func New() *Store {
	return &Store{tenants: make(map[int64]*state)}
}

type stockKey struct {
	branch  int64
	variant int64
}

type rateKey struct {
	from string
	to   string
	day  string
}

// state values are replaced, never mutated in place, so a shallow copy of
// every map is an isolated snapshot.
type state struct {
	nextID int64

	accounts  map[int64]ledger.Account
	system    map[ledger.SystemAccount]int64
	entries   []ledger.Entry
	rates     map[rateKey]fx.Rate
	stock     map[stockKey]inventory.Balance
	movements []inventory.Movement

	suppliers map[int64]masterdata.Supplier
	customers map[int64]masterdata.Customer
	invoices  map[int64]sales.Invoice

	methods  map[int64]payments.Method
	payments map[int64]payments.Payment
	cheques  map[int64]payments.Cheque

	orders           map[int64]procurement.PurchaseOrder
	receipts         map[int64]procurement.GoodsReceipt
	supplierInvoices map[int64]ap.SupplierInvoice
	plans            map[int64]installments.Plan
	rmas             map[int64]returns.RMA
	vouchers         map[int64]returns.RefundVoucher

	sequences   map[string]int64
	idempotency map[string]struct{}
}

func newState() *state {
	return &state{
		accounts:         map[int64]ledger.Account{},
		system:           map[ledger.SystemAccount]int64{},
		rates:            map[rateKey]fx.Rate{},
		stock:            map[stockKey]inventory.Balance{},
		suppliers:        map[int64]masterdata.Supplier{},
		customers:        map[int64]masterdata.Customer{},
		invoices:         map[int64]sales.Invoice{},
		methods:          map[int64]payments.Method{},
		payments:         map[int64]payments.Payment{},
		cheques:          map[int64]payments.Cheque{},
		orders:           map[int64]procurement.PurchaseOrder{},
		receipts:         map[int64]procurement.GoodsReceipt{},
		supplierInvoices: map[int64]ap.SupplierInvoice{},
		plans:            map[int64]installments.Plan{},
		rmas:             map[int64]returns.RMA{},
		vouchers:         map[int64]returns.RefundVoucher{},
		sequences:        map[string]int64{},
		idempotency:      map[string]struct{}{},
	}
}

func (s *state) clone() *state {
	return &state{
		nextID:           s.nextID,
		accounts:         maps.Clone(s.accounts),
		system:           maps.Clone(s.system),
		entries:          append([]ledger.Entry(nil), s.entries...),
		rates:            maps.Clone(s.rates),
		stock:            maps.Clone(s.stock),
		movements:        append([]inventory.Movement(nil), s.movements...),
		suppliers:        maps.Clone(s.suppliers),
		customers:        maps.Clone(s.customers),
		invoices:         maps.Clone(s.invoices),
		methods:          maps.Clone(s.methods),
		payments:         maps.Clone(s.payments),
		cheques:          maps.Clone(s.cheques),
		orders:           maps.Clone(s.orders),
		receipts:         maps.Clone(s.receipts),
		supplierInvoices: maps.Clone(s.supplierInvoices),
		plans:            maps.Clone(s.plans),
		rmas:             maps.Clone(s.rmas),
		vouchers:         maps.Clone(s.vouchers),
		sequences:        maps.Clone(s.sequences),
		idempotency:      maps.Clone(s.idempotency),
	}
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// WithTx runs fn against a private copy of the tenant's state and publishes
// the copy only when fn succeeds. Units of work are serialized.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx engine.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tenantID := shared.TenantID(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.tenants[tenantID]
	if !ok {
		current = newState()
	}
	work := current.clone()
	if err := fn(ctx, &tx{state: work}); err != nil {
		return err
	}
	s.tenants[tenantID] = work
	return nil
}

// tx implements engine.Tx over one snapshot.
type tx struct {
	state *state
}

var _ engine.Tx = (*tx)(nil)

func (t *tx) ClaimIdempotencyKey(ctx context.Context, module, key string) error {
	k := module + "\x00" + key
	if _, seen := t.state.idempotency[k]; seen {
		return shared.ErrIdempotencyConflict
	}
	t.state.idempotency[k] = struct{}{}
	return nil
}

func (t *tx) NextSequence(ctx context.Context, name string) (int64, error) {
	t.state.sequences[name]++
	return t.state.sequences[name], nil
}
