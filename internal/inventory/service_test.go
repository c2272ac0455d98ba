package inventory

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type memoryStock struct {
	balances  map[string]Balance
	movements []Movement
	nextID    int64
}

func newMemoryStock() *memoryStock {
	return &memoryStock{balances: make(map[string]Balance)}
}

func key(branchID, variantID int64) string {
	return fmt.Sprintf("%d:%d", branchID, variantID)
}

func (m *memoryStock) GetStockForUpdate(ctx context.Context, branchID, variantID int64) (Balance, bool, error) {
	bal, ok := m.balances[key(branchID, variantID)]
	return bal, ok, nil
}

func (m *memoryStock) UpsertStock(ctx context.Context, balance Balance) error {
	m.balances[key(balance.BranchID, balance.VariantID)] = balance
	return nil
}

func (m *memoryStock) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	m.nextID++
	movement.ID = m.nextID
	m.movements = append(m.movements, movement)
	return m.nextID, nil
}

func TestAverageMovingCost(t *testing.T) {
	stock := newMemoryStock()
	svc := NewService(nil)
	ctx := context.Background()

	_, err := svc.IncreaseStock(ctx, stock, IncreaseInput{BranchID: 1, VariantID: 10, Qty: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(100)})
	require.NoError(t, err)
	movement, err := svc.IncreaseStock(ctx, stock, IncreaseInput{BranchID: 1, VariantID: 10, Qty: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(200)})
	require.NoError(t, err)

	require.True(t, movement.BalanceQty.Equal(decimal.NewFromInt(20)))
	require.True(t, movement.AvgCost.Equal(decimal.NewFromInt(150)))

	balance, err := svc.StockOnHand(ctx, stock, 1, 10)
	require.NoError(t, err)
	require.True(t, balance.AvgCost.Equal(decimal.NewFromInt(150)))
	require.Len(t, stock.movements, 2)
}

func TestIncreaseStockKeepsSerialsAndRefs(t *testing.T) {
	stock := newMemoryStock()
	svc := NewService(nil)

	movement, err := svc.IncreaseStock(context.Background(), stock, IncreaseInput{
		Type:      MovementReturn,
		BranchID:  2,
		VariantID: 7,
		Qty:       decimal.NewFromInt(2),
		UnitCost:  decimal.RequireFromString("12.5"),
		Serials:   []string{"SN-1", "SN-2"},
		RefModule: "rma",
		RefID:     44,
	})
	require.NoError(t, err)
	require.Equal(t, MovementReturn, movement.Type)
	require.Equal(t, []string{"SN-1", "SN-2"}, stock.movements[0].Serials)
	require.Equal(t, int64(44), stock.movements[0].RefID)
}

func TestIncreaseStockValidatesInput(t *testing.T) {
	stock := newMemoryStock()
	svc := NewService(nil)
	ctx := context.Background()

	_, err := svc.IncreaseStock(ctx, stock, IncreaseInput{VariantID: 1, Qty: decimal.Zero, UnitCost: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.IncreaseStock(ctx, stock, IncreaseInput{VariantID: 1, Qty: decimal.NewFromInt(1), UnitCost: decimal.NewFromInt(-1)})
	require.ErrorIs(t, err, ErrInvalidUnitCost)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.IncreaseStock(ctx, stock, IncreaseInput{Qty: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, stock.movements)
}
