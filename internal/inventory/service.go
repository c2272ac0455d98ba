package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Service coordinates inventory operations inside the caller's unit of work.
type Service struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// IncreaseStock adds quantity at unitCost and recomputes the moving average cost.
func (s *Service) IncreaseStock(ctx context.Context, tx Tx, input IncreaseInput) (Movement, error) {
	if input.VariantID == 0 {
		return Movement{}, shared.Invalid("variant_id", "required")
	}
	if !input.Qty.IsPositive() {
		return Movement{}, ErrInvalidQuantity
	}
	if input.UnitCost.IsNegative() {
		return Movement{}, ErrInvalidUnitCost
	}
	if input.Type == "" {
		input.Type = MovementReceipt
	}

	balance, ok, err := tx.GetStockForUpdate(ctx, input.BranchID, input.VariantID)
	if err != nil {
		return Movement{}, fmt.Errorf("inventory: load balance: %w", err)
	}
	if !ok {
		balance = Balance{BranchID: input.BranchID, VariantID: input.VariantID}
	}

	newQty := balance.Qty.Add(input.Qty)
	totalCost := balance.Qty.Mul(balance.AvgCost).Add(input.Qty.Mul(input.UnitCost))
	newAvg := decimal.Zero
	if newQty.IsPositive() {
		newAvg = totalCost.DivRound(newQty, 6)
	}
	now := s.now()

	movement := Movement{
		Type:       input.Type,
		BranchID:   input.BranchID,
		VariantID:  input.VariantID,
		Qty:        input.Qty,
		UnitCost:   input.UnitCost,
		BalanceQty: newQty,
		AvgCost:    newAvg,
		Serials:    append([]string(nil), input.Serials...),
		RefModule:  input.RefModule,
		RefID:      input.RefID,
		Note:       input.Note,
		PostedAt:   now,
		CreatedBy:  shared.UserID(ctx),
	}
	id, err := tx.InsertMovement(ctx, movement)
	if err != nil {
		return Movement{}, fmt.Errorf("inventory: insert movement: %w", err)
	}
	movement.ID = id

	balance.Qty = newQty
	balance.AvgCost = newAvg
	balance.UpdatedAt = now
	if err := tx.UpsertStock(ctx, balance); err != nil {
		return Movement{}, fmt.Errorf("inventory: upsert balance: %w", err)
	}
	s.logger.Debug("stock increased",
		slog.Int64("variant_id", input.VariantID),
		slog.Int64("branch_id", input.BranchID),
		slog.String("qty", input.Qty.String()),
		slog.String("unit_cost", input.UnitCost.String()))
	return movement, nil
}

// StockOnHand returns the current balance for a variant in a branch.
func (s *Service) StockOnHand(ctx context.Context, tx Tx, branchID, variantID int64) (Balance, error) {
	balance, ok, err := tx.GetStockForUpdate(ctx, branchID, variantID)
	if err != nil {
		return Balance{}, err
	}
	if !ok {
		return Balance{BranchID: branchID, VariantID: variantID}, nil
	}
	return balance, nil
}
