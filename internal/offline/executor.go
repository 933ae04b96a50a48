package offline

import (
	"context"
	"encoding/json"
	"fmt"

	"festival-orders/internal/domain"
	"festival-orders/internal/ledger"
	"festival-orders/internal/lifecycle"
)

// Payload shapes for the queued operation types. The op's own ID is used as
// the idempotency key on replay, overriding any key in the payload.

type StockPayload struct {
	ItemID   string `json:"item_id"`
	Delta    *int   `json:"delta,omitempty"`
	Absolute *int   `json:"absolute,omitempty"`
}

type StatusPayload struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type CancelPayload struct {
	OrderID string `json:"order_id"`
}

// CoreExecutor binds queued operations to the lifecycle manager and the
// inventory ledger.
type CoreExecutor struct {
	Lifecycle *lifecycle.Manager
	Ledger    *ledger.Ledger
}

var _ Executor = (*CoreExecutor)(nil)

func (e *CoreExecutor) Execute(ctx context.Context, op Operation) error {
	switch op.Type {
	case OpPlaceOrder:
		var req domain.PlaceOrderRequest
		if err := json.Unmarshal(op.Payload, &req); err != nil {
			return fmt.Errorf("%w: bad place-order payload: %v", domain.ErrValidation, err)
		}
		req.IdempotencyKey = op.ID
		_, err := e.Lifecycle.PlaceOrder(ctx, op.TenantID, req)
		return err

	case OpUpdateStock:
		var p StockPayload
		if err := json.Unmarshal(op.Payload, &p); err != nil {
			return fmt.Errorf("%w: bad stock payload: %v", domain.ErrValidation, err)
		}
		switch {
		case p.Absolute != nil:
			return e.Ledger.SetStock(ctx, op.TenantID, p.ItemID, *p.Absolute, op.ID)
		case p.Delta != nil:
			return e.Ledger.AdjustStock(ctx, op.TenantID, p.ItemID, *p.Delta, op.ID)
		default:
			return fmt.Errorf("%w: stock payload needs delta or absolute", domain.ErrValidation)
		}

	case OpUpdateStatus:
		var p StatusPayload
		if err := json.Unmarshal(op.Payload, &p); err != nil {
			return fmt.Errorf("%w: bad status payload: %v", domain.ErrValidation, err)
		}
		status, err := domain.ParseStatus(p.Status)
		if err != nil {
			return err
		}
		return e.Lifecycle.UpdateStatus(ctx, op.TenantID, p.OrderID, status, op.ID)

	case OpCancelOrder:
		var p CancelPayload
		if err := json.Unmarshal(op.Payload, &p); err != nil {
			return fmt.Errorf("%w: bad cancel payload: %v", domain.ErrValidation, err)
		}
		return e.Lifecycle.CancelOrder(ctx, op.TenantID, p.OrderID, op.ID)
	}
	return fmt.Errorf("%w: unknown operation type %q", domain.ErrValidation, op.Type)
}
