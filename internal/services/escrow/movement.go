package escrow

import (
	"context"

	"github.com/vadiminshakov/remit/internal/domain"
	"go.uber.org/zap"
)

type movement struct {
	ownerID string
	amount  domain.Money
	debit   bool
}

// move applies moves in order. On failure the already applied ones are reversed.
// The returned rollback reverses all of them.
func (e *Engine) move(ctx context.Context, moves []movement) (rollback func(), err error) {
	applied := make([]movement, 0, len(moves))
	undo := func() {
		// reversal must run even when the request context is done
		rctx := context.WithoutCancel(ctx)
		for i := len(applied) - 1; i >= 0; i-- {
			m := applied[i]
			if err := e.apply(rctx, movement{ownerID: m.ownerID, amount: m.amount, debit: !m.debit}); err != nil {
				e.l.Error("failed to reverse wallet movement",
					zap.String("owner_id", m.ownerID),
					zap.String("amount", m.amount.String()),
					zap.Error(err))
			}
		}
	}

	for _, m := range moves {
		if !m.amount.IsPositive() {
			continue
		}
		if err := e.apply(ctx, m); err != nil {
			undo()
			return nil, err
		}
		applied = append(applied, m)
	}
	return undo, nil
}

func (e *Engine) apply(ctx context.Context, m movement) error {
	if m.debit {
		return e.ledger.Debit(ctx, m.ownerID, m.amount)
	}
	return e.ledger.Credit(ctx, m.ownerID, m.amount)
}
