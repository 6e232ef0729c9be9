package storage

import (
	"context"
	"fmt"

	"crypto_api/internal/domain"
	"crypto_api/pkg/quant"
)

// SaveIntent upserts intent by id.
func (s *CandleStore) SaveIntent(ctx context.Context, intent *domain.PositionIntent) error {
	market := intent.Market()
	if market == nil {
		return fmt.Errorf("save intent %s: no market", intent.ID)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO position_intents
			(id, state, side, base, quote, enter_qty, enter_asset, enter_price, take_profit, stop_loss,
			 entered_qty, entered_asset, entering_id, leaving_id, unprotected, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			state = excluded.state,
			entered_qty = excluded.entered_qty,
			entered_asset = excluded.entered_asset,
			entering_id = excluded.entering_id,
			leaving_id = excluded.leaving_id,
			unprotected = excluded.unprotected,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`,
		intent.ID, string(intent.State), intent.Side.String(),
		market.Base.Code(), market.Quote.Code(),
		intent.EnterQty.Value.String(), assetCode(intent.EnterQty.Asset),
		intent.EnterPrice.Value.String(), intent.TakeProfit.Value.String(), intent.StopLoss.Value.String(),
		intent.EnteredQty.Value.String(), assetCode(intent.EnteredQty.Asset),
		intent.EnteringID, intent.LeavingID, intent.Unprotected, intent.LastError,
		quant.ToMillis(intent.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save intent %s: %w", intent.ID, err)
	}
	return nil
}

// PendingIntents returns intents that still need attention: not yet Active,
// excluding failures that left nothing exposed. Oldest first.
func (s *CandleStore) PendingIntents(ctx context.Context) ([]*domain.PositionIntent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, state, side, base, quote, enter_qty, enter_asset, enter_price, take_profit, stop_loss,
			entered_qty, entered_asset, entering_id, leaving_id, unprotected, last_error, updated_at
		FROM position_intents
		WHERE state <> ? AND NOT (state = ? AND unprotected = 0)
		ORDER BY updated_at ASC, id ASC`,
		string(domain.PositionActive), string(domain.PositionFailed),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query intents: %w", err)
	}
	defer rows.Close()

	var out []*domain.PositionIntent
	for rows.Next() {
		var id, state, side, base, quote string
		var enterQty, enterAsset, enterPrice, takeProfit, stopLoss string
		var enteredQty, enteredAsset, enteringID, leavingID, lastError string
		var unprotected bool
		var updatedAt int64
		if err := rows.Scan(&id, &state, &side, &base, &quote, &enterQty, &enterAsset,
			&enterPrice, &takeProfit, &stopLoss, &enteredQty, &enteredAsset,
			&enteringID, &leavingID, &unprotected, &lastError, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan intent: %w", err)
		}

		market := s.registry.Market(base, quote)
		parsedSide, err := domain.ParseSide(side)
		if err != nil {
			return nil, fmt.Errorf("corrupt intent %s: %w", id, err)
		}
		var vals [5]quant.Monetary
		for i, raw := range []string{enterQty, enterPrice, takeProfit, stopLoss, enteredQty} {
			if vals[i], err = quant.Parse(raw); err != nil {
				return nil, fmt.Errorf("corrupt intent %s: %w", id, err)
			}
		}

		out = append(out, &domain.PositionIntent{
			ID:          id,
			State:       domain.PositionState(state),
			Side:        parsedSide,
			EnterQty:    domain.NewQuantity(vals[0], s.asset(enterAsset)),
			EnterPrice:  domain.NewPrice(vals[1], market),
			TakeProfit:  domain.NewPrice(vals[2], market),
			StopLoss:    domain.NewPrice(vals[3], market),
			EnteredQty:  domain.NewQuantity(vals[4], s.asset(enteredAsset)),
			EnteringID:  enteringID,
			LeavingID:   leavingID,
			Unprotected: unprotected,
			LastError:   lastError,
			UpdatedAt:   quant.FromMillis(updatedAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

func (s *CandleStore) asset(code string) *domain.Asset {
	if code == "" {
		return nil
	}
	return s.registry.Asset(code)
}

func assetCode(a *domain.Asset) string {
	if a == nil {
		return ""
	}
	return a.Code()
}
