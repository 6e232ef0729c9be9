package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"crypto_api/internal/domain"
	"crypto_api/internal/infra"

	"github.com/google/uuid"
)

// IntentStore persists position intents so an unprotected fill survives a
// restart.
type IntentStore interface {
	SaveIntent(ctx context.Context, intent *domain.PositionIntent) error
	// PendingIntents returns intents that are not Active: either still in
	// flight or Failed with an unprotected fill.
	PendingIntents(ctx context.Context) ([]*domain.PositionIntent, error)
}

// PositionManager enters positions as a limit order followed by a protective
// OCO bracket, tracking each entry as a persisted state machine:
//
//	Entering -> Bracketing -> Active
//	         \             \-> Failed (unprotected, resumable)
//	          \-> Failed
type PositionManager struct {
	orderer Orderer
	store   IntentStore

	// BracketAttempts bounds bracket placement tries per Enter or Resume.
	BracketAttempts int
	// Backoff returns the wait before retry n (0-based).
	Backoff func(retry int) time.Duration
	Now     func() time.Time
}

// NewPositionManager creates a manager. store may be nil, in which case
// intents live only for the duration of the call.
func NewPositionManager(orderer Orderer, store IntentStore, bracketAttempts int) *PositionManager {
	if bracketAttempts < 1 {
		bracketAttempts = 1
	}
	return &PositionManager{
		orderer:         orderer,
		store:           store,
		BracketAttempts: bracketAttempts,
		Backoff:         infra.CalculateBackoff,
		Now:             time.Now,
	}
}

// EnterPosition is the venue independent entry algorithm: validate, place
// the entering limit order, then bracket the executed quantity with an OCO
// order on the reverse side. Validation failures never reach the orderer.
func EnterPosition(ctx context.Context, orderer Orderer, side domain.Side, enterQty domain.Quantity,
	enterPrice, takeProfit, stopLoss domain.Price) (domain.PositionResponse, error) {
	return NewPositionManager(orderer, nil, 1).Enter(ctx, side, enterQty, enterPrice, takeProfit, stopLoss)
}

// ValidatePosition runs the pre-flight checks of a position entry.
func ValidatePosition(side domain.Side, enterQty domain.Quantity, enterPrice, takeProfit, stopLoss domain.Price) error {
	market := enterPrice.Market
	if market == nil || !market.Equal(takeProfit.Market) || !market.Equal(stopLoss.Market) {
		return &domain.PositionError{
			Kind:  domain.PositionErrDifferentMarkets,
			State: domain.PositionEntering,
			Err: fmt.Errorf("%w: enter=%v take_profit=%v stop_loss=%v",
				domain.ErrDifferentMarkets, enterPrice.Market, takeProfit.Market, stopLoss.Market),
		}
	}

	var ordered bool
	if side == domain.SideBuy {
		ordered = takeProfit.Greater(enterPrice) && enterPrice.Greater(stopLoss)
	} else {
		ordered = takeProfit.Less(enterPrice) && enterPrice.Less(stopLoss)
	}
	if !ordered {
		return &domain.PositionError{
			Kind:  domain.PositionErrPriceRestrictions,
			State: domain.PositionEntering,
			Err: fmt.Errorf("%w: %s enter=%s take_profit=%s stop_loss=%s",
				domain.ErrPriceRestrictions, side, enterPrice.Value, takeProfit.Value, stopLoss.Value),
		}
	}

	want := market.Base
	if side == domain.SideSell {
		want = market.Quote
	}
	if !enterQty.Asset.Equal(want) {
		return &domain.PositionError{
			Kind:  domain.PositionErrWrongAsset,
			State: domain.PositionEntering,
			Err:   fmt.Errorf("%w: %s needs %s, got %s", domain.ErrWrongAsset, side, want, enterQty.Asset),
		}
	}
	return nil
}

// Enter places the entering order and its bracket.
func (m *PositionManager) Enter(ctx context.Context, side domain.Side, enterQty domain.Quantity,
	enterPrice, takeProfit, stopLoss domain.Price) (domain.PositionResponse, error) {
	if err := ValidatePosition(side, enterQty, enterPrice, takeProfit, stopLoss); err != nil {
		return domain.PositionResponse{}, err
	}

	intent := &domain.PositionIntent{
		ID:         uuid.NewString(),
		State:      domain.PositionEntering,
		Side:       side,
		EnterQty:   enterQty,
		EnterPrice: enterPrice,
		TakeProfit: takeProfit,
		StopLoss:   stopLoss,
		UpdatedAt:  m.Now(),
	}
	if err := m.save(ctx, intent); err != nil {
		return domain.PositionResponse{}, &domain.PositionError{
			Kind:     domain.PositionErrOther,
			State:    domain.PositionEntering,
			IntentID: intent.ID,
			Err:      fmt.Errorf("persist intent: %w", err),
		}
	}

	// The unfilled remainder expires on arrival; no entry rests unbracketed.
	enterOrder := domain.NewLimitOrder(side, enterQty, enterPrice)
	enterOrder.TimeInForce = domain.ImmediateOrCancel
	enterOrder.ClientID = intent.ID
	entering, err := m.orderer.Order(ctx, enterOrder)
	if err != nil {
		m.fail(ctx, intent, err, false)
		return domain.PositionResponse{}, &domain.PositionError{
			Kind:     domain.PositionErrOrder,
			State:    domain.PositionEntering,
			IntentID: intent.ID,
			Err:      err,
		}
	}
	intent.EnteringID = entering.ID
	intent.EnteredQty = entering.ExecutedQuantity

	if entering.ExecutedQuantity.IsZero() {
		m.fail(ctx, intent, domain.ErrNotFilled, false)
		return domain.PositionResponse{}, &domain.PositionError{
			Kind:     domain.PositionErrNotFilled,
			State:    domain.PositionEntering,
			IntentID: intent.ID,
			Entering: &entering,
			Err:      fmt.Errorf("%w: order %s is %s", domain.ErrNotFilled, entering.ID, entering.Status),
		}
	}

	intent.Transition(domain.PositionBracketing, m.Now())
	if err := m.save(ctx, intent); err != nil {
		slog.Warn("Position intent not persisted", slog.String("intent", intent.ID), slog.Any("error", err))
	}

	return m.bracket(ctx, intent, entering)
}

// Resume retries the bracket of every persisted unprotected intent.
// Intents left in Entering cannot be reconciled through Order alone and are
// marked Failed.
func (m *PositionManager) Resume(ctx context.Context) ([]domain.PositionResponse, error) {
	if m.store == nil {
		return nil, nil
	}
	pending, err := m.store.PendingIntents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pending intents: %w", err)
	}

	var (
		out  []domain.PositionResponse
		errs []error
	)
	for _, intent := range pending {
		switch {
		case intent.State == domain.PositionBracketing, intent.Unprotected:
			entering := domain.OrderResponse{
				ID:               intent.EnteringID,
				Status:           domain.StatusFilled,
				ExecutedQuantity: intent.EnteredQty,
			}
			intent.Transition(domain.PositionBracketing, m.Now())
			slog.Info("Resuming unprotected position",
				slog.String("intent", intent.ID),
				slog.String("market", intent.Market().Symbol()),
				slog.String("qty", intent.EnteredQty.String()))
			resp, err := m.bracket(ctx, intent, entering)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			out = append(out, resp)
		case intent.State == domain.PositionEntering:
			slog.Warn("Entering order outcome unknown, marking intent failed", slog.String("intent", intent.ID))
			m.fail(ctx, intent, errors.New("entering outcome unknown after restart"), false)
		}
	}
	return out, errors.Join(errs...)
}

func (m *PositionManager) bracket(ctx context.Context, intent *domain.PositionIntent, entering domain.OrderResponse) (domain.PositionResponse, error) {
	leaveOrder := domain.NewOcoOrder(intent.Side.Reverse(), entering.ExecutedQuantity, intent.StopLoss, intent.TakeProfit)
	leaveOrder.ClientID = bracketClientID(intent.ID)

	var lastErr error
	for attempt := 0; attempt < m.BracketAttempts; attempt++ {
		if attempt > 0 {
			wait := m.Backoff(attempt - 1)
			slog.Warn("Retrying bracket order",
				slog.String("intent", intent.ID),
				slog.Int("attempt", attempt+1),
				slog.Duration("wait", wait),
				slog.Any("error", lastErr))
			if err := sleepCtx(ctx, wait); err != nil {
				lastErr = errors.Join(lastErr, err)
				break
			}
		}

		leaving, err := m.orderer.Order(ctx, leaveOrder)
		if err == nil {
			intent.LeavingID = leaving.ID
			intent.Unprotected = false
			intent.LastError = ""
			intent.Transition(domain.PositionActive, m.Now())
			if err := m.save(ctx, intent); err != nil {
				slog.Warn("Position intent not persisted", slog.String("intent", intent.ID), slog.Any("error", err))
			}
			resp := domain.NewPositionResponse(entering, leaving)
			resp.IntentID = intent.ID
			return resp, nil
		}
		lastErr = err
		if oe := domain.AsOrderError(err); oe != nil && oe.Kind == domain.OrderErrInvalidOrder {
			break
		}
	}

	m.fail(ctx, intent, lastErr, true)
	slog.Error("Position left without bracket",
		slog.String("intent", intent.ID),
		slog.String("market", intent.Market().Symbol()),
		slog.String("qty", entering.ExecutedQuantity.String()),
		slog.Any("error", lastErr))
	return domain.PositionResponse{}, &domain.PositionError{
		Kind:     domain.PositionErrOrder,
		State:    domain.PositionBracketing,
		IntentID: intent.ID,
		Entering: &entering,
		Err:      lastErr,
	}
}

func (m *PositionManager) fail(ctx context.Context, intent *domain.PositionIntent, cause error, unprotected bool) {
	intent.Unprotected = unprotected
	if cause != nil {
		intent.LastError = cause.Error()
	}
	intent.Transition(domain.PositionFailed, m.Now())
	if err := m.save(ctx, intent); err != nil {
		slog.Warn("Position intent not persisted", slog.String("intent", intent.ID), slog.Any("error", err))
	}
}

func (m *PositionManager) save(ctx context.Context, intent *domain.PositionIntent) error {
	if m.store == nil {
		return nil
	}
	return m.store.SaveIntent(ctx, intent)
}

// bracketClientID derives a stable client order id so a resumed bracket is
// recognised by the venue as the same order.
func bracketClientID(intentID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(intentID+"/bracket")).String()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
