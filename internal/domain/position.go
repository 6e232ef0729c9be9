package domain

import "time"

// PositionState tracks a position entry through its two orders.
//
//	Entering -> Bracketing -> Active
//	    \            \
//	     -> Failed    -> Failed (unprotected, resumable)
type PositionState string

const (
	PositionEntering   PositionState = "ENTERING"
	PositionBracketing PositionState = "BRACKETING"
	PositionActive     PositionState = "ACTIVE"
	PositionFailed     PositionState = "FAILED"
)

// IsTerminal reports whether no further transition is expected.
func (s PositionState) IsTerminal() bool {
	return s == PositionActive || s == PositionFailed
}

// PositionIntent is the persisted record of one position entry.
// It survives a crash between the entering and the bracket order so the
// bracket can be retried.
type PositionIntent struct {
	ID         string
	State      PositionState
	Side       Side
	EnterQty   Quantity
	EnterPrice Price
	TakeProfit Price
	StopLoss   Price

	// EnteredQty is the entering order's executed quantity once known.
	EnteredQty  Quantity
	EnteringID  string
	LeavingID   string
	Unprotected bool
	LastError   string
	UpdatedAt   time.Time
}

// Market returns the market of the intent.
func (p *PositionIntent) Market() *Market { return p.EnterPrice.Market }

// Transition moves the intent to state and stamps it.
func (p *PositionIntent) Transition(state PositionState, now time.Time) {
	p.State = state
	p.UpdatedAt = now
}

// PositionResponse combines the entering and the leaving order responses.
type PositionResponse struct {
	IntentID string
	Entering OrderResponse
	Leaving  OrderResponse

	// ExecutedQuantity reports the entering order's executed quantity.
	// The leaving fill is available in Leaving.ExecutedQuantity.
	ExecutedQuantity Quantity
}

// NewPositionResponse builds a response from the two order responses.
func NewPositionResponse(entering, leaving OrderResponse) PositionResponse {
	return PositionResponse{
		Entering:         entering,
		Leaving:          leaving,
		ExecutedQuantity: entering.ExecutedQuantity,
	}
}
