package domain

import (
	"fmt"
	"time"
)

// Side is the direction of an order.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// Opposite returns the counter side: the side we take against an order of side s.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	default:
		return s
	}
}

// ParseSide converts "BUY"/"SELL" to a Side.
func ParseSide(s string) (Side, error) {
	switch s {
	case "BUY", "buy", "Buy":
		return SideBuy, nil
	case "SELL", "sell", "Sell":
		return SideSell, nil
	default:
		return 0, fmt.Errorf("unknown order side %q", s)
	}
}

// OrderType is the execution type of an order. Only limit orders are sent.
type OrderType int

const (
	OrderTypeLimit OrderType = iota
)

func (t OrderType) String() string {
	switch t {
	case OrderTypeLimit:
		return "LIMIT"
	default:
		return fmt.Sprintf("OrderType(%d)", int(t))
	}
}

// OrderStatus is the lifecycle state of an order we submitted.
//
//	Sent ──► Accepted ──► Traded
//	  │          │
//	  ├─► Rejected
//	  └─► Cancelled ◄┘
type OrderStatus int

const (
	StatusSent OrderStatus = iota
	StatusAccepted
	StatusTraded
	StatusRejected
	StatusCancelled
)

func (s OrderStatus) String() string {
	switch s {
	case StatusSent:
		return "SENT"
	case StatusAccepted:
		return "ACCEPTED"
	case StatusTraded:
		return "TRADED"
	case StatusRejected:
		return "REJECTED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("OrderStatus(%d)", int(s))
	}
}

// ParseStatus converts the String form of a status back to an OrderStatus.
func ParseStatus(s string) (OrderStatus, error) {
	for _, st := range []OrderStatus{StatusSent, StatusAccepted, StatusTraded, StatusRejected, StatusCancelled} {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown order status %q", s)
}

// Terminal reports whether no further transition can leave s.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusTraded, StatusRejected, StatusCancelled:
		return true
	case StatusSent, StatusAccepted:
		return false
	default:
		return true
	}
}

// CanTransitionTo reports whether s → next is a legal lifecycle step.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case StatusSent:
		return next == StatusAccepted || next == StatusRejected || next == StatusCancelled
	case StatusAccepted:
		return next == StatusTraded || next == StatusCancelled
	case StatusTraded, StatusRejected, StatusCancelled:
		return false
	default:
		return false
	}
}

// OrderRequest is what gets transmitted to the marketplace.
type OrderRequest struct {
	Ref      string
	MarketID int
	Side     Side
	Type     OrderType
	Price    int64
	Units    int
}

// TrackedOrder is an order the agent submitted, followed until it reaches
// a terminal status.
type TrackedOrder struct {
	Ref       string
	SessionID string
	MarketID  int
	Asset     string
	Side      Side
	Price     int64
	Units     int
	Status    OrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
	Reason    string // rejection reason, if any
}

// Transition moves the order to next, stamping UpdatedAt.
func (o *TrackedOrder) Transition(next OrderStatus, at time.Time) error {
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s → %s (%s)", ErrInvalidTransition, o.Status, next, o.Ref)
	}
	o.Status = next
	o.UpdatedAt = at
	return nil
}

// Request builds the transmission payload for this order.
func (o TrackedOrder) Request() OrderRequest {
	return OrderRequest{
		Ref:      o.Ref,
		MarketID: o.MarketID,
		Side:     o.Side,
		Type:     OrderTypeLimit,
		Price:    o.Price,
		Units:    o.Units,
	}
}

// OrderRef builds the correlation reference of an order.
func OrderRef(marketID int, price int64, side Side, submitter string, createdAt time.Time) string {
	return fmt.Sprintf("Market-%d-Price-%d-OrderSide-%s-[%s]-%s",
		marketID, price, side, submitter, createdAt.UTC().Format(time.RFC3339Nano))
}
