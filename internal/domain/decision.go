package domain

import (
	"fmt"
	"time"
)

// Transition records one status change of a tracked order.
type Transition struct {
	Ref  string
	From OrderStatus
	To   OrderStatus
	At   time.Time
}

// DecisionMode says which pass of the decision loop produced an order.
type DecisionMode int

const (
	ModeNone DecisionMode = iota
	ModeReactive
	ModeProactive
)

func (m DecisionMode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeReactive:
		return "reactive"
	case ModeProactive:
		return "proactive"
	default:
		return fmt.Sprintf("DecisionMode(%d)", int(m))
	}
}

// Skip is an improving candidate that could not be submitted.
type Skip struct {
	MarketID int
	Side     Side
	Price    int64
	Err      error
}

// Decision is the outcome of one order-book tick.
type Decision struct {
	Mode           DecisionMode
	Order          *TrackedOrder
	CurrentScore   float64
	CandidateScore float64
	Skipped        []Skip
}

// SessionSummary is reported when a session closes.
type SessionSummary struct {
	ID          string
	OpenedAt    time.Time
	ClosedAt    time.Time
	FinalScore  float64
	Submitted   int
	Traded      int
	Outstanding int
}

// ScoreSample is the settled performance observed at a point in time.
type ScoreSample struct {
	SessionID string
	At        time.Time
	Cash      int64
	Expected  float64
	Variance  float64
	Score     float64
}
