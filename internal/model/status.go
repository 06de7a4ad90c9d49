package model

// DrawStatus is the lifecycle state of a draw.
type DrawStatus string

// Draw states. PUBLISHED and CANCELLED are terminal.
const (
	StatusScheduled DrawStatus = "SCHEDULED"
	StatusClosed    DrawStatus = "CLOSED"
	StatusDrawn     DrawStatus = "DRAWN"
	StatusPublished DrawStatus = "PUBLISHED"
	StatusCancelled DrawStatus = "CANCELLED"
)

// AllStatuses lists every draw state in lifecycle order.
var AllStatuses = []DrawStatus{
	StatusScheduled,
	StatusClosed,
	StatusDrawn,
	StatusPublished,
	StatusCancelled,
}

var drawTransitions = map[DrawStatus][]DrawStatus{
	StatusScheduled: {StatusClosed, StatusCancelled},
	StatusClosed:    {StatusDrawn, StatusCancelled},
	StatusDrawn:     {StatusPublished},
}

// CanTransitionTo reports whether moving from s to next is a legal edge.
func (s DrawStatus) CanTransitionTo(next DrawStatus) bool {
	for _, candidate := range drawTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s DrawStatus) IsTerminal() bool {
	return s == StatusPublished || s == StatusCancelled
}

// IsValid reports whether s is a known state.
func (s DrawStatus) IsValid() bool {
	for _, candidate := range AllStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// AcceptsBets reports whether tickets may still be sold against a draw in this state.
func (s DrawStatus) AcceptsBets() bool {
	return s == StatusScheduled
}

// AllowsPreselect reports whether an operator may set the preselected item.
func (s DrawStatus) AllowsPreselect() bool {
	return s == StatusScheduled || s == StatusClosed
}

// AllowsWinnerChange reports whether an operator may override the outcome.
// Announced results (PUBLISHED) are frozen.
func (s DrawStatus) AllowsWinnerChange() bool {
	return s == StatusClosed || s == StatusDrawn
}

// HasWinner reports whether a draw in this state carries a final outcome.
func (s DrawStatus) HasWinner() bool {
	return s == StatusDrawn || s == StatusPublished
}
