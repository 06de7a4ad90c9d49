package model

import "fmt"

// OutcomeSource records why a draw carries the item it carries.
type OutcomeSource string

// Outcome sources.
const (
	OutcomeRandom    OutcomeSource = "RANDOM"
	OutcomeManual    OutcomeSource = "MANUAL"
	OutcomeInherited OutcomeSource = "INHERITED"
)

// Outcome is a tagged choice of item for a draw:
// Random (pick from the game's active items), Manual(itemID) or Inherited(priorItemID).
type Outcome struct {
	Source OutcomeSource
	ItemID string
}

// RandomOutcome asks the lifecycle manager to pick an item.
func RandomOutcome() Outcome {
	return Outcome{Source: OutcomeRandom}
}

// ManualOutcome is an operator's explicit choice.
func ManualOutcome(itemID string) Outcome {
	return Outcome{Source: OutcomeManual, ItemID: itemID}
}

// InheritedOutcome carries forward an item chosen earlier.
func InheritedOutcome(priorItemID string) Outcome {
	return Outcome{Source: OutcomeInherited, ItemID: priorItemID}
}

// OutcomeFromOptional maps an optional operator item id to Manual or Random.
func OutcomeFromOptional(itemID *string) Outcome {
	if itemID == nil || *itemID == "" {
		return RandomOutcome()
	}
	return ManualOutcome(*itemID)
}

// IsResolved reports whether the outcome already names an item.
func (o Outcome) IsResolved() bool {
	return o.Source != OutcomeRandom && o.ItemID != ""
}

// Resolve returns an outcome with the given item and the same source.
func (o Outcome) Resolve(itemID string) Outcome {
	return Outcome{Source: o.Source, ItemID: itemID}
}

func (o Outcome) String() string {
	if o.ItemID == "" {
		return string(o.Source)
	}
	return fmt.Sprintf("%s(%s)", o.Source, o.ItemID)
}
