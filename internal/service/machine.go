package service

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"

	"draw-engine/internal/model"
)

// Lifecycle events.
const (
	EventClose   statekit.EventType = "CLOSE"
	EventDraw    statekit.EventType = "DRAW"
	EventPublish statekit.EventType = "PUBLISH"
	EventCancel  statekit.EventType = "CANCEL"
)

var (
	stateScheduled = statekit.StateID(model.StatusScheduled)
	stateClosed    = statekit.StateID(model.StatusClosed)
	stateDrawn     = statekit.StateID(model.StatusDrawn)
	statePublished = statekit.StateID(model.StatusPublished)
	stateCancelled = statekit.StateID(model.StatusCancelled)
)

// replay lists the events that lead from the initial state to each status.
var replay = map[model.DrawStatus][]statekit.EventType{
	model.StatusScheduled: nil,
	model.StatusClosed:    {EventClose},
	model.StatusDrawn:     {EventClose, EventDraw},
	model.StatusPublished: {EventClose, EventDraw, EventPublish},
	model.StatusCancelled: {EventCancel},
}

// DrawMachine is the statekit definition of the draw lifecycle.
// Every Next call replays a fresh interpreter, so one DrawMachine is safe to share.
type DrawMachine struct {
	newInterpreter func() *statekit.Interpreter[struct{}]
}

// NewDrawMachine builds the lifecycle machine.
func NewDrawMachine() (*DrawMachine, error) {
	machine, err := statekit.NewMachine[struct{}]("draw").
		WithInitial(stateScheduled).
		State(stateScheduled).
		On(EventClose).Target(stateClosed).
		On(EventCancel).Target(stateCancelled).
		Done().
		State(stateClosed).
		On(EventDraw).Target(stateDrawn).
		On(EventCancel).Target(stateCancelled).
		Done().
		State(stateDrawn).
		On(EventPublish).Target(statePublished).
		Done().
		State(statePublished).
		Final().
		Done().
		State(stateCancelled).
		Final().
		Done().
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build draw machine: %w", err)
	}
	return &DrawMachine{
		newInterpreter: func() *statekit.Interpreter[struct{}] {
			return statekit.NewInterpreter(machine)
		},
	}, nil
}

// Next returns the status reached by firing ev in status from.
// It fails with ErrInvalidStateTransition when the machine has no such edge.
func (m *DrawMachine) Next(from model.DrawStatus, ev statekit.EventType) (model.DrawStatus, error) {
	path, ok := replay[from]
	if !ok {
		return from, fmt.Errorf("%w: unknown status %q", ErrInvalidStateTransition, from)
	}

	interp := m.newInterpreter()
	interp.Start()
	for _, e := range path {
		interp.Send(statekit.Event{Type: e})
	}
	interp.Send(statekit.Event{Type: ev})

	to := model.DrawStatus(interp.State().Value)
	if to == from || !from.CanTransitionTo(to) {
		return from, fmt.Errorf("%w: %s not allowed in %s", ErrInvalidStateTransition, ev, from)
	}
	return to, nil
}
