// Package lifecycle is the order state machine. Every transition is driven
// by an explicit event; nothing is inferred from timestamps or balances.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/iurnickita/cashback/internal/model"
)

type Event string

const (
	EventPaymentConfirmed Event = "payment_confirmed"
	EventStartProcessing  Event = "start_processing"
	EventMarkReady        Event = "mark_ready"
	EventComplete         Event = "complete"
	EventCancel           Event = "cancel"
	EventRefund           Event = "refund"
)

var (
	ErrUnknownEvent      = errors.New("unknown order event")
	ErrInvalidTransition = errors.New("invalid order transition")
)

type transition struct {
	from  model.OrderStatus
	event Event
}

var transitions = map[transition]model.OrderStatus{
	{model.OrderStatusPending, EventPaymentConfirmed}: model.OrderStatusPaid,
	{model.OrderStatusPaid, EventStartProcessing}:     model.OrderStatusProcessing,
	{model.OrderStatusProcessing, EventMarkReady}:     model.OrderStatusReady,
	{model.OrderStatusReady, EventComplete}:           model.OrderStatusCompleted,
	{model.OrderStatusPending, EventCancel}:           model.OrderStatusCancelled,
	{model.OrderStatusPaid, EventCancel}:              model.OrderStatusCancelled,
	{model.OrderStatusProcessing, EventCancel}:        model.OrderStatusCancelled,
	{model.OrderStatusPaid, EventRefund}:              model.OrderStatusRefunded,
	{model.OrderStatusCompleted, EventRefund}:         model.OrderStatusRefunded,
}

func ParseEvent(s string) (Event, error) {
	switch e := Event(s); e {
	case EventPaymentConfirmed, EventStartProcessing, EventMarkReady, EventComplete, EventCancel, EventRefund:
		return e, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEvent, s)
}

// Next returns the status an order moves to when event happens in status from.
func Next(from model.OrderStatus, event Event) (model.OrderStatus, error) {
	to, ok := transitions[transition{from, event}]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", ErrInvalidTransition, event, from)
	}
	return to, nil
}

func IsTerminal(status model.OrderStatus) bool {
	switch status {
	case model.OrderStatusCompleted, model.OrderStatusCancelled, model.OrderStatusRefunded:
		return true
	}
	return false
}

// MovesMoneyBack reports whether the transition returns the payment to the wallet.
func MovesMoneyBack(from model.OrderStatus, event Event) bool {
	switch event {
	case EventRefund:
		return true
	case EventCancel:
		return from != model.OrderStatusPending
	}
	return false
}
