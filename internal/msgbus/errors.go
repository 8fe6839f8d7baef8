package msgbus

import "errors"

var (
	// ErrRegistryFull is returned when the subscription capacity is exhausted.
	ErrRegistryFull = errors.New("msgbus: subscription registry full")
	// ErrInvalidHandle is returned when a handle does not reference a live subscription.
	ErrInvalidHandle = errors.New("msgbus: invalid subscription handle")
	// ErrNilHandler is returned when subscribing without a handler.
	ErrNilHandler = errors.New("msgbus: handler must not be nil")
	// ErrNilOwner is returned when subscribing an owner that is nil.
	ErrNilOwner = errors.New("msgbus: owner must not be nil")
	// ErrOwnerNotComparable is returned when an owner cannot be used as a lookup key.
	ErrOwnerNotComparable = errors.New("msgbus: owner must be comparable")
	// ErrOwnerDeleted is returned when subscribing an owner that is already
	// destroyed or being destroyed.
	ErrOwnerDeleted = errors.New("msgbus: owner deleted")
	// ErrClosed is returned by subscribe calls after Close.
	ErrClosed = errors.New("msgbus: bus closed")
)
