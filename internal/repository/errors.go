// Package repository defines error types that are reused across the
// purchase store. These sentinel values allow higher layers such as
// services and handlers to distinguish between failure scenarios without
// inspecting driver errors.
package repository

import "errors"

// ErrPurchaseNotFound is returned when no purchase matches the given id.
// Handlers translate this into an HTTP 404 response.
var ErrPurchaseNotFound = errors.New("purchase not found")

// ErrNotPending is returned by conditional updates that only apply to
// PENDING purchases when the row has already moved on.
var ErrNotPending = errors.New("purchase is not pending")

// ErrSessionAlreadyAttached is returned when a purchase already carries a
// payment session reference.  References are never overwritten.
var ErrSessionAlreadyAttached = errors.New("payment session already attached")

// ErrNumbersExhausted is returned when the raffle number space cannot hold
// the requested block.
var ErrNumbersExhausted = errors.New("raffle numbers exhausted")

// ErrDuplicateNumber is returned when a reserved number violates the
// raffle_numbers uniqueness constraint.
var ErrDuplicateNumber = errors.New("raffle number already assigned")
