package service

import (
	"fmt"

	"github.com/google/uuid"
)

// NotFoundError indicates a referenced invoice, item, client, or pet does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// InvalidStateError indicates an operation is not allowed in the entity's
// current status (e.g. approving an already-approved invoice).
type InvalidStateError struct {
	Entity  string
	ID      string
	Status  string
	Message string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s (current status: %s)", e.Message, e.Status)
}

// InsufficientStockError indicates a deduction would drive an item's stock
// negative. Carries enough detail for the caller to correct and retry.
type InsufficientStockError struct {
	ItemID    uuid.UUID
	ItemName  string
	Available int
	Required  int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s. Available: %d, Required: %d",
		e.ItemName, e.Available, e.Required)
}

// ValidationError indicates malformed input, detected before any storage access.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
