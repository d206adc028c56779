package pipeline

import (
	"fmt"
	"github.com/ariefcatur/woodchain/internal/orders"
)

const (
	ErrMsgUnauthenticated   = "authenticated actor is required"
	ErrMsgNotSupplier       = "actor is not a supplier"
	ErrMsgSupplierRequired  = "supplier id is required"
	ErrMsgLinesRequired     = "order has no lines"
	ErrMsgProductRequired   = "product id is required"
	ErrMsgQuantityPositive  = "quantity must be positive"
	ErrMsgQuantityTooLarge  = "quantity exceeds the per-line limit"
	ErrMsgDeliveryRequired  = "delivery date is required"
	ErrMsgTotalMismatch     = "client total does not match computed total"
	ErrMsgOrderIDRequired   = "order id is required"
	ErrMsgStatusRequired    = "status is required"
	ErrMsgUnknownStatus     = "unknown delivery status"
	ErrMsgTransitionInvalid = "only Pending -> Confirmed is allowed"
)

// ValidationError means the request was rejected before any state change.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, msg string) *ValidationError { return &ValidationError{Field: field, Message: msg} }

type NotFoundKind int

const (
	ProductNotFound NotFoundKind = iota
	OrderNotFound
)

func (k NotFoundKind) String() string {
	switch k {
	case ProductNotFound:
		return "PRODUCT_NOT_FOUND"
	case OrderNotFound:
		return "ORDER_NOT_FOUND"
	default:
		return "UNKNOWN"
	}
}

type NotFoundError struct {
	Kind NotFoundKind
	ID   int64
}

func (e *NotFoundError) Error() string {
	switch e.Kind {
	case ProductNotFound:
		return fmt.Sprintf("product %d not found", e.ID)
	default:
		return fmt.Sprintf("order %d not found", e.ID)
	}
}

// LocalCommitError means the durable store failed; nothing was mirrored.
type LocalCommitError struct {
	Op  string
	Err error
}

func (e *LocalCommitError) Error() string { return "local store: " + e.Op + ": " + e.Err.Error() }
func (e *LocalCommitError) Unwrap() error { return e.Err }

// LedgerMirrorError means the local commit succeeded and the ledger write did not.
// The order is left flagged for reconciliation under FailureID (0 when even that record failed).
type LedgerMirrorError struct {
	Op        orders.MirrorOperation
	OrderID   int64
	FailureID int64
	Err       error
}

func (e *LedgerMirrorError) Error() string {
	return fmt.Sprintf("ledger mirror %s for order %d: %v", e.Op, e.OrderID, e.Err)
}
func (e *LedgerMirrorError) Unwrap() error { return e.Err }

type IdentityResolutionError struct {
	UserID int64
	Err    error
}

func (e *IdentityResolutionError) Error() string {
	return fmt.Sprintf("resolve ledger identity for user %d: %v", e.UserID, e.Err)
}
func (e *IdentityResolutionError) Unwrap() error { return e.Err }
