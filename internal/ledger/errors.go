package ledger

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnauthorized       Kind = "unauthorized"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindEmptyOrder         Kind = "empty_order"
	KindInvalidQuantity    Kind = "invalid_quantity"
	KindItemNotFound       Kind = "item_not_found"
	KindInsufficientStock  Kind = "insufficient_stock"
	KindContention         Kind = "stock_contention"
	KindPersistence        Kind = "persistence_failure"
)

// Error is the failure returned for a rejected order attempt or session
// check. ItemID, Requested and Available are set for item-scoped kinds.
type Error struct {
	Kind      Kind
	ItemID    int64
	Requested int
	Available int
	Err       error
}

var (
	ErrUnauthorized       = &Error{Kind: KindUnauthorized}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials}
	ErrEmptyOrder         = &Error{Kind: KindEmptyOrder}
	ErrInvalidQuantity    = &Error{Kind: KindInvalidQuantity}
	ErrItemNotFound       = &Error{Kind: KindItemNotFound}
	ErrInsufficientStock  = &Error{Kind: KindInsufficientStock}
	ErrContention         = &Error{Kind: KindContention}
	ErrPersistence        = &Error{Kind: KindPersistence}
)

// Store-level sentinels, translated by callers into the kinds above.
var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrEmployeeNotFound    = errors.New("employee not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrUserExists          = errors.New("user already exists")
	ErrInvalidUser         = errors.New("username and password are required")
	ErrDuplicateExternalID = errors.New("order external id already used")
	ErrStockConflict       = errors.New("stock changed under lock")
	ErrLockTimeout         = errors.New("lock wait timed out")
)

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case KindItemNotFound:
		msg = fmt.Sprintf("%s: item %d", e.Kind, e.ItemID)
	case KindInsufficientStock:
		msg = fmt.Sprintf("%s: item %d requested %d available %d", e.Kind, e.ItemID, e.Requested, e.Available)
	case KindInvalidQuantity:
		msg = fmt.Sprintf("%s: item %d qty %d", e.Kind, e.ItemID, e.Requested)
	default:
		msg = string(e.Kind)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so errors.Is(err, ErrInsufficientStock) holds for any item.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func ItemNotFound(id int64) *Error {
	return &Error{Kind: KindItemNotFound, ItemID: id}
}

func InsufficientStock(id int64, requested, available int) *Error {
	return &Error{Kind: KindInsufficientStock, ItemID: id, Requested: requested, Available: available}
}

func InvalidQuantity(id int64, qty int) *Error {
	return &Error{Kind: KindInvalidQuantity, ItemID: id, Requested: qty}
}

func Persistence(err error) *Error {
	return &Error{Kind: KindPersistence, Err: err}
}

func Contention(err error) *Error {
	return &Error{Kind: KindContention, Err: err}
}

// KindOf reports the Kind carried by err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Classify turns a store failure into a domain error. Values that already
// are *Error pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, ErrLockTimeout) {
		return Contention(err)
	}
	return Persistence(err)
}
