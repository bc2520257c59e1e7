package ledger

import "context"

// Store is the durable ledger. Stock and order rows only change inside InTx.
type Store interface {
	// InTx runs fn as one isolated unit of work. A non-nil error from fn
	// rolls everything back and is returned unchanged.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Items(ctx context.Context) ([]MenuItem, error)
	OrderByExternalID(ctx context.Context, externalID string) (Order, error)
}

type Tx interface {
	// LockItems locks the rows of ids until the unit of work ends. Missing
	// ids are absent from the result.
	LockItems(ctx context.Context, ids []int64) (map[int64]MenuItem, error)
	// DeductStock returns ErrStockConflict if stock would go negative.
	DeductStock(ctx context.Context, id int64, qty int) (remaining int, err error)
	AddStock(ctx context.Context, id int64, qty int) (stock int, err error)
	// InsertOrder assigns ID (and CreatedAt when zero). A reused external id
	// fails with ErrDuplicateExternalID.
	InsertOrder(ctx context.Context, o Order) (Order, error)
	InsertLines(ctx context.Context, orderID int64, lines []OrderLine) error
}
