package inventory

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/ariefcatur/go-pos-ledger/internal/ledger"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// MaxQty bounds a single line, the per-item sum of a cart and any stock
// count. It matches the INT columns of the durable store.
const MaxQty = math.MaxInt32

// Reservation is one cart line after its stock was deducted. Price is the
// unit price read under the row lock.
type Reservation struct {
	ItemID int64
	Qty    int
	Price  decimal.Decimal
}

type Resolver interface {
	Resolve(ctx context.Context, token string) (int64, error)
}

// Ledger owns stock counts. Stock only moves inside a ledger.Tx.
type Ledger struct {
	Store ledger.Store
	Auth  Resolver
	Log   logrus.FieldLogger
}

// Snapshot is advisory; stock may change before an order commits.
func (l *Ledger) Snapshot(ctx context.Context) ([]ledger.MenuItem, error) {
	items, err := l.Store.Items(ctx)
	if err != nil {
		return nil, ledger.Persistence(err)
	}
	return items, nil
}

// CheckAndReserve validates and deducts the whole cart inside tx. Rows are
// locked in ascending id order so concurrent carts cannot deadlock on each
// other. On error nothing may be committed; the caller rolls tx back.
func (l *Ledger) CheckAndReserve(ctx context.Context, tx ledger.Tx, lines []ledger.LineInput) ([]Reservation, error) {
	need := make(map[int64]int, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, ln := range lines {
		if ln.Qty <= 0 || ln.Qty > MaxQty || need[ln.ItemID] > MaxQty-ln.Qty {
			return nil, ledger.InvalidQuantity(ln.ItemID, ln.Qty)
		}
		if _, seen := need[ln.ItemID]; !seen {
			ids = append(ids, ln.ItemID)
		}
		need[ln.ItemID] += ln.Qty
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	items, err := tx.LockItems(ctx, ids)
	if err != nil {
		return nil, ledger.Classify(err)
	}
	for _, id := range ids {
		if _, ok := items[id]; !ok {
			return nil, ledger.ItemNotFound(id)
		}
	}
	for _, id := range ids {
		if it := items[id]; it.Stock < need[id] {
			return nil, ledger.InsufficientStock(id, need[id], it.Stock)
		}
	}

	for _, id := range ids {
		// guarded update re-checks stock >= qty under the same lock
		if _, err := tx.DeductStock(ctx, id, need[id]); err != nil {
			if errors.Is(err, ledger.ErrStockConflict) {
				return nil, ledger.InsufficientStock(id, need[id], items[id].Stock)
			}
			return nil, ledger.Classify(err)
		}
	}

	out := make([]Reservation, 0, len(lines))
	for _, ln := range lines {
		out = append(out, Reservation{ItemID: ln.ItemID, Qty: ln.Qty, Price: items[ln.ItemID].Price})
	}
	return out, nil
}

// Restock adds qty units to an item on behalf of an authenticated user.
func (l *Ledger) Restock(ctx context.Context, token string, itemID int64, qty int) (int, error) {
	uid, err := l.Auth.Resolve(ctx, token)
	if err != nil {
		return 0, err
	}
	if qty <= 0 || qty > MaxQty {
		return 0, ledger.InvalidQuantity(itemID, qty)
	}

	var stock int
	err = l.Store.InTx(ctx, func(tx ledger.Tx) error {
		items, err := tx.LockItems(ctx, []int64{itemID})
		if err != nil {
			return err
		}
		it, ok := items[itemID]
		if !ok {
			return ledger.ItemNotFound(itemID)
		}
		if it.Stock > MaxQty-qty {
			return ledger.InvalidQuantity(itemID, qty)
		}
		stock, err = tx.AddStock(ctx, itemID, qty)
		return err
	})
	if err != nil {
		return 0, ledger.Classify(err)
	}
	l.Log.WithFields(logrus.Fields{"item_id": itemID, "qty": qty, "stock": stock, "user_id": uid}).Info("item restocked")
	return stock, nil
}
