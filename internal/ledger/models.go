package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

type MenuItem struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

// Order is the committed header. Total always equals the sum of its lines.
type Order struct {
	ID            int64           `json:"id"`
	ExternalID    string          `json:"external_id,omitempty"`
	CashierUserID int64           `json:"cashier_user_id"`
	Cashier       string          `json:"cashier,omitempty"` // username, filled on reads
	Total         decimal.Decimal `json:"total"`
	CreatedAt     time.Time       `json:"created_at"`
	Lines         []OrderLine     `json:"lines,omitempty"`
}

// OrderLine carries the unit price as it was when the order committed.
type OrderLine struct {
	OrderID    int64           `json:"order_id"`
	MenuItemID int64           `json:"menu_item_id"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
}

func (l OrderLine) Amount() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// LineInput is one cart line as submitted by the caller.
type LineInput struct {
	ItemID int64 `json:"item_id"`
	Qty    int   `json:"qty"`
}

type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
}

type Employee struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	WeeklyPayment decimal.Decimal `json:"weekly_payment"`
}

// OrderQuery filters committed orders. Zero From/To leave that side open;
// zero CashierUserID matches every cashier.
type OrderQuery struct {
	From          time.Time
	To            time.Time
	CashierUserID int64
}

func (q OrderQuery) Match(o Order) bool {
	if !q.From.IsZero() && o.CreatedAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && !o.CreatedAt.Before(q.To) {
		return false
	}
	return q.CashierUserID == 0 || o.CashierUserID == q.CashierUserID
}

// SumLines returns Σ price×qty.
func SumLines(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount())
	}
	return total
}
