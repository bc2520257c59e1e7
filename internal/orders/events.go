package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCommitted = "OrderCommitted"
	EventAuditMismatch  = "OrderAuditMismatch"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type LinePrice struct {
	MenuItemID int64           `json:"menu_item_id"`
	Qty        int             `json:"qty"`
	Price      decimal.Decimal `json:"price"`
}

type OrderCommittedPayload struct {
	OrderID       int64           `json:"order_id"`
	ExternalID    string          `json:"external_id,omitempty"`
	CashierUserID int64           `json:"cashier_user_id"`
	Lines         []LinePrice     `json:"lines"`
	Total         decimal.Decimal `json:"total"`
	CreatedAt     time.Time       `json:"created_at"`
}

const (
	ReasonHeaderLines = "HEADER_LINES"
	ReasonEventHeader = "EVENT_HEADER"
	ReasonMissing     = "MISSING"
	ReasonDayTotals   = "DAY_TOTALS"
)

// AuditMismatchPayload reports a ledger inconsistency. OrderID is zero and
// Day is set for DAY_TOTALS.
type AuditMismatchPayload struct {
	OrderID     int64           `json:"order_id,omitempty"`
	Day         string          `json:"day,omitempty"`
	Reason      string          `json:"reason"`
	HeaderTotal decimal.Decimal `json:"header_total"`
	LineTotal   decimal.Decimal `json:"line_total"`
	EventTotal  decimal.Decimal `json:"event_total"`
}
