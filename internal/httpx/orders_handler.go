package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-pos-ledger/internal/ledger"
	"github.com/ariefcatur/go-pos-ledger/internal/orders"
	"github.com/ariefcatur/go-pos-ledger/internal/reports"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type OrdersHandler struct {
	Engine   *orders.Engine
	Reports  *reports.Aggregator
	Validate *validator.Validate
	Log      logrus.FieldLogger
}

type PlaceOrderReq struct {
	ExternalID string          `json:"external_id" validate:"omitempty,max=64"`
	Lines      []OrderLineReq  `json:"lines" validate:"dive"`
	Payment    decimal.Decimal `json:"payment"`
}

type OrderLineReq struct {
	ItemID int64 `json:"item_id" validate:"required,gt=0"`
	Qty    int   `json:"qty" validate:"lte=2147483647"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.placeOrder)
	r.Get("/orders/{id}", h.getOrder)
}

func (h *OrdersHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderReq
	if !decode(w, r, h.Validate, &req) {
		return
	}
	if req.Payment.IsNegative() {
		badRequest(w, "payment must not be negative")
		return
	}
	lines := make([]ledger.LineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, ledger.LineInput{ItemID: l.ItemID, Qty: l.Qty})
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := h.Engine.PlaceOrder(ctx, orders.PlaceOrderRequest{
		Token:      r.Header.Get("Authorization"),
		Lines:      lines,
		Payment:    req.Payment,
		ExternalID: req.ExternalID,
	})
	if err != nil {
		writeError(w, r, h.Log, "placeOrder", err)
		return
	}
	code := http.StatusCreated
	if res.Idempotent {
		code = http.StatusOK
	}
	writeJSON(w, code, res)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Reports.Order(ctx, id)
	if err != nil {
		writeError(w, r, h.Log, "getOrder", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
