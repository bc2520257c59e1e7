package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-pos-ledger/internal/inventory"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

type InventoryHandler struct {
	Ledger   *inventory.Ledger
	Validate *validator.Validate
	Log      logrus.FieldLogger
}

type RestockReq struct {
	Qty int `json:"qty" validate:"required,gt=0,lte=2147483647"`
}

func (h *InventoryHandler) Register(r chi.Router) {
	r.Get("/inventory/items", h.listItems)
	r.Post("/inventory/items/{id}/restock", h.restock)
}

func (h *InventoryHandler) listItems(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	items, err := h.Ledger.Snapshot(ctx)
	if err != nil {
		writeError(w, r, h.Log, "listItems", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *InventoryHandler) restock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req RestockReq
	if !decode(w, r, h.Validate, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stock, err := h.Ledger.Restock(ctx, r.Header.Get("Authorization"), id, req.Qty)
	if err != nil {
		writeError(w, r, h.Log, "restock", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item_id": id, "stock": stock})
}
