package httpx

import (
	"net/http"
	"time"

	"github.com/ariefcatur/go-pos-ledger/internal/auth"
	"github.com/ariefcatur/go-pos-ledger/internal/inventory"
	"github.com/ariefcatur/go-pos-ledger/internal/orders"
	"github.com/ariefcatur/go-pos-ledger/internal/reports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// Deps are the services exposed over HTTP.
type Deps struct {
	Auth      *auth.Authority
	Inventory *inventory.Ledger
	Orders    *orders.Engine
	Reports   *reports.Aggregator
	Log       logrus.FieldLogger
}

func NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// NewServer mounts every route on a fresh router.
func NewServer(d Deps) *chi.Mux {
	r := NewRouter()
	v := validator.New()

	(&AuthHandler{Auth: d.Auth, Validate: v, Log: d.Log}).Register(r)

	r.Group(func(r chi.Router) {
		r.Use(RequireSession(d.Auth, d.Log))
		(&InventoryHandler{Ledger: d.Inventory, Validate: v, Log: d.Log}).Register(r)
		(&OrdersHandler{Engine: d.Orders, Reports: d.Reports, Validate: v, Log: d.Log}).Register(r)
		(&ReportsHandler{Reports: d.Reports, Log: d.Log}).Register(r)
	})
	return r
}
