package httpx

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ariefcatur/go-pos-ledger/internal/reports"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type ReportsHandler struct {
	Reports *reports.Aggregator
	Log     logrus.FieldLogger
}

type RevenueResp struct {
	Period  string          `json:"period"`
	Revenue decimal.Decimal `json:"revenue"`
}

func (h *ReportsHandler) Register(r chi.Router) {
	r.Get("/reports/sales/daily", h.dailyRevenue)
	r.Get("/reports/sales/monthly", h.monthlyRevenue)
	r.Get("/reports/orders", h.ordersOnDate)
	r.Get("/employees/{id}/orders", h.ordersByEmployee)
	r.Get("/employees/{id}/summary", h.monthSummary)
	r.Get("/employees/{id}/summary.xlsx", h.monthSummaryXLSX)
}

// dateParam defaults to today in the report zone.
func (h *ReportsHandler) dateParam(r *http.Request) (time.Time, error) {
	q := r.URL.Query().Get("date")
	if q == "" {
		return time.Now().In(h.Reports.Loc), nil
	}
	return h.Reports.ParseDate(q)
}

func (h *ReportsHandler) monthParam(r *http.Request) (time.Time, error) {
	q := r.URL.Query().Get("month")
	if q == "" {
		return time.Now().In(h.Reports.Loc), nil
	}
	return h.Reports.ParseMonth(q)
}

func (h *ReportsHandler) dailyRevenue(w http.ResponseWriter, r *http.Request) {
	day, err := h.dateParam(r)
	if err != nil {
		writeError(w, r, h.Log, "dailyRevenue", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rev, err := h.Reports.DailyRevenue(ctx, day)
	if err != nil {
		writeError(w, r, h.Log, "dailyRevenue", err)
		return
	}
	writeJSON(w, http.StatusOK, RevenueResp{Period: day.Format(reports.DateLayout), Revenue: rev})
}

func (h *ReportsHandler) monthlyRevenue(w http.ResponseWriter, r *http.Request) {
	month, err := h.monthParam(r)
	if err != nil {
		writeError(w, r, h.Log, "monthlyRevenue", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rev, err := h.Reports.MonthlyRevenue(ctx, month)
	if err != nil {
		writeError(w, r, h.Log, "monthlyRevenue", err)
		return
	}
	writeJSON(w, http.StatusOK, RevenueResp{Period: month.Format(reports.MonthLayout), Revenue: rev})
}

func (h *ReportsHandler) ordersOnDate(w http.ResponseWriter, r *http.Request) {
	day, err := h.dateParam(r)
	if err != nil {
		writeError(w, r, h.Log, "ordersOnDate", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rows, err := h.Reports.OrdersOnDate(ctx, day)
	if err != nil {
		writeError(w, r, h.Log, "ordersOnDate", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *ReportsHandler) ordersByEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rows, err := h.Reports.OrdersByEmployee(ctx, id)
	if err != nil {
		writeError(w, r, h.Log, "ordersByEmployee", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *ReportsHandler) summary(w http.ResponseWriter, r *http.Request, funcName string) (reports.MonthSummary, bool) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return reports.MonthSummary{}, false
	}
	month, err := h.monthParam(r)
	if err != nil {
		writeError(w, r, h.Log, funcName, err)
		return reports.MonthSummary{}, false
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	s, err := h.Reports.EmployeeMonthSummary(ctx, id, month)
	if err != nil {
		writeError(w, r, h.Log, funcName, err)
		return reports.MonthSummary{}, false
	}
	return s, true
}

func (h *ReportsHandler) monthSummary(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.summary(w, r, "monthSummary"); ok {
		writeJSON(w, http.StatusOK, s)
	}
}

func (h *ReportsHandler) monthSummaryXLSX(w http.ResponseWriter, r *http.Request) {
	s, ok := h.summary(w, r, "monthSummaryXLSX")
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := reports.WriteMonthSummaryXLSX(&buf, s); err != nil {
		writeError(w, r, h.Log, "monthSummaryXLSX", err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=employee-%d-%s.xlsx", s.EmployeeID, s.Month))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
