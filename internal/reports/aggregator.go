// Package reports derives revenue and attendance figures from committed
// orders. It never writes and keeps no state between calls.
package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-pos-ledger/internal/ledger"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"
)

var ErrBadPeriod = errors.New("invalid date or month")

// Source is the read side of the ledger.
type Source interface {
	Revenue(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
	Orders(ctx context.Context, q ledger.OrderQuery) ([]ledger.Order, error)
	Order(ctx context.Context, id int64) (ledger.Order, error)
	Employee(ctx context.Context, id int64) (ledger.Employee, error)
}

type OrderRow struct {
	OrderID   int64           `json:"order_id"`
	Cashier   string          `json:"cashier"`
	CreatedAt time.Time       `json:"created_at"`
	Total     decimal.Decimal `json:"total"`
}

type DayEntry struct {
	Date    string          `json:"date"`
	Present bool            `json:"present"`
	Orders  int             `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

type MonthSummary struct {
	EmployeeID   int64           `json:"employee_id"`
	Month        string          `json:"month"`
	TotalOrders  int             `json:"total_orders"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	PresentDays  int             `json:"present_days"`
	AbsentDays   int             `json:"absent_days"`
	Days         []DayEntry      `json:"days"`
}

// Aggregator answers report queries. Calendar days and months are taken in
// Loc.
type Aggregator struct {
	Source Source
	Loc    *time.Location

	tracer trace.Tracer
}

func NewAggregator(src Source, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	return &Aggregator{Source: src, Loc: loc, tracer: otel.Tracer("reports")}
}

// ParseDate reads YYYY-MM-DD as midnight in a.Loc.
func (a *Aggregator) ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, a.Loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadPeriod, s)
	}
	return t, nil
}

// ParseMonth reads YYYY-MM as the first instant of that month in a.Loc.
func (a *Aggregator) ParseMonth(s string) (time.Time, error) {
	t, err := time.ParseInLocation(MonthLayout, s, a.Loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadPeriod, s)
	}
	return t, nil
}

func (a *Aggregator) dayBounds(t time.Time) (time.Time, time.Time) {
	y, m, d := t.In(a.Loc).Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, a.Loc)
	return from, from.AddDate(0, 0, 1)
}

func (a *Aggregator) monthBounds(t time.Time) (time.Time, time.Time) {
	y, m, _ := t.In(a.Loc).Date()
	from := time.Date(y, m, 1, 0, 0, 0, 0, a.Loc)
	return from, from.AddDate(0, 1, 0)
}

func (a *Aggregator) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if a.tracer == nil {
		a.tracer = otel.Tracer("reports")
	}
	return a.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// DailyRevenue is Σ total over orders created on day's calendar date; zero
// when there are none.
func (a *Aggregator) DailyRevenue(ctx context.Context, day time.Time) (decimal.Decimal, error) {
	from, to := a.dayBounds(day)
	ctx, span := a.start(ctx, "DailyRevenue", attribute.String("date", from.Format(DateLayout)))
	defer span.End()

	rev, err := a.Source.Revenue(ctx, from, to)
	if err != nil {
		return decimal.Zero, fail(span, ledger.Persistence(err))
	}
	return rev, nil
}

func (a *Aggregator) MonthlyRevenue(ctx context.Context, month time.Time) (decimal.Decimal, error) {
	from, to := a.monthBounds(month)
	ctx, span := a.start(ctx, "MonthlyRevenue", attribute.String("month", from.Format(MonthLayout)))
	defer span.End()

	rev, err := a.Source.Revenue(ctx, from, to)
	if err != nil {
		return decimal.Zero, fail(span, ledger.Persistence(err))
	}
	return rev, nil
}

// OrdersOnDate lists the day's orders, newest first.
func (a *Aggregator) OrdersOnDate(ctx context.Context, day time.Time) ([]OrderRow, error) {
	from, to := a.dayBounds(day)
	ctx, span := a.start(ctx, "OrdersOnDate", attribute.String("date", from.Format(DateLayout)))
	defer span.End()

	list, err := a.Source.Orders(ctx, ledger.OrderQuery{From: from, To: to})
	if err != nil {
		return nil, fail(span, ledger.Persistence(err))
	}
	return toRows(list), nil
}

// OrdersByEmployee lists every order rung up by the employee's user, newest
// first.
func (a *Aggregator) OrdersByEmployee(ctx context.Context, employeeID int64) ([]OrderRow, error) {
	ctx, span := a.start(ctx, "OrdersByEmployee", attribute.Int64("employee.id", employeeID))
	defer span.End()

	emp, err := a.employee(ctx, employeeID)
	if err != nil {
		return nil, fail(span, err)
	}
	list, err := a.Source.Orders(ctx, ledger.OrderQuery{CashierUserID: emp.UserID})
	if err != nil {
		return nil, fail(span, ledger.Persistence(err))
	}
	return toRows(list), nil
}

// EmployeeMonthSummary builds one calendar entry per day of month. A day is
// present when the employee committed at least one order on it.
func (a *Aggregator) EmployeeMonthSummary(ctx context.Context, employeeID int64, month time.Time) (MonthSummary, error) {
	from, to := a.monthBounds(month)
	ctx, span := a.start(ctx, "EmployeeMonthSummary",
		attribute.Int64("employee.id", employeeID),
		attribute.String("month", from.Format(MonthLayout)))
	defer span.End()

	emp, err := a.employee(ctx, employeeID)
	if err != nil {
		return MonthSummary{}, fail(span, err)
	}
	list, err := a.Source.Orders(ctx, ledger.OrderQuery{From: from, To: to, CashierUserID: emp.UserID})
	if err != nil {
		return MonthSummary{}, fail(span, ledger.Persistence(err))
	}

	type bucket struct {
		n   int
		rev decimal.Decimal
	}
	byDay := map[string]*bucket{}
	for _, o := range list {
		k := o.CreatedAt.In(a.Loc).Format(DateLayout)
		b, ok := byDay[k]
		if !ok {
			b = &bucket{rev: decimal.Zero}
			byDay[k] = b
		}
		b.n++
		b.rev = b.rev.Add(o.Total)
	}

	sum := MonthSummary{
		EmployeeID:   employeeID,
		Month:        from.Format(MonthLayout),
		TotalRevenue: decimal.Zero,
	}
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		e := DayEntry{Date: d.Format(DateLayout), Revenue: decimal.Zero}
		if b, ok := byDay[e.Date]; ok {
			e.Present, e.Orders, e.Revenue = true, b.n, b.rev
			sum.PresentDays++
			sum.TotalOrders += b.n
			sum.TotalRevenue = sum.TotalRevenue.Add(b.rev)
		} else {
			sum.AbsentDays++
		}
		sum.Days = append(sum.Days, e)
	}
	return sum, nil
}

// Order returns a committed order with its line snapshots.
func (a *Aggregator) Order(ctx context.Context, id int64) (ledger.Order, error) {
	ctx, span := a.start(ctx, "Order", attribute.Int64("order.id", id))
	defer span.End()

	o, err := a.Source.Order(ctx, id)
	if errors.Is(err, ledger.ErrOrderNotFound) {
		return ledger.Order{}, err
	}
	if err != nil {
		return ledger.Order{}, fail(span, ledger.Persistence(err))
	}
	return o, nil
}

func (a *Aggregator) employee(ctx context.Context, id int64) (ledger.Employee, error) {
	emp, err := a.Source.Employee(ctx, id)
	if errors.Is(err, ledger.ErrEmployeeNotFound) {
		return ledger.Employee{}, err
	}
	if err != nil {
		return ledger.Employee{}, ledger.Persistence(err)
	}
	return emp, nil
}

func toRows(list []ledger.Order) []OrderRow {
	out := make([]OrderRow, 0, len(list))
	for _, o := range list {
		out = append(out, OrderRow{OrderID: o.ID, Cashier: o.Cashier, CreatedAt: o.CreatedAt, Total: o.Total})
	}
	return out
}
