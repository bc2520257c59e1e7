package orders

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/ariefcatur/go-pos-ledger/internal/inventory"
	kafkax "github.com/ariefcatur/go-pos-ledger/internal/kafka"
	"github.com/ariefcatur/go-pos-ledger/internal/ledger"
	"github.com/ariefcatur/go-pos-ledger/internal/tracing"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Publisher interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafkago.Header)
}

type PlaceOrderRequest struct {
	Token      string
	Lines      []ledger.LineInput
	Payment    decimal.Decimal
	ExternalID string // optional; repeats return the committed order
}

type Result struct {
	OrderID    int64           `json:"order_id"`
	Total      decimal.Decimal `json:"total"`
	Change     decimal.Decimal `json:"change"`
	CreatedAt  time.Time       `json:"created_at"`
	Idempotent bool            `json:"idempotent"`
}

// Engine is the only writer of orders and order lines.
type Engine struct {
	Store     ledger.Store
	Inventory *inventory.Ledger
	Auth      inventory.Resolver
	Publisher Publisher // nil disables events
	Service   string
	Log       logrus.FieldLogger
	Now       func() time.Time

	tracer trace.Tracer
}

func NewEngine(store ledger.Store, inv *inventory.Ledger, auth inventory.Resolver, pub Publisher, service string, log logrus.FieldLogger) *Engine {
	return &Engine{
		Store:     store,
		Inventory: inv,
		Auth:      auth,
		Publisher: pub,
		Service:   service,
		Log:       log,
		Now:       time.Now,
		tracer:    otel.Tracer("orders"),
	}
}

// PlaceOrder validates the cart, deducts stock and records the order as one
// unit of work. Any failure leaves stock and order rows untouched. Change is
// payment minus total and may be negative; payment policy belongs to callers.
func (e *Engine) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "PlaceOrder")
	defer span.End()
	att := &attempt{phase: PhaseValidating, log: e.Log, span: span}

	uid, err := e.Auth.Resolve(ctx, req.Token)
	if err != nil {
		return Result{}, att.abort(err)
	}
	att.log = e.Log.WithField("cashier_user_id", uid)
	if len(req.Lines) == 0 {
		return Result{}, att.abort(ledger.ErrEmptyOrder)
	}
	if req.ExternalID != "" {
		if res, ok, err := e.replay(ctx, uid, req); err != nil || ok {
			return res, att.finish(err)
		}
	}

	var committed ledger.Order
	err = e.Store.InTx(ctx, func(tx ledger.Tx) error {
		att.to(PhaseReserving)
		res, err := e.Inventory.CheckAndReserve(ctx, tx, req.Lines)
		if err != nil {
			return err
		}

		lines := make([]ledger.OrderLine, 0, len(res))
		for _, r := range res {
			lines = append(lines, ledger.OrderLine{MenuItemID: r.ItemID, Quantity: r.Qty, Price: r.Price})
		}

		att.to(PhasePersisting)
		o, err := tx.InsertOrder(ctx, ledger.Order{
			ExternalID:    req.ExternalID,
			CashierUserID: uid,
			Total:         ledger.SumLines(lines),
			CreatedAt:     e.now(),
		})
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, o.ID, lines); err != nil {
			return err
		}
		for i := range lines {
			lines[i].OrderID = o.ID
		}
		o.Lines = lines
		committed = o
		return nil
	})
	if errors.Is(err, ledger.ErrDuplicateExternalID) {
		// lost a race with the same external id
		res, ok, rerr := e.replay(ctx, uid, req)
		if rerr == nil && !ok {
			rerr = ledger.Persistence(err)
		}
		return res, att.finish(rerr)
	}
	if err != nil {
		return Result{}, att.abort(ledger.Classify(err))
	}

	att.to(PhaseCommitted)
	span.SetAttributes(attribute.Int64("order.id", committed.ID))
	att.log.WithFields(logrus.Fields{
		"order_id": committed.ID,
		"total":    committed.Total.StringFixed(2),
		"lines":    len(committed.Lines),
	}).Info("order committed")

	e.publishCommitted(ctx, committed)
	return Result{
		OrderID:   committed.ID,
		Total:     committed.Total,
		Change:    req.Payment.Sub(committed.Total),
		CreatedAt: committed.CreatedAt,
	}, nil
}

// replay returns the committed order for req.ExternalID, if any. An external
// id owned by another cashier is never disclosed.
func (e *Engine) replay(ctx context.Context, uid int64, req PlaceOrderRequest) (Result, bool, error) {
	o, err := e.Store.OrderByExternalID(ctx, req.ExternalID)
	if errors.Is(err, ledger.ErrOrderNotFound) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, ledger.Persistence(err)
	}
	if o.CashierUserID != uid {
		return Result{}, false, ledger.Persistence(ledger.ErrDuplicateExternalID)
	}
	return Result{
		OrderID:    o.ID,
		Total:      o.Total,
		Change:     req.Payment.Sub(o.Total),
		CreatedAt:  o.CreatedAt,
		Idempotent: true,
	}, true, nil
}

func (e *Engine) publishCommitted(ctx context.Context, o ledger.Order) {
	if e.Publisher == nil {
		return
	}
	lines := make([]LinePrice, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, LinePrice{MenuItemID: l.MenuItemID, Qty: l.Quantity, Price: l.Price})
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventOrderCommitted,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      e.Service,
		TraceID:       trace.SpanContextFromContext(ctx).TraceID().String(),
		CorrelationID: strconv.FormatInt(o.ID, 10),
		Payload: kafkax.MustMarshal(OrderCommittedPayload{
			OrderID:       o.ID,
			ExternalID:    o.ExternalID,
			CashierUserID: o.CashierUserID,
			Lines:         lines,
			Total:         o.Total,
			CreatedAt:     o.CreatedAt,
		}),
	}
	headers := tracing.InjectKafkaHeaders(ctx, kafkax.EventHeaders(EventOrderCommitted, ev.EventVersion))
	e.Publisher.Publish(ctx, PartitionKey(o.ID), kafkax.MustMarshal(ev), headers...)
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// attempt tracks one PlaceOrder call through its phases.
type attempt struct {
	phase Phase
	log   logrus.FieldLogger
	span  trace.Span
}

func (a *attempt) to(next Phase) {
	if !CanTransition(a.phase, next) {
		a.log.WithFields(logrus.Fields{"from": a.phase, "to": next}).Warn("unexpected order phase transition")
	}
	a.phase = next
	a.log.WithField("phase", next).Debug("order phase")
}

func (a *attempt) abort(err error) error {
	from := a.phase
	a.phase = PhaseAborted
	kind := ledger.KindOf(err)
	a.span.SetStatus(codes.Error, string(kind))
	a.span.RecordError(err)
	entry := a.log.WithFields(logrus.Fields{"phase": from, "kind": kind})
	if kind == ledger.KindPersistence || kind == "" {
		entry.WithError(err).Error("order aborted")
	} else {
		entry.WithError(err).Info("order aborted")
	}
	return err
}

// finish ends an idempotent replay, which writes nothing either way.
func (a *attempt) finish(err error) error {
	if err != nil {
		return a.abort(err)
	}
	a.log.Info("order replayed by external id")
	return nil
}
