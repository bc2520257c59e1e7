// Package audit cross-checks committed orders against their lines. It reads
// the ledger, never writes it, and reports inconsistencies as events.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	kafkax "github.com/ariefcatur/go-pos-ledger/internal/kafka"
	"github.com/ariefcatur/go-pos-ledger/internal/ledger"
	"github.com/ariefcatur/go-pos-ledger/internal/logging"
	"github.com/ariefcatur/go-pos-ledger/internal/orders"
	"github.com/ariefcatur/go-pos-ledger/internal/redisx"
	"github.com/ariefcatur/go-pos-ledger/internal/tracing"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Ledger interface {
	Order(ctx context.Context, id int64) (ledger.Order, error)
	Revenue(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
	LineRevenue(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
}

// Deduper reports true the first time an event id is claimed.
type Deduper interface {
	Claim(ctx context.Context, eventID string) (bool, error)
}

// Locker returns ok=false when another holder owns key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

type Auditor struct {
	Ledger    Ledger
	Dedup     Deduper
	Locker    Locker
	Publisher orders.Publisher
	Service   string
	Loc       *time.Location
	Log       logrus.FieldLogger
	Now       func() time.Time
}

// HandleOrderCommitted verifies one OrderCommitted event. Decode failures are
// dropped so a poison message cannot stall the partition; ledger read errors
// are returned and the consumer retries the message in place.
func (a *Auditor) HandleOrderCommitted(ctx context.Context, m kafkago.Message) error {
	ctx = tracing.ExtractKafkaHeaders(ctx, m.Headers)
	if t := tracing.Header(m.Headers, kafkax.HeaderEventType); t != "" && t != orders.EventOrderCommitted {
		return nil
	}

	var env orders.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		logging.Error(a.Log, "audit", "HandleOrderCommitted", "decode envelope", m.Offset, err)
		return nil
	}
	if env.EventType != orders.EventOrderCommitted {
		return nil
	}
	p, err := kafkax.UnwrapPayload[orders.OrderCommittedPayload](env.Payload)
	if err != nil {
		logging.Error(a.Log, "audit", "HandleOrderCommitted", "decode payload", env.EventID, err)
		return nil
	}

	mm, err := a.Verify(ctx, p)
	if err != nil {
		return err
	}
	if mm == nil {
		return nil
	}

	first, err := a.Dedup.Claim(ctx, env.EventID)
	if err != nil {
		a.Log.WithError(err).Warn("dedup unavailable; reporting anyway")
		first = true
	}
	if first {
		a.report(ctx, *mm)
	}
	return nil
}

// Verify checks that the stored header equals Σ price×qty of its lines and
// that the event carried the same total. It returns nil when both hold.
func (a *Auditor) Verify(ctx context.Context, p orders.OrderCommittedPayload) (*orders.AuditMismatchPayload, error) {
	o, err := a.Ledger.Order(ctx, p.OrderID)
	if errors.Is(err, ledger.ErrOrderNotFound) {
		return &orders.AuditMismatchPayload{OrderID: p.OrderID, Reason: orders.ReasonMissing, EventTotal: p.Total}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load order %d: %w", p.OrderID, err)
	}

	mm := orders.AuditMismatchPayload{
		OrderID:     o.ID,
		HeaderTotal: o.Total,
		LineTotal:   ledger.SumLines(o.Lines),
		EventTotal:  p.Total,
	}
	switch {
	case !mm.HeaderTotal.Equal(mm.LineTotal):
		mm.Reason = orders.ReasonHeaderLines
	case !mm.HeaderTotal.Equal(mm.EventTotal):
		mm.Reason = orders.ReasonEventHeader
	default:
		return nil, nil
	}
	return &mm, nil
}

type SweepResult struct {
	Day        string
	OrderTotal decimal.Decimal
	LineTotal  decimal.Decimal
	Skipped    bool // another replica holds the lock
}

func (r SweepResult) Balanced() bool { return r.OrderTotal.Equal(r.LineTotal) }

// Sweep compares Σ order totals with Σ line amounts for day's calendar date.
func (a *Auditor) Sweep(ctx context.Context, day time.Time) (SweepResult, error) {
	y, mo, d := day.In(a.loc()).Date()
	from := time.Date(y, mo, d, 0, 0, 0, 0, a.loc())
	res := SweepResult{Day: from.Format("2006-01-02")}

	release, ok, err := a.Locker.TryLock(ctx, fmt.Sprintf(redisx.KeyAuditSweepLock, res.Day), redisx.TTLSweepLock)
	if err != nil {
		return res, fmt.Errorf("sweep lock: %w", err)
	}
	if !ok {
		res.Skipped = true
		return res, nil
	}
	defer func() {
		if err := release(ctx); err != nil {
			a.Log.WithError(err).Warn("failed to release sweep lock")
		}
	}()

	to := from.AddDate(0, 0, 1)
	if res.OrderTotal, err = a.Ledger.Revenue(ctx, from, to); err != nil {
		return res, err
	}
	if res.LineTotal, err = a.Ledger.LineRevenue(ctx, from, to); err != nil {
		return res, err
	}

	log := a.Log.WithFields(logrus.Fields{
		"day":         res.Day,
		"order_total": res.OrderTotal.StringFixed(2),
		"line_total":  res.LineTotal.StringFixed(2),
	})
	if res.Balanced() {
		log.Info("ledger sweep balanced")
		return res, nil
	}
	a.report(ctx, orders.AuditMismatchPayload{
		Day:         res.Day,
		Reason:      orders.ReasonDayTotals,
		HeaderTotal: res.OrderTotal,
		LineTotal:   res.LineTotal,
	})
	return res, nil
}

// RunSweeps sweeps the current day every interval until ctx ends.
func (a *Auditor) RunSweeps(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if _, err := a.Sweep(ctx, a.now()); err != nil && ctx.Err() == nil {
			logging.Error(a.Log, "audit", "RunSweeps", "sweep failed", nil, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (a *Auditor) report(ctx context.Context, mm orders.AuditMismatchPayload) {
	a.Log.WithFields(logrus.Fields{
		"order_id":     mm.OrderID,
		"day":          mm.Day,
		"reason":       mm.Reason,
		"header_total": mm.HeaderTotal.String(),
		"line_total":   mm.LineTotal.String(),
		"event_total":  mm.EventTotal.String(),
	}).Error("ledger mismatch")

	if a.Publisher == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventAuditMismatch,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      a.Service,
		CorrelationID: fmt.Sprint(mm.OrderID),
		Payload:       kafkax.MustMarshal(mm),
	}
	headers := tracing.InjectKafkaHeaders(ctx, kafkax.EventHeaders(orders.EventAuditMismatch, ev.EventVersion))
	a.Publisher.Publish(ctx, orders.PartitionKey(mm.OrderID), kafkax.MustMarshal(ev), headers...)
}

func (a *Auditor) loc() *time.Location {
	if a.Loc == nil {
		return time.Local
	}
	return a.Loc
}

func (a *Auditor) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}
