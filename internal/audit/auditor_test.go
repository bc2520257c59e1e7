package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	kafkax "github.com/ariefcatur/go-pos-ledger/internal/kafka"
	"github.com/ariefcatur/go-pos-ledger/internal/ledger"
	"github.com/ariefcatur/go-pos-ledger/internal/logging"
	"github.com/ariefcatur/go-pos-ledger/internal/memstore"
	"github.com/ariefcatur/go-pos-ledger/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seen map[string]bool

func (s seen) Claim(ctx context.Context, id string) (bool, error) {
	if s[id] {
		return false, nil
	}
	s[id] = true
	return true, nil
}

type locks struct {
	mu       sync.Mutex
	held     map[string]bool
	released []string
}

func (l *locks) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		l.released = append(l.released, key)
		return nil
	}, true, nil
}

type recorder struct {
	msgs []kafkago.Message
}

func (r *recorder) Publish(ctx context.Context, key, value []byte, headers ...kafkago.Header) {
	r.msgs = append(r.msgs, kafkago.Message{Key: key, Value: value, Headers: headers})
}

func (r *recorder) mismatches(t *testing.T) []orders.AuditMismatchPayload {
	t.Helper()
	var out []orders.AuditMismatchPayload
	for _, m := range r.msgs {
		var env orders.Envelope
		require.NoError(t, json.Unmarshal(m.Value, &env))
		require.Equal(t, orders.EventAuditMismatch, env.EventType)
		p, err := kafkax.UnwrapPayload[orders.AuditMismatchPayload](env.Payload)
		require.NoError(t, err)
		out = append(out, p)
	}
	return out
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var day = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func newAuditor(t *testing.T) (*Auditor, *memstore.Store, *recorder, *locks) {
	t.Helper()
	st := memstore.New()
	rec := &recorder{}
	lk := &locks{held: map[string]bool{}}
	return &Auditor{
		Ledger:    st,
		Dedup:     seen{},
		Locker:    lk,
		Publisher: rec,
		Service:   "auditor-test",
		Loc:       time.UTC,
		Log:       logging.Discard(),
	}, st, rec, lk
}

// insert writes an order whose header total may disagree with its lines.
func insert(t *testing.T, st *memstore.Store, header string, lines ...ledger.OrderLine) int64 {
	t.Helper()
	var id int64
	err := st.InTx(context.Background(), func(tx ledger.Tx) error {
		o, err := tx.InsertOrder(context.Background(), ledger.Order{CashierUserID: 1, Total: dec(header), CreatedAt: day})
		if err != nil {
			return err
		}
		id = o.ID
		return tx.InsertLines(context.Background(), o.ID, lines)
	})
	require.NoError(t, err)
	return id
}

func committed(t *testing.T, eventID string, orderID int64, total string) kafkago.Message {
	t.Helper()
	env := orders.Envelope{
		EventID:      eventID,
		EventType:    orders.EventOrderCommitted,
		EventVersion: 1,
		Payload:      kafkax.MustMarshal(orders.OrderCommittedPayload{OrderID: orderID, Total: dec(total)}),
	}
	return kafkago.Message{
		Value:   kafkax.MustMarshal(env),
		Headers: []kafkago.Header{{Key: "x-event-type", Value: []byte(orders.EventOrderCommitted)}},
	}
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	a, st, _, _ := newAuditor(t)
	good := insert(t, st, "25", ledger.OrderLine{MenuItemID: 1, Quantity: 2, Price: dec("10")}, ledger.OrderLine{MenuItemID: 2, Quantity: 1, Price: dec("5")})
	bad := insert(t, st, "30", ledger.OrderLine{MenuItemID: 1, Quantity: 2, Price: dec("10")})

	tests := []struct {
		name   string
		id     int64
		event  string
		reason string
	}{
		{"consistent", good, "25", ""},
		{"event disagrees", good, "26", orders.ReasonEventHeader},
		{"header disagrees with lines", bad, "30", orders.ReasonHeaderLines},
		{"order missing", 999, "1", orders.ReasonMissing},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mm, err := a.Verify(ctx, orders.OrderCommittedPayload{OrderID: tc.id, Total: dec(tc.event)})
			require.NoError(t, err)
			if tc.reason == "" {
				assert.Nil(t, mm)
				return
			}
			require.NotNil(t, mm)
			assert.Equal(t, tc.reason, mm.Reason)
		})
	}
}

func TestHandleOrderCommitted_ReportsMismatchOnce(t *testing.T) {
	ctx := context.Background()
	a, st, rec, _ := newAuditor(t)
	id := insert(t, st, "30", ledger.OrderLine{MenuItemID: 1, Quantity: 2, Price: dec("10")})

	msg := committed(t, "ev-1", id, "30")
	require.NoError(t, a.HandleOrderCommitted(ctx, msg))
	require.NoError(t, a.HandleOrderCommitted(ctx, msg))

	got := rec.mismatches(t)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].OrderID)
	assert.Equal(t, orders.ReasonHeaderLines, got[0].Reason)
	assert.True(t, dec("20").Equal(got[0].LineTotal))
}

func TestHandleOrderCommitted_ConsistentOrderIsQuiet(t *testing.T) {
	a, st, rec, _ := newAuditor(t)
	id := insert(t, st, "20", ledger.OrderLine{MenuItemID: 1, Quantity: 2, Price: dec("10")})

	require.NoError(t, a.HandleOrderCommitted(context.Background(), committed(t, "ev-1", id, "20")))
	assert.Empty(t, rec.msgs)
}

func TestHandleOrderCommitted_IgnoresForeignAndMalformed(t *testing.T) {
	ctx := context.Background()
	a, _, rec, _ := newAuditor(t)

	other := committed(t, "ev-2", 1, "1")
	other.Headers = []kafkago.Header{{Key: "x-event-type", Value: []byte("SomethingElse")}}
	assert.NoError(t, a.HandleOrderCommitted(ctx, other))
	assert.NoError(t, a.HandleOrderCommitted(ctx, kafkago.Message{Value: []byte("{not json")}))
	assert.Empty(t, rec.msgs)
}

type brokenLedger struct{ *memstore.Store }

func (brokenLedger) Order(ctx context.Context, id int64) (ledger.Order, error) {
	return ledger.Order{}, errors.New("connection refused")
}

func TestHandleOrderCommitted_LedgerErrorIsRetried(t *testing.T) {
	a, st, _, _ := newAuditor(t)
	a.Ledger = brokenLedger{st}
	err := a.HandleOrderCommitted(context.Background(), committed(t, "ev-3", 1, "1"))
	assert.Error(t, err)
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	a, st, rec, lk := newAuditor(t)
	insert(t, st, "20", ledger.OrderLine{MenuItemID: 1, Quantity: 2, Price: dec("10")})

	res, err := a.Sweep(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", res.Day)
	assert.True(t, res.Balanced())
	assert.Empty(t, rec.msgs)
	assert.Equal(t, []string{"lock:audit:sweep:2024-01-15"}, lk.released)

	insert(t, st, "7", ledger.OrderLine{MenuItemID: 1, Quantity: 1, Price: dec("5")})
	res, err = a.Sweep(ctx, day)
	require.NoError(t, err)
	assert.False(t, res.Balanced())
	got := rec.mismatches(t)
	require.Len(t, got, 1)
	assert.Equal(t, orders.ReasonDayTotals, got[0].Reason)
	assert.Equal(t, "2024-01-15", got[0].Day)
	assert.True(t, dec("27").Equal(got[0].HeaderTotal))
	assert.True(t, dec("25").Equal(got[0].LineTotal))
}

func TestSweep_SkipsWhenLocked(t *testing.T) {
	a, _, rec, lk := newAuditor(t)
	lk.held["lock:audit:sweep:2024-01-15"] = true

	res, err := a.Sweep(context.Background(), day)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Empty(t, rec.msgs)
}
