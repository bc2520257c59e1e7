// Package memstore is a single-process ledger store. Units of work are
// serialized behind one mutex, which is only sound while a single process
// owns the data; multi-process deployments use the Postgres store.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-pos-ledger/internal/ledger"
	"github.com/shopspring/decimal"
)

type Store struct {
	mu        sync.RWMutex
	items     map[int64]ledger.MenuItem
	orders    []ledger.Order // ascending id, lines attached
	users     map[int64]ledger.User
	byName    map[string]int64
	employees map[int64]ledger.Employee
	faults    map[string]error

	nextItem, nextOrder, nextUser, nextEmployee int64

	now func() time.Time
}

func New() *Store {
	return &Store{
		items:     map[int64]ledger.MenuItem{},
		users:     map[int64]ledger.User{},
		byName:    map[string]int64{},
		employees: map[int64]ledger.Employee{},
		faults:    map[string]error{},
		now:       time.Now,
	}
}

// SetClock overrides the time used for orders inserted without CreatedAt.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// InjectFault makes the next call of the named Tx operation (e.g.
// "InsertLines") fail with err.
func (s *Store) InjectFault(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

func (s *Store) fault(op string) error {
	err, ok := s.faults[op]
	if ok {
		delete(s.faults, op)
	}
	return err
}

func (s *Store) AddItem(name string, price decimal.Decimal, stock int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextItem++
	s.items[s.nextItem] = ledger.MenuItem{ID: s.nextItem, Name: name, Price: price, Stock: stock}
	return s.nextItem
}

// CreateItem is AddItem in the shape the seed loader expects.
func (s *Store) CreateItem(_ context.Context, name string, price decimal.Decimal, stock int) (int64, error) {
	return s.AddItem(name, price, stock), nil
}

// SetPrice changes the live catalog price; committed lines keep their snapshot.
func (s *Store) SetPrice(id int64, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := s.items[id]
	it.Price = price
	s.items[id] = it
}

func (s *Store) AddEmployee(userID int64, weekly decimal.Decimal) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEmployee++
	s.employees[s.nextEmployee] = ledger.Employee{ID: s.nextEmployee, UserID: userID, WeeklyPayment: weekly}
	return s.nextEmployee
}

func (s *Store) CreateEmployee(_ context.Context, userID int64, weekly decimal.Decimal) (int64, error) {
	return s.AddEmployee(userID, weekly), nil
}

func (s *Store) InTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{s: s, stock: map[int64]int{}}
	if err := fn(tx); err != nil {
		return err
	}
	// commit
	for id, st := range tx.stock {
		it := s.items[id]
		it.Stock = st
		s.items[id] = it
	}
	s.orders = append(s.orders, tx.orders...)
	s.nextOrder += int64(len(tx.orders))
	return nil
}

func (s *Store) Items(ctx context.Context) ([]ledger.MenuItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.MenuItem, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) OrderByExternalID(ctx context.Context, externalID string) (ledger.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.orders {
		if externalID != "" && o.ExternalID == externalID {
			return s.withCashier(o), nil
		}
	}
	return ledger.Order{}, ledger.ErrOrderNotFound
}

func (s *Store) Order(ctx context.Context, id int64) (ledger.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.orders {
		if o.ID == id {
			o.Lines = append([]ledger.OrderLine(nil), o.Lines...)
			return s.withCashier(o), nil
		}
	}
	return ledger.Order{}, ledger.ErrOrderNotFound
}

// Orders returns matching headers, newest first, without lines.
func (s *Store) Orders(ctx context.Context, q ledger.OrderQuery) ([]ledger.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.Order
	for i := len(s.orders) - 1; i >= 0; i-- {
		o := s.orders[i]
		if !q.Match(o) {
			continue
		}
		o.Lines = nil
		out = append(out, s.withCashier(o))
	}
	return out, nil
}

func (s *Store) Revenue(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := ledger.OrderQuery{From: from, To: to}
	total := decimal.Zero
	for _, o := range s.orders {
		if q.Match(o) {
			total = total.Add(o.Total)
		}
	}
	return total, nil
}

func (s *Store) LineRevenue(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := ledger.OrderQuery{From: from, To: to}
	total := decimal.Zero
	for _, o := range s.orders {
		if q.Match(o) {
			total = total.Add(ledger.SumLines(o.Lines))
		}
	}
	return total, nil
}

func (s *Store) Employee(ctx context.Context, id int64) (ledger.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.employees[id]
	if !ok {
		return ledger.Employee{}, ledger.ErrEmployeeNotFound
	}
	return e, nil
}

func (s *Store) UserByUsername(ctx context.Context, username string) (ledger.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[username]
	if !ok {
		return ledger.User{}, ledger.ErrUserNotFound
	}
	return s.users[id], nil
}

func (s *Store) CreateUser(ctx context.Context, username, passwordHash, role string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[username]; ok {
		return 0, ledger.ErrUserExists
	}
	s.nextUser++
	s.users[s.nextUser] = ledger.User{ID: s.nextUser, Username: username, PasswordHash: passwordHash, Role: role}
	s.byName[username] = s.nextUser
	return s.nextUser, nil
}

func (s *Store) withCashier(o ledger.Order) ledger.Order {
	if u, ok := s.users[o.CashierUserID]; ok {
		o.Cashier = u.Username
	}
	return o
}

// memTx stages writes until InTx commits them. The store mutex is held for
// its whole lifetime.
type memTx struct {
	s      *Store
	stock  map[int64]int
	orders []ledger.Order
}

func (t *memTx) currentStock(id int64) int {
	if st, ok := t.stock[id]; ok {
		return st
	}
	return t.s.items[id].Stock
}

func (t *memTx) LockItems(ctx context.Context, ids []int64) (map[int64]ledger.MenuItem, error) {
	if err := t.s.fault("LockItems"); err != nil {
		return nil, err
	}
	out := make(map[int64]ledger.MenuItem, len(ids))
	for _, id := range ids {
		it, ok := t.s.items[id]
		if !ok {
			continue
		}
		it.Stock = t.currentStock(id)
		out[id] = it
	}
	return out, nil
}

func (t *memTx) DeductStock(ctx context.Context, id int64, qty int) (int, error) {
	if err := t.s.fault("DeductStock"); err != nil {
		return 0, err
	}
	if _, ok := t.s.items[id]; !ok {
		return 0, fmt.Errorf("deduct item %d: %w", id, ledger.ErrStockConflict)
	}
	st := t.currentStock(id)
	if st < qty {
		return st, ledger.ErrStockConflict
	}
	t.stock[id] = st - qty
	return st - qty, nil
}

func (t *memTx) AddStock(ctx context.Context, id int64, qty int) (int, error) {
	if err := t.s.fault("AddStock"); err != nil {
		return 0, err
	}
	if _, ok := t.s.items[id]; !ok {
		return 0, ledger.ItemNotFound(id)
	}
	st := t.currentStock(id) + qty
	t.stock[id] = st
	return st, nil
}

func (t *memTx) InsertOrder(ctx context.Context, o ledger.Order) (ledger.Order, error) {
	if err := t.s.fault("InsertOrder"); err != nil {
		return ledger.Order{}, err
	}
	if o.ExternalID != "" {
		for _, prev := range t.s.orders {
			if prev.ExternalID == o.ExternalID {
				return ledger.Order{}, ledger.ErrDuplicateExternalID
			}
		}
	}
	o.ID = t.s.nextOrder + int64(len(t.orders)) + 1
	if o.CreatedAt.IsZero() {
		o.CreatedAt = t.s.now()
	}
	o.Lines = nil
	t.orders = append(t.orders, o)
	return o, nil
}

func (t *memTx) InsertLines(ctx context.Context, orderID int64, lines []ledger.OrderLine) error {
	if err := t.s.fault("InsertLines"); err != nil {
		return err
	}
	for i := range t.orders {
		if t.orders[i].ID != orderID {
			continue
		}
		for _, l := range lines {
			l.OrderID = orderID
			t.orders[i].Lines = append(t.orders[i].Lines, l)
		}
		return nil
	}
	return fmt.Errorf("insert lines: %w", ledger.ErrOrderNotFound)
}
