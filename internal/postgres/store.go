package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-pos-ledger/internal/ledger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Store is the durable ledger. Every unit of work runs at READ COMMITTED with
// row locks taken by LockItems; LockTimeout bounds how long a cart waits for
// another cart's locks.
type Store struct {
	DB          *pgxpool.Pool
	LockTimeout time.Duration
}

func NewStore(db *pgxpool.Pool, lockTimeout time.Duration) *Store {
	return &Store{DB: db, LockTimeout: lockTimeout}
}

func (s *Store) InTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if s.LockTimeout > 0 {
		ms := fmt.Sprintf("%dms", s.LockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, ms); err != nil {
			return mapErr(err)
		}
	}
	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return mapErr(tx.Commit(ctx))
}

func (s *Store) Items(ctx context.Context) ([]ledger.MenuItem, error) {
	rows, err := s.DB.Query(ctx, `SELECT id, name, price, stock FROM menu_items ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.MenuItem
	for rows.Next() {
		var it ledger.MenuItem
		if err := rows.Scan(&it.ID, &it.Name, &it.Price, &it.Stock); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// CreateItem adds a catalog row. Catalog maintenance lives outside the order
// path; this exists for seeding and tests.
func (s *Store) CreateItem(ctx context.Context, name string, price decimal.Decimal, stock int) (int64, error) {
	var id int64
	err := s.DB.QueryRow(ctx, `INSERT INTO menu_items(name, price, stock) VALUES ($1,$2,$3) RETURNING id`,
		name, price, stock).Scan(&id)
	return id, err
}

// SetPrice changes the live price. Committed lines keep their own copy.
func (s *Store) SetPrice(ctx context.Context, id int64, price decimal.Decimal) error {
	ct, err := s.DB.Exec(ctx, `UPDATE menu_items SET price=$2 WHERE id=$1`, id, price)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ledger.ItemNotFound(id)
	}
	return nil
}

const orderCols = `o.id, COALESCE(o.external_id, ''), o.cashier_user_id, u.username, o.total, o.created_at`

func scanOrder(row pgx.Row) (ledger.Order, error) {
	var o ledger.Order
	err := row.Scan(&o.ID, &o.ExternalID, &o.CashierUserID, &o.Cashier, &o.Total, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Order{}, ledger.ErrOrderNotFound
	}
	return o, err
}

func (s *Store) OrderByExternalID(ctx context.Context, externalID string) (ledger.Order, error) {
	if externalID == "" {
		return ledger.Order{}, ledger.ErrOrderNotFound
	}
	return scanOrder(s.DB.QueryRow(ctx, `
		SELECT `+orderCols+`
		FROM orders o JOIN users u ON u.id = o.cashier_user_id
		WHERE o.external_id = $1`, externalID))
}

// Order returns the header with its lines in insertion order.
func (s *Store) Order(ctx context.Context, id int64) (ledger.Order, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx, `
		SELECT `+orderCols+`
		FROM orders o JOIN users u ON u.id = o.cashier_user_id
		WHERE o.id = $1`, id))
	if err != nil {
		return ledger.Order{}, err
	}

	rows, err := s.DB.Query(ctx, `
		SELECT menu_item_id, quantity, price FROM order_lines
		WHERE order_id = $1 ORDER BY line_no`, id)
	if err != nil {
		return ledger.Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		l := ledger.OrderLine{OrderID: id}
		if err := rows.Scan(&l.MenuItemID, &l.Quantity, &l.Price); err != nil {
			return ledger.Order{}, err
		}
		o.Lines = append(o.Lines, l)
	}
	return o, rows.Err()
}

// Orders returns matching headers, newest first, without lines.
func (s *Store) Orders(ctx context.Context, q ledger.OrderQuery) ([]ledger.Order, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+orderCols+`
		FROM orders o JOIN users u ON u.id = o.cashier_user_id
		WHERE ($1::timestamptz IS NULL OR o.created_at >= $1)
		  AND ($2::timestamptz IS NULL OR o.created_at < $2)
		  AND ($3::bigint = 0 OR o.cashier_user_id = $3)
		ORDER BY o.id DESC`, tsArg(q.From), tsArg(q.To), q.CashierUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Revenue sums order totals with created_at in [from, to).
func (s *Store) Revenue(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.DB.QueryRow(ctx, `
		SELECT COALESCE(SUM(total), 0) FROM orders
		WHERE created_at >= $1 AND created_at < $2`, from, to).Scan(&total)
	return total, err
}

// LineRevenue sums price×quantity over the lines of orders in [from, to).
func (s *Store) LineRevenue(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.DB.QueryRow(ctx, `
		SELECT COALESCE(SUM(l.price * l.quantity), 0)
		FROM order_lines l JOIN orders o ON o.id = l.order_id
		WHERE o.created_at >= $1 AND o.created_at < $2`, from, to).Scan(&total)
	return total, err
}

func (s *Store) Employee(ctx context.Context, id int64) (ledger.Employee, error) {
	var e ledger.Employee
	err := s.DB.QueryRow(ctx, `SELECT id, user_id, weekly_payment FROM employees WHERE id=$1`, id).
		Scan(&e.ID, &e.UserID, &e.WeeklyPayment)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Employee{}, ledger.ErrEmployeeNotFound
	}
	return e, err
}

func (s *Store) CreateEmployee(ctx context.Context, userID int64, weekly decimal.Decimal) (int64, error) {
	var id int64
	err := s.DB.QueryRow(ctx, `INSERT INTO employees(user_id, weekly_payment) VALUES ($1,$2) RETURNING id`,
		userID, weekly).Scan(&id)
	return id, err
}

func (s *Store) UserByUsername(ctx context.Context, username string) (ledger.User, error) {
	var u ledger.User
	err := s.DB.QueryRow(ctx, `SELECT id, username, password_hash, role FROM users WHERE username=$1`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.User{}, ledger.ErrUserNotFound
	}
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, username, passwordHash, role string) (int64, error) {
	var id int64
	err := s.DB.QueryRow(ctx, `
		INSERT INTO users(username, password_hash, role) VALUES ($1,$2,$3)
		RETURNING id`, username, passwordHash, role).Scan(&id)
	if err != nil {
		return 0, mapErr(err)
	}
	return id, nil
}

type pgTx struct{ tx pgx.Tx }

// LockItems takes FOR UPDATE locks in id order; callers pass ids sorted so
// two carts sharing items queue instead of deadlocking.
func (t *pgTx) LockItems(ctx context.Context, ids []int64) (map[int64]ledger.MenuItem, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, name, price, stock FROM menu_items
		WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	out := make(map[int64]ledger.MenuItem, len(ids))
	for rows.Next() {
		var it ledger.MenuItem
		if err := rows.Scan(&it.ID, &it.Name, &it.Price, &it.Stock); err != nil {
			return nil, mapErr(err)
		}
		out[it.ID] = it
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (t *pgTx) DeductStock(ctx context.Context, id int64, qty int) (int, error) {
	var remaining int
	err := t.tx.QueryRow(ctx, `
		UPDATE menu_items SET stock = stock - $2
		WHERE id = $1 AND stock >= $2
		RETURNING stock`, id, qty).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ledger.ErrStockConflict
	}
	if err != nil {
		return 0, mapErr(err)
	}
	return remaining, nil
}

func (t *pgTx) AddStock(ctx context.Context, id int64, qty int) (int, error) {
	var stock int
	err := t.tx.QueryRow(ctx, `UPDATE menu_items SET stock = stock + $2 WHERE id = $1 RETURNING stock`, id, qty).
		Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ledger.ItemNotFound(id)
	}
	if err != nil {
		return 0, mapErr(err)
	}
	return stock, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o ledger.Order) (ledger.Order, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO orders(external_id, cashier_user_id, total, created_at)
		VALUES (NULLIF($1, ''), $2, $3, COALESCE($4::timestamptz, now()))
		RETURNING id, created_at`,
		o.ExternalID, o.CashierUserID, o.Total, tsArg(o.CreatedAt)).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return ledger.Order{}, mapErr(err)
	}
	o.Lines = nil
	return o, nil
}

func (t *pgTx) InsertLines(ctx context.Context, orderID int64, lines []ledger.OrderLine) error {
	b := &pgx.Batch{}
	for i, l := range lines {
		b.Queue(`
			INSERT INTO order_lines(order_id, line_no, menu_item_id, quantity, price)
			VALUES ($1,$2,$3,$4,$5)`, orderID, i+1, l.MenuItemID, l.Quantity, l.Price)
	}
	br := t.tx.SendBatch(ctx, b)
	for range lines {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return mapErr(err)
		}
	}
	return mapErr(br.Close())
}

func tsArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// mapErr translates Postgres failures into ledger sentinels. Lock waits past
// lock_timeout, deadlocks and serialization failures all surface as
// ErrLockTimeout so the engine reports them as contention.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "55P03", "40P01", "40001":
		return fmt.Errorf("%s: %w", pgErr.Message, ledger.ErrLockTimeout)
	case "23505":
		switch pgErr.ConstraintName {
		case "orders_external_id_key":
			return ledger.ErrDuplicateExternalID
		case "users_username_key":
			return ledger.ErrUserExists
		}
	}
	return err
}
