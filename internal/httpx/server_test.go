package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ariefcatur/go-pos-ledger/internal/auth"
	"github.com/ariefcatur/go-pos-ledger/internal/inventory"
	"github.com/ariefcatur/go-pos-ledger/internal/logging"
	"github.com/ariefcatur/go-pos-ledger/internal/memstore"
	"github.com/ariefcatur/go-pos-ledger/internal/orders"
	"github.com/ariefcatur/go-pos-ledger/internal/reports"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type env struct {
	srv   *httptest.Server
	st    *memstore.Store
	pho   int64
	tea   int64
	token string
	uid   int64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := logging.Discard()
	st := memstore.New()
	a := auth.NewAuthority(st, auth.NewMemorySessions(), time.Hour, log)
	inv := &inventory.Ledger{Store: st, Auth: a, Log: log}
	h := NewServer(Deps{
		Auth:      a,
		Inventory: inv,
		Orders:    orders.NewEngine(st, inv, a, nil, "test", log),
		Reports:   reports.NewAggregator(st, time.UTC),
		Log:       log,
	})
	e := &env{
		srv: httptest.NewServer(h),
		st:  st,
		pho: st.AddItem("Pho", decimal.RequireFromString("120.00"), 5),
		tea: st.AddItem("Iced tea", decimal.RequireFromString("35.50"), 10),
	}
	t.Cleanup(e.srv.Close)

	res := e.do(t, http.MethodPost, "/auth/register", "", map[string]string{"username": "ana", "password": "s3cret"})
	require.Equal(t, http.StatusCreated, res.code)

	res = e.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "ana", "password": "s3cret"})
	require.Equal(t, http.StatusOK, res.code)
	var login LoginResp
	require.NoError(t, json.Unmarshal(res.body, &login))
	e.token, e.uid = login.Token, login.UserID
	return e
}

type result struct {
	code   int
	body   []byte
	header http.Header
}

func (e *env) do(t *testing.T, method, path, token string, body any) result {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, e.srv.URL+path, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return result{code: resp.StatusCode, body: buf.Bytes(), header: resp.Header}
}

func decodeErr(t *testing.T, b []byte) errorResp {
	t.Helper()
	var er errorResp
	require.NoError(t, json.Unmarshal(b, &er))
	return er
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	res := e.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, res.code)
	assert.Equal(t, "ok", string(res.body))
}

func TestLogin_WrongPassword(t *testing.T) {
	e := newEnv(t)
	res := e.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "ana", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, res.code)
	assert.Equal(t, "invalid_credentials", decodeErr(t, res.body).Error)

	res = e.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "ana"})
	assert.Equal(t, http.StatusBadRequest, res.code)
}

func TestRegister_Duplicate(t *testing.T) {
	e := newEnv(t)
	res := e.do(t, http.MethodPost, "/auth/register", "", map[string]string{"username": "ana", "password": "other"})
	assert.Equal(t, http.StatusConflict, res.code)
}

func TestRegister_BlankUsernameIsBadRequest(t *testing.T) {
	e := newEnv(t)
	for _, name := range []string{"   ", " a "} {
		res := e.do(t, http.MethodPost, "/auth/register", "", map[string]string{"username": name, "password": "s3cret"})
		assert.Equal(t, http.StatusBadRequest, res.code, "username %q", name)
		assert.Equal(t, "bad_request", decodeErr(t, res.body).Error)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	e := newEnv(t)
	for _, path := range []string{"/inventory/items", "/reports/sales/daily", "/employees/1/orders"} {
		res := e.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, res.code, path)
		res = e.do(t, http.MethodGet, path, "forged", nil)
		assert.Equal(t, http.StatusUnauthorized, res.code, path)
	}
}

func TestPlaceOrder_HTTP(t *testing.T) {
	e := newEnv(t)
	res := e.do(t, http.MethodPost, "/orders", e.token, map[string]any{
		"lines":   []map[string]any{{"item_id": e.pho, "qty": 2}, {"item_id": e.tea, "qty": 1}},
		"payment": "300",
	})
	require.Equal(t, http.StatusCreated, res.code, string(res.body))

	var out orders.Result
	require.NoError(t, json.Unmarshal(res.body, &out))
	assert.True(t, decimal.RequireFromString("275.50").Equal(out.Total))
	assert.True(t, decimal.RequireFromString("24.50").Equal(out.Change))

	res = e.do(t, http.MethodGet, fmt.Sprintf("/orders/%d", out.OrderID), e.token, nil)
	require.Equal(t, http.StatusOK, res.code)
	assert.Contains(t, string(res.body), `"cashier":"ana"`)

	res = e.do(t, http.MethodGet, "/orders/999", e.token, nil)
	assert.Equal(t, http.StatusNotFound, res.code)
}

func TestPlaceOrder_ErrorMapping(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		name  string
		token string
		body  any
		code  int
		kind  string
	}{
		{"no session", "", map[string]any{"lines": []map[string]any{{"item_id": e.pho, "qty": 1}}}, http.StatusUnauthorized, "unauthorized"},
		{"empty cart", e.token, map[string]any{"lines": []map[string]any{}}, http.StatusBadRequest, "empty_order"},
		{"zero qty", e.token, map[string]any{"lines": []map[string]any{{"item_id": e.pho, "qty": 0}}}, http.StatusBadRequest, "invalid_quantity"},
		{"unknown item", e.token, map[string]any{"lines": []map[string]any{{"item_id": 404, "qty": 1}}}, http.StatusNotFound, "item_not_found"},
		{"qty above max", e.token, map[string]any{"lines": []map[string]any{{"item_id": e.pho, "qty": int64(1) << 40}}}, http.StatusBadRequest, "bad_request"},
		{"oversell", e.token, map[string]any{"lines": []map[string]any{{"item_id": e.pho, "qty": 6}}}, http.StatusConflict, "insufficient_stock"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := e.do(t, http.MethodPost, "/orders", tc.token, tc.body)
			assert.Equal(t, tc.code, res.code)
			assert.Equal(t, tc.kind, decodeErr(t, res.body).Error)
		})
	}

	res := e.do(t, http.MethodPost, "/orders", e.token, map[string]any{"lines": []map[string]any{{"item_id": e.pho, "qty": 6}}})
	er := decodeErr(t, res.body)
	assert.Equal(t, e.pho, er.ItemID)
	assert.Equal(t, 6, er.Requested)
	require.NotNil(t, er.Available)
	assert.Equal(t, 5, *er.Available)
}

func TestPlaceOrder_IdempotentReplay(t *testing.T) {
	e := newEnv(t)
	body := map[string]any{
		"external_id": "till-1-0001",
		"lines":       []map[string]any{{"item_id": e.tea, "qty": 1}},
		"payment":     "50",
	}
	first := e.do(t, http.MethodPost, "/orders", e.token, body)
	require.Equal(t, http.StatusCreated, first.code)
	again := e.do(t, http.MethodPost, "/orders", e.token, body)
	require.Equal(t, http.StatusOK, again.code)

	var a, b orders.Result
	require.NoError(t, json.Unmarshal(first.body, &a))
	require.NoError(t, json.Unmarshal(again.body, &b))
	assert.Equal(t, a.OrderID, b.OrderID)
	assert.True(t, b.Idempotent)
}

func TestRestockAndItems(t *testing.T) {
	e := newEnv(t)
	res := e.do(t, http.MethodPost, fmt.Sprintf("/inventory/items/%d/restock", e.pho), e.token, map[string]int{"qty": 3})
	require.Equal(t, http.StatusOK, res.code)
	assert.JSONEq(t, fmt.Sprintf(`{"item_id":%d,"stock":8}`, e.pho), string(res.body))

	res = e.do(t, http.MethodPost, fmt.Sprintf("/inventory/items/%d/restock", e.pho), e.token, map[string]int{"qty": 0})
	assert.Equal(t, http.StatusBadRequest, res.code)
	res = e.do(t, http.MethodPost, fmt.Sprintf("/inventory/items/%d/restock", e.pho), e.token, map[string]int64{"qty": 1 << 40})
	assert.Equal(t, http.StatusBadRequest, res.code)
	res = e.do(t, http.MethodPost, "/inventory/items/abc/restock", e.token, map[string]int{"qty": 1})
	assert.Equal(t, http.StatusBadRequest, res.code)

	res = e.do(t, http.MethodGet, "/inventory/items", e.token, nil)
	require.Equal(t, http.StatusOK, res.code)
	var items []struct {
		ID    int64 `json:"id"`
		Stock int   `json:"stock"`
	}
	require.NoError(t, json.Unmarshal(res.body, &items))
	require.Len(t, items, 2)
	assert.Equal(t, 8, items[0].Stock)
}

func TestReports_HTTP(t *testing.T) {
	e := newEnv(t)
	emp := e.st.AddEmployee(e.uid, decimal.RequireFromString("500"))

	res := e.do(t, http.MethodPost, "/orders", e.token, map[string]any{
		"lines":   []map[string]any{{"item_id": e.tea, "qty": 2}},
		"payment": "71",
	})
	require.Equal(t, http.StatusCreated, res.code)
	var placed orders.Result
	require.NoError(t, json.Unmarshal(res.body, &placed))
	day := placed.CreatedAt.UTC().Format(reports.DateLayout)
	month := placed.CreatedAt.UTC().Format(reports.MonthLayout)

	res = e.do(t, http.MethodGet, "/reports/sales/daily?date="+day, e.token, nil)
	require.Equal(t, http.StatusOK, res.code)
	var rev RevenueResp
	require.NoError(t, json.Unmarshal(res.body, &rev))
	assert.True(t, decimal.RequireFromString("71").Equal(rev.Revenue))

	res = e.do(t, http.MethodGet, "/reports/sales/daily?date=2001-01-15", e.token, nil)
	require.Equal(t, http.StatusOK, res.code)
	require.NoError(t, json.Unmarshal(res.body, &rev))
	assert.True(t, rev.Revenue.IsZero())

	res = e.do(t, http.MethodGet, "/reports/sales/monthly?month="+month, e.token, nil)
	require.Equal(t, http.StatusOK, res.code)

	res = e.do(t, http.MethodGet, "/reports/sales/daily?date=yesterday", e.token, nil)
	assert.Equal(t, http.StatusBadRequest, res.code)

	res = e.do(t, http.MethodGet, "/reports/orders?date="+day, e.token, nil)
	require.Equal(t, http.StatusOK, res.code)
	var rows []reports.OrderRow
	require.NoError(t, json.Unmarshal(res.body, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, placed.OrderID, rows[0].OrderID)

	res = e.do(t, http.MethodGet, fmt.Sprintf("/employees/%d/orders", emp), e.token, nil)
	require.Equal(t, http.StatusOK, res.code)
	require.NoError(t, json.Unmarshal(res.body, &rows))
	assert.Len(t, rows, 1)

	res = e.do(t, http.MethodGet, fmt.Sprintf("/employees/%d/summary?month=%s", emp, month), e.token, nil)
	require.Equal(t, http.StatusOK, res.code)
	var sum reports.MonthSummary
	require.NoError(t, json.Unmarshal(res.body, &sum))
	assert.Equal(t, len(sum.Days), sum.PresentDays+sum.AbsentDays)
	assert.Equal(t, 1, sum.PresentDays)

	res = e.do(t, http.MethodGet, "/employees/999/summary?month="+month, e.token, nil)
	assert.Equal(t, http.StatusNotFound, res.code)

	res = e.do(t, http.MethodGet, fmt.Sprintf("/employees/%d/summary.xlsx?month=%s", emp, month), e.token, nil)
	require.Equal(t, http.StatusOK, res.code)
	assert.Contains(t, res.header.Get("Content-Disposition"), ".xlsx")
	wb, err := excelize.OpenReader(bytes.NewReader(res.body))
	require.NoError(t, err)
	defer wb.Close()
	v, err := wb.GetCellValue("Summary", "B2")
	require.NoError(t, err)
	assert.Equal(t, month, v)
}

func TestLogout(t *testing.T) {
	e := newEnv(t)
	res := e.do(t, http.MethodPost, "/auth/logout", e.token, nil)
	assert.Equal(t, http.StatusNoContent, res.code)
	res = e.do(t, http.MethodGet, "/inventory/items", e.token, nil)
	assert.Equal(t, http.StatusUnauthorized, res.code)
}
