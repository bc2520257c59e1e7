package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ariefcatur/go-pos-ledger/internal/ledger"
	"github.com/ariefcatur/go-pos-ledger/internal/logging"
	"github.com/ariefcatur/go-pos-ledger/internal/reports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

type errorResp struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	ItemID    int64  `json:"item_id,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResp{Error: "bad_request", Message: msg})
}

// decode reads a JSON body into dst, applies normalizers, then runs struct
// validation on it.
func decode(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any, normalize ...func(any)) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		badRequest(w, "invalid json")
		return false
	}
	for _, n := range normalize {
		n(dst)
	}
	if err := v.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			badRequest(w, ve[0].Field()+" failed "+ve[0].Tag())
			return false
		}
		badRequest(w, err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(w, "invalid "+name)
		return 0, false
	}
	return id, true
}

// writeError maps domain failures onto status codes. Anything unrecognised
// is logged and answered with 500.
func writeError(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, funcName string, err error) {
	var le *ledger.Error
	if errors.As(err, &le) {
		resp := errorResp{Error: string(le.Kind), ItemID: le.ItemID, Requested: le.Requested}
		code := http.StatusInternalServerError
		switch le.Kind {
		case ledger.KindUnauthorized, ledger.KindInvalidCredentials:
			code = http.StatusUnauthorized
		case ledger.KindEmptyOrder, ledger.KindInvalidQuantity:
			code = http.StatusBadRequest
		case ledger.KindItemNotFound:
			code = http.StatusNotFound
		case ledger.KindInsufficientStock:
			code = http.StatusConflict
			avail := le.Available
			resp.Available = &avail
		case ledger.KindContention:
			code = http.StatusServiceUnavailable
			w.Header().Set("Retry-After", "1")
		}
		if code == http.StatusInternalServerError {
			logging.Error(log, "httpx", funcName, middleware.GetReqID(r.Context()), nil, err)
		}
		writeJSON(w, code, resp)
		return
	}

	switch {
	case errors.Is(err, ledger.ErrOrderNotFound), errors.Is(err, ledger.ErrEmployeeNotFound):
		writeJSON(w, http.StatusNotFound, errorResp{Error: "not_found", Message: err.Error()})
	case errors.Is(err, ledger.ErrUserExists):
		writeJSON(w, http.StatusConflict, errorResp{Error: "user_exists"})
	case errors.Is(err, reports.ErrBadPeriod), errors.Is(err, ledger.ErrInvalidUser):
		badRequest(w, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, errorResp{Error: "timeout"})
	default:
		logging.Error(log, "httpx", funcName, middleware.GetReqID(r.Context()), nil, err)
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: "internal"})
	}
}
