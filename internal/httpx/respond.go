package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/go-chi/chi/v5"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, kind, msg string) {
	writeJSON(w, code, map[string]errorBody{"error": {Kind: kind, Message: msg}})
}

var orderStatusCodes = map[orders.Kind]int{
	orders.KindForbidden:          http.StatusForbidden,
	orders.KindInvalidRequest:     http.StatusBadRequest,
	orders.KindProductUnavailable: http.StatusUnprocessableEntity,
	orders.KindInsufficientStock:  http.StatusConflict,
	orders.KindNotFound:           http.StatusNotFound,
	orders.KindStoreFailure:       http.StatusInternalServerError,
}

// writeOrderError maps an orders error onto its status code. Store
// failures already carry a generic message.
func writeOrderError(w http.ResponseWriter, err error) {
	var e *orders.Error
	if !errors.As(err, &e) {
		writeError(w, http.StatusInternalServerError, string(orders.KindStoreFailure), "storage failure")
		return
	}
	code, ok := orderStatusCodes[e.Kind]
	if !ok {
		code = http.StatusInternalServerError
	}
	writeError(w, code, string(e.Kind), e.Message)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}
