package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/marketplace-orders/internal/orders"
	"github.com/rs/zerolog"
)

type ErrorResp struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(reason string) int {
	switch reason {
	case "invalid_input":
		return http.StatusBadRequest
	case "product_not_found", "mixed_seller_cart":
		return http.StatusUnprocessableEntity
	case "insufficient_stock", "illegal_transition":
		return http.StatusConflict
	case "forbidden":
		return http.StatusForbidden
	case "not_found":
		return http.StatusNotFound
	case "transaction_failed":
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError maps the order core's error taxonomy onto a status code and a
// JSON body. Infrastructure detail stays in the log.
func writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	reason := orders.FailureReason(err)
	code := statusFor(reason)
	resp := ErrorResp{Error: reason, Message: err.Error(), Details: details(err)}
	if code >= http.StatusInternalServerError {
		log.Error().Err(err).Str("reason", reason).Msg("request failed")
		resp.Message = http.StatusText(code)
	}
	writeJSON(w, code, resp)
}

func details(err error) any {
	var (
		stock *orders.StockError
		pnf   *orders.ProductNotFoundError
		mixed *orders.MixedSellerError
		tr    *orders.TransitionError
	)
	switch {
	case errors.As(err, &stock):
		return stock
	case errors.As(err, &pnf):
		return map[string]string{"product_id": pnf.ProductID}
	case errors.As(err, &mixed):
		return map[string][]string{"seller_ids": mixed.SellerIDs}
	case errors.As(err, &tr):
		return map[string]string{"from": string(tr.From), "to": string(tr.To), "role": string(tr.Role)}
	}
	return nil
}
