package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"smsgate/internal/domain"
	"smsgate/internal/lifecycle"
)

const (
	ErrInvalidJSON      = "invalid json"
	ErrMissingID        = "missing id"
	ErrDependency       = "dependency error"
	ErrNotFound         = "not found"
	ErrBadForm          = "bad form"
	ErrInvalidSignature = "invalid signature"
)

// WriteError maps domain errors to HTTP statuses. Rate-limit denials carry a
// Retry-After header derived from the window reset.
func WriteError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		http.Error(w, ve.Error(), http.StatusBadRequest)
		return
	}
	var cde *domain.ConsentDeniedError
	if errors.As(err, &cde) {
		http.Error(w, cde.Error(), http.StatusForbidden)
		return
	}
	var rle *domain.RateLimitExceededError
	if errors.As(err, &rle) {
		retryAfter := int(time.Until(rle.ResetTime).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		http.Error(w, rle.Error(), http.StatusTooManyRequests)
		return
	}
	var ite *lifecycle.InvalidTransitionError
	if errors.As(err, &ite) {
		http.Error(w, ite.Error(), http.StatusConflict)
		return
	}
	var gwe *domain.GatewayError
	if errors.As(err, &gwe) {
		http.Error(w, gwe.Error(), http.StatusBadGateway)
		return
	}
	http.Error(w, ErrDependency, http.StatusInternalServerError)
}
