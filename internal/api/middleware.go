package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"festival-orders/internal/ratelimit"
)

// rateLimited gates a route on the sliding-window limiter, keyed by the
// tenant in the path and the action name.
func rateLimited(limiter *ratelimit.Limiter, action string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := mux.Vars(r)["id"]
		if err := limiter.Allow(tenantID, action); err != nil {
			writeError(w, err)
			return
		}
		next(w, r)
	}
}
