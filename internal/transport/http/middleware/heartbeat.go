package httpmw

import (
	"net/http"
)

// HeartbeatToucher records user activity.
type HeartbeatToucher interface {
	Touch(userID string)
}

// HeartbeatMiddleware counts every authenticated request as a heartbeat.
func HeartbeatMiddleware(p HeartbeatToucher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			// after the handler, so a join binds the room before the timer arms
			if id := IdentityFromCtx(r.Context()); id.ID != "" {
				p.Touch(id.ID)
			}
		})
	}
}
