package httpx

import (
	"context"
	"io"
	"net/http"
)

const healthResponse = `{"status":"ok"}`

// Pinger reports whether the backing store is reachable. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler answers readiness/liveness checks, pinging the database when
// one is configured.
type HealthHandler struct {
	DB Pinger
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.DB != nil {
		if err := h.DB.PingContext(r.Context()); err != nil {
			WriteError(w, ErrorParams{Code: http.StatusServiceUnavailable, ErrCode: "db_unreachable", Err: err})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}
