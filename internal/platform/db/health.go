package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const healthPingTimeout = 3 * time.Second

// dbHealth is the payload of GET /health/db: a liveness verdict plus the
// pool counters an operator needs to spot connection exhaustion during
// bulk linking or evaluation runs.
type dbHealth struct {
	Status        string `json:"status"`
	AcquiredConns int32  `json:"acquiredConns"`
	IdleConns     int32  `json:"idleConns"`
	TotalConns    int32  `json:"totalConns"`
	MaxConns      int32  `json:"maxConns"`
	EmptyAcquires int64  `json:"emptyAcquires"`
	Error         string `json:"error,omitempty"`
}

// HealthHandler pings the database with a short deadline and reports pool
// utilization. A slow or unreachable database answers 503 rather than
// hanging the health probe.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		st := pool.Stat()
		h := dbHealth{
			Status:        "ok",
			AcquiredConns: st.AcquiredConns(),
			IdleConns:     st.IdleConns(),
			TotalConns:    st.TotalConns(),
			MaxConns:      st.MaxConns(),
			EmptyAcquires: st.EmptyAcquireCount(),
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), healthPingTimeout)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			h.Status = "unavailable"
			h.Error = err.Error()
			return c.JSON(http.StatusServiceUnavailable, h)
		}
		return c.JSON(http.StatusOK, h)
	}
}
