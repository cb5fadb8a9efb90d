// Package middleware carries the HTTP middleware shared by every route:
// request logging and panic recovery.
package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/measurekit/measurekit/internal/platform/auth"
)

// RequestLogger writes one line per request. The acting user (set by the
// auth middleware) is included so component edits and sync runs can be
// attributed from the logs alone. Server errors log at error level, client
// errors at warn, everything else at info.
func RequestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}

			var evt *zerolog.Event
			switch {
			case status >= http.StatusInternalServerError:
				evt = log.Error()
			case status >= http.StatusBadRequest:
				evt = log.Warn()
			default:
				evt = log.Info()
			}
			if err != nil {
				evt = evt.Err(err)
			}

			evt.
				Str("requestId", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Int("status", status).
				Str("userId", auth.UserIDFromContext(c.Request().Context())).
				Int64("bytesOut", c.Response().Size).
				Dur("latency", time.Since(start)).
				Str("remoteIp", c.RealIP()).
				Msg("http request")

			return err
		}
	}
}
