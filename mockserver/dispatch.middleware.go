package mockserver

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/go-arrower/fixturedb/dispatch"
)

// Dispatch reports every request to d, after it was handled.
// Errors of the handler are rendered first, so listeners see the final status.
// Errors of listeners are logged, they never change the response.
func Dispatch(d *dispatch.Dispatcher, logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			if err := next(c); err != nil {
				c.Error(err)
			}

			req := dispatch.Request{
				Method:   c.Request().Method,
				Path:     c.Request().URL.Path,
				Status:   c.Response().Status,
				Duration: time.Since(start),
			}

			ctx := c.Request().Context()

			if err := d.Handled(ctx, req); err != nil {
				logger.ErrorContext(ctx, "listener failed after request",
					slog.String("method", req.Method),
					slog.String("path", req.Path),
					slog.String("err", err.Error()),
				)
			}

			return nil
		}
	}
}
