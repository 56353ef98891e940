package middleware

import (
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/priyanshu8007b/bitespeed/pkg/context"
)

// Logger writes one structured line per request after the error handler has set the status.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()

			if err := next(c); err != nil {
				c.Error(err)
			}

			ctx := req.Context()
			fields := context.Fields(ctx)
			fields["status"] = res.Status
			fields["uri"] = req.RequestURI
			fields["user_agent"] = req.UserAgent()
			fields["response_time"] = time.Since(start).String()
			fields["response_size"] = strconv.FormatInt(res.Size, 10)

			entry := logger.WithContext(ctx).WithFields(fields)
			if res.Status >= 500 {
				entry.Warn("Request")
			} else {
				entry.Info("Request")
			}
			return nil
		}
	}
}
