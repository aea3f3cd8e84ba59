package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = panicResponse(logger, c, r, captureStack())
				}
			}()
			return next(c)
		}
	}
}

func captureStack() []byte {
	var stack [4096]byte
	n := runtime.Stack(stack[:], false)
	return stack[:n]
}

// panicResponse logs a recovered panic and returns the 500 sent to the client.
func panicResponse(logger zerolog.Logger, c echo.Context, r interface{}, stack []byte) error {
	logger.Error().
		Str("request_id", GetRequestID(c)).
		Str("path", c.Request().URL.Path).
		Str("panic", fmt.Sprintf("%v", r)).
		Str("stack", string(stack)).
		Msg("panic recovered")

	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
