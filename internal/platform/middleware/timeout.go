package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const timeoutMessage = "request processing exceeded the allowed time limit"

// RequestTimeout sets a context deadline on each request. The handler writes
// into a buffer that is copied to the client when it returns in time. When
// the deadline passes first, a 504 is sent at once and later handler writes
// fail with http.ErrHandlerTimeout. The middleware always waits for the
// handler to return, so the echo.Context is never used after it is released.
// Panics in the handler become a logged 500. A non-positive timeout disables
// the middleware.
func RequestTimeout(timeout time.Duration, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if timeout <= 0 {
			return next
		}
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()

			c.SetRequest(c.Request().WithContext(ctx))
			requestID := GetRequestID(c)
			path := c.Request().URL.Path

			resp := c.Response()
			dst := resp.Writer
			tw := &timeoutWriter{header: make(http.Header)}
			resp.Writer = tw

			done := make(chan error, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						done <- &handlerPanic{value: r, stack: captureStack()}
					}
				}()
				done <- next(c)
			}()

			var err error
			select {
			case err = <-done:
			case <-ctx.Done():
				if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
					err = <-done
					break
				}
				tw.expire()
				logger.Warn().
					Str("request_id", requestID).
					Str("path", path).
					Dur("timeout", timeout).
					Msg("request timed out")
				writeTimeout(dst)

				late := <-done
				resp.Writer = dst
				resp.Status = http.StatusGatewayTimeout
				resp.Committed = true
				var hp *handlerPanic
				if errors.As(late, &hp) {
					panicResponse(logger, c, hp.value, hp.stack)
				}
				return nil
			}

			resp.Writer = dst
			var hp *handlerPanic
			if errors.As(err, &hp) {
				return panicResponse(logger, c, hp.value, hp.stack)
			}
			tw.flushTo(dst)
			return err
		}
	}
}

// handlerPanic carries a panic out of the handler goroutine.
type handlerPanic struct {
	value interface{}
	stack []byte
}

func (p *handlerPanic) Error() string { return "handler panicked" }

func writeTimeout(w http.ResponseWriter) {
	body, _ := json.Marshal(map[string]string{"message": timeoutMessage})
	w.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	w.WriteHeader(http.StatusGatewayTimeout)
	_, _ = w.Write(body)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// timeoutWriter buffers the handler's response until the middleware decides
// whether to send it.
type timeoutWriter struct {
	mu       sync.Mutex
	header   http.Header
	buf      bytes.Buffer
	code     int
	timedOut bool
}

func (tw *timeoutWriter) Header() http.Header { return tw.header }

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut || tw.code != 0 {
		return
	}
	tw.code = code
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	if tw.code == 0 {
		tw.code = http.StatusOK
	}
	return tw.buf.Write(b)
}

// Flush is a no-op; the body is sent when the handler returns.
func (tw *timeoutWriter) Flush() {}

func (tw *timeoutWriter) expire() {
	tw.mu.Lock()
	tw.timedOut = true
	tw.mu.Unlock()
}

// flushTo copies the buffered response to w. Nothing is written when the
// handler never wrote, leaving the error handler free to respond.
func (tw *timeoutWriter) flushTo(w http.ResponseWriter) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.code == 0 {
		return
	}
	for k, v := range tw.header {
		w.Header()[k] = v
	}
	w.WriteHeader(tw.code)
	_, _ = w.Write(tw.buf.Bytes())
}
