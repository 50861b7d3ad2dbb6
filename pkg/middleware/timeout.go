package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/webindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/logger"
)

// Timeout cancels the request context after d. If the handler has not
// written anything by then the client gets a JSON 504 and later writes from
// the handler are discarded.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			tw := &timeoutWriter{w: w, header: make(http.Header)}
			done := make(chan struct{})
			panicked := make(chan any, 1)
			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicked <- p
					}
				}()
				next.ServeHTTP(tw, r.WithContext(ctx))
				close(done)
			}()

			finished := false
			select {
			case p := <-panicked:
				panic(p)
			case <-done:
				finished = true
			case <-ctx.Done():
			}

			if errors.Is(ctx.Err(), context.DeadlineExceeded) && tw.expire() {
				logger.FromContext(r.Context()).Warn("request timed out",
					"method", r.Method, "path", r.URL.Path, "timeout", d)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusGatewayTimeout)
				json.NewEncoder(w).Encode(map[string]string{
					"error": "request timeout",
					"code":  apperrors.Code(apperrors.ErrTimeout),
				})
				return
			}
			if finished {
				tw.mu.Lock()
				if !tw.started {
					maps.Copy(w.Header(), tw.header)
				}
				tw.mu.Unlock()
			}
		})
	}
}

// timeoutWriter buffers headers so the handler goroutine never touches the
// real header map after the deadline has fired.
type timeoutWriter struct {
	w       http.ResponseWriter
	header  http.Header
	mu      sync.Mutex
	started bool
	expired bool
}

func (tw *timeoutWriter) Header() http.Header {
	return tw.header
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.writeHeaderLocked(code)
}

func (tw *timeoutWriter) writeHeaderLocked(code int) {
	if tw.expired || tw.started {
		return
	}
	tw.started = true
	maps.Copy(tw.w.Header(), tw.header)
	tw.w.WriteHeader(code)
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.expired {
		return 0, http.ErrHandlerTimeout
	}
	tw.writeHeaderLocked(http.StatusOK)
	return tw.w.Write(b)
}

// expire claims the response for the timeout path. It fails once the
// handler has started writing.
func (tw *timeoutWriter) expire() bool {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.started {
		return false
	}
	tw.expired = true
	return true
}
