package transport

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Middleware decorates a RoundTripper.
type Middleware func(http.RoundTripper) http.RoundTripper

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Chain applies mw around base so that mw[0] is outermost.
func Chain(base http.RoundTripper, mw ...Middleware) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	chained := base
	for i := len(mw) - 1; i >= 0; i-- {
		chained = mw[i](chained)
	}
	return chained
}

// Logging logs each round trip at debug level.
func Logging(logger zerolog.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.RoundTrip(req)

			evt := logger.Debug().
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("requestId", req.Header.Get(HeaderRequestID)).
				Dur("elapsed", time.Since(start))
			if err != nil {
				evt.Err(err).Msg("request failed")
				return resp, err
			}
			evt.Int("status", resp.StatusCode).Msg("request")
			return resp, err
		})
	}
}
