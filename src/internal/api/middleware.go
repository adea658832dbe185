package api

import (
	"fmt"
	"net/http"
	"net/netip"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/maksimkurb/pbrsync/src/internal/errors"
	"github.com/maksimkurb/pbrsync/src/internal/log"
	"github.com/maksimkurb/pbrsync/src/internal/metrics"
)

// RequestLog logs every rule API request at debug level and counts it in m
// by route pattern. m may be nil.
func RequestLog(m *metrics.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := routePattern(r)
			m.ObserveAPIRequest(route, status)
			log.Debugf("[API] %s %s (%s) - %d, %d bytes in %v",
				r.Method, r.URL.Path, route, status, ww.BytesWritten(), time.Since(start))
		})
	}
}

// Recovery turns a handler panic into a 500 so a broken view of the rule
// table never takes the daemon down.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			cause, ok := rec.(error)
			if !ok {
				cause = fmt.Errorf("%v", rec)
			}
			err := errors.NewInternalError(fmt.Sprintf("%s %s panicked", r.Method, r.URL.Path), cause)
			log.Errorf("%v\n%s", err, debug.Stack())
			WriteInternalError(w, "failed to render rule state")
		}()
		next.ServeHTTP(w, r)
	})
}

// routePattern returns the matched chi pattern, or "unmatched".
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// CORS middleware allows read-only cross-origin requests.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// PrivateSubnetOnly rejects clients outside private, loopback and
// link-local ranges, so the rule API can listen on 0.0.0.0. Only the peer
// address counts: forwarding headers are client-controlled.
func PrivateSubnetOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr, err := peerAddr(r)
		if err != nil {
			log.Warnf("[API] rejecting %s: %v", r.RemoteAddr, err)
			WriteForbidden(w, "Access denied")
			return
		}

		if !addr.IsPrivate() && !addr.IsLoopback() && !addr.IsLinkLocalUnicast() {
			log.Warnf("[API] rejecting non-private client %s", addr)
			WriteForbidden(w, "Access denied: only private networks are allowed")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func peerAddr(r *http.Request) (netip.Addr, error) {
	ap, err := netip.ParseAddrPort(r.RemoteAddr)
	if err == nil {
		return ap.Addr().Unmap(), nil
	}
	addr, err := netip.ParseAddr(r.RemoteAddr)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("invalid peer address %q", r.RemoteAddr)
	}
	return addr.Unmap(), nil
}
