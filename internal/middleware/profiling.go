// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/pprof"
)

// ProfilingConfig controls the pprof middleware. Enabled must stay false
// outside development: the pprof endpoints expose heap contents and runtime
// internals.
type ProfilingConfig struct {
	Enabled bool

	// Environment gates a second check so a stray Enabled flag cannot
	// expose pprof in production.
	Environment string
}

// Profiling serves the net/http/pprof handlers under /debug/pprof/ and
// passes everything else through. The middleware refuses to activate when
// Environment is "production" or "prod" regardless of Enabled.
//
// Useful profiles: /debug/pprof/profile (CPU, ?seconds=N),
// /debug/pprof/heap, /debug/pprof/goroutine, /debug/pprof/allocs,
// /debug/pprof/trace. The index page lists the rest.
func Profiling(config ProfilingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !config.Enabled {
			return next
		}

		if config.Environment == "production" || config.Environment == "prod" {
			slog.Error("refusing to enable profiling in a production environment",
				"environment", config.Environment,
			)
			return next
		}

		slog.Warn("pprof endpoints enabled",
			"environment", config.Environment,
			"endpoints", "/debug/pprof/*",
		)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(r.URL.Path) >= 12 && r.URL.Path[:12] == "/debug/pprof" {
				switch r.URL.Path {
				case "/debug/pprof/cmdline":
					pprof.Cmdline(w, r)
				case "/debug/pprof/profile":
					pprof.Profile(w, r)
				case "/debug/pprof/symbol":
					pprof.Symbol(w, r)
				case "/debug/pprof/trace":
					pprof.Trace(w, r)
				default:
					// Index also serves the named runtime profiles
					// (heap, goroutine, block, mutex, ...).
					pprof.Index(w, r)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ProfilingStatus reports the current profiling configuration as JSON, for
// verifying that an environment has pprof switched off.
func ProfilingStatus(config ProfilingConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		status := "disabled"
		if config.Enabled {
			status = "enabled"
		}

		response := fmt.Sprintf(`{
  "profiling_enabled": %t,
  "environment": %q,
  "status": %q,
  "endpoints": [
    "/debug/pprof/",
    "/debug/pprof/profile",
    "/debug/pprof/heap",
    "/debug/pprof/goroutine",
    "/debug/pprof/block",
    "/debug/pprof/mutex",
    "/debug/pprof/threadcreate",
    "/debug/pprof/allocs",
    "/debug/pprof/cmdline",
    "/debug/pprof/symbol",
    "/debug/pprof/trace"
  ],
  "security_warning": "Profiling should NEVER be enabled in production"
}`, config.Enabled, config.Environment, status)

		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(response)); err != nil {
			slog.Error("failed to write profiling status response", "error", err)
		}
	}
}
