package httpapi

import (
	"net/http"

	"github.com/buffquant/simrun/internal/apierr"
)

// concurrencyLimiter caps in-flight requests via a buffered channel
// semaphore, grounded on likme-CODEX's withConcurrencyLimit idiom. Requests
// beyond the cap fail fast with 503 rather than queuing unboundedly — pure
// backpressure, not a correctness requirement.
func concurrencyLimiter(max int, next http.Handler) http.Handler {
	if max <= 0 {
		return next
	}
	sem := make(chan struct{}, max)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			next.ServeHTTP(w, r)
		default:
			writeError(w, apierr.TooManyInFlight("too many in-flight requests"))
		}
	})
}

func withCORS(devUIPort string, next http.Handler) http.Handler {
	allowed := map[string]bool{
		"http://localhost:3000": true,
		"http://127.0.0.1:3000": true,
	}
	if devUIPort != "" {
		allowed["http://localhost:"+devUIPort] = true
		allowed["http://127.0.0.1:"+devUIPort] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "*")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
