// internal/middleware/security.go
//
// Security-header middleware for the JSON API.
//
// Injects headers suited to a machine-facing API on every response:
//
//   • Content-Security-Policy  –  nothing may load; responses are data only
//   • X-Frame-Options          –  click-jacking defence
//   • X-Content-Type-Options   –  MIME-sniffing defence
//   • Referrer-Policy          –  no Referer at all
//   • Cache-Control            –  config views must never sit in a cache
//
// Notes
// -----
// • Headers are set *before* next.ServeHTTP because JSON handlers write the
//   body immediately; handlers may still override any of them.
// • Oxford commas, two spaces after periods.

package middleware

import "net/http"

// Security sets security headers for every response.
func Security(next http.Handler) http.Handler {
	const (
		csp   = "default-src 'none'; frame-ancestors 'none'"
		xfo   = "DENY"
		nosn  = "nosniff"
		refer = "no-referrer"
		cache = "no-store"
	)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Security-Policy", csp)
		h.Set("X-Frame-Options", xfo)
		h.Set("X-Content-Type-Options", nosn)
		h.Set("Referrer-Policy", refer)
		h.Set("Cache-Control", cache)

		next.ServeHTTP(w, r)
	})
}
