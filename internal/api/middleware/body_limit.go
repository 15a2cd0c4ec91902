package middleware

import (
	"fmt"
	"net/http"

	"github.com/better404/better404/internal/api"
)

const (
	// PublicBodyLimit bounds snippet requests: a URL, a referrer and a key.
	PublicBodyLimit int64 = 8 << 10
	// AdminBodyLimit bounds operator requests.
	AdminBodyLimit int64 = 64 << 10
)

// LimitBody rejects declared bodies over limit up front and caps the reader
// for chunked uploads. GET, HEAD and OPTIONS pass through untouched.
func LimitBody(limit int64) func(http.Handler) http.Handler {
	tooLarge := fmt.Sprintf("request body exceeds %d bytes", limit)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			if limit <= 0 || r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}

			if r.ContentLength > limit {
				api.Error(w, http.StatusRequestEntityTooLarge, tooLarge)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
