package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const (
	RequestIDKey contextKey = "request_id"
	SiteKeyKey   contextKey = "site_key"
)

// RequestID injects a request ID into context and response headers.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		ctx = context.WithValue(ctx, SiteKeyKey, new(string))
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request ID from context.
func GetRequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(RequestIDKey).(string)
	return requestID
}

// WithSiteKey records the public site key a request was made for, so later
// middleware can tag logs and traces with it.
func WithSiteKey(r *http.Request, siteKey string) {
	if holder, ok := r.Context().Value(SiteKeyKey).(*string); ok {
		*holder = siteKey
	}
}

// GetSiteKey returns the site key recorded by WithSiteKey, if any.
func GetSiteKey(ctx context.Context) string {
	if holder, ok := ctx.Value(SiteKeyKey).(*string); ok {
		return *holder
	}
	return ""
}
