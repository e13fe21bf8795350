package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"extractd/internal/domain"
	"extractd/internal/infra/geoip"
)

type actorContextKey struct{}

// ActorKey carries the resolved request actor through the context.
var ActorKey = actorContextKey{}

// Identity resolves the acting user from the trusted proxy headers
// X-Forwarded-User and X-Forwarded-Email and annotates the actor with a
// best-effort GeoIP country. The service sits behind an authenticating
// proxy, so absent headers mean an anonymous caller, not an error.
func Identity(resolver geoip.CountryResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := domain.Actor{
				UserID: strings.TrimSpace(r.Header.Get("X-Forwarded-User")),
				Email:  strings.TrimSpace(r.Header.Get("X-Forwarded-Email")),
			}
			if resolver != nil {
				if code, err := resolver.CountryCode(ClientIP(r)); err == nil {
					actor.Country = strings.ToUpper(code)
				}
			}
			ctx := context.WithValue(r.Context(), ActorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFromContext returns the actor resolved by Identity, or a zero actor
// when the middleware did not run.
func ActorFromContext(ctx context.Context) domain.Actor {
	if actor, ok := ctx.Value(ActorKey).(domain.Actor); ok {
		return actor
	}
	return domain.Actor{}
}

// ClientIP returns the best-effort client IP address for the request.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && net.ParseIP(host) != nil {
		return host
	}
	if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}
	return r.RemoteAddr
}
