package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"extractd/internal/domain"
)

type fixedResolver struct {
	code string
	err  error
}

func (f fixedResolver) CountryCode(ip string) (string, error) {
	return f.code, f.err
}

func TestIdentityResolvesForwardedHeaders(t *testing.T) {
	var got domain.Actor
	handler := Identity(fixedResolver{code: "de"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ActorFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
	req.Header.Set("X-Forwarded-User", " u-42 ")
	req.Header.Set("X-Forwarded-Email", "u42@example.com")
	req.RemoteAddr = "203.0.113.1:4321"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got.UserID != "u-42" {
		t.Fatalf("UserID = %q, want u-42", got.UserID)
	}
	if got.Email != "u42@example.com" {
		t.Fatalf("Email = %q", got.Email)
	}
	if got.Country != "DE" {
		t.Fatalf("Country = %q, want DE", got.Country)
	}
}

func TestIdentityAnonymousWithoutHeaders(t *testing.T) {
	var got domain.Actor
	handler := Identity(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ActorFromContext(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got != (domain.Actor{}) {
		t.Fatalf("actor = %+v, want zero", got)
	}
}

func TestActorFromContextWithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := ActorFromContext(req.Context()); got != (domain.Actor{}) {
		t.Fatalf("actor = %+v, want zero", got)
	}
}
