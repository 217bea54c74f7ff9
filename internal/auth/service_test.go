package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newJWTService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(Config{Mode: ModeJWT, Secret: testSecret, Audience: []string{"registry-api"}})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestNewServiceValidatesConfig(t *testing.T) {
	if _, err := NewService(Config{Mode: "oauth"}); err == nil {
		t.Fatal("expected unsupported mode error")
	}
	if _, err := NewService(Config{Mode: ModeJWT, Secret: "short"}); err == nil {
		t.Fatal("expected short secret error")
	}
	t.Setenv("REGISTRY_JWT_SECRET", testSecret)
	svc, err := NewService(Config{Mode: ModeJWT, SecretEnv: "REGISTRY_JWT_SECRET"})
	if err != nil {
		t.Fatalf("secret from env: %v", err)
	}
	if svc.Mode() != ModeJWT {
		t.Fatalf("unexpected mode %s", svc.Mode())
	}
	disabled, err := NewService(Config{})
	if err != nil || disabled.Mode() != ModeDisabled {
		t.Fatalf("expected disabled mode, got %v %v", disabled, err)
	}
}

func TestIssueAndAuthenticate(t *testing.T) {
	svc := newJWTService(t)
	token, expires, err := svc.Issue("ops", []string{PermGovernanceWrite})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !expires.After(time.Now()) {
		t.Fatalf("expiry in the past: %s", expires)
	}
	subject, err := svc.AuthenticateRequest(context.Background(), "Bearer "+token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if subject.Name != "ops" || !subject.HasPermission(PermGovernanceWrite) || subject.HasPermission(PermMultisigWrite) {
		t.Fatalf("unexpected subject %+v", subject)
	}
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	svc := newJWTService(t)
	other, err := NewService(Config{Mode: ModeJWT, Secret: strings.Repeat("z", 32), Audience: []string{"registry-api"}})
	if err != nil {
		t.Fatalf("other service: %v", err)
	}
	foreign, _, err := other.Issue("ops", nil)
	if err != nil {
		t.Fatalf("issue foreign: %v", err)
	}
	svc.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	expired, _, err := svc.Issue("ops", nil)
	if err != nil {
		t.Fatalf("issue expired: %v", err)
	}

	cases := map[string]struct {
		header string
		want   error
	}{
		"missing":      {"", ErrMissingToken},
		"basic scheme": {"Basic abc", ErrInvalidToken},
		"garbage":      {"Bearer not-a-jwt", ErrInvalidToken},
		"wrong secret": {"Bearer " + foreign, ErrInvalidToken},
		"expired":      {"Bearer " + expired, ErrInvalidToken},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.AuthenticateRequest(context.Background(), tc.header); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestMiddlewareEnforcesPermissions(t *testing.T) {
	svc := newJWTService(t)
	var seen *Subject
	handler := svc.Middleware(PermMultisigWrite)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	call := func(header string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/wallets", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := call(""); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
	readOnly, _, _ := svc.Issue("viewer", []string{PermGovernanceWrite})
	if code := call("Bearer " + readOnly); code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
	admin, _, _ := svc.Issue("admin", []string{"*"})
	if code := call("Bearer " + admin); code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	if seen == nil || seen.Name != "admin" {
		t.Fatalf("subject not propagated: %+v", seen)
	}
}

func TestDisabledModePassesThrough(t *testing.T) {
	svc, _ := NewService(Config{Mode: ModeDisabled})
	called := false
	handler := svc.Middleware(PermCredentialWrite)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	if !called {
		t.Fatal("expected handler to run when auth is disabled")
	}
}

func TestOperatorNameFromContext(t *testing.T) {
	if got := OperatorName(context.Background()); got != AnonymousOperator {
		t.Fatalf("expected %q, got %q", AnonymousOperator, got)
	}
	ctx := WithSubject(context.Background(), &Subject{Name: "ops-bot", Permissions: []string{PermGovernanceWrite}})
	if got := OperatorName(ctx); got != "ops-bot" {
		t.Fatalf("expected ops-bot, got %q", got)
	}
	if subject := SubjectFromContext(ctx); !subject.HasPermission(PermGovernanceWrite) || subject.HasPermission(PermMultisigWrite) {
		t.Fatalf("unexpected permissions on %+v", subject)
	}
	if WithSubject(context.Background(), nil) != context.Background() {
		t.Fatal("nil subject should leave the context untouched")
	}
}
