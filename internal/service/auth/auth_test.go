package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zhouzirui/hirestream/backend/internal/storage/users"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := users.Open(context.Background(), users.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	svc, err := NewService(store, []byte("test-secret-key-for-jwt-signing"), 0)
	if err != nil {
		t.Fatalf("NewService err: %v", err)
	}
	return svc
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "Ada", "ada@example.com", "s3cret")
	if err != nil {
		t.Fatalf("Register err: %v", err)
	}
	if user.PasswordHash == "s3cret" {
		t.Fatal("password must be hashed")
	}

	token, err := svc.Login(ctx, "ada@example.com", "s3cret")
	if err != nil {
		t.Fatalf("Login err: %v", err)
	}

	claims, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify err: %v", err)
	}
	if claims.UserID != user.ID || claims.Email != "ada@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name, email, password string
	}{
		{"", "a@example.com", "pw"},
		{"Ada", "", "pw"},
		{"Ada", "a@example.com", ""},
	}
	for _, tt := range tests {
		if _, err := svc.Register(ctx, tt.name, tt.email, tt.password); !errors.Is(err, ErrMissingCredentials) {
			t.Errorf("Register(%q, %q) = %v, want ErrMissingCredentials", tt.name, tt.email, err)
		}
	}
}

func TestRegisterDuplicate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "Ada", "ada@example.com", "pw"); err != nil {
		t.Fatalf("Register err: %v", err)
	}
	if _, err := svc.Register(ctx, "Ada", "ada@example.com", "pw"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestLoginFailures(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, _ = svc.Register(ctx, "Ada", "ada@example.com", "pw")

	if _, err := svc.Login(ctx, "ada@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user: got %v", err)
	}
	if _, err := svc.Login(ctx, "", "pw"); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("missing email: got %v", err)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, _ = svc.Register(ctx, "Ada", "ada@example.com", "pw")

	token, err := svc.Login(ctx, "ada@example.com", "pw")
	if err != nil {
		t.Fatalf("Login err: %v", err)
	}

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := svc.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestVerifyRejectsForeignToken(t *testing.T) {
	svc := newTestService(t)
	other, _ := NewService(nil, []byte("different-secret"), time.Hour)

	token, err := other.issue(users.User{ID: "u1", Email: "x@example.com"})
	if err != nil {
		t.Fatalf("issue err: %v", err)
	}
	if _, err := svc.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := svc.Verify("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
}

func TestNewServiceRequiresSecret(t *testing.T) {
	if _, err := NewService(nil, nil, 0); err == nil {
		t.Fatal("expected error without secret")
	}
}
