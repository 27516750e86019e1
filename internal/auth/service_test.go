package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"purple-player/internal/config"
	"purple-player/internal/database"
	"purple-player/internal/models"
	"purple-player/internal/services"
)

func TestRegisterAndLogin(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	resp, err := svc.Register(ctx, &models.RegisterRequest{Name: " Alice ", Email: "Alice@Example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if resp.Token == "" || resp.User.Email != "alice@example.com" || resp.User.Name != "Alice" || !resp.User.IsOnline {
		t.Fatalf("unexpected registration: %+v", resp.User)
	}
	if resp.User.PasswordHash != "" {
		t.Fatalf("password hash leaked in response")
	}
	firstSession := resp.User.SessionID

	if _, err := svc.Register(ctx, &models.RegisterRequest{Name: "A", Email: "alice@example.com", Password: "secret1"}); !errors.Is(err, database.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	if _, err := svc.Login(ctx, &models.LoginRequest{Email: "alice@example.com", Password: "wrong1"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, &models.LoginRequest{Email: "nobody@example.com", Password: "secret1"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}

	login, err := svc.Login(ctx, &models.LoginRequest{Email: " ALICE@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.User.SessionID == firstSession || login.User.SessionID == "" {
		t.Fatalf("expected session id rotated")
	}
	stored, _ := db.GetUserByID(ctx, login.User.ID)
	if stored.SessionID != login.User.SessionID || !stored.IsOnline {
		t.Fatalf("session not persisted: %+v", stored)
	}

	claims, err := svc.ValidateToken(login.Token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != login.User.ID || claims.SessionID != login.User.SessionID || claims.Email != "alice@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	user, err := svc.GetUserFromToken(ctx, login.Token)
	if err != nil || user.ID != login.User.ID {
		t.Fatalf("GetUserFromToken: %+v %v", user, err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)
	cases := []struct {
		req  models.RegisterRequest
		code string
	}{
		{models.RegisterRequest{Email: "a@b.co", Password: "secret1"}, "missing_fields"},
		{models.RegisterRequest{Name: "A", Email: "not-an-email", Password: "secret1"}, "invalid_email"},
		{models.RegisterRequest{Name: "A", Email: "a@b.co", Password: "abc"}, "weak_password"},
		{models.RegisterRequest{Name: "A", Email: "a@b.co", Password: "abcdefg"}, "weak_password"},
	}
	for _, c := range cases {
		_, err := svc.Register(context.Background(), &c.req)
		var verr *services.ValidationError
		if !errors.As(err, &verr) || verr.Code != c.code {
			t.Errorf("Register(%+v) = %v, want %s", c.req, err, c.code)
		}
	}
}

func TestValidateTokenRejectsBadTokens(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.Register(ctx, &models.RegisterRequest{Name: "Bob", Email: "bob@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := svc.ValidateToken(resp.Token + "x"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected tampered token rejected, got %v", err)
	}

	other := NewService(nil, &config.Config{JWT: config.JWTConfig{Secret: []byte("other"), ExpiresIn: time.Hour}}, nil)
	if _, err := other.ValidateToken(resp.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected token signed with another secret rejected, got %v", err)
	}

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := svc.ValidateToken(resp.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token rejected, got %v", err)
	}
}

func newTestService(t *testing.T) (*Service, database.Database) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.NewSQLiteDB("sqlite://file:auth_" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewSQLiteDB: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := &config.Config{JWT: config.JWTConfig{Secret: []byte("test-secret"), ExpiresIn: time.Hour}}
	return NewService(db, cfg, nil), db
}
