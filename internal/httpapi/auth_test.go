package httpapi

import (
	"context"
	"errors"
	"testing"
	"time"

	"svbilling/backend/internal/domain"
	"svbilling/backend/internal/store"
	"svbilling/backend/internal/store/memory"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestAuth() *AuthManager {
	return NewAuthManager(testSecret, time.Hour, memory.New())
}

func validRegistration() domain.RegisterRequest {
	return domain.RegisterRequest{
		OwnerName:   "Suresh Varma",
		Email:       "Suresh@Example.com",
		Phone:       "9999900000",
		FSSAINumber: "11223344556677",
		UPIID:       "suresh@upi",
		Password:    "secret123",
	}
}

func TestRegisterIssuesUsableToken(t *testing.T) {
	auth := newTestAuth()
	ctx := context.Background()

	resp, err := auth.Register(ctx, validRegistration())
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if resp.Token == "" {
		t.Fatalf("expected a token")
	}
	if resp.Company.Email != "suresh@example.com" {
		t.Fatalf("email should be stored lowercased, got %s", resp.Company.Email)
	}
	actor, err := auth.ParseToken(resp.Token)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.CompanyID != resp.Company.ID {
		t.Fatalf("token subject %s does not match company %s", actor.CompanyID, resp.Company.ID)
	}
}

func TestRegisterSecondCompanyConflicts(t *testing.T) {
	auth := newTestAuth()
	ctx := context.Background()

	if _, err := auth.Register(ctx, validRegistration()); err != nil {
		t.Fatalf("first register failed: %v", err)
	}

	second := validRegistration()
	second.Email = "other@example.com"
	_, err := auth.Register(ctx, second)
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	auth := newTestAuth()
	ctx := context.Background()

	missing := validRegistration()
	missing.FSSAINumber = "  "
	if _, err := auth.Register(ctx, missing); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for missing fssai, got %v", err)
	}

	weak := validRegistration()
	weak.Password = "12345"
	if _, err := auth.Register(ctx, weak); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for short password, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	auth := newTestAuth()
	ctx := context.Background()

	if _, err := auth.Register(ctx, validRegistration()); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	resp, err := auth.Login(ctx, domain.LoginRequest{Email: "SURESH@example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Token == "" {
		t.Fatalf("expected a token")
	}

	if _, err := auth.Login(ctx, domain.LoginRequest{Email: "suresh@example.com", Password: "wrong"}); err == nil {
		t.Fatalf("wrong password must fail")
	}
	if _, err := auth.Login(ctx, domain.LoginRequest{Email: "nobody@example.com", Password: "secret123"}); err == nil {
		t.Fatalf("unknown email must fail")
	}
}

func TestParseTokenRejectsForgery(t *testing.T) {
	auth := newTestAuth()
	ctx := context.Background()

	resp, err := auth.Register(ctx, validRegistration())
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	other := NewAuthManager("ffffffffffffffffffffffffffffffff", time.Hour, memory.New())
	if _, err := other.ParseToken(resp.Token); err == nil {
		t.Fatalf("token signed with another secret must be rejected")
	}
	if _, err := auth.ParseToken(resp.Token + "x"); err == nil {
		t.Fatalf("tampered token must be rejected")
	}
	if _, err := auth.ParseToken("not-a-token"); err == nil {
		t.Fatalf("garbage token must be rejected")
	}
}

func TestCompanyExists(t *testing.T) {
	auth := newTestAuth()
	ctx := context.Background()

	exists, err := auth.CompanyExists(ctx)
	if err != nil || exists {
		t.Fatalf("expected no company yet, got exists=%v err=%v", exists, err)
	}

	if _, err := auth.Register(ctx, validRegistration()); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	exists, err = auth.CompanyExists(ctx)
	if err != nil || !exists {
		t.Fatalf("expected company to exist, got exists=%v err=%v", exists, err)
	}
}
