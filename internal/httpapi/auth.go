package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"svbilling/backend/internal/domain"
	"svbilling/backend/internal/store"
)

// AuthManager issues and verifies bearer tokens for the singleton company
// account. Registration refuses a second company.
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	repo     store.Repository
}

type billingClaims struct {
	jwtlib.RegisteredClaims
}

func NewAuthManager(secret string, tokenTTL time.Duration, repo store.Repository) *AuthManager {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		repo:     repo,
	}
}

func (a *AuthManager) Register(ctx context.Context, req domain.RegisterRequest) (domain.AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	owner := strings.TrimSpace(req.OwnerName)
	phone := strings.TrimSpace(req.Phone)
	fssai := strings.TrimSpace(req.FSSAINumber)
	if email == "" || owner == "" || phone == "" || fssai == "" {
		return domain.AuthResponse{}, fmt.Errorf("%w: owner name, email, phone and fssai number are required", store.ErrValidation)
	}
	if len(strings.TrimSpace(req.Password)) < 6 {
		return domain.AuthResponse{}, fmt.Errorf("%w: password must be at least 6 characters", store.ErrValidation)
	}

	if _, err := a.repo.GetCompany(ctx); err == nil {
		return domain.AuthResponse{}, fmt.Errorf("%w: only one company can be registered", store.ErrConflict)
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.AuthResponse{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.AuthResponse{}, err
	}

	company := domain.Company{
		ID:             "cmp-" + uuid.NewString(),
		OwnerName:      owner,
		Email:          email,
		Phone:          phone,
		AlternatePhone: strings.TrimSpace(req.AlternatePhone),
		FSSAINumber:    fssai,
		GSTNumber:      strings.TrimSpace(req.GSTNumber),
		UPIID:          strings.TrimSpace(req.UPIID),
		LogoURL:        strings.TrimSpace(req.LogoURL),
		PasswordHash:   string(hash),
		CreatedAt:      time.Now().UTC(),
	}

	created, err := a.repo.CreateCompany(ctx, company)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.AuthResponse{}, fmt.Errorf("%w: only one company can be registered", store.ErrConflict)
		}
		return domain.AuthResponse{}, err
	}

	return a.issueToken(*created)
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return domain.AuthResponse{}, errors.New("invalid credentials")
	}

	company, err := a.repo.GetCompany(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.AuthResponse{}, errors.New("invalid credentials")
		}
		return domain.AuthResponse{}, err
	}
	if company.Email != email {
		return domain.AuthResponse{}, errors.New("invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(company.PasswordHash), []byte(req.Password)) != nil {
		return domain.AuthResponse{}, errors.New("invalid credentials")
	}

	return a.issueToken(*company)
}

func (a *AuthManager) CompanyExists(ctx context.Context) (bool, error) {
	if _, err := a.repo.GetCompany(ctx); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (a *AuthManager) issueToken(company domain.Company) (domain.AuthResponse, error) {
	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	claims := billingClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   company.ID,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "svbilling",
		},
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return domain.AuthResponse{}, err
	}

	return domain.AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt.Format(time.RFC3339),
		Company:   company,
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &billingClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{CompanyID: sub}, nil
}
