package service

import (
	"context"
	"crypto/hmac"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/config"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/model"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/repository"
)

// AuthService authenticates admins two ways: an interactive email/password
// login that issues a short-lived JWT session token, and a static shared key
// for machine callers such as the external cron scheduler.
type AuthService interface {
	Login(ctx context.Context, email, password string) (string, error)
	VerifySession(tokenString string) (string, error)
	VerifyAdminKey(key string) bool
	CreateAdmin(ctx context.Context, email, password string) (*model.Admin, error)
}

type DefaultAuthService struct {
	admins repository.AdminRepository
	cfg    config.AuthConfig
}

func NewAuthService(admins repository.AdminRepository, cfg config.AuthConfig) AuthService {
	return &DefaultAuthService{admins: admins, cfg: cfg}
}

func (s *DefaultAuthService) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return "", ErrUnauthorized
	}

	admin, err := s.admins.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if admin == nil {
		// Burn comparable time so a missing account is not distinguishable
		// from a wrong password.
		bcrypt.CompareHashAndPassword([]byte("$2a$10$000000000000000000000uGyUvN1Fc0vcXJ5nIvO3kV7iQ9oS5P7W"), []byte(password))
		return "", ErrUnauthorized
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return "", ErrUnauthorized
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   admin.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.SessionTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// VerifySession validates a session JWT and returns the admin id it was
// issued for.
func (s *DefaultAuthService) VerifySession(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(s.cfg.JWTSecret), nil
		})
	if err != nil || !token.Valid {
		return "", ErrUnauthorized
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrUnauthorized
	}
	return claims.Subject, nil
}

func (s *DefaultAuthService) VerifyAdminKey(key string) bool {
	if s.cfg.AdminKey == "" || key == "" {
		return false
	}
	return hmac.Equal([]byte(s.cfg.AdminKey), []byte(key))
}

func (s *DefaultAuthService) CreateAdmin(ctx context.Context, email, password string) (*model.Admin, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(password) < 8 {
		return nil, ErrMissingFields
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	admin := &model.Admin{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	if err := s.admins.Create(ctx, admin); err != nil {
		return nil, err
	}
	return admin, nil
}
