// Package auth registers employer accounts and issues HS256 access tokens
// carrying sub and email claims. Passwords are stored as bcrypt hashes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/zhouzirui/hirestream/backend/internal/storage/users"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrUserExists         = errors.New("user already registered")
	ErrInvalidCredentials = errors.New("authentication failed")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token expired")
)

const DefaultTokenTTL = time.Hour

// UserStore is the persistence the service needs.
type UserStore interface {
	Create(ctx context.Context, u users.User) (users.User, error)
	FindByEmail(ctx context.Context, email string) (users.User, error)
}

// Claims identifies the holder of an access token.
type Claims struct {
	UserID string
	Email  string
}

// Service registers users and issues access tokens.
type Service struct {
	users  UserStore
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewService creates an auth service. A non-positive ttl means DefaultTokenTTL.
func NewService(store UserStore, secret []byte, ttl time.Duration) (*Service, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Service{users: store, secret: secret, ttl: ttl, now: time.Now}, nil
}

// Register stores a new account with a hashed password.
func (s *Service) Register(ctx context.Context, name, email, password string) (users.User, error) {
	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return users.User{}, ErrMissingCredentials
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return users.User{}, ErrUserExists
	} else if !errors.Is(err, users.ErrNotFound) {
		return users.User{}, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return users.User{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.users.Create(ctx, users.User{Name: name, Email: email, PasswordHash: string(hash)})
	if errors.Is(err, users.ErrUserExists) {
		return users.User{}, ErrUserExists
	}
	if err != nil {
		return users.User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// dummyHash keeps login timing the same for unknown emails.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Login checks a password and returns a signed access token.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return "", ErrMissingCredentials
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, users.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	return s.issue(user)
}

func (s *Service) issue(user users.User) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(s.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify validates a token and returns its claims.
func (s *Service) Verify(tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Claims{}, ErrInvalidToken
	}

	sub, _ := mapClaims["sub"].(string)
	if sub == "" {
		return Claims{}, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	email, _ := mapClaims["email"].(string)
	return Claims{UserID: sub, Email: email}, nil
}
