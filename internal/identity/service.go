// Package identity issues and checks the tokens that tell the node who is
// calling: a registered account, an anonymous session or nobody.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"phishguard/internal/docstore"
	"phishguard/internal/metrics"
	"phishguard/internal/models"
	"phishguard/internal/validation"
)

var (
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrInvalidEmail       = errors.New("invalid email")
)

// TokenTTL is the lifetime of issued tokens.
const TokenTTL = 24 * time.Hour

// Token is an issued bearer token.
type Token struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Identity  Identity  `json:"user"`
}

// Service registers accounts and signs tokens.
type Service struct {
	store  docstore.Store
	secret []byte
	logger *zap.Logger
	now    func() time.Time

	registerMu sync.Mutex
}

func NewService(store docstore.Store, secret string, logger *zap.Logger) *Service {
	return &Service{store: store, secret: []byte(secret), logger: logger, now: time.Now}
}

// Credentials are the checked fields of a registration.
type Credentials struct {
	Email    string `json:"email" validate:"required,loose_email"`
	Password string `json:"password" validate:"min=6"`
}

// Validate maps the first failing field to ErrInvalidEmail or
// ErrWeakPassword.
func (c Credentials) Validate() error {
	err := validation.Struct(c)
	if err == nil {
		return nil
	}
	fields := validation.Fields(err)
	if _, ok := fields["email"]; ok {
		return ErrInvalidEmail
	}
	if _, ok := fields["password"]; ok {
		return ErrWeakPassword
	}
	return err
}

// Register creates an email/password account and signs it in.
func (s *Service) Register(ctx context.Context, email, password, displayName string) (*Token, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := (Credentials{Email: email, Password: password}).Validate(); err != nil {
		return nil, err
	}

	s.registerMu.Lock()
	defer s.registerMu.Unlock()

	_, err := s.store.Get(ctx, models.AccountsCollection, email)
	if err == nil {
		return nil, ErrUserAlreadyExists
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing account: %w", err)
	}

	hash, err := hashPassword(password)
	if err != nil {
		s.logger.Error("Failed to hash password", zap.Error(err))
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := models.Account{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: hash,
	}
	if err := s.store.Set(ctx, models.AccountsCollection, email, account.ToDocument()); err != nil {
		s.logger.Error("Failed to create account", zap.Error(err))
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Info("Account registered", zap.String("uid", account.ID))
	return s.issue(identityOf(account))
}

// Login verifies the password and signs the account in.
func (s *Service) Login(ctx context.Context, email, password string) (*Token, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	doc, err := s.store.Get(ctx, models.AccountsCollection, email)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			metrics.AuthLoginsTotal.WithLabelValues("password", "unknown").Inc()
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("Failed to load account", zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve account: %w", err)
	}

	account := models.AccountFromDocument(doc)
	if !verifyPassword(account.PasswordHash, password) {
		metrics.AuthLoginsTotal.WithLabelValues("password", "rejected").Inc()
		return nil, ErrInvalidCredentials
	}

	metrics.AuthLoginsTotal.WithLabelValues("password", "ok").Inc()
	s.logger.Info("User logged in", zap.String("uid", account.ID))
	return s.issue(identityOf(account))
}

// SignInAnonymously creates a fresh anonymous session. It counts as
// authenticated: its scans are stored remotely under its own id.
func (s *Service) SignInAnonymously() (*Token, error) {
	metrics.AuthLoginsTotal.WithLabelValues("anonymous", "ok").Inc()
	return s.issue(Identity{ID: uuid.NewString(), Anonymous: true, Authenticated: true})
}

// Parse validates a bearer token and returns its identity.
func (s *Service) Parse(tokenString string) (Identity, error) {
	claims := &models.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return Identity{}, ErrInvalidToken
	}

	return Identity{
		ID:            claims.Subject,
		Email:         claims.Email,
		DisplayName:   claims.DisplayName,
		Anonymous:     claims.Anonymous,
		Authenticated: true,
	}, nil
}

func (s *Service) issue(id Identity) (*Token, error) {
	now := s.now()
	expiresAt := now.Add(TokenTTL)
	claims := &models.Claims{
		Email:       id.Email,
		DisplayName: id.DisplayName,
		Anonymous:   id.Anonymous,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		s.logger.Error("Failed to generate JWT token", zap.Error(err))
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return &Token{Token: signed, ExpiresAt: expiresAt, Identity: id}, nil
}

func identityOf(a models.Account) Identity {
	return Identity{ID: a.ID, Email: a.Email, DisplayName: a.DisplayName, Authenticated: true}
}
