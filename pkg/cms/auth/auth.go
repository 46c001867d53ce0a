// Package auth issues and checks the bearer tokens used by the API.
//
// Two token types are issued: short-lived access tokens that authenticate
// requests and longer-lived refresh tokens that can only be exchanged for a
// new access token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/jwtauth"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms"
)

const (
	// ClaimTokenType tells access and refresh tokens apart.
	ClaimTokenType = "token_type"

	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	DefaultAccessTTL  = 5 * time.Minute
	DefaultRefreshTTL = 24 * time.Hour
)

var (
	// ErrInvalidCredentials is returned by Obtain for an unknown user, a
	// wrong password or an inactive account.
	ErrInvalidCredentials = errors.New("No active account found with the given credentials")

	// ErrInvalidToken is returned for malformed, expired or mistyped tokens.
	ErrInvalidToken = errors.New("Token is invalid or expired")
)

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

// Service authenticates users and issues tokens.
type Service struct {
	users      cms.UserRepository
	jwt        *jwtauth.JWTAuth
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// Option is a function that configures a Service.
type Option func(*Service)

// WithTTL sets the access and refresh token lifetimes.
func WithTTL(access, refresh time.Duration) Option {
	return func(s *Service) {
		if access != 0 {
			s.accessTTL = access
		}
		if refresh != 0 {
			s.refreshTTL = refresh
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for iat and exp.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates an auth service signing HS256 tokens with secret.
func New(users cms.UserRepository, secret string, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if secret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}
	s := &Service{
		users:      users,
		jwt:        jwtauth.New("HS256", []byte(secret), nil),
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// JWTAuth returns the signer/verifier for use with jwtauth.Verifier.
func (s *Service) JWTAuth() *jwtauth.JWTAuth { return s.jwt }

// TokenPair is returned by Obtain.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

func (s *Service) issue(user *cms.User, tokenType string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := map[string]interface{}{
		"sub":          strconv.FormatInt(user.ID, 10),
		"jti":          uuid.NewString(),
		ClaimTokenType: tokenType,
	}
	jwtauth.SetIssuedAt(claims, now)
	jwtauth.SetExpiry(claims, now.Add(ttl))

	_, token, err := s.jwt.Encode(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return token, nil
}

// Obtain checks the credentials and returns a new token pair.
func (s *Service) Obtain(ctx context.Context, username, password string) (*TokenPair, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, cms.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive || !VerifyPassword(user.PasswordHash, password) {
		s.logger.DebugContext(ctx, "rejected credentials", "username", username)
		return nil, ErrInvalidCredentials
	}

	access, err := s.issue(user, TokenTypeAccess, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.issue(user, TokenTypeRefresh, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

// Refresh exchanges a valid refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	token, err := jwtauth.VerifyToken(s.jwt, refreshToken)
	if err != nil {
		return "", ErrInvalidToken
	}
	claims, err := token.AsMap(ctx)
	if err != nil {
		return "", ErrInvalidToken
	}
	user, err := s.userFromClaims(ctx, claims, TokenTypeRefresh)
	if err != nil {
		return "", err
	}
	return s.issue(user, TokenTypeAccess, s.accessTTL)
}

// UserFromClaims resolves the active user named by verified access token
// claims, as returned by jwtauth.FromContext.
func (s *Service) UserFromClaims(ctx context.Context, claims map[string]interface{}) (*cms.User, error) {
	return s.userFromClaims(ctx, claims, TokenTypeAccess)
}

func (s *Service) userFromClaims(ctx context.Context, claims map[string]interface{}, want string) (*cms.User, error) {
	if typ, _ := claims[ClaimTokenType].(string); typ != want {
		return nil, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}
	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, cms.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInvalidToken
	}
	return user, nil
}

// CreateUserRequest contains parameters for creating an account.
type CreateUserRequest struct {
	Username  string
	Password  string
	FirstName string
	LastName  string
	Email     string
	IsStaff   bool
}

// CreateUser validates the request, hashes the password and stores the user.
func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (*cms.User, error) {
	err := validation.Errors{
		"username": validation.Validate(req.Username,
			validation.Required,
			validation.RuneLength(1, cms.MaxUsernameLength),
			validation.Match(usernamePattern).Error("Enter a valid username.")),
		"password": validation.Validate(req.Password,
			validation.Required,
			validation.Length(minPasswordLength, 0)),
	}.Filter()
	if err := cms.AsValidationError(err); err != nil {
		return nil, err
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user := &cms.User{
		Username:     req.Username,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		IsStaff:      req.IsStaff,
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, cms.ErrUsernameTaken) {
			return nil, cms.NewValidationError("username", "A user with that username already exists.")
		}
		return nil, err
	}
	return user, nil
}
