// Package services – AuthService
//
// AuthService registers accounts and exchanges username/password pairs for
// bearer tokens. Usernames are NFC-normalized and trimmed before they are
// stored or looked up, so visually identical names map to one account.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-rooms/internal/auth"
	"github.com/tbourn/go-chat-rooms/internal/domain"
	"github.com/tbourn/go-chat-rooms/internal/repo"
)

// MaxUsernameRunes caps stored usernames.
const MaxUsernameRunes = 64

// UserRepo defines the repository contract required by AuthService.
type UserRepo interface {
	// CreateUser inserts an account; a taken username yields repo.ErrDuplicate.
	CreateUser(ctx context.Context, db *gorm.DB, username, passwordHash string) (*domain.User, error)

	// GetUserByUsername fetches an account by exact username or repo.ErrNotFound.
	GetUserByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.User, error)
}

// TokenIssuer signs bearer tokens for an account.
type TokenIssuer interface {
	Issue(userID, username string) (string, error)
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token    string
	UserID   string
	Username string
}

// AuthService handles registration and login.
type AuthService struct {
	DB     *gorm.DB
	Repo   UserRepo
	Tokens TokenIssuer

	// Hash controls argon2id cost; tests lower it.
	Hash auth.Params
}

// NewAuthService constructs an AuthService with the default hashing cost.
func NewAuthService(db *gorm.DB, r UserRepo, tokens TokenIssuer) *AuthService {
	return &AuthService{DB: db, Repo: r, Tokens: tokens, Hash: auth.DefaultParams}
}

// Register creates an account and returns a token for it.
func (s *AuthService) Register(ctx context.Context, username, password string) (*AuthResult, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "Register")
	defer span.End()

	username = NormalizeUsername(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return nil, ErrEmptyCredentials
	}
	if utf8.RuneCountInString(username) > MaxUsernameRunes {
		return nil, ErrUsernameTooLong
	}
	span.SetAttributes(attribute.String("user.name", username))

	hash, err := auth.HashPasswordWith(password, s.Hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	u, err := s.Repo.CreateUser(ctx, s.DB, username, hash)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrUsernameTaken
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "create user")
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return s.issue(span, u)
}

// Login verifies credentials and returns a fresh token.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "Login")
	defer span.End()

	username = NormalizeUsername(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	u, err := s.Repo.GetUserByUsername(ctx, s.DB, username)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	ok, err := auth.ComparePassword(password, u.PasswordHash)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return s.issue(span, u)
}

func (s *AuthService) issue(span trace.Span, u *domain.User) (*AuthResult, error) {
	span.SetAttributes(attribute.String("user.id", u.ID))
	tok, err := s.Tokens.Issue(u.ID, u.Username)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return &AuthResult{Token: tok, UserID: u.ID, Username: u.Username}, nil
}

// NormalizeUsername trims surrounding whitespace and applies NFC.
func NormalizeUsername(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
