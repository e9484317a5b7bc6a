package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
)

const (
	minPasswordLength = 8
	// bcrypt rejects longer inputs.
	maxPasswordBytes = 72
)

type AuthUseCase struct {
	users      ports.UserRepository
	sessionTTL time.Duration
	now        func() time.Time
}

func NewAuthUseCase(users ports.UserRepository, sessionTTL time.Duration) *AuthUseCase {
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &AuthUseCase{
		users:      users,
		sessionTTL: sessionTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (uc *AuthUseCase) Register(ctx context.Context, email, password, displayName string) (*domain.User, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "register", errors.New("valid email is required"))
	}
	if len(password) < minPasswordLength {
		return nil, domain.WrapError(domain.ErrInvalidInput, "register", fmt.Errorf("password must be at least %d characters", minPasswordLength))
	}
	if len(password) > maxPasswordBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "register", fmt.Errorf("password must be at most %d bytes", maxPasswordBytes))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	if strings.TrimSpace(displayName) == "" {
		displayName = email
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hash),
		CreatedAt:    uc.now(),
	}
	if err := uc.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (uc *AuthUseCase) Login(ctx context.Context, email, password string) (*domain.IssuedSession, error) {
	user, err := uc.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if domain.IsKind(err, domain.ErrUnauthorized) {
			return nil, domain.WrapError(domain.ErrUnauthorized, "login", errors.New("invalid credentials"))
		}
		return nil, fmt.Errorf("fetch user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, domain.WrapError(domain.ErrUnauthorized, "login", errors.New("invalid credentials"))
	}

	token, err := newSessionToken()
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}
	now := uc.now()
	session := &domain.Session{
		TokenHash: hashToken(token),
		UserID:    user.ID,
		ExpiresAt: now.Add(uc.sessionTTL),
		CreatedAt: now,
	}
	if err := uc.users.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &domain.IssuedSession{Token: token, ExpiresAt: session.ExpiresAt, User: user}, nil
}

func (uc *AuthUseCase) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	if err := uc.users.DeleteSession(ctx, hashToken(token)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (uc *AuthUseCase) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "authenticate", errors.New("missing session token"))
	}
	user, err := uc.users.GetSessionUser(ctx, hashToken(token), uc.now())
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	return user, nil
}

func newSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
