package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/watchtogether/server/internal/repository/user"
)

const (
	minPasswordLength = 6
	maxNameLength     = 50
	maxSignInAttempts = 10
)

var emailRegexp = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)

type iUserRepo interface {
	SetUser(ctx context.Context, params *user.SetUserParams) error
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	UpdateProfile(ctx context.Context, id, name, photoURL string) error
	IncrSignInAttempts(ctx context.Context, email string) (int64, error)
	ResetSignInAttempts(ctx context.Context, email string) error
}

type service struct {
	userRepo iUserRepo
	secret   []byte
	tokenTTL time.Duration
}

func NewService(userRepo iUserRepo, secret string, tokenTTL time.Duration) *service {
	return &service{
		userRepo: userRepo,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s service) SignUp(ctx context.Context, params *SignUpParams) (AuthResponse, error) {
	email := normalizeEmail(params.Email)
	if !emailRegexp.MatchString(email) {
		return AuthResponse{}, ErrInvalidEmail
	}
	if len(params.Password) < minPasswordLength {
		return AuthResponse{}, ErrWeakPassword
	}

	name := strings.TrimSpace(params.Name)
	if name == "" || len(name) > maxNameLength {
		return AuthResponse{}, ErrInvalidName
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return AuthResponse{}, fmt.Errorf("failed to hash password: %w", err)
	}

	id := uuid.NewString()
	if err := s.userRepo.SetUser(ctx, &user.SetUserParams{
		Id:           id,
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}); err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return AuthResponse{}, ErrEmailInUse
		}
		return AuthResponse{}, fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.issueToken(id)
	if err != nil {
		return AuthResponse{}, err
	}

	return AuthResponse{
		Token: token,
		User:  User{Id: id, Name: name, Email: email},
	}, nil
}

func (s service) SignIn(ctx context.Context, params *SignInParams) (AuthResponse, error) {
	email := normalizeEmail(params.Email)
	if !emailRegexp.MatchString(email) {
		return AuthResponse{}, ErrInvalidEmail
	}

	attempts, err := s.userRepo.IncrSignInAttempts(ctx, email)
	if err != nil {
		return AuthResponse{}, fmt.Errorf("failed to count sign-in attempts: %w", err)
	}
	if attempts > maxSignInAttempts {
		return AuthResponse{}, ErrRateLimited
	}

	u, err := s.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return AuthResponse{}, ErrUserNotFound
		}
		return AuthResponse{}, fmt.Errorf("failed to get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(params.Password)); err != nil {
		return AuthResponse{}, ErrWrongPassword
	}

	if err := s.userRepo.ResetSignInAttempts(ctx, email); err != nil {
		return AuthResponse{}, fmt.Errorf("failed to reset sign-in attempts: %w", err)
	}

	token, err := s.issueToken(u.Id)
	if err != nil {
		return AuthResponse{}, err
	}

	return AuthResponse{
		Token: token,
		User:  User{Id: u.Id, Name: u.Name, Email: u.Email, PhotoURL: u.PhotoURL},
	}, nil
}

func (s service) Profile(ctx context.Context, userId string) (User, error) {
	u, err := s.userRepo.GetUser(ctx, userId)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("failed to get user: %w", err)
	}

	return User{Id: u.Id, Name: u.Name, Email: u.Email, PhotoURL: u.PhotoURL}, nil
}

func (s service) UpdateProfile(ctx context.Context, params *UpdateProfileParams) (User, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" || len(name) > maxNameLength {
		return User{}, ErrInvalidName
	}

	if err := s.userRepo.UpdateProfile(ctx, params.UserId, name, params.PhotoURL); err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("failed to update profile: %w", err)
	}

	return s.Profile(ctx, params.UserId)
}

func (s service) issueToken(userId string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userId,
		"exp":     time.Now().Add(s.tokenTTL).Unix(),
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// ParseToken verifies the signature and expiry and returns the user id.
func (s service) ParseToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidCredential
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidCredential
	}

	userId, ok := claims["user_id"].(string)
	if !ok || userId == "" {
		return "", ErrInvalidCredential
	}

	return userId, nil
}
