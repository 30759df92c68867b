package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/watchtogether/server/internal/repository/user"
)

const signInAttemptsWindow = 15 * time.Minute

type repo struct {
	rc *redis.Client
}

func NewRepo(rc *redis.Client) *repo {
	return &repo{
		rc: rc,
	}
}

func (r repo) userKey(id string) string {
	return "user:" + id
}

func (r repo) emailKey(email string) string {
	return "user:email:" + email
}

func (r repo) attemptsKey(email string) string {
	return "user:signin-attempts:" + email
}

// SetUser stores a new account and claims its email. Returns
// user.ErrEmailTaken when another account already owns the address.
func (r repo) SetUser(ctx context.Context, params *user.SetUserParams) error {
	claimed, err := r.rc.SetNX(ctx, r.emailKey(params.Email), params.Id, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to claim email: %w", err)
	}
	if !claimed {
		return user.ErrEmailTaken
	}

	if err := r.rc.HSet(ctx, r.userKey(params.Id), map[string]any{
		"id":            params.Id,
		"name":          params.Name,
		"email":         params.Email,
		"photo_url":     params.PhotoURL,
		"password_hash": params.PasswordHash,
		"created_at":    params.CreatedAt.UnixMilli(),
	}).Err(); err != nil {
		// release the claim so the address is not stranded
		r.rc.Del(ctx, r.emailKey(params.Email))
		return fmt.Errorf("failed to set user: %w", err)
	}

	return nil
}

func (r repo) GetUser(ctx context.Context, id string) (user.User, error) {
	var u user.User
	if err := r.rc.HGetAll(ctx, r.userKey(id)).Scan(&u); err != nil {
		return user.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	if u.Id == "" {
		return user.User{}, user.ErrUserNotFound
	}

	return u, nil
}

func (r repo) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	id, err := r.rc.Get(ctx, r.emailKey(email)).Result()
	if err == redis.Nil {
		return user.User{}, user.ErrUserNotFound
	}
	if err != nil {
		return user.User{}, fmt.Errorf("failed to resolve email: %w", err)
	}

	return r.GetUser(ctx, id)
}

func (r repo) UpdateProfile(ctx context.Context, id, name, photoURL string) error {
	exists, err := r.rc.Exists(ctx, r.userKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if exists == 0 {
		return user.ErrUserNotFound
	}

	if err := r.rc.HSet(ctx, r.userKey(id), map[string]any{
		"name":      name,
		"photo_url": photoURL,
	}).Err(); err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	return nil
}

// IncrSignInAttempts counts failed sign-ins per email inside a rolling
// window, for rate limiting.
func (r repo) IncrSignInAttempts(ctx context.Context, email string) (int64, error) {
	attempts, err := r.rc.Incr(ctx, r.attemptsKey(email)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to incr sign-in attempts: %w", err)
	}
	if attempts == 1 {
		r.rc.Expire(ctx, r.attemptsKey(email), signInAttemptsWindow)
	}

	return attempts, nil
}

func (r repo) ResetSignInAttempts(ctx context.Context, email string) error {
	if err := r.rc.Del(ctx, r.attemptsKey(email)).Err(); err != nil {
		return fmt.Errorf("failed to reset sign-in attempts: %w", err)
	}

	return nil
}
