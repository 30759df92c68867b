package user

import (
	"errors"
	"time"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email taken")
)

type User struct {
	Id           string `redis:"id"`
	Name         string `redis:"name"`
	Email        string `redis:"email"`
	PhotoURL     string `redis:"photo_url"`
	PasswordHash string `redis:"password_hash"`
	CreatedAt    int64  `redis:"created_at"`
}

type SetUserParams struct {
	Id           string
	Name         string
	Email        string
	PhotoURL     string
	PasswordHash string
	CreatedAt    time.Time
}
