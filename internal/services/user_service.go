package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kharcha/internal/auth"
	"kharcha/internal/core"
	"kharcha/internal/storage"
)

// SeedResult reports which default categories a registration managed to
// create. Failed names are logged but never fail the registration.
type SeedResult struct {
	Created []string
	Failed  []string
}

type UserService struct {
	store      *storage.SQLiteRepository
	sessionTTL time.Duration
	logger     *slog.Logger
}

func NewUserService(store *storage.SQLiteRepository, sessionTTL time.Duration, logger *slog.Logger) *UserService {
	return &UserService{store: store, sessionTTL: sessionTTL, logger: logger}
}

// Register creates the account and seeds the default category set. Category
// seeding is best effort; a partially seeded account is still usable and the
// user can add the missing ones by hand.
func (s *UserService) Register(ctx context.Context, username, password string) (core.User, SeedResult, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return core.User{}, SeedResult{}, err
	}

	user, err := s.store.CreateUser(ctx, username, hash)
	if err != nil {
		return core.User{}, SeedResult{}, err
	}

	var seed SeedResult
	for _, name := range core.DefaultCategories {
		if _, err := s.store.CreateCategory(ctx, user.ID, name); err != nil {
			s.logger.Warn("default category seeding failed",
				"user_id", user.ID,
				"category", name,
				"error", err)
			seed.Failed = append(seed.Failed, name)
			continue
		}
		seed.Created = append(seed.Created, name)
	}
	return user, seed, nil
}

// Login verifies the credentials and opens a session. An unknown username
// and a wrong password produce the same error so the response never leaks
// which half was wrong.
func (s *UserService) Login(ctx context.Context, username, password string) (string, core.User, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return "", core.User{}, auth.ErrInvalidCredentials
		}
		return "", core.User{}, err
	}
	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		return "", core.User{}, err
	}

	token, err := auth.NewSessionToken()
	if err != nil {
		return "", core.User{}, fmt.Errorf("session token: %w", err)
	}
	if err := s.store.CreateSession(ctx, token, user.ID, time.Now().Add(s.sessionTTL)); err != nil {
		return "", core.User{}, fmt.Errorf("create session: %w", err)
	}
	return token, user, nil
}

func (s *UserService) Logout(ctx context.Context, token string) error {
	return s.store.DeleteSession(ctx, token)
}

// Authenticate resolves a session token to its user. Expired and unknown
// tokens both come back as ErrNotFound.
func (s *UserService) Authenticate(ctx context.Context, token string) (core.User, error) {
	return s.store.GetSessionUser(ctx, token)
}
