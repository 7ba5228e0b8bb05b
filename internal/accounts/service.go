// Package accounts provides email/password account management.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tasukeai/api/internal/store"
	"tasukeai/api/internal/util"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned on any sign-in failure so callers
	// cannot distinguish unknown emails from wrong passwords.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailTaken is returned when the sign-up email is already registered.
	ErrEmailTaken = errors.New("email already registered")
)

// Service provides email/password authentication and profile updates.
type Service struct {
	store UserStore
}

// UserStore defines the storage interface for accounts.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByUID(ctx context.Context, uid string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	UpsertProfile(ctx context.Context, uid, name, photoURL string) error
}

// NewService creates a new accounts service.
func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// SignUpRequest contains sign-up parameters.
type SignUpRequest struct {
	Email         string
	Password      string
	Name          string
	ProfilePicURL string
}

// SignUp creates a new user account.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.User, error) {
	// Emails are stored lowercased and the column is unique, so normalize
	// before both the duplicate check and the insert.
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := validateEmail(email); err != nil {
		return store.User{}, err
	}
	if req.Name == "" {
		return store.User{}, errors.New("name is required")
	}
	if len(req.Password) < 8 {
		return store.User{}, errors.New("password must be at least 8 characters")
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return store.User{}, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := store.User{
		UID:           util.NewID("usr"),
		Name:          req.Name,
		ProfilePicURL: req.ProfilePicURL,
		Email:         email,
		PasswordHash:  string(hash),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// SignInRequest contains sign-in parameters.
type SignInRequest struct {
	Email    string
	Password string
}

// SignIn authenticates a user by email and password.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (store.User, error) {
	if req.Email == "" || req.Password == "" {
		return store.User{}, errors.New("email and password are required")
	}

	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// UpdateProfile changes a user's display name and photo. Blank fields keep
// their current value.
func (s *Service) UpdateProfile(ctx context.Context, uid, name, photoURL string) (store.User, error) {
	user, err := s.store.GetUserByUID(ctx, uid)
	if err != nil {
		return store.User{}, fmt.Errorf("load user: %w", err)
	}
	if name == "" {
		name = user.Name
	}
	if photoURL == "" {
		photoURL = user.ProfilePicURL
	}
	if err := s.store.UpsertProfile(ctx, uid, name, photoURL); err != nil {
		return store.User{}, fmt.Errorf("update profile: %w", err)
	}
	user.Name = name
	user.ProfilePicURL = photoURL
	return user, nil
}

func validateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || !strings.Contains(email[at+1:], ".") {
		return errors.New("invalid email address")
	}
	return nil
}
