package accounts

import (
	"context"
	"errors"
	"testing"

	"tasukeai/api/internal/store"
)

// mockUserStore is an in-memory implementation of UserStore for testing
type mockUserStore struct {
	users      map[string]store.User
	emailIndex map[string]string // email -> uid
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:      make(map[string]store.User),
		emailIndex: make(map[string]string),
	}
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if uid, ok := m.emailIndex[email]; ok {
		return m.users[uid], nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) GetUserByUID(ctx context.Context, uid string) (store.User, error) {
	if user, ok := m.users[uid]; ok {
		return user, nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) CreateUser(ctx context.Context, user store.User) error {
	m.users[user.UID] = user
	m.emailIndex[user.Email] = user.UID
	return nil
}

func (m *mockUserStore) UpsertProfile(ctx context.Context, uid, name, photoURL string) error {
	user, ok := m.users[uid]
	if !ok {
		return errors.New("user not found")
	}
	user.Name = name
	user.ProfilePicURL = photoURL
	m.users[uid] = user
	return nil
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	t.Run("successful sign up", func(t *testing.T) {
		user, err := svc.SignUp(ctx, SignUpRequest{
			Email:    "hanako@example.com",
			Password: "password123",
			Name:     "Hanako",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.UID == "" {
			t.Error("expected UID to be set")
		}
		if user.PasswordHash == "password123" {
			t.Error("expected password to be hashed")
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{
			Email:    "hanako@example.com",
			Password: "password123",
			Name:     "Hanako Two",
		})
		if !errors.Is(err, ErrEmailTaken) {
			t.Errorf("expected ErrEmailTaken, got %v", err)
		}
	})

	t.Run("duplicate email case insensitive", func(t *testing.T) {
		// The stored email is lowercased, so a recased duplicate must be
		// caught before the insert hits the unique constraint.
		_, err := svc.SignUp(ctx, SignUpRequest{
			Email:    "  Hanako@Example.COM ",
			Password: "password123",
			Name:     "Hanako Three",
		})
		if !errors.Is(err, ErrEmailTaken) {
			t.Errorf("expected ErrEmailTaken, got %v", err)
		}
	})

	t.Run("short password", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{
			Email:    "taro@example.com",
			Password: "short",
			Name:     "Taro",
		})
		if err == nil {
			t.Error("expected error for short password")
		}
	})

	t.Run("invalid email", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{
			Email:    "not-an-email",
			Password: "password123",
			Name:     "Taro",
		})
		if err == nil {
			t.Error("expected error for invalid email")
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		if _, err := svc.SignUp(ctx, SignUpRequest{}); err == nil {
			t.Error("expected error for missing fields")
		}
	})

	t.Run("email normalized to lower case", func(t *testing.T) {
		user, err := svc.SignUp(ctx, SignUpRequest{
			Email:    "Mixed@Example.com",
			Password: "password123",
			Name:     "Mixed",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.Email != "mixed@example.com" {
			t.Errorf("expected lower-cased email, got %s", user.Email)
		}
	})
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	if _, err := svc.SignUp(ctx, SignUpRequest{
		Email:    "hanako@example.com",
		Password: "password123",
		Name:     "Hanako",
	}); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	t.Run("successful sign in", func(t *testing.T) {
		user, err := svc.SignIn(ctx, SignInRequest{
			Email:    "hanako@example.com",
			Password: "password123",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.Name != "Hanako" {
			t.Errorf("expected name Hanako, got %s", user.Name)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.SignIn(ctx, SignInRequest{
			Email:    "hanako@example.com",
			Password: "wrongpassword",
		})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("non-existent user", func(t *testing.T) {
		_, err := svc.SignIn(ctx, SignInRequest{
			Email:    "nobody@example.com",
			Password: "password123",
		})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	created, err := svc.SignUp(ctx, SignUpRequest{
		Email:         "hanako@example.com",
		Password:      "password123",
		Name:          "Hanako",
		ProfilePicURL: "https://cdn.example.com/hanako.png",
	})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}

	t.Run("change name keeps photo", func(t *testing.T) {
		user, err := svc.UpdateProfile(ctx, created.UID, "Hanako Y.", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.Name != "Hanako Y." {
			t.Errorf("expected updated name, got %s", user.Name)
		}
		if user.ProfilePicURL != "https://cdn.example.com/hanako.png" {
			t.Errorf("expected photo preserved, got %s", user.ProfilePicURL)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		if _, err := svc.UpdateProfile(ctx, "usr_missing", "X", ""); err == nil {
			t.Error("expected error for unknown user")
		}
	})
}
