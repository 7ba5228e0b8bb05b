package app

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"tasukeai/api/internal/accounts"
	"tasukeai/api/internal/auth"
	"tasukeai/api/internal/config"
	"tasukeai/api/internal/feed"
	"tasukeai/api/internal/search"
	"tasukeai/api/internal/store"
	"tasukeai/api/internal/util"
)

// Session is an authenticated caller derived from an access token.
type Session struct {
	Token        string
	RefreshToken string
	UID          string
	Name         string
	PhotoURL     string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, user store.User) error
	GetUserByUID(ctx context.Context, uid string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	UpsertProfile(ctx context.Context, uid, name, profilePicURL string) error

	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)

	InsertTask(ctx context.Context, task store.Task) error
	GetTask(ctx context.Context, taskID string) (store.Task, error)
	ListTasks(ctx context.Context, limit int) ([]store.Task, error)

	GetRoom(ctx context.Context, roomID string) (store.Room, error)
	LatestRoomForTask(ctx context.Context, taskID string) (*store.Room, error)
	RoomForSupporter(ctx context.Context, taskID, supporterUID string) (*store.Room, error)
	CreateRoom(ctx context.Context, room store.Room) (store.Room, error)
	ApplyRoomTransition(ctx context.Context, roomID string, from []store.RoomStatus, to store.RoomStatus, taskID string, taskStatus store.TaskStatus) (bool, error)
	ListRoomsByOwner(ctx context.Context, ownerUID string, limit int) ([]store.RoomSummary, error)
	ListRoomsBySupporter(ctx context.Context, supporterUID string, limit int) ([]store.RoomSummary, error)

	InsertMessage(ctx context.Context, message store.Message) error
	ListRoomMessages(ctx context.Context, roomID string, limit int) ([]store.Message, error)
	GetMessage(ctx context.Context, messageID string) (store.Message, error)
	UpdateMessageImage(ctx context.Context, messageID, imageURL, storagePath string) (bool, error)

	UpsertDeviceToken(ctx context.Context, token, uid string) error
}

// refreshStore holds refresh sessions. Redis when configured, PostgreSQL
// otherwise; both carry the profile so Refresh can reissue claims without a
// second lookup.
type refreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// ObjectStore uploads image attachments and returns a public URL.
type ObjectStore interface {
	Put(ctx context.Context, objectPath, contentType string, r io.Reader, size int64) (string, error)
}

type taskSearcher interface {
	Search(q search.Query) search.Response
	IndexTask(t search.TaskRecord)
	DeleteTask(id string)
}

// Deps are the optional collaborators of the service. Nil fields fall back
// to in-process or PostgreSQL-backed defaults.
type Deps struct {
	Sessions refreshStore
	Search   taskSearcher
	Feed     feed.Broker
	Objects  ObjectStore
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions refreshStore
	accounts *accounts.Service
	search   taskSearcher
	feed     feed.Broker
	objects  ObjectStore
}

func New(cfg config.Config, pg *store.PostgresStore, deps Deps) *Service {
	sessions := deps.Sessions
	if sessions == nil {
		sessions = pg
	}
	broker := deps.Feed
	if broker == nil {
		broker = feed.NewMemoryBroker()
	}
	return &Service{
		cfg:      cfg,
		store:    pg,
		sessions: sessions,
		accounts: accounts.NewService(pg),
		search:   deps.Search,
		feed:     broker,
		objects:  deps.Objects,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Subscribe attaches to a feed channel. The returned cancel must be called
// when the consumer goes away.
func (s *Service) Subscribe(ctx context.Context, channel string) (<-chan feed.Event, func()) {
	return s.feed.Subscribe(ctx, channel)
}

// SignUp creates an account and opens a session for it.
func (s *Service) SignUp(ctx context.Context, req accounts.SignUpRequest) (Session, error) {
	user, err := s.accounts.SignUp(ctx, req)
	if err != nil {
		if errors.Is(err, accounts.ErrEmailTaken) {
			return Session{}, domainError(http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
		}
		return Session{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	return s.issueSession(ctx, user)
}

// SignInInput carries credentials plus the profile fields refreshed on every
// sign-in.
type SignInInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	PhotoURL string `json:"photoUrl"`
}

// SignIn authenticates a user and upserts the submitted profile fields.
func (s *Service) SignIn(ctx context.Context, input SignInInput) (Session, error) {
	user, err := s.accounts.SignIn(ctx, accounts.SignInRequest{Email: input.Email, Password: input.Password})
	if err != nil {
		if errors.Is(err, accounts.ErrInvalidCredentials) {
			return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid email or password", nil)
		}
		return Session{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	if input.Name != "" || input.PhotoURL != "" {
		user, err = s.accounts.UpdateProfile(ctx, user.UID, input.Name, input.PhotoURL)
		if err != nil {
			return Session{}, err
		}
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.UID,
		Name:  user.Name,
		Photo: user.ProfilePicURL,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewToken()
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UID:          user.UID,
		Name:         user.Name,
		PhotoURL:     user.ProfilePicURL,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UID:       claims.Sub,
		Name:      claims.Name,
		PhotoURL:  claims.Photo,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// RegisterDeviceToken records a push token for the caller. Delivery is an
// external dispatcher's job; this only maintains the registry.
func (s *Service) RegisterDeviceToken(ctx context.Context, session Session, token string) error {
	if token == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "token is required", nil)
	}
	return s.store.UpsertDeviceToken(ctx, token, session.UID)
}

// publish delivers a feed event, logging failures without surfacing them;
// the write that triggered the event has already committed.
func (s *Service) publish(ctx context.Context, channel string, event feed.Event, buildErr error) {
	if buildErr != nil {
		log.Printf("feed: build event for %s: %v", channel, buildErr)
		return
	}
	if err := s.feed.Publish(ctx, channel, event); err != nil {
		log.Printf("feed: publish to %s: %v", channel, err)
	}
}
