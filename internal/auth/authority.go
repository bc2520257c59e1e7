package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ariefcatur/go-pos-ledger/internal/ledger"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const DefaultRole = "cashier"

type Credentials interface {
	UserByUsername(ctx context.Context, username string) (ledger.User, error)
	CreateUser(ctx context.Context, username, passwordHash, role string) (int64, error)
}

// Authority issues and resolves session tokens.
type Authority struct {
	Users    Credentials
	Sessions SessionStore
	TTL      time.Duration
	Log      logrus.FieldLogger

	now func() time.Time
}

func NewAuthority(users Credentials, sessions SessionStore, ttl time.Duration, log logrus.FieldLogger) *Authority {
	return &Authority{Users: users, Sessions: sessions, TTL: ttl, Log: log, now: time.Now}
}

func (a *Authority) Register(ctx context.Context, username, password, role string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return 0, ledger.ErrInvalidUser
	}
	if role == "" {
		role = DefaultRole
	}
	hash, err := HashPassword(password)
	if err != nil {
		return 0, err
	}
	id, err := a.Users.CreateUser(ctx, username, string(hash), role)
	if err != nil {
		return 0, err
	}
	a.Log.WithFields(logrus.Fields{"user_id": id, "role": role}).Info("user registered")
	return id, nil
}

// Authenticate checks the password and opens a new session. Unknown users and
// wrong passwords fail the same way.
func (a *Authority) Authenticate(ctx context.Context, username, password string) (Session, error) {
	u, err := a.Users.UserByUsername(ctx, username)
	if errors.Is(err, ledger.ErrUserNotFound) {
		return Session{}, ledger.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if ComparePassword(u.PasswordHash, password) != nil {
		return Session{}, ledger.ErrInvalidCredentials
	}

	s := Session{Token: uuid.NewString(), UserID: u.ID, IssuedAt: a.now().UTC()}
	if err := a.Sessions.Put(ctx, s, a.TTL); err != nil {
		return Session{}, err
	}
	a.Log.WithField("user_id", u.ID).Info("session issued")
	return s, nil
}

func (a *Authority) Resolve(ctx context.Context, token string) (int64, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return 0, ledger.ErrUnauthorized
	}
	s, ok, err := a.Sessions.Get(ctx, token)
	if err != nil {
		return 0, &ledger.Error{Kind: ledger.KindUnauthorized, Err: err}
	}
	if !ok {
		return 0, ledger.ErrUnauthorized
	}
	return s.UserID, nil
}

func (a *Authority) Revoke(ctx context.Context, token string) error {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil
	}
	return a.Sessions.Delete(ctx, token)
}

func HashPassword(s string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(s), bcrypt.DefaultCost)
}

func ComparePassword(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}
