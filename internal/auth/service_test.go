package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/longstone-am/longstone/internal/auth"
	"github.com/longstone-am/longstone/internal/authz"
	"github.com/longstone-am/longstone/internal/shared"
	"github.com/longstone-am/longstone/internal/users"
	_ "github.com/longstone-am/longstone/testing"
)

type stubRepo struct {
	user     *users.User
	sessions map[string]uuid.UUID
	purged   int64
}

func newStubRepo(user *users.User) *stubRepo {
	return &stubRepo{user: user, sessions: make(map[string]uuid.UUID)}
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (users.User, error) {
	if s.user == nil || s.user.Email != email {
		return users.User{}, shared.ErrNotFound
	}
	return *s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID uuid.UUID, expiresAt time.Time, ip, ua string) error {
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

func (s *stubRepo) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	return s.purged, nil
}

func activeUser(t *testing.T, password string) *users.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &users.User{
		ID:           uuid.New(),
		Username:     "jdoe",
		Email:        "jdoe@longstone.local",
		FullName:     "Jane Doe",
		Role:         authz.RoleDealer,
		IsActive:     true,
		PasswordHash: string(hash),
	}
}

func TestAuthenticate(t *testing.T) {
	user := activeUser(t, "correcthorse")
	service := auth.NewService(newStubRepo(user))

	got, err := service.Authenticate(context.Background(), "jdoe@longstone.local", "correcthorse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestAuthenticateWrongPassword(t *testing.T) {
	service := auth.NewService(newStubRepo(activeUser(t, "correcthorse")))

	_, err := service.Authenticate(context.Background(), "jdoe@longstone.local", "wrong")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateUnknownEmail(t *testing.T) {
	service := auth.NewService(newStubRepo(nil))

	_, err := service.Authenticate(context.Background(), "ghost@longstone.local", "whatever")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateInactiveUser(t *testing.T) {
	user := activeUser(t, "correcthorse")
	user.IsActive = false
	service := auth.NewService(newStubRepo(user))

	_, err := service.Authenticate(context.Background(), "jdoe@longstone.local", "correcthorse")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials,
		"inactive accounts fail with the same error as bad credentials")
}

func TestSessionLifecycle(t *testing.T) {
	user := activeUser(t, "correcthorse")
	repo := newStubRepo(user)
	service := auth.NewService(repo)

	require.NoError(t, service.RegisterSession(context.Background(), "sess-1", user.ID, time.Now().Add(time.Hour), "127.0.0.1", "go-test"))
	assert.Contains(t, repo.sessions, "sess-1")

	require.NoError(t, service.RemoveSession(context.Background(), "sess-1"))
	assert.NotContains(t, repo.sessions, "sess-1")

	repo.purged = 3
	removed, err := service.PurgeExpiredSessions(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
}
