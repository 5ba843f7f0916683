package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/storage"
)

// memUserStore is an in-memory UserStore for service tests.
type memUserStore struct {
	byID    map[string]*storage.User
	byEmail map[string]*storage.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{
		byID:    make(map[string]*storage.User),
		byEmail: make(map[string]*storage.User),
	}
}

func (m *memUserStore) Create(_ context.Context, user *storage.User) error {
	email := strings.ToLower(user.Email)
	if _, ok := m.byEmail[email]; ok {
		return storage.ErrAlreadyExists
	}
	u := *user
	u.Email = email
	m.byID[u.ID] = &u
	m.byEmail[email] = &u
	return nil
}

func (m *memUserStore) GetByID(_ context.Context, id string) (*storage.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return u, nil
}

func (m *memUserStore) GetByEmail(_ context.Context, email string) (*storage.User, error) {
	u, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return u, nil
}

func (m *memUserStore) TouchLastActive(_ context.Context, id string) error {
	u, ok := m.byID[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.LastActive = time.Now()
	return nil
}

func (m *memUserStore) SetActive(_ context.Context, id string, active bool) error {
	u, ok := m.byID[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.Active = active
	return nil
}

func newTestService(t *testing.T) (*Service, *memUserStore) {
	t.Helper()
	authority, err := NewSessionAuthority(testSecret, time.Hour)
	require.NoError(t, err)
	store := newMemUserStore()
	return NewService(store, authority, nil, nil), store
}

func TestRegisterThenLogin(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	user, err := svc.Register(ctx, "a@b.co", "password123", "Alice")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "a@b.co", user.Email)
	assert.NotEmpty(t, user.PasswordHash)

	loggedIn, bearer, expiresAt, err := svc.Login(ctx, "a@b.co", "password123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)
	assert.NotEmpty(t, bearer)
	assert.True(t, expiresAt.After(time.Now()))

	// The issued bearer must authenticate.
	authed, claims, err := svc.Authenticate(ctx, bearer)
	require.NoError(t, err)
	assert.Equal(t, user.ID, authed.ID)
	assert.Equal(t, user.ID, claims.UserID())
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Register(ctx, "not-an-email", "password123", "")
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = svc.Register(ctx, "a@b.co", "short", "")
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Register(ctx, "a@b.co", "password123", "")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "A@B.CO", "password456", "")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Register(ctx, "a@b.co", "password123", "")
	require.NoError(t, err)

	_, _, _, errWrongPassword := svc.Login(ctx, "a@b.co", "wrong")
	_, _, _, errNoUser := svc.Login(ctx, "nobody@b.co", "password123")

	assert.ErrorIs(t, errWrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, errNoUser, ErrInvalidCredentials)
	assert.Equal(t, errWrongPassword.Error(), errNoUser.Error())
}

func TestLoginInactiveUser(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	user, err := svc.Register(ctx, "a@b.co", "password123", "")
	require.NoError(t, err)
	require.NoError(t, store.SetActive(ctx, user.ID, false))

	_, _, _, err = svc.Login(ctx, "a@b.co", "password123")
	assert.ErrorIs(t, err, ErrUserInactive)
}

func TestAuthenticateRejectsDeletedUser(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	user, err := svc.Register(ctx, "a@b.co", "password123", "")
	require.NoError(t, err)
	_, bearer, _, err := svc.Login(ctx, "a@b.co", "password123")
	require.NoError(t, err)

	delete(store.byID, user.ID)
	_, _, err = svc.Authenticate(ctx, bearer)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshSession(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Register(ctx, "a@b.co", "password123", "")
	require.NoError(t, err)
	_, bearer, _, err := svc.Login(ctx, "a@b.co", "password123")
	require.NoError(t, err)

	newBearer, expiresAt, err := svc.RefreshSession(ctx, bearer)
	require.NoError(t, err)
	assert.NotEqual(t, bearer, newBearer)
	assert.True(t, expiresAt.After(time.Now()))
}

// recordingBindings records users whose cached bindings were evicted.
type recordingBindings struct {
	evicted []string
}

func (r *recordingBindings) InvalidateUser(userID string) {
	r.evicted = append(r.evicted, userID)
}

func TestDeactivateEvictsBindings(t *testing.T) {
	ctx := context.Background()
	authority, err := NewSessionAuthority(testSecret, time.Hour)
	require.NoError(t, err)
	bindings := &recordingBindings{}
	svc := NewService(newMemUserStore(), authority, nil, bindings)

	user, err := svc.Register(ctx, "a@b.co", "password123", "")
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, user.ID))
	assert.Equal(t, []string{user.ID}, bindings.evicted)

	_, _, _, err = svc.Login(ctx, "a@b.co", "password123")
	require.ErrorIs(t, err, ErrUserInactive)

	require.ErrorIs(t, svc.Deactivate(ctx, "ghost"), ErrInvalidToken)
}
