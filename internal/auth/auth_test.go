package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCredentials map[int64]time.Time

func (f fakeCredentials) PasswordChangedAt(_ context.Context, userID int64) (time.Time, error) {
	t, ok := f[userID]
	if !ok {
		return time.Time{}, models.ErrNotFound
	}
	return t, nil
}

type fakeUsers struct {
	byEmail map[string]*models.User
	nextID  int64
}

func newFakeUsers(users ...*models.User) *fakeUsers {
	f := &fakeUsers{byEmail: map[string]*models.User{}, nextID: 100}
	for _, u := range users {
		f.byEmail[u.Email] = u
	}
	return f
}

func (f *fakeUsers) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, models.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeUsers) CreateUser(_ context.Context, user *models.User) error {
	if _, ok := f.byEmail[user.Email]; ok {
		return models.ErrInvalidInput
	}
	f.nextID++
	user.ID = f.nextID
	user.PasswordChangedAt = time.Now()
	f.byEmail[user.Email] = user
	return nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, userID int64, hash string) error {
	u, err := f.GetUserByID(context.Background(), userID)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	u.PasswordChangedAt = time.Now()
	return nil
}

func newPair(t *testing.T, issuedAt time.Time, creds fakeCredentials) (*Issuer, *Verifier) {
	t.Helper()
	issuer := NewIssuer("secret", time.Hour)
	issuer.now = func() time.Time { return issuedAt }
	verifier := NewVerifier("secret", creds, 5*time.Second)
	verifier.now = func() time.Time { return issuedAt.Add(time.Minute) }
	return issuer, verifier
}

func TestVerifyRoundTrip(t *testing.T) {
	issuedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer, verifier := newPair(t, issuedAt, fakeCredentials{7: issuedAt.Add(-time.Hour)})

	token, err := issuer.Issue(7, models.RoleAdmin)
	require.NoError(t, err)

	id, err := verifier.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id.UserID)
	assert.True(t, id.IsAdmin())
}

func TestVerifyRejectsTokenIssuedBeforePasswordChange(t *testing.T) {
	issuedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer, verifier := newPair(t, issuedAt, fakeCredentials{7: issuedAt.Add(30 * time.Second)})

	token, err := issuer.Issue(7, models.RoleCustomer)
	require.NoError(t, err)

	_, err = verifier.Verify(context.Background(), token)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestVerifyAllowsClockSkew(t *testing.T) {
	issuedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer, verifier := newPair(t, issuedAt, fakeCredentials{7: issuedAt.Add(3 * time.Second)})

	token, err := issuer.Issue(7, models.RoleCustomer)
	require.NoError(t, err)

	_, err = verifier.Verify(context.Background(), token)
	assert.NoError(t, err)
}

func TestVerifyRejectsBadSignatureAndExpiry(t *testing.T) {
	issuedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	creds := fakeCredentials{7: issuedAt.Add(-time.Hour)}
	issuer, verifier := newPair(t, issuedAt, creds)

	other := NewIssuer("other-secret", time.Hour)
	other.now = issuer.now
	forged, err := other.Issue(7, models.RoleAdmin)
	require.NoError(t, err)
	_, err = verifier.Verify(context.Background(), forged)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	token, err := issuer.Issue(7, models.RoleCustomer)
	require.NoError(t, err)
	verifier.now = func() time.Time { return issuedAt.Add(2 * time.Hour) }
	_, err = verifier.Verify(context.Background(), token)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestVerifyRejectsUnknownUser(t *testing.T) {
	issuedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer, verifier := newPair(t, issuedAt, fakeCredentials{})

	token, err := issuer.Issue(99, models.RoleCustomer)
	require.NoError(t, err)

	_, err = verifier.Verify(context.Background(), token)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestLogin(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)

	users := newFakeUsers(&models.User{ID: 3, Email: "ops@example.com", PasswordHash: hash, Role: models.RoleAdmin})
	issuer := NewIssuer("secret", time.Hour)
	svc := NewAccountService(users, issuer)

	token, err := svc.Login(context.Background(), " OPS@example.com ", "hunter22")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	verifier := NewVerifier("secret", fakeCredentials{3: time.Now().Add(-time.Hour)}, 5*time.Second)
	id, err := verifier.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(3), id.UserID)

	_, err = svc.Login(context.Background(), "ops@example.com", "wrong")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = svc.Login(context.Background(), "nobody@example.com", "hunter22")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = svc.Login(context.Background(), "", "")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestRegister(t *testing.T) {
	users := newFakeUsers()
	svc := NewAccountService(users, NewIssuer("secret", time.Hour))
	ctx := context.Background()

	user, err := svc.Register(ctx, " New@Example.com", "long-enough")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", user.Email)
	assert.Equal(t, models.RoleCustomer, user.Role)
	assert.NotEqual(t, "long-enough", user.PasswordHash)

	_, err = svc.Register(ctx, "new@example.com", "long-enough")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = svc.Register(ctx, "not-an-email", "long-enough")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = svc.Register(ctx, "short@example.com", "short")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = svc.Register(ctx, "long@example.com", strings.Repeat("a", 73))
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = svc.Register(ctx, "max@example.com", strings.Repeat("a", 72))
	assert.NoError(t, err)

	token, err := svc.Login(ctx, "new@example.com", "long-enough")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestChangePasswordInvalidatesOldTokens(t *testing.T) {
	hash, err := HashPassword("original-pass")
	require.NoError(t, err)
	user := &models.User{ID: 5, Email: "c@example.com", PasswordHash: hash, Role: models.RoleCustomer,
		PasswordChangedAt: time.Now().Add(-time.Hour)}
	users := newFakeUsers(user)

	issuer := NewIssuer("secret", time.Hour)
	issuer.now = func() time.Time { return time.Now().Add(-time.Minute) }
	svc := NewAccountService(users, issuer)
	verifier := NewVerifier("secret", credentialsFrom(users), 5*time.Second)
	ctx := context.Background()

	oldToken, err := issuer.Issue(user.ID, user.Role)
	require.NoError(t, err)
	_, err = verifier.Verify(ctx, oldToken)
	require.NoError(t, err)

	_, err = svc.ChangePassword(ctx, user.ID, "wrong", "next-password")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	_, err = svc.ChangePassword(ctx, user.ID, "original-pass", strings.Repeat("a", 73))
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	issuer.now = time.Now
	newToken, err := svc.ChangePassword(ctx, user.ID, "original-pass", "next-password")
	require.NoError(t, err)

	_, err = verifier.Verify(ctx, oldToken)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	_, err = verifier.Verify(ctx, newToken)
	assert.NoError(t, err)

	_, err = svc.Login(ctx, "c@example.com", "next-password")
	assert.NoError(t, err)
}

type usersCredentials struct{ users *fakeUsers }

func (c usersCredentials) PasswordChangedAt(ctx context.Context, userID int64) (time.Time, error) {
	u, err := c.users.GetUserByID(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	return u.PasswordChangedAt, nil
}

func credentialsFrom(users *fakeUsers) CredentialStore {
	return usersCredentials{users: users}
}
