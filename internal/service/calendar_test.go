package service

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/blinkportal/backend/internal/model"
	"github.com/blinkportal/backend/pkg/encrypt"
	"github.com/blinkportal/backend/pkg/gcalendar"
	"github.com/blinkportal/backend/pkg/tokencache"
)

func newCipher(t *testing.T) *encrypt.Cipher {
	t.Helper()
	c, err := encrypt.NewCipher("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	return c
}

type fakeAuth struct {
	token *oauth2.Token
	err   error
	codes []string
}

func (a *fakeAuth) AuthURL(state string) string {
	return "https://accounts.example.com/auth?state=" + url.QueryEscape(state)
}

func (a *fakeAuth) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	a.codes = append(a.codes, code)
	return a.token, a.err
}

func TestCredentialStoreRoundTrip(t *testing.T) {
	db := newTestDB(t)
	store := NewCredentialStore(db, newCipher(t))
	ctx := context.Background()

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, gcalendar.ErrNotConfigured)

	assert.ErrorIs(t, store.Save(ctx, &oauth2.Token{AccessToken: "a"}), ErrInvalidState)

	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, store.SaveFor(ctx, 7, &oauth2.Token{
		AccessToken: "access-1", RefreshToken: "refresh-1", TokenType: "Bearer", Expiry: exp,
	}))

	var cred model.CalendarCredential
	require.NoError(t, db.First(&cred).Error)
	assert.NotContains(t, cred.RefreshToken, "refresh-1")
	assert.Equal(t, uint(7), cred.ConnectedBy)

	tok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)
	assert.Equal(t, "refresh-1", tok.RefreshToken)
	assert.True(t, tok.Expiry.Equal(exp))

	require.NoError(t, store.Save(ctx, &oauth2.Token{AccessToken: "access-2", TokenType: "Bearer"}))
	tok, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-2", tok.AccessToken)
	assert.Equal(t, "refresh-1", tok.RefreshToken)
	assert.Equal(t, int64(1), count(t, db, &model.CalendarCredential{}, ""))
}

func TestCredentialStoreWithoutKey(t *testing.T) {
	db := newTestDB(t)
	store := NewCredentialStore(db, nil)
	assert.ErrorIs(t, store.Save(context.Background(), &oauth2.Token{RefreshToken: "r"}), encrypt.ErrNoKey)
}

func TestCalendarConnectFlow(t *testing.T) {
	db := newTestDB(t)
	auth := &fakeAuth{token: &oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer"}}
	svc := NewCalendarService(db, NewCredentialStore(db, newCipher(t)), auth, tokencache.NewMemoryStore())
	ctx := context.Background()
	admin := seedUser(t, db, model.RoleAdmin)
	client := seedUser(t, db, model.RoleClient)

	_, err := svc.LoginURL(ctx, client)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	st, err := svc.Status(ctx, admin)
	require.NoError(t, err)
	assert.True(t, st.Enabled)
	assert.False(t, st.Connected)

	link, err := svc.LoginURL(ctx, admin)
	require.NoError(t, err)
	u, err := url.Parse(link)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)

	assert.ErrorIs(t, svc.Callback(ctx, "forged", "code"), ErrInvalidInput)
	require.NoError(t, svc.Callback(ctx, state, "code-1"))
	assert.ErrorIs(t, svc.Callback(ctx, state, "code-1"), ErrInvalidInput)
	assert.Equal(t, []string{"code-1"}, auth.codes)

	st, err = svc.Status(ctx, admin)
	require.NoError(t, err)
	assert.True(t, st.Connected)
	assert.Equal(t, admin.ID, st.ConnectedBy)
	assert.Equal(t, int64(1), count(t, db, &model.OperationLog{}, "action = ?", model.ActionCalendarConnect))
}

func TestCalendarCallbackFailures(t *testing.T) {
	db := newTestDB(t)
	auth := &fakeAuth{err: errors.New("invalid_grant")}
	states := tokencache.NewMemoryStore()
	svc := NewCalendarService(db, NewCredentialStore(db, newCipher(t)), auth, states)
	ctx := context.Background()
	admin := seedUser(t, db, model.RoleAdmin)

	link, err := svc.LoginURL(ctx, admin)
	require.NoError(t, err)
	u, _ := url.Parse(link)
	assert.ErrorIs(t, svc.Callback(ctx, u.Query().Get("state"), "code"), ErrAdapter)

	auth.err = nil
	auth.token = &oauth2.Token{AccessToken: "a"}
	link, err = svc.LoginURL(ctx, admin)
	require.NoError(t, err)
	u, _ = url.Parse(link)
	assert.ErrorIs(t, svc.Callback(ctx, u.Query().Get("state"), "code"), ErrInvalidState)
	assert.Zero(t, count(t, db, &model.CalendarCredential{}, ""))

	disabled := NewCalendarService(db, nil, nil, states)
	_, err = disabled.LoginURL(ctx, admin)
	assert.ErrorIs(t, err, ErrConfiguration)
}
