package gcalendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type memStore struct {
	mu    sync.Mutex
	tok   *oauth2.Token
	saved int
}

func (s *memStore) Load(context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tok == nil {
		return nil, ErrNotConfigured
	}
	return s.tok, nil
}

func (s *memStore) Save(_ context.Context, tok *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = tok
	s.saved++
	return nil
}

type fakeCalendar struct {
	mu       sync.Mutex
	inserted map[string]any
	query    string
	deleted  []string
}

func newFakeCalendar(t *testing.T) (*fakeCalendar, *httptest.Server) {
	f := &fakeCalendar{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")

		if r.URL.Path == "/token" {
			_, _ = w.Write([]byte(`{"access_token":"fresh","token_type":"Bearer","refresh_token":"r1","expires_in":3600}`))
			return
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/calendars/primary/events":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&f.inserted))
			f.query = r.URL.RawQuery
			_, _ = w.Write([]byte(`{"id":"evt-1","summary":"Kickoff","hangoutLink":"https://meet.google.com/abc",
				"start":{"dateTime":"2030-01-02T09:00:00Z"},"end":{"dateTime":"2030-01-02T10:00:00Z"}}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/calendars/primary/events/evt-1":
			f.deleted = append(f.deleted, "evt-1")
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusGone)
			_, _ = w.Write([]byte(`{"error":{"code":410,"message":"deleted"}}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"bad request"}}`))
		}
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func newTestClient(t *testing.T, srv *httptest.Server, store CredentialStore) *Client {
	c, err := New(Config{
		ClientID:     "cid",
		ClientSecret: "secret",
		RedirectURI:  "https://portal.example/api/v1/integrations/google/callback",
		Endpoint:     srv.URL + "/",
		AuthURL:      srv.URL + "/auth",
		TokenURL:     srv.URL + "/token",
	}, store)
	require.NoError(t, err)
	return c
}

func validStore() *memStore {
	return &memStore{tok: &oauth2.Token{AccessToken: "a1", RefreshToken: "r1", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}}
}

func TestNewRequiresClientCredentials(t *testing.T) {
	_, err := New(Config{}, &memStore{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestCreateEventWithMeetingLink(t *testing.T) {
	f, srv := newFakeCalendar(t)
	c := newTestClient(t, srv, validStore())

	start := time.Date(2030, 1, 2, 9, 0, 0, 0, time.UTC)
	ev, err := c.CreateEvent(context.Background(), EventInput{
		Summary:     "Kickoff",
		Description: "first call",
		Start:       start,
		End:         start.Add(time.Hour),
		Attendees:   []string{"client@example.com", ""},
		MeetingLink: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", ev.ID)
	assert.Equal(t, "https://meet.google.com/abc", ev.MeetingLink)
	assert.True(t, ev.Start.Equal(start))

	assert.Contains(t, f.query, "conferenceDataVersion=1")
	assert.Contains(t, f.query, "sendUpdates=all")
	attendees := f.inserted["attendees"].([]any)
	assert.Len(t, attendees, 1)
	conf := f.inserted["conferenceData"].(map[string]any)["createRequest"].(map[string]any)
	assert.NotEmpty(t, conf["requestId"])
}

func TestDeleteEventToleratesGone(t *testing.T) {
	f, srv := newFakeCalendar(t)
	c := newTestClient(t, srv, validStore())

	require.NoError(t, c.DeleteEvent(context.Background(), "evt-1"))
	require.NoError(t, c.DeleteEvent(context.Background(), "evt-old"))
	assert.Equal(t, []string{"evt-1"}, f.deleted)
}

func TestNoCredentialIsNotConfigured(t *testing.T) {
	_, srv := newFakeCalendar(t)
	c := newTestClient(t, srv, &memStore{})

	_, err := c.CreateEvent(context.Background(), EventInput{Summary: "x"})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, c.DeleteEvent(context.Background(), "evt-1"), ErrNotConfigured)
}

func TestExpiredTokenIsRefreshedAndSaved(t *testing.T) {
	_, srv := newFakeCalendar(t)
	store := &memStore{tok: &oauth2.Token{AccessToken: "stale", RefreshToken: "r1", Expiry: time.Now().Add(-time.Hour)}}
	c := newTestClient(t, srv, store)

	require.NoError(t, c.DeleteEvent(context.Background(), "evt-1"))
	assert.Equal(t, 1, store.saved)
	assert.Equal(t, "fresh", store.tok.AccessToken)
}

func TestAuthURLAndExchange(t *testing.T) {
	_, srv := newFakeCalendar(t)
	c := newTestClient(t, srv, &memStore{})

	u := c.AuthURL("state-123")
	assert.Contains(t, u, "state=state-123")
	assert.Contains(t, u, "access_type=offline")

	tok, err := c.Exchange(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)
	assert.Equal(t, "r1", tok.RefreshToken)
}
