// Package gcalendar books meetings on the portal's Google Calendar using the
// OAuth token an admin connected.
package gcalendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/blinkportal/backend/pkg/obs"
)

// ErrNotConfigured means no usable credential has been connected.
var ErrNotConfigured = errors.New("gcalendar: no calendar credential connected")

// CredentialStore persists the connected OAuth token. Load returns
// ErrNotConfigured when nothing is stored.
type CredentialStore interface {
	Load(ctx context.Context) (*oauth2.Token, error)
	Save(ctx context.Context, tok *oauth2.Token) error
}

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	CalendarID   string
	TimeZone     string

	// Endpoint overrides the Calendar API base URL.
	Endpoint string
	// AuthURL and TokenURL override the Google OAuth endpoints.
	AuthURL  string
	TokenURL string
}

type Client struct {
	oauth      *oauth2.Config
	store      CredentialStore
	calendarID string
	timeZone   string
	endpoint   string
	tracer     trace.Tracer
}

func New(cfg Config, store CredentialStore) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: google client id and secret are required", ErrNotConfigured)
	}
	if store == nil {
		return nil, errors.New("gcalendar: credential store is required")
	}
	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = "UTC"
	}
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint:     endpoint,
			Scopes:       []string{calendar.CalendarEventsScope},
		},
		store:      store,
		calendarID: cfg.CalendarID,
		timeZone:   cfg.TimeZone,
		endpoint:   cfg.Endpoint,
		tracer:     obs.Tracer("gcalendar"),
	}, nil
}

// AuthURL is the consent page URL. Offline access with forced consent makes
// Google return a refresh token every time.
func (c *Client) AuthURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	return tok, nil
}

type EventInput struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Attendees   []string
	MeetingLink bool
}

type Event struct {
	ID          string
	Summary     string
	MeetingLink string
	HTMLLink    string
	Start       time.Time
	End         time.Time
}

func (c *Client) CreateEvent(ctx context.Context, in EventInput) (*Event, error) {
	ctx, span := c.tracer.Start(ctx, "gcalendar.CreateEvent")
	defer span.End()

	svc, err := c.service(ctx)
	if err != nil {
		return nil, err
	}

	ev := &calendar.Event{
		Summary:     in.Summary,
		Description: in.Description,
		Start:       c.dateTime(in.Start),
		End:         c.dateTime(in.End),
	}
	for _, email := range in.Attendees {
		if email != "" {
			ev.Attendees = append(ev.Attendees, &calendar.EventAttendee{Email: email})
		}
	}
	call := svc.Events.Insert(c.calendarID, ev).SendUpdates("all").Context(ctx)
	if in.MeetingLink {
		ev.ConferenceData = &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId:             uuid.NewString(),
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		}
		call = call.ConferenceDataVersion(1)
	}

	created, err := call.Do()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert event failed")
		return nil, fmt.Errorf("insert event: %w", err)
	}
	span.SetAttributes(attribute.String("gcalendar.event_id", created.Id))
	return toEvent(created), nil
}

// DeleteEvent removes the event. An event that is already gone is not an error.
func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	ctx, span := c.tracer.Start(ctx, "gcalendar.DeleteEvent",
		trace.WithAttributes(attribute.String("gcalendar.event_id", id)))
	defer span.End()

	svc, err := c.service(ctx)
	if err != nil {
		return err
	}
	err = svc.Events.Delete(c.calendarID, id).SendUpdates("all").Context(ctx).Do()
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone) {
		return nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete event failed")
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	return nil
}

func (c *Client) service(ctx context.Context) (*calendar.Service, error) {
	tok, err := c.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if tok == nil || (tok.RefreshToken == "" && !tok.Valid()) {
		return nil, fmt.Errorf("%w: stored token is expired and has no refresh token", ErrNotConfigured)
	}
	ts := &persistingSource{
		base:  c.oauth.TokenSource(context.Background(), tok),
		store: c.store,
		last:  tok.AccessToken,
	}
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar service: %w", err)
	}
	return svc, nil
}

func (c *Client) dateTime(t time.Time) *calendar.EventDateTime {
	return &calendar.EventDateTime{DateTime: t.Format(time.RFC3339), TimeZone: c.timeZone}
}

// persistingSource saves the token whenever the underlying source refreshes it.
type persistingSource struct {
	base  oauth2.TokenSource
	store CredentialStore

	mu   sync.Mutex
	last string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.store.Save(ctx, tok)
	}
	return tok, nil
}

func toEvent(e *calendar.Event) *Event {
	out := &Event{
		ID:          e.Id,
		Summary:     e.Summary,
		MeetingLink: e.HangoutLink,
		HTMLLink:    e.HtmlLink,
	}
	if out.MeetingLink == "" && e.ConferenceData != nil {
		for _, ep := range e.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" {
				out.MeetingLink = ep.Uri
				break
			}
		}
	}
	if e.Start != nil {
		out.Start, _ = time.Parse(time.RFC3339, e.Start.DateTime)
	}
	if e.End != nil {
		out.End, _ = time.Parse(time.RFC3339, e.End.DateTime)
	}
	return out
}
