package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/blinkportal/backend/internal/model"
	"github.com/blinkportal/backend/internal/policy"
	"github.com/blinkportal/backend/pkg/encrypt"
	"github.com/blinkportal/backend/pkg/gcalendar"
	"github.com/blinkportal/backend/pkg/tokencache"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

const (
	oauthStatePrefix = "gcal:oauth_state:"
	oauthStateTTL    = 10 * time.Minute
)

// CredentialStore keeps the connected Google token in calendar_credentials,
// encrypted with the configured AES key. It implements gcalendar.CredentialStore.
type CredentialStore struct {
	db     *gorm.DB
	cipher *encrypt.Cipher
}

func NewCredentialStore(db *gorm.DB, cipher *encrypt.Cipher) *CredentialStore {
	return &CredentialStore{db: db, cipher: cipher}
}

func (s *CredentialStore) Load(ctx context.Context) (*oauth2.Token, error) {
	var cred model.CalendarCredential
	if err := s.db.WithContext(ctx).Order("id DESC").First(&cred).Error; err != nil {
		if isNotFound(err) {
			return nil, gcalendar.ErrNotConfigured
		}
		return nil, err
	}
	if s.cipher == nil {
		return nil, fmt.Errorf("%w: %v", gcalendar.ErrNotConfigured, encrypt.ErrNoKey)
	}
	refresh, err := s.cipher.Decrypt(cred.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt refresh token: %v", gcalendar.ErrNotConfigured, err)
	}
	tok := &oauth2.Token{RefreshToken: refresh, TokenType: cred.TokenType}
	if cred.AccessToken != "" {
		if access, err := s.cipher.Decrypt(cred.AccessToken); err == nil {
			tok.AccessToken = access
		}
	}
	if cred.Expiry != nil {
		tok.Expiry = *cred.Expiry
	}
	return tok, nil
}

// Save stores a refreshed token on the current credential.
func (s *CredentialStore) Save(ctx context.Context, tok *oauth2.Token) error {
	return s.SaveFor(ctx, 0, tok)
}

// SaveFor stores tok, recording connectedBy when it is non-zero. An empty
// refresh token keeps the stored one.
func (s *CredentialStore) SaveFor(ctx context.Context, connectedBy uint, tok *oauth2.Token) error {
	if s.cipher == nil {
		return encrypt.ErrNoKey
	}
	access, err := s.cipher.Encrypt(tok.AccessToken)
	if err != nil {
		return err
	}
	fields := map[string]interface{}{
		"access_token": access,
		"token_type":   tok.TokenType,
		"expiry":       nil,
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry
		fields["expiry"] = &exp
	}
	if tok.RefreshToken != "" {
		refresh, err := s.cipher.Encrypt(tok.RefreshToken)
		if err != nil {
			return err
		}
		fields["refresh_token"] = refresh
	}
	if connectedBy != 0 {
		fields["connected_by"] = connectedBy
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cred model.CalendarCredential
		err := tx.Order("id DESC").First(&cred).Error
		if isNotFound(err) {
			if tok.RefreshToken == "" {
				return invalidState("no refresh token to store")
			}
			cred = model.CalendarCredential{
				ConnectedBy:  connectedBy,
				AccessToken:  access,
				RefreshToken: fields["refresh_token"].(string),
				TokenType:    tok.TokenType,
			}
			if exp, ok := fields["expiry"].(*time.Time); ok {
				cred.Expiry = exp
			}
			return tx.Create(&cred).Error
		}
		if err != nil {
			return err
		}
		fields["updated_at"] = now()
		return tx.Model(&cred).Updates(fields).Error
	})
}

// CalendarAuth runs the Google consent flow. *gcalendar.Client implements it.
type CalendarAuth interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

type CalendarStatus struct {
	Enabled     bool       `json:"enabled"`
	Connected   bool       `json:"connected"`
	ConnectedBy uint       `json:"connected_by,omitempty"`
	Expiry      *time.Time `json:"expiry,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// CalendarService connects the booking calendar to an admin's Google account.
type CalendarService struct {
	db     *gorm.DB
	store  *CredentialStore
	auth   CalendarAuth
	states tokencache.Store
}

// NewCalendarService builds the service. A nil auth means Google is disabled.
func NewCalendarService(db *gorm.DB, store *CredentialStore, auth CalendarAuth, states tokencache.Store) *CalendarService {
	return &CalendarService{db: db, store: store, auth: auth, states: states}
}

func (s *CalendarService) LoginURL(ctx context.Context, actor policy.Actor) (string, error) {
	if !actor.IsAdmin() {
		return "", denied()
	}
	if s.auth == nil {
		return "", notConfigured("google calendar", gcalendar.ErrNotConfigured)
	}
	state := uuid.NewString()
	if err := s.states.Set(ctx, oauthStatePrefix+state, strconv.FormatUint(uint64(actor.ID), 10), oauthStateTTL); err != nil {
		return "", fmt.Errorf("save oauth state: %w", err)
	}
	return s.auth.AuthURL(state), nil
}

// Callback completes the consent flow. The state is single use.
func (s *CalendarService) Callback(ctx context.Context, state, code string) error {
	if s.auth == nil {
		return notConfigured("google calendar", gcalendar.ErrNotConfigured)
	}
	if state == "" || code == "" {
		return invalidInput("state and code are required")
	}
	key := oauthStatePrefix + state
	v, err := s.states.Get(ctx, key)
	if errors.Is(err, tokencache.ErrMiss) {
		return invalidInput("invalid or expired state")
	}
	if err != nil {
		return fmt.Errorf("load oauth state: %w", err)
	}
	_ = s.states.Delete(ctx, key)

	adminID, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return invalidInput("invalid state")
	}
	tok, err := s.auth.Exchange(ctx, code)
	if err != nil {
		return adapterFailure("google code exchange", err)
	}
	if tok.RefreshToken == "" {
		return invalidState("google did not return a refresh token")
	}
	if err := s.store.SaveFor(ctx, uint(adminID), tok); err != nil {
		return fmt.Errorf("save calendar credential: %w", err)
	}

	actor := policy.Actor{ID: uint(adminID), Role: model.RoleAdmin}
	return writeLog(ctx, s.db.WithContext(ctx), actor, model.ActionCalendarConnect, "calendar", 0, nil)
}

func (s *CalendarService) Status(ctx context.Context, actor policy.Actor) (*CalendarStatus, error) {
	if !actor.IsAdmin() {
		return nil, denied()
	}
	st := &CalendarStatus{Enabled: s.auth != nil}
	var cred model.CalendarCredential
	err := s.db.WithContext(ctx).Order("id DESC").First(&cred).Error
	if isNotFound(err) {
		return st, nil
	}
	if err != nil {
		return nil, err
	}
	st.Connected = true
	st.ConnectedBy = cred.ConnectedBy
	st.Expiry = cred.Expiry
	st.UpdatedAt = cred.UpdatedAt
	return st, nil
}
