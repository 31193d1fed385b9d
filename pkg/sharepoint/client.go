// Package sharepoint stores portal documents in a SharePoint document library
// through the Microsoft Graph drive API.
package sharepoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/blinkportal/backend/pkg/obs"
	"github.com/blinkportal/backend/pkg/tokencache"
)

const (
	defaultGraphURL = "https://graph.microsoft.com/v1.0"
	graphScope      = "https://graph.microsoft.com/.default"
)

var ErrNotConfigured = errors.New("sharepoint: tenant, client credentials or drive not configured")

type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	SiteID       string
	DriveID      string
	Timeout      time.Duration

	// GraphURL and TokenURL override the Microsoft endpoints.
	GraphURL string
	TokenURL string
}

func (c Config) configured() bool {
	return c.TenantID != "" && c.ClientID != "" && c.ClientSecret != "" && c.DriveID != ""
}

// Item is the subset of a Graph driveItem the portal keeps.
type Item struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	WebURL      string `json:"webUrl"`
	DownloadURL string `json:"@microsoft.graph.downloadUrl"`
	File        *struct {
		MimeType string `json:"mimeType"`
	} `json:"file,omitempty"`
}

func (i *Item) MimeType() string {
	if i.File == nil {
		return ""
	}
	return i.File.MimeType
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph api status %d: %s", e.Status, e.Body)
}

type Client struct {
	cfg     Config
	http    *http.Client
	baseURL string
	tracer  trace.Tracer
}

// New builds a Graph client. An incomplete Config still yields a Client whose
// calls all fail with ErrNotConfigured. cache may be nil.
func New(cfg Config, cache tokencache.Store) *Client {
	c := &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.GraphURL, "/"),
		tracer:  obs.Tracer("sharepoint"),
	}
	if c.baseURL == "" {
		c.baseURL = defaultGraphURL
	}
	if !cfg.configured() {
		return c
	}

	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID)
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{graphScope},
	}
	var ts oauth2.TokenSource = cc.TokenSource(context.Background())
	if cache != nil {
		ts = tokencache.NewSource(cache, "sharepoint:token:"+cfg.ClientID, ts)
	}
	c.http = oauth2.NewClient(context.Background(), ts)
	if cfg.Timeout > 0 {
		c.http.Timeout = cfg.Timeout
	}
	return c
}

func (c *Client) Configured() bool {
	return c.http != nil
}

// Upload puts content at folder/filename in the drive root. Graph's simple
// upload accepts files up to 4MB.
func (c *Client) Upload(ctx context.Context, content io.Reader, filename, folder string) (*Item, error) {
	ctx, span := c.tracer.Start(ctx, "sharepoint.Upload",
		trace.WithAttributes(attribute.String("sharepoint.filename", filename)))
	defer span.End()

	p := joinPath(folder, filename)
	u := fmt.Sprintf("%s/drives/%s/root:%s:/content", c.baseURL, url.PathEscape(c.cfg.DriveID), p)
	var item Item
	if err := c.do(ctx, http.MethodPut, u, content, "application/octet-stream", &item); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		return nil, fmt.Errorf("upload %s: %w", p, err)
	}
	return &item, nil
}

func (c *Client) GetItem(ctx context.Context, id string) (*Item, error) {
	u := fmt.Sprintf("%s/drives/%s/items/%s", c.baseURL, url.PathEscape(c.cfg.DriveID), url.PathEscape(id))
	var item Item
	if err := c.do(ctx, http.MethodGet, u, nil, "", &item); err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	return &item, nil
}

// DownloadURL returns a short-lived pre-authenticated download link.
func (c *Client) DownloadURL(ctx context.Context, id string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "sharepoint.DownloadURL",
		trace.WithAttributes(attribute.String("sharepoint.item_id", id)))
	defer span.End()

	item, err := c.GetItem(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get item failed")
		return "", err
	}
	if item.DownloadURL == "" {
		return "", fmt.Errorf("item %s has no download url", id)
	}
	return item.DownloadURL, nil
}

// Delete removes an item. A missing item is not an error.
func (c *Client) Delete(ctx context.Context, id string) error {
	ctx, span := c.tracer.Start(ctx, "sharepoint.Delete",
		trace.WithAttributes(attribute.String("sharepoint.item_id", id)))
	defer span.End()

	u := fmt.Sprintf("%s/drives/%s/items/%s", c.baseURL, url.PathEscape(c.cfg.DriveID), url.PathEscape(id))
	err := c.do(ctx, http.MethodDelete, u, nil, "", nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return fmt.Errorf("delete item %s: %w", id, err)
	}
	return nil
}

// CreateFolder creates name under parent, renaming on conflict.
func (c *Client) CreateFolder(ctx context.Context, name, parent string) (*Item, error) {
	body, _ := json.Marshal(map[string]any{
		"name":                              name,
		"folder":                            map[string]any{},
		"@microsoft.graph.conflictBehavior": "rename",
	})
	var u string
	if p := joinPath(parent, ""); p == "/" {
		u = fmt.Sprintf("%s/drives/%s/root/children", c.baseURL, url.PathEscape(c.cfg.DriveID))
	} else {
		u = fmt.Sprintf("%s/drives/%s/root:%s:/children", c.baseURL, url.PathEscape(c.cfg.DriveID), p)
	}
	var item Item
	if err := c.do(ctx, http.MethodPost, u, strings.NewReader(string(body)), "application/json", &item); err != nil {
		return nil, fmt.Errorf("create folder %s: %w", name, err)
	}
	return &item, nil
}

func (c *Client) do(ctx context.Context, method, u string, body io.Reader, contentType string, out any) error {
	if c.http == nil {
		return ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &APIError{Status: resp.StatusCode, Body: string(b)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode graph response: %w", err)
	}
	return nil
}

// joinPath builds an escaped drive path like /folder/sub/name.
func joinPath(folder, name string) string {
	var parts []string
	for _, s := range strings.Split(folder, "/") {
		if s != "" {
			parts = append(parts, url.PathEscape(s))
		}
	}
	if name != "" {
		parts = append(parts, url.PathEscape(name))
	}
	return "/" + strings.Join(parts, "/")
}
