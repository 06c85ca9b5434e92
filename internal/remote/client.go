package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/notesync/notesync/internal/note"
)

// DefaultTimeout bounds a single HTTP call to the store.
const DefaultTimeout = 20 * time.Second

// ClientConfig configures the HTTP store client.
type ClientConfig struct {
	// BaseURL of the note API, e.g. http://localhost:8080
	BaseURL string

	// Timeout per request (default: DefaultTimeout)
	Timeout time.Duration

	// HTTPClient overrides the transport (default: a client with Timeout)
	HTTPClient *http.Client
}

// Client talks to the note API over HTTP.
type Client struct {
	base *url.URL
	http *http.Client
}

var _ Store = (*Client)(nil)

// NewClient creates a store client for the API at cfg.BaseURL.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{base: base, http: hc}, nil
}

// List implements Store.List.
func (c *Client) List(ctx context.Context) ([]note.Note, error) {
	var notes []note.Note
	if err := c.do(ctx, http.MethodGet, "/notes", nil, nil, &notes); err != nil {
		return nil, fmt.Errorf("failed to fetch notes: %w", err)
	}
	if notes == nil {
		notes = []note.Note{}
	}
	return notes, nil
}

// GetByID implements Store.GetByID.
func (c *Client) GetByID(ctx context.Context, id note.ID) (*note.Note, error) {
	var n note.Note
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/notes/%d", id), nil, nil, &n); err != nil {
		return nil, fmt.Errorf("failed to fetch note with id %d: %w", id, err)
	}
	return &n, nil
}

// Create implements Store.Create.
func (c *Client) Create(ctx context.Context, n note.Note) (note.ID, error) {
	var id note.ID
	body := struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}{n.Title, n.Content}

	if err := c.do(ctx, http.MethodPost, "/notes/create", nil, body, &id); err != nil {
		return note.NoID, fmt.Errorf("failed to create note: %w", err)
	}
	return id, nil
}

// Update implements Store.Update.
func (c *Client) Update(ctx context.Context, n note.Note) (note.ID, error) {
	var id note.ID
	if err := c.do(ctx, http.MethodPost, "/notes/update", nil, n, &id); err != nil {
		return note.NoID, fmt.Errorf("failed to update note: %w", err)
	}
	return id, nil
}

// Delete implements Store.Delete.
func (c *Client) Delete(ctx context.Context, n note.Note) (bool, error) {
	var ok bool
	if err := c.do(ctx, http.MethodPost, "/notes/delete", nil, n, &ok); err != nil {
		return false, fmt.Errorf("failed to delete note: %w", err)
	}
	return ok, nil
}

// Search implements Store.Search.
func (c *Client) Search(ctx context.Context, query string) (*note.SearchResult, error) {
	var res note.SearchResult
	q := url.Values{"query": {query}}
	if err := c.do(ctx, http.MethodGet, "/search", q, nil, &res); err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	if res.Notes == nil {
		res.Notes = []note.Note{}
	}
	if res.Highlights == nil {
		res.Highlights = map[note.ID]note.Highlight{}
	}
	return &res, nil
}

// do sends one JSON request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	u := *c.base
	u.Path = u.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: %s (%d)", method, path, strings.TrimSpace(string(msg)), resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
