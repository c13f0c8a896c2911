package emby

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

	"joinarr.org/internal/directory"
	"joinarr.org/internal/obs"
)

const defaultTimeout = 10 * time.Second

// Client implements directory.Service against the Emby REST API, using a
// bearer-style token header. Every call is one HTTP round trip with a fixed
// timeout; retry policy, if any, belongs to the transport.
type Client struct {
	base   string
	token  string
	client *http.Client
}

var _ directory.Service = (*Client)(nil)

// Option configures Client behavior.
type Option func(*Client)

// WithTimeout overrides the default per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithHTTPClient swaps the underlying HTTP client (tests, custom transport).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.client = h
		}
	}
}

// New creates a client for the given server base URL and API token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimRight(baseURL, "/"),
		token:  token,
		client: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ListLibraries(ctx context.Context) (directory.Catalog, error) {
	data, err := c.do(ctx, http.MethodGet, "/Library/MediaFolders", nil)
	if err != nil {
		return nil, err
	}
	var folders struct {
		Items []struct {
			ID   string `json:"Id"`
			Name string `json:"Name"`
		} `json:"Items"`
	}
	if err := json.Unmarshal(data, &folders); err != nil {
		return nil, fmt.Errorf("emby: decode media folders: %w", err)
	}
	catalog := make(directory.Catalog, len(folders.Items))
	for _, item := range folders.Items {
		catalog[item.ID] = item.Name
	}
	return catalog, nil
}

// CreateAccount creates a remote account with no password set and returns
// the remote-assigned identifier.
func (c *Client) CreateAccount(ctx context.Context, username string) (string, error) {
	data, err := c.do(ctx, http.MethodPost, "/Users/New", map[string]string{"Name": username})
	if err != nil {
		return "", err
	}
	var created struct {
		ID string `json:"Id"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		return "", fmt.Errorf("emby: decode created user: %w", err)
	}
	return created.ID, nil
}

// SetPassword sets the credential for an account that has no prior
// password. Callers are expected to treat a failure here as non-fatal and
// continue provisioning.
func (c *Client) SetPassword(ctx context.Context, accountID, password string) error {
	_, err := c.do(ctx, http.MethodPost, "/Users/"+url.PathEscape(accountID)+"/Password", map[string]any{
		"NewPw":         password,
		"CurrentPw":     "",
		"ResetPassword": false,
	})
	return err
}

func (c *Client) GetAccount(ctx context.Context, accountID string) (directory.Account, error) {
	data, err := c.do(ctx, http.MethodGet, "/Users/"+url.PathEscape(accountID), nil)
	if err != nil {
		return directory.Account{}, err
	}
	var acct directory.Account
	if err := json.Unmarshal(data, &acct); err != nil {
		return directory.Account{}, fmt.Errorf("emby: decode user %s: %w", accountID, err)
	}
	return acct, nil
}

// UpdateAccount overlays textual patch fields onto the account's current
// policy and configuration blocks. Patch values are coerced to each target
// field's declared kind; keys absent from both blocks are ignored. The full
// merged account is written back.
func (c *Client) UpdateAccount(ctx context.Context, accountID string, patch map[string]string) (directory.Account, error) {
	current, err := c.GetAccount(ctx, accountID)
	if err != nil {
		return directory.Account{}, err
	}

	for key, text := range patch {
		for _, block := range []directory.Fields{current.Policy, current.Configuration} {
			target, ok := block[key]
			if !ok {
				continue
			}
			coerced, err := target.Coerce(text)
			if err != nil {
				return directory.Account{}, err
			}
			block[key] = coerced
		}
	}

	if _, err := c.do(ctx, http.MethodPost, "/Users/"+url.PathEscape(accountID), current); err != nil {
		return directory.Account{}, err
	}
	return current, nil
}

// SetPolicy overwrites the entire policy block. The caller supplies the
// complete merged object; this is not a sparse patch.
func (c *Client) SetPolicy(ctx context.Context, accountID string, policy directory.Fields) error {
	_, err := c.do(ctx, http.MethodPost, "/Users/"+url.PathEscape(accountID)+"/Policy", policy)
	return err
}

func (c *Client) DeleteAccount(ctx context.Context, accountID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/Users/"+url.PathEscape(accountID), nil)
	return err
}

func (c *Client) ListAccounts(ctx context.Context) ([]directory.Account, error) {
	data, err := c.do(ctx, http.MethodGet, "/Users", nil)
	if err != nil {
		return nil, err
	}
	var accounts []directory.Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("emby: decode user list: %w", err)
	}
	return accounts, nil
}

// do issues one request and maps the outcome into the error taxonomy:
// TransportError before a status is received, RemoteError on non-2xx.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("emby: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, &directory.TransportError{Op: method + " " + path, Err: err}
	}
	req.Header.Set("X-Emby-Token", c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		obs.Error("media-server request failed", map[string]any{
			"method": method, "path": path, "error": err.Error(),
		})
		return nil, &directory.TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	obs.ObserveRemoteCall(method, path, resp.StatusCode)
	obs.Info("media-server request", map[string]any{
		"method": method, "path": path, "status": resp.StatusCode,
	})

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &directory.TransportError{Op: method + " " + path, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &directory.RemoteError{Status: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}
