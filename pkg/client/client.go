package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/meridianlabs/davsync/pkg/types"
)

// Account is the wire form of types.Account returned by the daemon's HTTP
// API; it omits nothing types.Account carries, but is decoded independently
// so the client has no compile-time dependency on pkg/service.
type Account struct {
	ID        types.AccountID `json:"id"`
	BaseURL   string          `json:"baseUrl"`
	Username  string          `json:"username"`
	Label     string          `json:"label"`
	CreatedAt time.Time       `json:"createdAt"`
}

// ResourcesResponse is the body of a GET .../resources call.
type ResourcesResponse struct {
	Resource *types.Resource  `json:"resource"`
	Children []types.Resource `json:"children"`
}

// Client talks to a running davsyncd's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client against baseURL (e.g. "http://127.0.0.1:8787").
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// ListAccounts fetches every account registered with the daemon.
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	var out []Account
	if err := c.do(ctx, http.MethodGet, "/accounts", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddAccount registers a new account with the daemon.
func (c *Client) AddAccount(ctx context.Context, baseURL, username, label string) (Account, error) {
	req := map[string]string{"baseUrl": baseURL, "username": username, "label": label}
	var out Account
	if err := c.do(ctx, http.MethodPost, "/accounts", req, &out); err != nil {
		return Account{}, err
	}
	return out, nil
}

// RemoveAccount deletes an account.
func (c *Client) RemoveAccount(ctx context.Context, id types.AccountID) error {
	return c.do(ctx, http.MethodDelete, "/accounts/"+url.PathEscape(string(id)), nil, nil)
}

// Resources fetches path's resource and direct children under account id.
func (c *Client) Resources(ctx context.Context, id types.AccountID, path types.Path) (ResourcesResponse, error) {
	endpoint := fmt.Sprintf("/accounts/%s/resources?path=%s", url.PathEscape(string(id)), url.QueryEscape(strings.Join(path, "/")))
	var out ResourcesResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return ResourcesResponse{}, err
	}
	return out, nil
}

// Sync triggers a reconcile of path under account id and waits for it to
// complete, returning the resulting ChangeSet.
func (c *Client) Sync(ctx context.Context, id types.AccountID, path types.Path) (types.ChangeSet, error) {
	endpoint := fmt.Sprintf("/accounts/%s/sync?path=%s", url.PathEscape(string(id)), url.QueryEscape(strings.Join(path, "/")))
	var out types.ChangeSet
	if err := c.do(ctx, http.MethodPost, endpoint, nil, &out); err != nil {
		return types.ChangeSet{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return types.NewError(types.KindNetwork, "request to daemon failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		}
		return types.NewError(types.KindUnexpectedStatus, apiErr.Error, nil)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
