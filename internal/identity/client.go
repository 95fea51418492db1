package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Owner is the resolved partner identity.
type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// ErrOwnerNotFound is returned when the identity service does not know
// the owner id.
var ErrOwnerNotFound = errors.New("identity: owner not found")

// Resolver looks partners up in the identity subsystem.
type Resolver interface {
	ResolveOwner(ctx context.Context, ownerID string) (*Owner, error)
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func (c *Client) ResolveOwner(ctx context.Context, ownerID string) (*Owner, error) {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return nil, errors.New("identity base url is empty")
	}
	id := strings.TrimSpace(ownerID)
	if id == "" {
		return nil, ErrOwnerNotFound
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/v1/users/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrOwnerNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("identity resolve http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var out Owner
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		out.ID = id
	}
	return &out, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}
