package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rtc-service/internal/models"
)

// Client talks to the platform's user service over HTTP. It implements every
// directory contract.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Validate resolves a bearer token to a user id.
func (c *Client) Validate(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/internal/auth/validate", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	var out struct {
		UserID string `json:"user_id"`
	}
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	if out.UserID == "" {
		return "", ErrUserNotFound
	}
	return out.UserID, nil
}

// BulkProfiles fetches multiple profiles in one call.
func (c *Client) BulkProfiles(ctx context.Context, ids []string) ([]Profile, error) {
	if len(ids) == 0 {
		return []Profile{}, nil
	}

	endpoint := c.baseURL + "/internal/users?ids=" + url.QueryEscape(strings.Join(ids, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Users []Profile `json:"users"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// ListRecipients returns the member user ids of a conversation or channel.
func (c *Client) ListRecipients(ctx context.Context, kind models.TargetKind, targetID string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/internal/%ss/%s/members", c.baseURL, kind, url.PathEscape(targetID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		UserIDs []string `json:"user_ids"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.UserIDs, nil
}

// IsCommunityAdmin asks the parent community whether the user holds admin
// rights over the target.
func (c *Client) IsCommunityAdmin(ctx context.Context, kind models.TargetKind, targetID, userID string) (bool, error) {
	endpoint := fmt.Sprintf("%s/internal/%ss/%s/admins/%s", c.baseURL, kind, url.PathEscape(targetID), url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}

	var out struct {
		IsAdmin bool `json:"is_admin"`
	}
	if err := c.do(req, &out); err != nil {
		return false, err
	}
	return out.IsAdmin, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrUserNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("user service returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
