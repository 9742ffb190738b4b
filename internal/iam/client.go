package iam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// User is the provider-side account surfaced in the admin user list.
type User struct {
	ID          string `json:"id"`
	UserName    string `json:"userName"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	State       string `json:"state"`
}

// Grant is a project authorization carrying role keys for one user.
type Grant struct {
	ID        string   `json:"id"`
	ProjectID string   `json:"projectId"`
	RoleKeys  []string `json:"roleKeys"`
}

// Client talks to the provider's management API. Credentials are passed per
// call; the resolver decides whether that is a service-account token or the
// calling user's own token.
type Client struct {
	issuer     string
	httpClient *http.Client
}

// NewClient creates a management API client for the given provider issuer.
func NewClient(issuer string) *Client {
	return &Client{
		issuer:     strings.TrimSuffix(issuer, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// SearchUsers lists provider accounts, newest layout first. An empty query
// set returns everything up to limit.
func (c *Client) SearchUsers(ctx context.Context, token string, limit int) ([]User, error) {
	reqBody := map[string]any{
		"queries": []any{},
		"limit":   limit,
	}

	var payload struct {
		Result []struct {
			ID       string `json:"id"`
			UserName string `json:"userName"`
			State    string `json:"state"`
			Human    *struct {
				Profile struct {
					DisplayName string `json:"displayName"`
				} `json:"profile"`
				Email struct {
					Email string `json:"email"`
				} `json:"email"`
			} `json:"human"`
		} `json:"result"`
	}

	if err := c.post(ctx, token, "/management/v1/users/_search", reqBody, &payload); err != nil {
		return nil, err
	}

	users := make([]User, 0, len(payload.Result))
	for _, r := range payload.Result {
		user := User{
			ID:       r.ID,
			UserName: r.UserName,
			State:    r.State,
		}
		if r.Human != nil {
			user.DisplayName = r.Human.Profile.DisplayName
			user.Email = r.Human.Email.Email
		}
		users = append(users, user)
	}
	return users, nil
}

// SearchUserGrants lists project authorizations for one user.
func (c *Client) SearchUserGrants(ctx context.Context, token, userID string) ([]Grant, error) {
	var payload struct {
		Result []Grant `json:"result"`
	}

	path := fmt.Sprintf("/management/v1/users/%s/grants/_search", userID)
	if err := c.post(ctx, token, path, map[string]any{"queries": []any{}}, &payload); err != nil {
		return nil, err
	}
	return payload.Result, nil
}

// AddUserGrant authorizes a user for project roles. When a grant for the
// project already exists the provider answers 409; in that case the existing
// grant is updated with the merged role set.
func (c *Client) AddUserGrant(ctx context.Context, token, userID, projectID string, roles []string) error {
	path := fmt.Sprintf("/management/v1/users/%s/grants", userID)
	body := map[string]any{"projectId": projectID, "roleKeys": roles}

	err := c.post(ctx, token, path, body, nil)
	if err == nil {
		return nil
	}
	var provErr *ProviderError
	if !errors.As(err, &provErr) || provErr.StatusCode != http.StatusConflict {
		return err
	}

	// Grant exists; merge the role sets.
	grants, err := c.SearchUserGrants(ctx, token, userID)
	if err != nil {
		return err
	}
	for _, g := range grants {
		if g.ProjectID != projectID {
			continue
		}
		return c.UpdateUserGrant(ctx, token, userID, g.ID, mergeRoles(g.RoleKeys, roles))
	}
	return fmt.Errorf("grant conflict for user %s but no existing grant found", userID)
}

// UpdateUserGrant replaces the role keys on an existing grant.
func (c *Client) UpdateUserGrant(ctx context.Context, token, userID, grantID string, roles []string) error {
	path := fmt.Sprintf("/management/v1/users/%s/grants/%s", userID, grantID)
	return c.put(ctx, token, path, map[string]any{"roleKeys": roles})
}

// RemoveUserGrantRole drops one role from a user's project grant, updating
// the grant in place. Removing the last role leaves an empty grant, which
// the provider treats as no authorization.
func (c *Client) RemoveUserGrantRole(ctx context.Context, token, userID, projectID, role string) error {
	grants, err := c.SearchUserGrants(ctx, token, userID)
	if err != nil {
		return err
	}
	for _, g := range grants {
		if g.ProjectID != projectID {
			continue
		}
		remaining := make([]string, 0, len(g.RoleKeys))
		for _, have := range g.RoleKeys {
			if have != role {
				remaining = append(remaining, have)
			}
		}
		if len(remaining) == len(g.RoleKeys) {
			return nil // role was not granted
		}
		return c.UpdateUserGrant(ctx, token, userID, g.ID, remaining)
	}
	return nil
}

func (c *Client) post(ctx context.Context, token, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, token, path, body, out)
}

func (c *Client) put(ctx context.Context, token, path string, body any) error {
	return c.do(ctx, http.MethodPut, token, path, body, nil)
}

func (c *Client) do(ctx context.Context, method, token, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.issuer+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProviderError{Op: method + " " + path, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func mergeRoles(existing, added []string) []string {
	seen := make(map[string]bool, len(existing)+len(added))
	merged := make([]string, 0, len(existing)+len(added))
	for _, r := range existing {
		if !seen[r] {
			seen[r] = true
			merged = append(merged, r)
		}
	}
	for _, r := range added {
		if !seen[r] {
			seen[r] = true
			merged = append(merged, r)
		}
	}
	return merged
}
