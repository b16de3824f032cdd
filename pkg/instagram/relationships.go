package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Follow issues a follow for the given user.
func (c *Client) Follow(ctx context.Context, userID int64) error {
	endpoint := fmt.Sprintf("/friendships/create/%d/", userID)
	if _, err := c.makeRequest(ctx, http.MethodPost, endpoint, c.signedForm(userID)); err != nil {
		return fmt.Errorf("follow user %d: %w", userID, err)
	}
	return nil
}

// Unfollow issues an unfollow for the given user.
func (c *Client) Unfollow(ctx context.Context, userID int64) error {
	endpoint := fmt.Sprintf("/friendships/destroy/%d/", userID)
	if _, err := c.makeRequest(ctx, http.MethodPost, endpoint, c.signedForm(userID)); err != nil {
		return fmt.Errorf("unfollow user %d: %w", userID, err)
	}
	return nil
}

// Followers returns up to limit followers of the given user.
func (c *Client) Followers(ctx context.Context, userID int64, limit int) ([]User, error) {
	endpoint := fmt.Sprintf("/friendships/%d/followers/?count=%d", userID, limit)
	body, err := c.makeRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("list followers of %d: %w", userID, err)
	}

	var payload struct {
		Users []User `json:"users"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode followers response: %w", err)
	}
	return payload.Users, nil
}

// CurrentUser returns the authenticated account.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	body, err := c.makeRequest(ctx, http.MethodGet, "/accounts/current_user/?edit=true", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch current user: %w", err)
	}

	var payload struct {
		User User `json:"user"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode current user response: %w", err)
	}
	return &payload.User, nil
}

// signedForm builds the minimal form body write endpoints expect.
func (c *Client) signedForm(userID int64) url.Values {
	form := url.Values{}
	form.Set("user_id", strconv.FormatInt(userID, 10))
	if c.config.DeviceID != "" {
		form.Set("device_id", c.config.DeviceID)
	}
	return form
}
